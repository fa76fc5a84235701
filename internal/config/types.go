package config

import "time"

// Config is the root configuration of the departure board.
type Config struct {
	Env      string `yaml:"env" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	Server    ServerConfig    `yaml:"server"`
	Location  LocationConfig  `yaml:"location"`
	Transit   TransitConfig   `yaml:"transit"`
	Bikeshare BikeshareConfig `yaml:"bikeshare"`
	Weather   WeatherConfig   `yaml:"weather"`
	Alerts    AlertsConfig    `yaml:"alerts"`

	// WalkingMinutes and BufferMinutes feed the leave-now decision.
	WalkingMinutes int `yaml:"walking_time" validate:"gte=0,lte=120"`
	BufferMinutes  int `yaml:"buffer_time" validate:"gte=0,lte=60"`

	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=1s"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Publish   PublishConfig   `yaml:"publish"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port         int           `yaml:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// CORSOrigins lists the origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins"`

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool `yaml:"require_tls"`
}

// LocationConfig is where the board stands.
type LocationConfig struct {
	Name     string  `yaml:"name"`
	Lat      float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon      float64 `yaml:"lon" validate:"gte=-180,lte=180"`
	Timezone string  `yaml:"timezone" validate:"omitempty,timezone"`
}

// SourceConfig holds the cache and transport settings shared by all feeds.
type SourceConfig struct {
	TTL     time.Duration `yaml:"ttl" validate:"gte=0"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// TransitConfig configures the GTFS-Realtime trip updates feed.
type TransitConfig struct {
	SourceConfig `yaml:",inline"`

	APIKey         string   `yaml:"api_key"`
	TripUpdatesURL string   `yaml:"trip_updates_url" validate:"omitempty,url"`
	StopIDs        []string `yaml:"stop_ids" validate:"dive,required"`

	// PerDirection caps departures per route and direction.
	PerDirection int           `yaml:"per_direction" validate:"gte=0,lte=20"`
	Horizon      time.Duration `yaml:"horizon" validate:"gte=0"`

	// Headsigns maps route ids to display labels.
	Headsigns map[string]string `yaml:"headsigns"`
}

// BikeshareConfig configures the GBFS feeds.
type BikeshareConfig struct {
	SourceConfig `yaml:",inline"`

	StationIDs     []string `yaml:"station_ids" validate:"dive,required"`
	StatusURL      string   `yaml:"status_url" validate:"omitempty,url"`
	InformationURL string   `yaml:"information_url" validate:"omitempty,url"`
}

// WeatherConfig configures the Open-Meteo forecast and air quality APIs.
type WeatherConfig struct {
	SourceConfig `yaml:",inline"`

	Enabled       bool   `yaml:"enabled"`
	ForecastURL   string `yaml:"forecast_url" validate:"omitempty,url"`
	AirQualityURL string `yaml:"air_quality_url" validate:"omitempty,url"`
}

// AlertsConfig configures the GTFS-Realtime service alerts feed. It uses the
// transit API key.
type AlertsConfig struct {
	SourceConfig `yaml:",inline"`

	Enabled  bool     `yaml:"enabled"`
	URL      string   `yaml:"url" validate:"omitempty,url"`
	RouteIDs []string `yaml:"route_ids"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// PublishConfig configures where snapshots are pushed.
type PublishConfig struct {
	Redis RedisConfig `yaml:"redis"`
	Kafka KafkaConfig `yaml:"kafka"`
}

// RedisConfig configures the Redis publisher. An empty Addr disables it.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Key      string        `yaml:"key"`
	Channel  string        `yaml:"channel"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
}

// KafkaConfig configures the Kafka publisher. No brokers disables it.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" validate:"dive,hostname_port"`
	Topic   string   `yaml:"topic"`
}

// WorkerConfig configures the Pub/Sub poll trigger.
type WorkerConfig struct {
	ProjectID      string `yaml:"project_id"`
	SubscriptionID string `yaml:"subscription_id"`
}
