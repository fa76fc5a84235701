// Package config loads the departure board configuration from a YAML file,
// a .env file and environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PathEnv names the environment variable holding the config file path.
const PathEnv = "DEPARTUREBOARD_CONFIG"

// DefaultPath is read when PathEnv is unset.
const DefaultPath = "config.yaml"

// Default returns the configuration used when no file is present: the
// Montreal location with no stops or stations.
func Default() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Location: LocationConfig{
			Name:     "Montréal",
			Lat:      45.5017,
			Lon:      -73.5673,
			Timezone: "America/Toronto",
		},
		Transit: TransitConfig{
			SourceConfig: SourceConfig{TTL: 30 * time.Second, Timeout: 5 * time.Second},
			PerDirection: 2,
			Horizon:      60 * time.Minute,
		},
		Bikeshare: BikeshareConfig{
			SourceConfig: SourceConfig{TTL: 60 * time.Second, Timeout: 5 * time.Second},
		},
		Weather: WeatherConfig{
			SourceConfig: SourceConfig{TTL: 600 * time.Second, Timeout: 5 * time.Second},
			Enabled:      true,
		},
		Alerts: AlertsConfig{
			SourceConfig: SourceConfig{TTL: 120 * time.Second, Timeout: 5 * time.Second},
			Enabled:      true,
		},
		WalkingMinutes: 5,
		BufferMinutes:  2,
		PollInterval:   30 * time.Second,
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
		},
	}
}

// Load reads the configuration. An empty path falls back to PathEnv and
// then DefaultPath; a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if path == "" {
		path = getEnv(PathEnv, DefaultPath)
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillZeroes()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("APP_ENV", c.Env)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Transit.APIKey = getEnv("STM_API_KEY", c.Transit.APIKey)
	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	c.Publish.Redis.Addr = getEnv("REDIS_ADDR", c.Publish.Redis.Addr)
	c.Publish.Redis.Password = getEnv("REDIS_PASSWORD", c.Publish.Redis.Password)
	c.Worker.ProjectID = getEnv("PUBSUB_PROJECT_ID", c.Worker.ProjectID)
	c.Worker.SubscriptionID = getEnv("PUBSUB_SUBSCRIPTION_ID", c.Worker.SubscriptionID)

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Publish.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	if v := os.Getenv("REQUIRE_TLS"); v != "" {
		c.Server.RequireTLS = v == "true"
	}

	var err error
	if c.Server.Port, err = getEnvAsInt("APP_PORT", c.Server.Port); err != nil {
		return err
	}
	if c.PollInterval, err = getEnvAsDuration("POLL_INTERVAL", c.PollInterval); err != nil {
		return err
	}
	return nil
}

// fillZeroes restores defaults for values a file explicitly zeroed where
// zero has no meaning.
func (c *Config) fillZeroes() {
	d := Default()
	for _, pair := range []struct{ got, def *SourceConfig }{
		{&c.Transit.SourceConfig, &d.Transit.SourceConfig},
		{&c.Bikeshare.SourceConfig, &d.Bikeshare.SourceConfig},
		{&c.Weather.SourceConfig, &d.Weather.SourceConfig},
		{&c.Alerts.SourceConfig, &d.Alerts.SourceConfig},
	} {
		if pair.got.TTL == 0 {
			pair.got.TTL = pair.def.TTL
		}
		if pair.got.Timeout == 0 {
			pair.got.Timeout = pair.def.Timeout
		}
	}
	if c.Transit.PerDirection == 0 {
		c.Transit.PerDirection = d.Transit.PerDirection
	}
	if c.Transit.Horizon == 0 {
		c.Transit.Horizon = d.Transit.Horizon
	}
}

// Budget is the wall-clock bound of one poll: the slowest source timeout
// plus a second of slack.
func (c *Config) Budget() time.Duration {
	longest := c.Transit.Timeout
	for _, t := range []time.Duration{c.Bikeshare.Timeout, c.Weather.Timeout, c.Alerts.Timeout} {
		longest = max(longest, t)
	}
	return longest + time.Second
}

// Walking returns the walking time to the stop.
func (c *Config) Walking() time.Duration {
	return time.Duration(c.WalkingMinutes) * time.Minute
}

// Buffer returns the safety margin added to the walking time.
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.BufferMinutes) * time.Minute
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
