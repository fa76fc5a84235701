// Package app assembles the departure board from its configuration: feed
// clients, caches, the aggregator, the poller and the snapshot publishers.
// Both entrypoints build on it.
package app

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/alerts/gtfsalerts"
	"github.com/departureboard/departureboard/internal/bikeshare"
	"github.com/departureboard/departureboard/internal/bikeshare/gbfs"
	"github.com/departureboard/departureboard/internal/config"
	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/publish"
	"github.com/departureboard/departureboard/internal/telemetry"
	"github.com/departureboard/departureboard/internal/transit"
	"github.com/departureboard/departureboard/internal/transit/stm"
	"github.com/departureboard/departureboard/internal/weather"
	"github.com/departureboard/departureboard/internal/weather/openmeteo"
)

// App is an assembled departure board.
type App struct {
	Registry   *resilience.Registry
	Aggregator *dashboard.Aggregator
	Poller     *dashboard.Poller

	// Sources lists the configured source categories.
	Sources []string

	closers []io.Closer
}

// Build wires every configured source. Sources without the settings they
// need are left out and reported as unconfigured by the aggregator. Metrics
// and poll spans go to tel.
func Build(cfg *config.Config, tel *telemetry.Provider, logger zerolog.Logger) (*App, error) {
	providerMetrics, err := tel.ProviderMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating provider metrics: %w", err)
	}
	pollMetrics, err := tel.PollMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating poll metrics: %w", err)
	}

	a := &App{Registry: resilience.NewRegistry()}

	feedClient := func(name string, timeout time.Duration) *resilience.Client {
		clientCfg := resilience.FeedClientConfig(name, timeout, a.Registry)
		clientCfg.CircuitBreaker.OnStateChange = resilience.LogStateChanges(logger)
		return resilience.NewClient(clientCfg)
	}
	cacheConfig := func(ttl time.Duration) feed.CacheConfig {
		return feed.CacheConfig{TTL: ttl, Recorder: providerMetrics, Logger: logger}
	}

	aggCfg := dashboard.Config{
		Budget:   cfg.Budget(),
		Walking:  cfg.Walking(),
		Buffer:   cfg.Buffer(),
		Recorder: pollMetrics,
		Logger:   logger,
		Tracer:   tel.Tracer,
	}

	if len(cfg.Transit.StopIDs) > 0 {
		client := stm.NewClient(stm.ClientConfig{
			APIKey:       cfg.Transit.APIKey,
			URL:          cfg.Transit.TripUpdatesURL,
			StopIDs:      cfg.Transit.StopIDs,
			PerDirection: cfg.Transit.PerDirection,
			Horizon:      cfg.Transit.Horizon,
			Headsigns:    cfg.Transit.Headsigns,
			HTTPClient:   feedClient(stm.ProviderName, cfg.Transit.Timeout),
			Logger:       logger,
		})
		aggCfg.Transit = feed.NewCache[transit.Board](client, cacheConfig(cfg.Transit.TTL))
		a.Sources = append(a.Sources, dashboard.CategoryTransit)
	}

	if len(cfg.Bikeshare.StationIDs) > 0 {
		client := gbfs.NewClient(gbfs.ClientConfig{
			StationIDs:     cfg.Bikeshare.StationIDs,
			StatusURL:      cfg.Bikeshare.StatusURL,
			InformationURL: cfg.Bikeshare.InformationURL,
			HTTPClient:     feedClient(gbfs.ProviderName, cfg.Bikeshare.Timeout),
			Logger:         logger,
		})
		aggCfg.Bikeshare = feed.NewCache[bikeshare.Status](client, cacheConfig(cfg.Bikeshare.TTL))
		a.Sources = append(a.Sources, dashboard.CategoryBikeshare)
	}

	if cfg.Weather.Enabled {
		client := openmeteo.NewClient(openmeteo.ClientConfig{
			Lat:           cfg.Location.Lat,
			Lon:           cfg.Location.Lon,
			Timezone:      cfg.Location.Timezone,
			ForecastURL:   cfg.Weather.ForecastURL,
			AirQualityURL: cfg.Weather.AirQualityURL,
			HTTPClient:    feedClient(openmeteo.ProviderName, cfg.Weather.Timeout),
			Logger:        logger,
		})
		aggCfg.Weather = feed.NewCache[weather.Snapshot](client, cacheConfig(cfg.Weather.TTL))
		a.Sources = append(a.Sources, dashboard.CategoryWeather)
	}

	if cfg.Alerts.Enabled {
		client := gtfsalerts.NewClient(gtfsalerts.ClientConfig{
			APIKey:     cfg.Transit.APIKey,
			URL:        cfg.Alerts.URL,
			RouteIDs:   cfg.Alerts.RouteIDs,
			StopIDs:    cfg.Transit.StopIDs,
			HTTPClient: feedClient(gtfsalerts.ProviderName, cfg.Alerts.Timeout),
			Logger:     logger,
		})
		aggCfg.Alerts = feed.NewCache[alerts.Feed](client, cacheConfig(cfg.Alerts.TTL))
		a.Sources = append(a.Sources, dashboard.CategoryAlerts)
	}

	aggCfg.Publisher = a.publishers(cfg.Publish, logger)

	a.Aggregator = dashboard.NewAggregator(aggCfg)
	a.Poller = dashboard.NewPoller(a.Aggregator, dashboard.PollerConfig{
		Interval: cfg.PollInterval,
		Logger:   logger,
	})
	return a, nil
}

// publishers returns the configured snapshot publishers, or nil when there
// are none.
func (a *App) publishers(cfg config.PublishConfig, logger zerolog.Logger) dashboard.Publisher {
	var multi publish.Multi

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.closers = append(a.closers, client)
		multi = append(multi, publish.NewRedis(client, publish.RedisConfig{
			Key:     cfg.Redis.Key,
			Channel: cfg.Redis.Channel,
			TTL:     cfg.Redis.TTL,
		}))
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("publishing snapshots to redis")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		k := publish.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		a.closers = append(a.closers, k)
		multi = append(multi, k)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("publishing snapshots to kafka")
	}

	switch len(multi) {
	case 0:
		return nil
	case 1:
		return multi[0]
	default:
		return multi
	}
}

// Close releases publisher connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
