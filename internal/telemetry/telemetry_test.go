package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/departureboard/departureboard/internal/telemetry"
)

func TestInit_Disabled(t *testing.T) {
	ctx := context.Background()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "departureboard-api",
		ServiceVersion: "1.0.0",
		Environment:    "test",
		OTLPEndpoint:   "localhost:4317",
		Enabled:        false,
	})

	require.NoError(t, err)
	assert.NotNil(t, provider.Tracer)
	assert.NotNil(t, provider.Meter)
	assert.Equal(t, "departureboard-api", provider.ServiceName)

	// Nothing is exported when disabled.
	assert.Nil(t, provider.TracerProvider)
	assert.Nil(t, provider.MeterProvider)

	assert.NoError(t, provider.Shutdown(ctx))
}

func TestInit_Defaults(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{})

	require.NoError(t, err)
	assert.Equal(t, telemetry.DefaultServiceName, provider.ServiceName)
}

func TestInit_EnabledWithoutEndpoint(t *testing.T) {
	_, err := telemetry.Init(context.Background(), telemetry.Config{Enabled: true})

	assert.ErrorIs(t, err, telemetry.ErrNoEndpoint)
}

func TestProvider_Shutdown_NilProviders(t *testing.T) {
	provider := &telemetry.Provider{}
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	byName := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "%s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestProvider() (*telemetry.Provider, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &telemetry.Provider{Meter: mp.Meter("departureboard-test")}, reader
}

func TestProviderMetrics_RecordOnProviderMeter(t *testing.T) {
	provider, reader := newTestProvider()
	m, err := provider.ProviderMetrics()
	require.NoError(t, err)

	m.RecordRequest("stm", "fetch", 120*time.Millisecond, nil)
	m.RecordRequest("stm", "fetch", time.Second, errors.New("connection reset"))
	m.RecordCacheHit("stm", "fetch")
	m.RecordCacheMiss("stm", "fetch")
	m.RecordCacheMiss("gbfs", "fetch")

	metrics := collect(t, reader)
	require.Contains(t, metrics, "provider.request.duration")
	assert.Equal(t, int64(2), sumOf(t, metrics["provider.request.total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["provider.cache.hit"]))
	assert.Equal(t, int64(2), sumOf(t, metrics["provider.cache.miss"]))
}

func TestPollMetrics_RecordOnProviderMeter(t *testing.T) {
	provider, reader := newTestProvider()
	m, err := provider.PollMetrics()
	require.NoError(t, err)

	m.RecordPoll(800 * time.Millisecond)
	m.RecordSource("gbfs", "stale")
	m.RecordSource("stm", "fresh")

	metrics := collect(t, reader)
	require.Contains(t, metrics, "dashboard.poll.duration")
	assert.Equal(t, int64(2), sumOf(t, metrics["dashboard.poll.source"]))
}

func TestDisabledProvider_MetricsAreNoops(t *testing.T) {
	provider, err := telemetry.Init(context.Background(), telemetry.Config{})
	require.NoError(t, err)

	pm, err := provider.ProviderMetrics()
	require.NoError(t, err)
	poll, err := provider.PollMetrics()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		pm.RecordCacheMiss("stm", "fetch")
		poll.RecordPoll(time.Second)
	})
}
