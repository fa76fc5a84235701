package gtfsalerts_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/alerts/gtfsalerts"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/weather"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func alertEntity(id, header string, level *p.Alert_SeverityLevel, effect *p.Alert_Effect, route string, start, end time.Time) *p.FeedEntity {
	a := &p.Alert{
		HeaderText: &p.TranslatedString{Translation: []*p.TranslatedString_Translation{
			{Language: proto.String("en"), Text: proto.String(header)},
		}},
		SeverityLevel: level,
		Effect:        effect,
		ActivePeriod: []*p.TimeRange{{
			Start: proto.Uint64(uint64(start.Unix())),
			End:   proto.Uint64(uint64(end.Unix())),
		}},
	}
	if route != "" {
		a.InformedEntity = []*p.EntitySelector{{RouteId: proto.String(route)}}
	}
	return &p.FeedEntity{Id: proto.String(id), Alert: a}
}

func newServer(t *testing.T, entities ...*p.FeedEntity) *httptest.Server {
	t.Helper()
	data, err := proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: entities,
	})
	require.NoError(t, err)

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		_, _ = w.Write(data)
	}))
}

func newClient(url, key string, routes ...string) *gtfsalerts.Client {
	return gtfsalerts.NewClient(gtfsalerts.ClientConfig{
		APIKey:     key,
		URL:        url,
		RouteIDs:   routes,
		HTTPClient: resilience.NewClient(resilience.FeedClientConfig("alerts-test", time.Second, nil)),
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return now },
	})
}

func TestClient_Fetch(t *testing.T) {
	severe := p.Alert_SEVERE
	noService := p.Alert_NO_SERVICE
	detour := p.Alert_DETOUR

	server := newServer(t,
		alertEntity("1", "Detour on 55", nil, &detour, "55", now.Add(-time.Hour), now.Add(time.Hour)),
		alertEntity("2", "Green line stopped", nil, &noService, "1", now.Add(-time.Hour), now.Add(time.Hour)),
		alertEntity("3", "Orange line stopped", &severe, nil, "2", now.Add(-time.Hour), now.Add(time.Hour)),
		alertEntity("4", "Future closure", &severe, nil, "55", now.Add(time.Hour), now.Add(2*time.Hour)),
		alertEntity("5", "Other route", &severe, nil, "999", now.Add(-time.Hour), now.Add(time.Hour)),
		alertEntity("6", "Network-wide notice", nil, nil, "", now.Add(-time.Hour), now.Add(time.Hour)),
	)
	defer server.Close()

	got, err := newClient(server.URL, "secret", "55", "1", "2").Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, got.Alerts, 4)

	assert.Equal(t, "Orange line stopped", got.Alerts[0].Title)
	assert.Equal(t, weather.SeverityCritical, got.Alerts[0].Severity)
	assert.Equal(t, "Green line stopped", got.Alerts[1].Title)
	assert.Equal(t, weather.SeverityWarning, got.Alerts[1].Severity)
	assert.Equal(t, alerts.SourceTransit, got.Alerts[2].Source)
	assert.Equal(t, weather.SeverityInfo, got.Alerts[2].Severity)
	assert.Equal(t, []string{"55"}, got.Alerts[2].Routes)
	assert.Zero(t, got.Skipped)
}

func TestClient_Fetch_NoFilterKeepsAll(t *testing.T) {
	server := newServer(t,
		alertEntity("5", "Other route", nil, nil, "999", now.Add(-time.Hour), now.Add(time.Hour)),
	)
	defer server.Close()

	got, err := newClient(server.URL, "secret").Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Alerts, 1)
}

func TestClient_Fetch_MissingKey(t *testing.T) {
	_, err := newClient("http://127.0.0.1:1", "").Fetch(context.Background())
	assert.True(t, feed.IsKind(err, feed.KindAuth))
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, "stm-alerts", gtfsalerts.NewClient(gtfsalerts.ClientConfig{}).Name())
}
