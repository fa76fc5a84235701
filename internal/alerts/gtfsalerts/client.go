// Package gtfsalerts fetches GTFS-Realtime service alerts and keeps the ones
// relevant to the configured routes and stops.
package gtfsalerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/gtfsrt"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/transit/stm"
	"github.com/departureboard/departureboard/internal/weather"
)

// ProviderName identifies this alerts provider.
const ProviderName = "stm-alerts"

// ClientConfig holds configuration for the alerts client.
type ClientConfig struct {
	// APIKey is sent in the apikey header.
	APIKey string

	// URL is the service alerts endpoint (optional, defaults to STM).
	URL string

	// RouteIDs and StopIDs restrict alerts to those informing about them.
	// With both empty every alert is kept.
	RouteIDs []string
	StopIDs  []string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Client fetches service alerts.
type Client struct {
	apiKey     string
	url        string
	routes     map[string]struct{}
	stops      gtfsrt.StopSet
	httpClient *resilience.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new alerts client.
func NewClient(cfg ClientConfig) *Client {
	url := cfg.URL
	if url == "" {
		url = stm.DefaultAlertsURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.FeedClientConfig(ProviderName, 5*time.Second, nil))
	}

	routes := make(map[string]struct{}, len(cfg.RouteIDs))
	for _, r := range cfg.RouteIDs {
		routes[r] = struct{}{}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:     cfg.APIKey,
		url:        url,
		routes:     routes,
		stops:      gtfsrt.NewStopSet(cfg.StopIDs...),
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch downloads the alerts feed and returns the active, relevant alerts
// sorted by severity.
func (c *Client) Fetch(ctx context.Context) (alerts.Feed, error) {
	if c.apiKey == "" {
		return alerts.Feed{}, feed.AuthError(ProviderName, feed.ErrMissingAPIKey)
	}

	body, err := feed.Get(ctx, c.httpClient, ProviderName, c.url, stm.AuthHeader(c.apiKey))
	if err != nil {
		return alerts.Feed{}, err
	}

	res, err := gtfsrt.DecodeAlerts(body)
	if err != nil {
		return alerts.Feed{}, feed.ParseError(ProviderName, err)
	}

	now := c.now()
	out := alerts.Feed{Skipped: res.Skipped}
	for _, a := range res.Alerts {
		if !a.ActiveAt(now) || !c.relevant(a) {
			continue
		}
		out.Alerts = append(out.Alerts, toAlert(a))
	}
	alerts.Sort(out.Alerts)

	c.logger.Debug().
		Int("decoded", len(res.Alerts)).
		Int("kept", len(out.Alerts)).
		Int("skipped", res.Skipped).
		Msg("fetched service alerts")

	return out, nil
}

func (c *Client) relevant(a gtfsrt.Alert) bool {
	if len(c.routes) == 0 && len(c.stops) == 0 {
		return true
	}
	if len(a.RouteIDs) == 0 && len(a.StopIDs) == 0 {
		return true
	}
	for _, r := range a.RouteIDs {
		if _, ok := c.routes[r]; ok {
			return true
		}
	}
	for _, s := range a.StopIDs {
		if c.stops.Contains(s) {
			return true
		}
	}
	return false
}

func toAlert(a gtfsrt.Alert) alerts.Alert {
	title := a.Header
	if title == "" {
		title = a.Description
	}
	return alerts.Alert{
		ID:       a.ID,
		Source:   alerts.SourceTransit,
		Title:    title,
		Severity: mapSeverity(a.Severity, a.Effect),
		Detail:   a.Description,
		Start:    a.Start,
		End:      a.End,
		Routes:   a.RouteIDs,
		Stops:    a.StopIDs,
	}
}

// mapSeverity grades an alert by its severity level, raising service
// suspensions to at least a warning.
func mapSeverity(level, effect string) alerts.Severity {
	switch level {
	case "SEVERE":
		return weather.SeverityCritical
	case "WARNING":
		return weather.SeverityWarning
	}
	if effect == "NO_SERVICE" || effect == "REDUCED_SERVICE" || effect == "SIGNIFICANT_DELAYS" {
		return weather.SeverityWarning
	}
	return weather.SeverityInfo
}
