// Package stm fetches STM (Société de transport de Montréal) GTFS-Realtime
// trip updates and turns them into departures.
package stm

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/gtfsrt"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/transit"
)

const (
	// ProviderName identifies this transit provider.
	ProviderName = "stm"

	// DefaultTripUpdatesURL is the STM trip updates endpoint.
	DefaultTripUpdatesURL = "https://api.stm.info/pub/od/gtfs-rt/ic/v2/tripUpdates"

	// DefaultAlertsURL is the STM service alerts endpoint.
	DefaultAlertsURL = "https://api.stm.info/pub/od/gtfs-rt/ic/v2/serviceAlerts"
)

// ClientConfig holds configuration for the STM client.
type ClientConfig struct {
	// APIKey is the STM developer portal key. Without it every fetch fails
	// with an auth error.
	APIKey string

	// URL is the trip updates endpoint (optional, defaults to STM).
	URL string

	// StopIDs are the stops departures are listed for.
	StopIDs []string

	// PerDirection caps departures per route and direction.
	PerDirection int

	// Horizon limits how far ahead departures are listed.
	Horizon time.Duration

	// Headsigns maps route ids to display labels.
	Headsigns map[string]string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a single-attempt resilient client.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// Now overrides the clock (tests).
	Now func() time.Time
}

// Client fetches trip updates for a fixed set of stops.
type Client struct {
	apiKey       string
	url          string
	stops        gtfsrt.StopSet
	perDirection int
	horizon      time.Duration
	headsigns    map[string]string
	httpClient   *resilience.Client
	logger       zerolog.Logger
	now          func() time.Time
}

// NewClient creates a new STM client.
func NewClient(cfg ClientConfig) *Client {
	url := cfg.URL
	if url == "" {
		url = DefaultTripUpdatesURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.FeedClientConfig(ProviderName, 5*time.Second, nil))
	}

	horizon := cfg.Horizon
	if horizon <= 0 {
		horizon = transit.DefaultHorizon
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		apiKey:       cfg.APIKey,
		url:          url,
		stops:        gtfsrt.NewStopSet(cfg.StopIDs...),
		perDirection: cfg.PerDirection,
		horizon:      horizon,
		headsigns:    cfg.Headsigns,
		httpClient:   httpClient,
		logger:       cfg.Logger,
		now:          now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch downloads the trip updates feed and returns the upcoming departures
// at the configured stops.
func (c *Client) Fetch(ctx context.Context) (transit.Board, error) {
	if c.apiKey == "" {
		return transit.Board{}, feed.AuthError(ProviderName, feed.ErrMissingAPIKey)
	}

	body, err := feed.Get(ctx, c.httpClient, ProviderName, c.url, AuthHeader(c.apiKey))
	if err != nil {
		return transit.Board{}, err
	}

	res, err := gtfsrt.DecodeTripUpdates(body, c.stops)
	if err != nil {
		return transit.Board{}, feed.ParseError(ProviderName, err)
	}

	now := c.now()
	deps := make(transit.Departures, 0, len(res.StopTimes))
	for _, st := range res.StopTimes {
		deps = append(deps, c.toDeparture(st))
	}
	deps = deps.Within(now, c.horizon).Collapse(c.perDirection)

	c.logger.Debug().
		Int("entities", res.Entities).
		Int("skipped", res.Skipped).
		Int("untimed", res.Untimed).
		Int("departures", len(deps)).
		Msg("fetched trip updates")

	return transit.Board{
		Departures:    deps,
		Skipped:       res.Skipped,
		Untimed:       res.Untimed,
		Entities:      res.Entities,
		FeedTimestamp: res.HeaderTimestamp,
	}, nil
}

// AuthHeader returns the headers STM expects on every request.
func AuthHeader(apiKey string) http.Header {
	h := http.Header{}
	h.Set("apikey", apiKey)
	h.Set("Accept", "application/x-protobuf")
	return h
}

func (c *Client) toDeparture(st gtfsrt.StopTime) transit.Departure {
	direction := transit.NoDirection
	if st.HasDirection {
		direction = int(st.DirectionID)
	}

	routeID := st.RouteID
	if routeID == "" {
		routeID = "N/A"
	}

	headsign, ok := c.headsigns[routeID]
	if !ok {
		headsign = "Route " + routeID
	}

	return transit.Departure{
		RouteID:     routeID,
		Headsign:    headsign,
		DirectionID: direction,
		StopID:      st.StopID,
		TripID:      st.TripID,
		Arrival:     st.Time,
		Predicted:   st.Predicted,
	}
}
