// Package gbfs fetches station availability from a GBFS feed (BIXI Montréal
// by default).
package gbfs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/departureboard/departureboard/internal/bikeshare"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/provider/resilience"
)

const (
	// ProviderName identifies this bike-share provider.
	ProviderName = "gbfs"

	// DefaultStatusURL is the BIXI station_status endpoint.
	DefaultStatusURL = "https://gbfs.velobixi.com/gbfs/en/station_status.json"

	// DefaultInformationURL is the BIXI station_information endpoint.
	DefaultInformationURL = "https://gbfs.velobixi.com/gbfs/en/station_information.json"
)

// ClientConfig holds configuration for the GBFS client.
type ClientConfig struct {
	// StationIDs are the stations to report on.
	StationIDs []string

	// StatusURL and InformationURL override the BIXI endpoints.
	StatusURL      string
	InformationURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client joins station_status and station_information for a fixed set of
// stations.
type Client struct {
	stationIDs []string
	statusURL  string
	infoURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new GBFS client.
func NewClient(cfg ClientConfig) *Client {
	statusURL := cfg.StatusURL
	if statusURL == "" {
		statusURL = DefaultStatusURL
	}
	infoURL := cfg.InformationURL
	if infoURL == "" {
		infoURL = DefaultInformationURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.FeedClientConfig(ProviderName, 5*time.Second, nil))
	}

	return &Client{
		stationIDs: cfg.StationIDs,
		statusURL:  statusURL,
		infoURL:    infoURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch downloads both station documents concurrently and joins them.
func (c *Client) Fetch(ctx context.Context) (bikeshare.Status, error) {
	var (
		statusResp stationStatusResponse
		infoResp   stationInformationResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.getJSON(gctx, c.statusURL, &statusResp)
	})
	g.Go(func() error {
		return c.getJSON(gctx, c.infoURL, &infoResp)
	})
	if err := g.Wait(); err != nil {
		return bikeshare.Status{}, err
	}

	status := c.join(&statusResp, &infoResp)

	c.logger.Debug().
		Int("found", len(status.Stations)).
		Int("requested", len(c.stationIDs)).
		Strs("missing", status.Missing).
		Msg("fetched station status")

	return status, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	body, err := feed.Get(ctx, c.httpClient, ProviderName, url, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return feed.ParseError(ProviderName, fmt.Errorf("decoding %s: %w", url, err))
	}
	return nil
}

func (c *Client) join(statusResp *stationStatusResponse, infoResp *stationInformationResponse) bikeshare.Status {
	names := make(map[string]string, len(infoResp.Data.Stations))
	for _, info := range infoResp.Data.Stations {
		names[string(info.StationID)] = info.Name
	}

	out := bikeshare.Status{}
	if statusResp.LastUpdated > 0 {
		out.LastUpdated = time.Unix(statusResp.LastUpdated, 0).UTC()
	}

	byID := make(map[string]stationStatus, len(statusResp.Data.Stations))
	for _, st := range statusResp.Data.Stations {
		if st.StationID == "" {
			out.Skipped++
			continue
		}
		byID[string(st.StationID)] = st
	}

	for _, id := range c.stationIDs {
		st, ok := byID[id]
		if !ok {
			out.Missing = append(out.Missing, id)
			continue
		}

		name, ok := names[id]
		if !ok {
			name = "Station " + id
		}

		bikes, bOK := clamp(st.NumBikesAvailable)
		ebikes, eOK := clamp(st.NumEBikesAvailable)
		docks, dOK := clamp(st.NumDocksAvailable)
		if !bOK || !eOK || !dOK {
			out.Skipped++
			c.logger.Warn().Str("station_id", id).Msg("negative availability clamped to zero")
		}

		ss := bikeshare.StationStatus{
			StationID:       id,
			Name:            name,
			BikesAvailable:  bikes,
			EBikesAvailable: ebikes,
			DocksAvailable:  docks,
			IsRenting:       bool(st.IsRenting),
			IsReturning:     bool(st.IsReturning),
		}
		if st.LastReported > 0 {
			ss.LastReported = time.Unix(st.LastReported, 0).UTC()
		}
		out.Stations = append(out.Stations, ss)
	}

	return out
}

// clamp returns n floored at zero and whether it was already valid.
func clamp(n int) (int, bool) {
	if n < 0 {
		return 0, false
	}
	return n, true
}
