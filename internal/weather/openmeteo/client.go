// Package openmeteo fetches current weather, daylight and air quality from
// the keyless Open-Meteo APIs.
package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/weather"
)

const (
	// ProviderName identifies this weather provider.
	ProviderName = "open-meteo"

	// DefaultForecastURL is the Open-Meteo forecast endpoint.
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"

	// DefaultAirQualityURL is the Open-Meteo air quality endpoint.
	DefaultAirQualityURL = "https://air-quality-api.open-meteo.com/v1/air-quality"

	currentFields = "temperature_2m,relative_humidity_2m,apparent_temperature,weather_code," +
		"wind_speed_10m,wind_direction_10m,precipitation_probability"

	localTimeLayout = "2006-01-02T15:04"
)

var (
	errMissingCurrent = errors.New("response has no current block")
	errMissingAQI     = errors.New("air quality response has no european_aqi")
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	Lat      float64
	Lon      float64
	Timezone string

	// ForecastURL and AirQualityURL override the public endpoints.
	ForecastURL   string
	AirQualityURL string

	// HTTPClient is the HTTP client to use (optional).
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client fetches one weather.Snapshot per call.
type Client struct {
	lat, lon      float64
	timezone      string
	forecastURL   string
	airQualityURL string
	httpClient    *resilience.Client
	logger        zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	forecastURL := cfg.ForecastURL
	if forecastURL == "" {
		forecastURL = DefaultForecastURL
	}
	airQualityURL := cfg.AirQualityURL
	if airQualityURL == "" {
		airQualityURL = DefaultAirQualityURL
	}
	timezone := cfg.Timezone
	if timezone == "" {
		timezone = "auto"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.FeedClientConfig(ProviderName, 5*time.Second, nil))
	}

	return &Client{
		lat:           cfg.Lat,
		lon:           cfg.Lon,
		timezone:      timezone,
		forecastURL:   forecastURL,
		airQualityURL: airQualityURL,
		httpClient:    httpClient,
		logger:        cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Fetch retrieves forecast and air quality concurrently. Either both
// succeed or the fetch fails as a whole.
func (c *Client) Fetch(ctx context.Context) (weather.Snapshot, error) {
	var (
		fc forecastResponse
		aq airQualityResponse
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := c.baseQuery()
		q.Set("current", currentFields)
		q.Set("daily", "sunrise,sunset")
		q.Set("forecast_days", "1")
		return c.getJSON(gctx, c.forecastURL, q, &fc)
	})
	g.Go(func() error {
		q := c.baseQuery()
		q.Set("current", "european_aqi,pm2_5,pm10")
		return c.getJSON(gctx, c.airQualityURL, q, &aq)
	})
	if err := g.Wait(); err != nil {
		return weather.Snapshot{}, err
	}

	snap, err := toSnapshot(&fc, &aq)
	if err != nil {
		return weather.Snapshot{}, feed.ParseError(ProviderName, err)
	}

	c.logger.Debug().
		Float64("temperature", snap.Temperature).
		Str("condition", snap.Condition).
		Int("aqi", snap.AirQuality.Value).
		Msg("fetched weather")

	return snap, nil
}

func (c *Client) baseQuery() url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(c.lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(c.lon, 'f', 4, 64))
	q.Set("timezone", c.timezone)
	return q
}

func (c *Client) getJSON(ctx context.Context, endpoint string, q url.Values, out any) error {
	body, err := feed.Get(ctx, c.httpClient, ProviderName, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return feed.ParseError(ProviderName, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func toSnapshot(fc *forecastResponse, aq *airQualityResponse) (weather.Snapshot, error) {
	if fc.Current == nil {
		return weather.Snapshot{}, errMissingCurrent
	}
	if aq.Current == nil {
		return weather.Snapshot{}, fmt.Errorf("air quality: %w", errMissingCurrent)
	}

	loc := time.FixedZone(fc.TimezoneAbbreviation, fc.UTCOffsetSeconds)
	cur := fc.Current

	snap := weather.Snapshot{
		Temperature:   toCelsius(cur.Temperature, fc.CurrentUnits["temperature_2m"]),
		FeelsLike:     toCelsius(cur.ApparentTemperature, fc.CurrentUnits["apparent_temperature"]),
		Humidity:      cur.RelativeHumidity,
		ConditionCode: cur.WeatherCode,
		Condition:     weather.ConditionLabel(cur.WeatherCode),
		WindSpeed:     toKmh(cur.WindSpeed, fc.CurrentUnits["wind_speed_10m"]),
		WindDirection: cur.WindDirection,
		Units:         weather.DefaultUnits,
	}
	if cur.PrecipitationProbability != nil {
		snap.PrecipitationProbability = *cur.PrecipitationProbability
	}

	var err error
	if snap.ObservedAt, err = parseLocal(cur.Time, loc); err != nil {
		return weather.Snapshot{}, fmt.Errorf("current time: %w", err)
	}
	if len(fc.Daily.Sunrise) > 0 && len(fc.Daily.Sunset) > 0 {
		if snap.Sunrise, err = parseLocal(fc.Daily.Sunrise[0], loc); err != nil {
			return weather.Snapshot{}, fmt.Errorf("sunrise: %w", err)
		}
		if snap.Sunset, err = parseLocal(fc.Daily.Sunset[0], loc); err != nil {
			return weather.Snapshot{}, fmt.Errorf("sunset: %w", err)
		}
	}

	if aq.Current.EuropeanAQI == nil {
		return weather.Snapshot{}, errMissingAQI
	}
	aqi := int(math.Round(*aq.Current.EuropeanAQI))
	category, severity := weather.CategorizeAQI(aqi)
	snap.AirQuality = weather.AirQuality{
		Value:    aqi,
		Category: category,
		Severity: severity,
		PM25:     deref(aq.Current.PM25),
		PM10:     deref(aq.Current.PM10),
	}

	return snap, nil
}

func parseLocal(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(localTimeLayout, s, loc)
}

func toCelsius(v float64, unit string) float64 {
	if unit == "°F" {
		return (v - 32) * 5 / 9
	}
	return v
}

func toKmh(v float64, unit string) float64 {
	switch unit {
	case "m/s":
		return v * 3.6
	case "mp/h", "mph":
		return v * 1.609344
	case "kn":
		return v * 1.852
	default:
		return v
	}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// Response types

type forecastResponse struct {
	UTCOffsetSeconds     int               `json:"utc_offset_seconds"`
	Timezone             string            `json:"timezone"`
	TimezoneAbbreviation string            `json:"timezone_abbreviation"`
	CurrentUnits         map[string]string `json:"current_units"`
	Current              *struct {
		Time                     string   `json:"time"`
		Temperature              float64  `json:"temperature_2m"`
		RelativeHumidity         float64  `json:"relative_humidity_2m"`
		ApparentTemperature      float64  `json:"apparent_temperature"`
		WeatherCode              int      `json:"weather_code"`
		WindSpeed                float64  `json:"wind_speed_10m"`
		WindDirection            float64  `json:"wind_direction_10m"`
		PrecipitationProbability *float64 `json:"precipitation_probability"`
	} `json:"current"`
	Daily struct {
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
}

type airQualityResponse struct {
	Current *struct {
		Time        string   `json:"time"`
		EuropeanAQI *float64 `json:"european_aqi"`
		PM25        *float64 `json:"pm2_5"`
		PM10        *float64 `json:"pm10"`
	} `json:"current"`
}
