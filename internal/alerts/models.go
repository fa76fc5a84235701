// Package alerts models service and weather alerts shown on the dashboard.
package alerts

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/departureboard/departureboard/internal/weather"
)

// Source tags where an alert came from.
type Source string

const (
	SourceTransit Source = "transit"
	SourceWeather Source = "weather"
)

// Severity reuses the weather grading so both sources sort together.
type Severity = weather.Severity

// Alert is a single notice for the dashboard.
type Alert struct {
	ID       string
	Source   Source
	Title    string
	Severity Severity
	Detail   string

	// Start and End bound the active period; zero means open-ended.
	Start time.Time
	End   time.Time

	Routes []string
	Stops  []string
}

// Feed is the normalized result of one alerts fetch.
type Feed struct {
	Alerts []Alert

	// Skipped counts alerts dropped as malformed.
	Skipped int
}

var severityRank = map[Severity]int{
	weather.SeverityCritical: 0,
	weather.SeverityWarning:  1,
	weather.SeverityInfo:     2,
}

// Sort orders alerts by severity, most severe first, then by title.
func Sort(list []Alert) {
	slices.SortStableFunc(list, func(a, b Alert) int {
		ra, rb := rankOf(a.Severity), rankOf(b.Severity)
		if ra != rb {
			return ra - rb
		}
		return cmp.Compare(a.Title, b.Title)
	})
}

func rankOf(s Severity) int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// FromWeather derives alerts from hazardous conditions and poor air quality.
func FromWeather(s weather.Snapshot) []Alert {
	var out []Alert

	if sev, ok := weather.ConditionSeverity(s.ConditionCode); ok {
		out = append(out, Alert{
			ID:       fmt.Sprintf("weather-code-%d", s.ConditionCode),
			Source:   SourceWeather,
			Title:    s.Condition,
			Severity: sev,
			Detail:   fmt.Sprintf("%s, %.0f%% chance of precipitation", s.Condition, s.PrecipitationProbability),
		})
	}

	if aq := s.AirQuality; aq.Severity == weather.SeverityWarning || aq.Severity == weather.SeverityCritical {
		out = append(out, Alert{
			ID:       "weather-aqi",
			Source:   SourceWeather,
			Title:    "Air quality: " + aq.Category,
			Severity: aq.Severity,
			Detail:   fmt.Sprintf("European AQI %d, PM2.5 %.1f µg/m³, PM10 %.1f µg/m³", aq.Value, aq.PM25, aq.PM10),
		})
	}

	return out
}
