// Package weather models current conditions, air quality and daylight for
// the dashboard location.
package weather

import "time"

// Severity grades how much attention a reading deserves.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Units records the units the numeric fields are expressed in.
type Units struct {
	Temperature string
	WindSpeed   string
}

// DefaultUnits are the units every Snapshot is normalized to.
var DefaultUnits = Units{Temperature: "°C", WindSpeed: "km/h"}

// AirQuality is the European AQI reading with its particulate components.
type AirQuality struct {
	Value    int
	Category string
	Severity Severity
	PM25     float64
	PM10     float64
}

// Snapshot is one atomic weather reading. It is either complete or absent.
type Snapshot struct {
	Temperature float64
	FeelsLike   float64
	Humidity    float64

	ConditionCode int
	Condition     string

	// WindSpeed in km/h, WindDirection in degrees (0 = N).
	WindSpeed     float64
	WindDirection float64

	// PrecipitationProbability in percent (0-100).
	PrecipitationProbability float64

	AirQuality AirQuality

	Sunrise time.Time
	Sunset  time.Time

	Units      Units
	ObservedAt time.Time
}

// IsDaylight reports whether t falls between sunrise and sunset.
func (s Snapshot) IsDaylight(t time.Time) bool {
	if s.Sunrise.IsZero() || s.Sunset.IsZero() {
		return true
	}
	return !t.Before(s.Sunrise) && t.Before(s.Sunset)
}
