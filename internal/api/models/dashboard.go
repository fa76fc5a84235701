package models

import (
	"math"
	"time"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/bikeshare"
	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/leavenow"
	"github.com/departureboard/departureboard/internal/transit"
	"github.com/departureboard/departureboard/internal/weather"
)

// SourceMeta describes how current a widget's data is. Every source is
// always present so clients can render a no-data state.
type SourceMeta struct {
	Source     string       `json:"source"`
	Status     string       `json:"status"`
	FetchedAt  *Timestamp   `json:"fetchedAt,omitempty"`
	AgeSeconds int          `json:"ageSeconds"`
	TTLSeconds int          `json:"ttlSeconds"`
	Skipped    int          `json:"skipped"`
	Note       string       `json:"note,omitempty"`
	Error      *SourceError `json:"error,omitempty"`
}

// SourceError is the last failure of a source.
type SourceError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Departure is one upcoming vehicle.
type Departure struct {
	Route        string    `json:"route"`
	Headsign     string    `json:"headsign"`
	DirectionID  *int      `json:"directionId,omitempty"`
	StopID       string    `json:"stopId"`
	TripID       string    `json:"tripId"`
	Arrival      Timestamp `json:"arrival"`
	MinutesUntil int       `json:"minutesUntil"`
	Predicted    bool      `json:"predicted"`
}

// TransitResponse is the transit widget.
type TransitResponse struct {
	SourceMeta
	Departures []Departure `json:"departures"`
}

// Station is a bike-share station.
type Station struct {
	StationID       string     `json:"stationId"`
	Name            string     `json:"name"`
	BikesAvailable  int        `json:"bikesAvailable"`
	EBikesAvailable int        `json:"ebikesAvailable"`
	DocksAvailable  int        `json:"docksAvailable"`
	IsRenting       bool       `json:"isRenting"`
	IsReturning     bool       `json:"isReturning"`
	LastReported    *Timestamp `json:"lastReported,omitempty"`
}

// BikeshareResponse is the bike-share widget.
type BikeshareResponse struct {
	SourceMeta
	Stations   []Station `json:"stations"`
	Missing    []string  `json:"missing"`
	TotalBikes int       `json:"totalBikes"`
}

// AirQuality is the European AQI reading.
type AirQuality struct {
	Value    int     `json:"value"`
	Category string  `json:"category"`
	Severity string  `json:"severity"`
	PM25     float64 `json:"pm25"`
	PM10     float64 `json:"pm10"`
}

// Units names the units of the weather fields.
type Units struct {
	Temperature string `json:"temperature"`
	WindSpeed   string `json:"windSpeed"`
}

// Weather is the current weather reading.
type Weather struct {
	Temperature              float64    `json:"temperature"`
	FeelsLike                float64    `json:"feelsLike"`
	Humidity                 float64    `json:"humidity"`
	ConditionCode            int        `json:"conditionCode"`
	Condition                string     `json:"condition"`
	WindSpeed                float64    `json:"windSpeed"`
	WindDirection            float64    `json:"windDirection"`
	PrecipitationProbability float64    `json:"precipitationProbability"`
	AirQuality               AirQuality `json:"airQuality"`
	Sunrise                  *Timestamp `json:"sunrise,omitempty"`
	Sunset                   *Timestamp `json:"sunset,omitempty"`
	IsDaylight               bool       `json:"isDaylight"`
	Units                    Units      `json:"units"`
	ObservedAt               *Timestamp `json:"observedAt,omitempty"`
}

// WeatherResponse is the weather widget. Weather is null without data.
type WeatherResponse struct {
	SourceMeta
	Weather *Weather `json:"weather"`
}

// AirQualityResponse is the air quality part of the weather source.
type AirQualityResponse struct {
	SourceMeta
	AirQuality *AirQuality `json:"airQuality"`
}

// SunResponse holds today's sunrise and sunset.
type SunResponse struct {
	SourceMeta
	Sunrise    *Timestamp `json:"sunrise,omitempty"`
	Sunset     *Timestamp `json:"sunset,omitempty"`
	IsDaylight *bool      `json:"isDaylight,omitempty"`
}

// Alert is a transit or weather notice.
type Alert struct {
	ID       string     `json:"id"`
	Source   string     `json:"source"`
	Title    string     `json:"title"`
	Severity string     `json:"severity"`
	Detail   string     `json:"detail,omitempty"`
	Start    *Timestamp `json:"start,omitempty"`
	End      *Timestamp `json:"end,omitempty"`
	Routes   []string   `json:"routes,omitempty"`
	Stops    []string   `json:"stops,omitempty"`
}

// AlertsResponse lists transit alerts merged with weather-derived ones.
type AlertsResponse struct {
	SourceMeta
	Alerts []Alert `json:"alerts"`
}

// LeaveNow is the leave-now indicator.
type LeaveNow struct {
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	LeaveInMinutes     *int       `json:"leaveInMinutes"`
	Departure          *Timestamp `json:"departure,omitempty"`
	DepartureInMinutes *int       `json:"departureInMinutes,omitempty"`
	EvaluatedAt        Timestamp  `json:"evaluatedAt"`
}

// Dashboard is the full snapshot view.
type Dashboard struct {
	Generation uint64            `json:"generation"`
	Ready      bool              `json:"ready"`
	PolledAt   *Timestamp        `json:"polledAt,omitempty"`
	Transit    TransitResponse   `json:"transit"`
	Bikeshare  BikeshareResponse `json:"bikeshare"`
	Weather    WeatherResponse   `json:"weather"`
	Alerts     AlertsResponse    `json:"alerts"`
	LeaveNow   LeaveNow          `json:"leaveNow"`
}

// NewDashboard renders a snapshot as seen at now.
func NewDashboard(snap *dashboard.Snapshot, now time.Time) Dashboard {
	return Dashboard{
		Generation: snap.Generation,
		Ready:      snap.Ready(),
		PolledAt:   OptionalTimestamp(snap.PolledAt),
		Transit:    NewTransit(snap.Transit, now),
		Bikeshare:  NewBikeshare(snap.Bikeshare, now),
		Weather:    NewWeather(snap.Weather, now),
		Alerts:     NewAlerts(snap, now),
		LeaveNow:   NewLeaveNow(snap.LeaveNow),
	}
}

func newSourceMeta[T any](st dashboard.SourceState[T], now time.Time) SourceMeta {
	meta := SourceMeta{
		Source:     st.Source,
		Status:     string(st.Status),
		TTLSeconds: int(st.TTL / time.Second),
		Skipped:    st.Skipped,
		Note:       st.Note,
	}
	if st.HasData() {
		meta.FetchedAt = OptionalTimestamp(st.FetchedAt)
		meta.AgeSeconds = int(max(now.Sub(st.FetchedAt), 0) / time.Second)
	}
	if st.Error != nil {
		meta.Error = &SourceError{Kind: string(st.Error.Kind), Message: st.Error.Message}
	}
	return meta
}

// NewTransit renders the transit state.
func NewTransit(st dashboard.SourceState[transit.Board], now time.Time) TransitResponse {
	resp := TransitResponse{
		SourceMeta: newSourceMeta(st, now),
		Departures: make([]Departure, 0, len(st.Value.Departures)),
	}
	for _, d := range st.Value.Departures {
		if d.Arrival.Before(now) {
			continue
		}
		dep := Departure{
			Route:        d.RouteID,
			Headsign:     d.Headsign,
			StopID:       d.StopID,
			TripID:       d.TripID,
			Arrival:      Timestamp(d.Arrival),
			MinutesUntil: d.MinutesUntil(now),
			Predicted:    d.Predicted,
		}
		if d.DirectionID != transit.NoDirection {
			dir := d.DirectionID
			dep.DirectionID = &dir
		}
		resp.Departures = append(resp.Departures, dep)
	}
	return resp
}

// NewBikeshare renders the bike-share state.
func NewBikeshare(st dashboard.SourceState[bikeshare.Status], now time.Time) BikeshareResponse {
	resp := BikeshareResponse{
		SourceMeta: newSourceMeta(st, now),
		Stations:   make([]Station, 0, len(st.Value.Stations)),
		Missing:    append([]string{}, st.Value.Missing...),
		TotalBikes: st.Value.TotalBikes(),
	}
	for _, s := range st.Value.Stations {
		resp.Stations = append(resp.Stations, Station{
			StationID:       s.StationID,
			Name:            s.Name,
			BikesAvailable:  s.BikesAvailable,
			EBikesAvailable: s.EBikesAvailable,
			DocksAvailable:  s.DocksAvailable,
			IsRenting:       s.IsRenting,
			IsReturning:     s.IsReturning,
			LastReported:    OptionalTimestamp(s.LastReported),
		})
	}
	return resp
}

// NewWeather renders the weather state.
func NewWeather(st dashboard.SourceState[weather.Snapshot], now time.Time) WeatherResponse {
	resp := WeatherResponse{SourceMeta: newSourceMeta(st, now)}
	if !st.HasData() {
		return resp
	}

	w := st.Value
	aq := newAirQuality(w.AirQuality)
	resp.Weather = &Weather{
		Temperature:              w.Temperature,
		FeelsLike:                w.FeelsLike,
		Humidity:                 w.Humidity,
		ConditionCode:            w.ConditionCode,
		Condition:                w.Condition,
		WindSpeed:                w.WindSpeed,
		WindDirection:            w.WindDirection,
		PrecipitationProbability: w.PrecipitationProbability,
		AirQuality:               *aq,
		Sunrise:                  OptionalTimestamp(w.Sunrise),
		Sunset:                   OptionalTimestamp(w.Sunset),
		IsDaylight:               w.IsDaylight(now),
		Units:                    Units{Temperature: w.Units.Temperature, WindSpeed: w.Units.WindSpeed},
		ObservedAt:               OptionalTimestamp(w.ObservedAt),
	}
	return resp
}

// NewAirQuality renders the air quality part of the weather state.
func NewAirQuality(st dashboard.SourceState[weather.Snapshot], now time.Time) AirQualityResponse {
	resp := AirQualityResponse{SourceMeta: newSourceMeta(st, now)}
	if st.HasData() {
		resp.AirQuality = newAirQuality(st.Value.AirQuality)
	}
	return resp
}

// NewSun renders sunrise and sunset from the weather state.
func NewSun(st dashboard.SourceState[weather.Snapshot], now time.Time) SunResponse {
	resp := SunResponse{SourceMeta: newSourceMeta(st, now)}
	if st.HasData() {
		daylight := st.Value.IsDaylight(now)
		resp.Sunrise = OptionalTimestamp(st.Value.Sunrise)
		resp.Sunset = OptionalTimestamp(st.Value.Sunset)
		resp.IsDaylight = &daylight
	}
	return resp
}

func newAirQuality(aq weather.AirQuality) *AirQuality {
	return &AirQuality{
		Value:    aq.Value,
		Category: aq.Category,
		Severity: string(aq.Severity),
		PM25:     aq.PM25,
		PM10:     aq.PM10,
	}
}

// NewAlerts renders the alerts source together with weather alerts.
func NewAlerts(snap *dashboard.Snapshot, now time.Time) AlertsResponse {
	active := snap.ActiveAlerts()
	resp := AlertsResponse{
		SourceMeta: newSourceMeta(snap.Alerts, now),
		Alerts:     make([]Alert, 0, len(active)),
	}
	for _, a := range active {
		resp.Alerts = append(resp.Alerts, newAlert(a))
	}
	return resp
}

func newAlert(a alerts.Alert) Alert {
	return Alert{
		ID:       a.ID,
		Source:   string(a.Source),
		Title:    a.Title,
		Severity: string(a.Severity),
		Detail:   a.Detail,
		Start:    OptionalTimestamp(a.Start),
		End:      OptionalTimestamp(a.End),
		Routes:   a.Routes,
		Stops:    a.Stops,
	}
}

// NewLeaveNow renders a leave-now state.
func NewLeaveNow(s leavenow.State) LeaveNow {
	out := LeaveNow{
		Status:      string(s.Kind),
		Message:     s.Message(),
		EvaluatedAt: Timestamp(s.EvaluatedAt),
	}

	switch s.Kind {
	case leavenow.KindLeaveNow:
		zero := 0
		out.LeaveInMinutes = &zero
	case leavenow.KindLeaveIn:
		minutes := s.Minutes
		out.LeaveInMinutes = &minutes
	}

	if !s.Departure.IsZero() {
		out.Departure = OptionalTimestamp(s.Departure)
		in := int(math.Ceil(s.Departure.Sub(s.EvaluatedAt).Minutes()))
		out.DepartureInMinutes = &in
	}
	return out
}
