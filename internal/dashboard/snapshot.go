// Package dashboard merges every source into one immutable snapshot per poll.
package dashboard

import (
	"slices"
	"time"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/bikeshare"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/leavenow"
	"github.com/departureboard/departureboard/internal/transit"
	"github.com/departureboard/departureboard/internal/weather"
)

// Status is how current a source's data is.
type Status string

const (
	StatusFresh  Status = "fresh"
	StatusStale  Status = "stale"
	StatusNoData Status = "no_data"
)

// Notes attached to a source state that has no error of its own.
const (
	NoteUnconfigured = "unconfigured"
	NoteTimedOut     = "timed out"
	NotePending      = "awaiting first poll"
)

// ErrorInfo describes the last failure of a source.
type ErrorInfo struct {
	Kind    feed.Kind
	Message string
}

// SourceState is the per-source entry of a snapshot.
type SourceState[T any] struct {
	Source    string
	Status    Status
	Value     T
	FetchedAt time.Time
	Age       time.Duration
	TTL       time.Duration
	Error     *ErrorInfo
	Note      string

	// Skipped counts records dropped as malformed in the last good fetch.
	Skipped int
}

// HasData reports whether the state carries a value.
func (s SourceState[T]) HasData() bool {
	return s.Status != StatusNoData
}

// Snapshot is one poll's view of every source. It is never mutated after
// the aggregator stores it.
type Snapshot struct {
	Generation uint64
	PolledAt   time.Time

	Transit   SourceState[transit.Board]
	Bikeshare SourceState[bikeshare.Status]
	Weather   SourceState[weather.Snapshot]
	Alerts    SourceState[alerts.Feed]

	LeaveNow leavenow.State
}

// Ready reports whether at least one poll has completed.
func (s *Snapshot) Ready() bool {
	return s.Generation > 0
}

// Statuses returns the status of each source keyed by category.
func (s *Snapshot) Statuses() map[string]Status {
	return map[string]Status{
		CategoryTransit:   s.Transit.Status,
		CategoryBikeshare: s.Bikeshare.Status,
		CategoryWeather:   s.Weather.Status,
		CategoryAlerts:    s.Alerts.Status,
	}
}

// ActiveAlerts merges transit alerts with alerts derived from the weather,
// most severe first. The result is a fresh slice.
func (s *Snapshot) ActiveAlerts() []alerts.Alert {
	var out []alerts.Alert
	if s.Alerts.HasData() {
		out = append(out, s.Alerts.Value.Alerts...)
	}
	if s.Weather.HasData() {
		out = append(out, alerts.FromWeather(s.Weather.Value)...)
	}
	alerts.Sort(out)
	return slices.Clip(out)
}

// Source categories.
const (
	CategoryTransit   = "transit"
	CategoryBikeshare = "bikeshare"
	CategoryWeather   = "weather"
	CategoryAlerts    = "alerts"
)

func stateFromResult[T any](name string, res feed.Result[T], now time.Time, skipped func(T) int) SourceState[T] {
	st := SourceState[T]{
		Source: name,
		Status: StatusNoData,
		TTL:    res.TTL,
	}
	if res.Err != nil {
		st.Error = &ErrorInfo{Kind: res.Err.Kind, Message: res.Err.Error()}
	}
	if !res.HasData {
		return st
	}

	st.Value = res.Value
	st.FetchedAt = res.FetchedAt
	st.Age = res.Age(now)
	st.Status = StatusStale
	if res.Fresh {
		st.Status = StatusFresh
	}
	if skipped != nil {
		st.Skipped = skipped(res.Value)
	}
	return st
}

func noDataState[T any](name, note string) SourceState[T] {
	return SourceState[T]{Source: name, Status: StatusNoData, Note: note}
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		Transit:   noDataState[transit.Board](CategoryTransit, NotePending),
		Bikeshare: noDataState[bikeshare.Status](CategoryBikeshare, NotePending),
		Weather:   noDataState[weather.Snapshot](CategoryWeather, NotePending),
		Alerts:    noDataState[alerts.Feed](CategoryAlerts, NotePending),
		LeaveNow:  leavenow.State{Kind: leavenow.KindNoData},
	}
}

func boardSkipped(b transit.Board) int       { return b.Skipped }
func stationsSkipped(s bikeshare.Status) int { return s.Skipped }
func alertsSkipped(f alerts.Feed) int        { return f.Skipped }
