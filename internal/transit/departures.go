// Package transit models upcoming departures at the configured stops.
package transit

import (
	"cmp"
	"slices"
	"time"
)

// DefaultPerDirection is how many departures are kept per route and
// direction when no cap is configured.
const DefaultPerDirection = 2

// DefaultHorizon is how far ahead departures are listed.
const DefaultHorizon = 60 * time.Minute

// NoDirection marks a departure whose feed carried no direction id.
const NoDirection = -1

// Departure is one upcoming vehicle at a stop of interest.
type Departure struct {
	RouteID string

	// Headsign is the display label for the route and direction.
	Headsign string

	// DirectionID is the GTFS direction (0 or 1), or NoDirection.
	DirectionID int

	StopID  string
	TripID  string
	Arrival time.Time

	// Predicted is false when the arrival is the scheduled time.
	Predicted bool
}

// MinutesUntil returns whole minutes from now until arrival, rounded down.
func (d Departure) MinutesUntil(now time.Time) int {
	return int(d.Arrival.Sub(now) / time.Minute)
}

type directionKey struct {
	route     string
	direction int
}

// Departures is a list of departures ordered by arrival.
type Departures []Departure

// Collapse keeps the earliest perDirection departures of each route and
// direction and returns them sorted by arrival. perDirection <= 0 uses
// DefaultPerDirection.
func (ds Departures) Collapse(perDirection int) Departures {
	if perDirection <= 0 {
		perDirection = DefaultPerDirection
	}

	sorted := slices.Clone(ds)
	sortByArrival(sorted)

	counts := make(map[directionKey]int)
	out := make(Departures, 0, len(sorted))
	for _, d := range sorted {
		k := directionKey{route: d.RouteID, direction: d.DirectionID}
		if counts[k] >= perDirection {
			continue
		}
		counts[k]++
		out = append(out, d)
	}
	return out
}

// Within returns the departures arriving in [now, now+horizon].
func (ds Departures) Within(now time.Time, horizon time.Duration) Departures {
	end := now.Add(horizon)
	out := make(Departures, 0, len(ds))
	for _, d := range ds {
		if d.Arrival.Before(now) || d.Arrival.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Times returns the arrival instants, the input of leavenow.Evaluate.
func (ds Departures) Times() []time.Time {
	out := make([]time.Time, len(ds))
	for i, d := range ds {
		out[i] = d.Arrival
	}
	return out
}

// Soonest returns the earliest departure at or after now.
func (ds Departures) Soonest(now time.Time) (Departure, bool) {
	var best Departure
	found := false
	for _, d := range ds {
		if d.Arrival.Before(now) {
			continue
		}
		if !found || d.Arrival.Before(best.Arrival) {
			best, found = d, true
		}
	}
	return best, found
}

func sortByArrival(ds Departures) {
	slices.SortStableFunc(ds, func(a, b Departure) int {
		if c := a.Arrival.Compare(b.Arrival); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RouteID, b.RouteID); c != 0 {
			return c
		}
		return cmp.Compare(a.TripID, b.TripID)
	})
}

// Board is the normalized result of one trip updates fetch.
type Board struct {
	Departures Departures

	// Skipped counts feed entities dropped as malformed.
	Skipped int

	// Untimed counts matching stop updates dropped for having no time.
	Untimed int

	// Entities is the number of entities in the feed.
	Entities int

	// FeedTimestamp is the feed header timestamp, if any.
	FeedTimestamp time.Time
}
