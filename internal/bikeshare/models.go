// Package bikeshare models dock availability at the configured stations.
package bikeshare

import "time"

// StationStatus is the live state of one bike-share station.
type StationStatus struct {
	StationID       string
	Name            string
	BikesAvailable  int
	EBikesAvailable int
	DocksAvailable  int
	IsRenting       bool
	IsReturning     bool
	LastReported    time.Time
}

// Status is the normalized result of one bike-share fetch.
type Status struct {
	// Stations holds the configured stations found upstream, in configured
	// order.
	Stations []StationStatus

	// Missing lists configured station ids absent from the feed.
	Missing []string

	// Skipped counts records that needed repair or were unusable.
	Skipped int

	// LastUpdated is the feed's own last_updated time.
	LastUpdated time.Time
}

// Station returns the status of id, if present.
func (s Status) Station(id string) (StationStatus, bool) {
	for _, st := range s.Stations {
		if st.StationID == id {
			return st, true
		}
	}
	return StationStatus{}, false
}

// TotalBikes sums bikes available across all listed stations.
func (s Status) TotalBikes() int {
	total := 0
	for _, st := range s.Stations {
		total += st.BikesAvailable
	}
	return total
}
