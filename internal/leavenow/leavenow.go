// Package leavenow decides when to leave for the next departure.
package leavenow

import (
	"fmt"
	"math"
	"time"
)

// Kind is the decision outcome.
type Kind string

// Decision kinds.
const (
	KindLeaveNow Kind = "leave_now"
	KindLeaveIn  Kind = "leave_in"
	KindNoData   Kind = "no_data"
)

// State is the leave-now decision together with the departure it was
// computed from.
type State struct {
	Kind Kind
	// Minutes until leaving; only set for KindLeaveIn.
	Minutes int
	// Departure is the soonest departure considered. Zero for KindNoData.
	Departure   time.Time
	EvaluatedAt time.Time
}

// Evaluate maps the soonest departure at or after now to a decision.
// It has no side effects.
func Evaluate(departures []time.Time, walking, buffer time.Duration, now time.Time) State {
	var soonest time.Time
	for _, d := range departures {
		if d.Before(now) {
			continue
		}
		if soonest.IsZero() || d.Before(soonest) {
			soonest = d
		}
	}
	if soonest.IsZero() {
		return State{Kind: KindNoData, EvaluatedAt: now}
	}

	leaveAt := soonest.Add(-walking - buffer)
	if !leaveAt.After(now) {
		return State{Kind: KindLeaveNow, Departure: soonest, EvaluatedAt: now}
	}

	return State{
		Kind:        KindLeaveIn,
		Minutes:     int(math.Ceil(leaveAt.Sub(now).Minutes())),
		Departure:   soonest,
		EvaluatedAt: now,
	}
}

// Message renders the state the way the dashboard displays it.
func (s State) Message() string {
	switch s.Kind {
	case KindLeaveNow:
		return "Leave now!"
	case KindLeaveIn:
		if s.Minutes == 1 {
			return "Leave in 1 minute"
		}
		return fmt.Sprintf("Leave in %d minutes", s.Minutes)
	default:
		return "No departures available"
	}
}
