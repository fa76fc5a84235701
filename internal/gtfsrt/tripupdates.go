package gtfsrt

import (
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// StopTime is one trip's arrival at one stop of interest.
type StopTime struct {
	TripID       string
	RouteID      string
	DirectionID  uint32
	HasDirection bool
	StopID       string
	Time         time.Time
	// Predicted is false when only a scheduled time was available.
	Predicted bool
}

// TripUpdateResult is the outcome of decoding a trip updates feed.
type TripUpdateResult struct {
	StopTimes []StopTime

	// Skipped counts malformed trip update entities.
	Skipped int

	// Untimed counts stop updates at a stop of interest that carried
	// neither a predicted nor a scheduled time.
	Untimed int

	Entities        int
	HeaderTimestamp time.Time
}

type tripStop struct {
	trip, stop string
}

// DecodeTripUpdates extracts arrivals at the stops in stops. Cancelled trips
// and skipped stops are dropped. A trip contributes at most one arrival per
// stop; the earliest wins.
func DecodeTripUpdates(data []byte, stops StopSet) (*TripUpdateResult, error) {
	msg, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	res := &TripUpdateResult{
		Entities:        len(msg.GetEntity()),
		HeaderTimestamp: headerTime(msg),
	}
	seen := make(map[tripStop]int)

	for _, e := range msg.GetEntity() {
		tu := e.GetTripUpdate()
		if tu == nil || e.GetIsDeleted() {
			continue
		}
		found, untimed, ok := decodeTripUpdate(tu, stops)
		if !ok {
			res.Skipped++
			continue
		}
		res.Untimed += untimed
		for _, st := range found {
			key := tripStop{trip: st.TripID, stop: st.StopID}
			if i, dup := seen[key]; dup && st.TripID != "" {
				if st.Time.Before(res.StopTimes[i].Time) {
					res.StopTimes[i] = st
				}
				continue
			}
			seen[key] = len(res.StopTimes)
			res.StopTimes = append(res.StopTimes, st)
		}
	}

	return res, nil
}

// decodeTripUpdate returns the matching stop times of one trip update and
// the number of matching stop updates without a time, or false when the
// entity is malformed.
func decodeTripUpdate(tu *gtfs.TripUpdate, stops StopSet) (out []StopTime, untimed int, ok bool) {
	trip := tu.GetTrip()
	if trip == nil {
		return nil, 0, false
	}
	if trip.GetTripId() == "" && trip.GetRouteId() == "" {
		return nil, 0, false
	}
	if trip.GetScheduleRelationship() == gtfs.TripDescriptor_CANCELED {
		return nil, 0, true
	}

	for _, stu := range tu.GetStopTimeUpdate() {
		stopID := stu.GetStopId()
		if !stops.Contains(stopID) {
			continue
		}
		if stu.GetScheduleRelationship() == gtfs.TripUpdate_StopTimeUpdate_SKIPPED {
			continue
		}
		secs, predicted, present := eventTime(stu)
		if !present {
			untimed++
			continue
		}
		if secs <= 0 {
			return nil, 0, false
		}
		out = append(out, StopTime{
			TripID:       trip.GetTripId(),
			RouteID:      trip.GetRouteId(),
			DirectionID:  trip.GetDirectionId(),
			HasDirection: trip.DirectionId != nil,
			StopID:       stopID,
			Time:         time.Unix(secs, 0).UTC(),
			Predicted:    predicted,
		})
	}
	return out, untimed, true
}

// eventTime picks arrival time, then departure time, then either scheduled
// time.
func eventTime(stu *gtfs.TripUpdate_StopTimeUpdate) (secs int64, predicted, present bool) {
	for _, ev := range []*gtfs.TripUpdate_StopTimeEvent{stu.GetArrival(), stu.GetDeparture()} {
		if ev != nil && ev.Time != nil {
			return ev.GetTime(), true, true
		}
	}
	for _, ev := range []*gtfs.TripUpdate_StopTimeEvent{stu.GetArrival(), stu.GetDeparture()} {
		if secs, ok := scheduledTime(ev); ok {
			return secs, false, true
		}
	}
	return 0, false, false
}

// scheduledTime reads the experimental scheduled_time field through
// reflection so older bindings without the generated accessor still build.
func scheduledTime(ev *gtfs.TripUpdate_StopTimeEvent) (int64, bool) {
	if ev == nil {
		return 0, false
	}
	m := ev.ProtoReflect()
	fd := m.Descriptor().Fields().ByName("scheduled_time")
	if fd == nil || !m.Has(fd) {
		return 0, false
	}
	return m.Get(fd).Int(), true
}
