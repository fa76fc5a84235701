// Package gtfsrt decodes GTFS-Realtime trip update and service alert feeds.
//
// Decoding is tolerant: a malformed entity is skipped and counted, and only a
// message that cannot be parsed at all yields a DecodeError.
package gtfsrt

import (
	"fmt"
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// DecodeError is returned when the top-level FeedMessage cannot be parsed.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding gtfs-realtime feed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StopSet is the set of stop identifiers a caller is interested in.
type StopSet map[string]struct{}

// NewStopSet builds a StopSet from ids. Empty ids are ignored.
func NewStopSet(ids ...string) StopSet {
	s := make(StopSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Contains reports whether id is in the set.
func (s StopSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func unmarshal(data []byte) (*gtfs.FeedMessage, error) {
	msg := &gtfs.FeedMessage{}
	// Required fields are checked per entity, not for the whole message.
	if err := (proto.UnmarshalOptions{AllowPartial: true}).Unmarshal(data, msg); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return msg, nil
}

func headerTime(msg *gtfs.FeedMessage) time.Time {
	if ts := msg.GetHeader().GetTimestamp(); ts > 0 {
		return time.Unix(int64(ts), 0).UTC()
	}
	return time.Time{}
}
