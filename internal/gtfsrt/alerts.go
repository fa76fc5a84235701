package gtfsrt

import (
	"time"

	"github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// Alert is a decoded service alert.
type Alert struct {
	ID          string
	Header      string
	Description string
	Cause       string
	Effect      string
	// Severity is the upstream severity level name, e.g. "WARNING".
	Severity string
	Start    time.Time
	End      time.Time
	RouteIDs []string
	StopIDs  []string
}

// ActiveAt reports whether the alert applies at t. Open-ended periods are
// treated as unbounded.
func (a Alert) ActiveAt(t time.Time) bool {
	if !a.Start.IsZero() && t.Before(a.Start) {
		return false
	}
	if !a.End.IsZero() && !t.Before(a.End) {
		return false
	}
	return true
}

// AlertResult is the outcome of decoding a service alerts feed.
type AlertResult struct {
	Alerts          []Alert
	Skipped         int
	Entities        int
	HeaderTimestamp time.Time
}

// DecodeAlerts extracts service alerts. Alerts carrying neither header nor
// description text are counted as skipped.
func DecodeAlerts(data []byte) (*AlertResult, error) {
	msg, err := unmarshal(data)
	if err != nil {
		return nil, err
	}

	res := &AlertResult{
		Entities:        len(msg.GetEntity()),
		HeaderTimestamp: headerTime(msg),
	}

	for _, e := range msg.GetEntity() {
		a := e.GetAlert()
		if a == nil || e.GetIsDeleted() {
			continue
		}

		out := Alert{
			ID:          e.GetId(),
			Header:      translatedText(a.GetHeaderText()),
			Description: translatedText(a.GetDescriptionText()),
		}
		if out.Header == "" && out.Description == "" {
			res.Skipped++
			continue
		}
		if a.Cause != nil {
			out.Cause = a.GetCause().String()
		}
		if a.Effect != nil {
			out.Effect = a.GetEffect().String()
		}
		if a.SeverityLevel != nil {
			out.Severity = a.GetSeverityLevel().String()
		}

		// The widest window across all active periods.
		for i, ap := range a.GetActivePeriod() {
			start, end := unixOrZero(ap.GetStart()), unixOrZero(ap.GetEnd())
			if i == 0 || start.IsZero() || (!out.Start.IsZero() && start.Before(out.Start)) {
				out.Start = start
			}
			if i == 0 || end.IsZero() || (!out.End.IsZero() && end.After(out.End)) {
				out.End = end
			}
		}

		for _, ie := range a.GetInformedEntity() {
			if rid := ie.GetRouteId(); rid != "" {
				out.RouteIDs = append(out.RouteIDs, rid)
			}
			if sid := ie.GetStopId(); sid != "" {
				out.StopIDs = append(out.StopIDs, sid)
			}
		}

		res.Alerts = append(res.Alerts, out)
	}

	return res, nil
}

func unixOrZero(secs uint64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

// translatedText prefers an English or untagged translation, falling back to
// the first one.
func translatedText(ts *gtfs.TranslatedString) string {
	if ts == nil {
		return ""
	}
	var first string
	for _, tr := range ts.GetTranslation() {
		text := tr.GetText()
		if text == "" {
			continue
		}
		switch tr.GetLanguage() {
		case "", "en", "en-CA", "en-US":
			return text
		}
		if first == "" {
			first = text
		}
	}
	return first
}
