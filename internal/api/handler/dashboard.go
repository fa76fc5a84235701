package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/departureboard/departureboard/internal/api/models"
	"github.com/departureboard/departureboard/internal/api/response"
	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/leavenow"
)

// Query parameter bounds.
const (
	maxDepartureLimit = 50
	maxWalkingMinutes = 120
	maxBufferMinutes  = 60
)

// Board is the read side of the aggregator.
type Board interface {
	Snapshot() *dashboard.Snapshot
	LeaveNow(now time.Time) leavenow.State
	LeaveNowWith(now time.Time, walking, buffer time.Duration) leavenow.State
}

// DashboardConfig configures a DashboardHandler.
type DashboardConfig struct {
	Board Board

	// Walking and Buffer are the defaults for leave-now overrides.
	Walking time.Duration
	Buffer  time.Duration

	// Now overrides the clock (tests).
	Now func() time.Time
}

// DashboardHandler serves the latest snapshot. It never blocks on upstream
// feeds.
type DashboardHandler struct {
	board   Board
	walking time.Duration
	buffer  time.Duration
	now     func() time.Time
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(cfg DashboardConfig) *DashboardHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &DashboardHandler{
		board:   cfg.Board,
		walking: cfg.Walking,
		buffer:  cfg.Buffer,
		now:     now,
	}
}

// Dashboard handles GET /v1/dashboard - every widget in one response.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	view := models.NewDashboard(h.board.Snapshot(), now)
	view.LeaveNow = models.NewLeaveNow(h.board.LeaveNow(now))
	response.JSON(w, r, http.StatusOK, view)
}

// Transit handles GET /v1/transit - upcoming departures. Optional query
// parameters: route (repeatable) and limit.
func (h *DashboardHandler) Transit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var fieldErrors []models.FieldError
	limit, fieldErrors := intParam(fieldErrors, q.Get("limit"), "limit", 1, maxDepartureLimit)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	resp := models.NewTransit(h.board.Snapshot().Transit, h.now())
	if routes := q["route"]; len(routes) > 0 {
		resp.Departures = filterRoutes(resp.Departures, routes)
	}
	if limit > 0 && len(resp.Departures) > limit {
		resp.Departures = resp.Departures[:limit]
	}
	response.JSON(w, r, http.StatusOK, resp)
}

// Bikeshare handles GET /v1/bikeshare - configured station availability.
func (h *DashboardHandler) Bikeshare(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewBikeshare(h.board.Snapshot().Bikeshare, h.now()))
}

// Weather handles GET /v1/weather - current conditions.
func (h *DashboardHandler) Weather(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewWeather(h.board.Snapshot().Weather, h.now()))
}

// AirQuality handles GET /v1/air-quality - the AQI part of the weather source.
func (h *DashboardHandler) AirQuality(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewAirQuality(h.board.Snapshot().Weather, h.now()))
}

// Sun handles GET /v1/sun - today's sunrise and sunset.
func (h *DashboardHandler) Sun(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewSun(h.board.Snapshot().Weather, h.now()))
}

// Alerts handles GET /v1/alerts - service alerts merged with weather warnings.
func (h *DashboardHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.NewAlerts(h.board.Snapshot(), h.now()))
}

// LeaveNow handles GET /v1/leave-now - the leave-now indicator. The walking
// and buffer query parameters (minutes) override the configured values.
func (h *DashboardHandler) LeaveNow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	now := h.now()
	if q.Get("walking") == "" && q.Get("buffer") == "" {
		response.JSON(w, r, http.StatusOK, models.NewLeaveNow(h.board.LeaveNow(now)))
		return
	}

	var fieldErrors []models.FieldError
	walking, fieldErrors := minutesParam(fieldErrors, q.Get("walking"), "walking", h.walking, maxWalkingMinutes)
	buffer, fieldErrors := minutesParam(fieldErrors, q.Get("buffer"), "buffer", h.buffer, maxBufferMinutes)
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid query parameters", fieldErrors)
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewLeaveNow(h.board.LeaveNowWith(now, walking, buffer)))
}

// intParam parses an optional integer query parameter in [lo, hi]. An empty
// value yields zero.
func intParam(errs []models.FieldError, raw, field string, lo, hi int) (int, []models.FieldError) {
	if raw == "" {
		return 0, errs
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, append(errs, models.FieldError{
			Field:   field,
			Message: "must be an integer",
			Code:    "INVALID",
		})
	}
	if n < lo || n > hi {
		return 0, append(errs, models.FieldError{
			Field:   field,
			Message: "must be between " + strconv.Itoa(lo) + " and " + strconv.Itoa(hi),
			Code:    "OUT_OF_RANGE",
		})
	}
	return n, errs
}

// minutesParam parses an optional whole-minute query parameter, falling back
// to def when absent.
func minutesParam(errs []models.FieldError, raw, field string, def time.Duration, hi int) (time.Duration, []models.FieldError) {
	if raw == "" {
		return def, errs
	}
	n, errs := intParam(errs, raw, field, 0, hi)
	return time.Duration(n) * time.Minute, errs
}

func filterRoutes(deps []models.Departure, routes []string) []models.Departure {
	keep := make(map[string]struct{}, len(routes))
	for _, r := range routes {
		keep[r] = struct{}{}
	}
	out := make([]models.Departure, 0, len(deps))
	for _, d := range deps {
		if _, ok := keep[d.Route]; ok {
			out = append(out, d)
		}
	}
	return out
}
