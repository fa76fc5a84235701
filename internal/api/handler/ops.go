// Package handler provides HTTP handlers for the departure board API.
package handler

import (
	"net/http"
	"time"

	"github.com/departureboard/departureboard/internal/api/models"
	"github.com/departureboard/departureboard/internal/api/response"
	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/provider/resilience"
)

// ProviderHealth reports the health of upstream feed clients.
// *resilience.Registry implements it.
type ProviderHealth interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// PollTrigger requests an out-of-cycle poll. *dashboard.Poller implements it.
type PollTrigger interface {
	Trigger() bool
}

// OpsConfig configures an OpsHandler.
type OpsConfig struct {
	Version   string
	BuildTime string
	Board     Board
	Providers ProviderHealth
	Trigger   PollTrigger
	Now       func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	board     Board
	providers ProviderHealth
	trigger   PollTrigger
	now       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		board:     cfg.Board,
		providers: cfg.Providers,
		trigger:   cfg.Trigger,
		now:       now,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - ready once the first poll has
// completed.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	snap := h.board.Snapshot()
	if !snap.Ready() {
		response.ServiceUnavailable(w, r, dashboard.NotePending)
		return
	}

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]any{
			"generation": snap.Generation,
			"polledAt":   models.Timestamp(snap.PolledAt),
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - source freshness of the latest
// snapshot and upstream provider health.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	snap := h.board.Snapshot()
	status := models.SystemStatus{
		Time:       models.Timestamp(h.now()),
		Generation: snap.Generation,
		Sources:    sourceStatuses(snap),
		Providers:  []models.ProviderStatus{},
	}
	if h.providers != nil {
		for _, p := range h.providers.GetAllHealth() {
			status.Providers = append(status.Providers, providerStatus(p))
		}
	}
	status.Status = overallStatus(status.Sources)

	response.JSON(w, r, http.StatusOK, status)
}

// TriggerPoll handles POST /v1/ops/poll - request a poll ahead of schedule.
func (h *OpsHandler) TriggerPoll(w http.ResponseWriter, r *http.Request) {
	if h.trigger == nil {
		response.ServiceUnavailable(w, r, "poller not running")
		return
	}
	queued := h.trigger.Trigger()
	response.Accepted(w, r, "/v1/dashboard", map[string]bool{"queued": queued})
}

func sourceStatuses(snap *dashboard.Snapshot) []models.SourceStatus {
	return []models.SourceStatus{
		sourceStatus(snap.Transit.Source, snap.Transit.Status, snap.Transit.Note, snap.Transit.Error),
		sourceStatus(snap.Bikeshare.Source, snap.Bikeshare.Status, snap.Bikeshare.Note, snap.Bikeshare.Error),
		sourceStatus(snap.Weather.Source, snap.Weather.Status, snap.Weather.Note, snap.Weather.Error),
		sourceStatus(snap.Alerts.Source, snap.Alerts.Status, snap.Alerts.Note, snap.Alerts.Error),
	}
}

func sourceStatus(name string, st dashboard.Status, note string, fetchErr *dashboard.ErrorInfo) models.SourceStatus {
	out := models.SourceStatus{Name: name}
	switch st {
	case dashboard.StatusFresh:
		out.Status = models.HealthStatusOK
	case dashboard.StatusStale:
		out.Status = models.HealthStatusDegraded
	default:
		out.Status = models.HealthStatusFail
	}

	detail := note
	if fetchErr != nil {
		detail = string(fetchErr.Kind) + ": " + fetchErr.Message
	}
	if detail != "" {
		out.Detail = &detail
	}
	return out
}

// overallStatus is OK when every configured source is fresh, FAIL when none
// has data and DEGRADED otherwise. Unconfigured sources are ignored.
func overallStatus(sources []models.SourceStatus) models.HealthStatus {
	configured, ok, failed := 0, 0, 0
	for _, s := range sources {
		if s.Detail != nil && *s.Detail == dashboard.NoteUnconfigured {
			continue
		}
		configured++
		switch s.Status {
		case models.HealthStatusOK:
			ok++
		case models.HealthStatusFail:
			failed++
		}
	}
	switch {
	case ok == configured:
		return models.HealthStatusOK
	case failed == configured:
		return models.HealthStatusFail
	default:
		return models.HealthStatusDegraded
	}
}

func providerStatus(p *resilience.ProviderHealth) models.ProviderStatus {
	out := models.ProviderStatus{
		Provider:            p.Name,
		CircuitState:        p.CircuitState.String(),
		ConsecutiveFailures: int(p.Counts.ConsecutiveFailures),
	}
	switch p.Status() {
	case resilience.StatusFail:
		out.Status = models.HealthStatusFail
	case resilience.StatusDegraded:
		out.Status = models.HealthStatusDegraded
	default:
		out.Status = models.HealthStatusOK
	}
	if p.LastSuccessAt != nil {
		out.LastSuccessAt = models.OptionalTimestamp(*p.LastSuccessAt)
	}
	if p.LastFailureAt != nil {
		out.LastFailureAt = models.OptionalTimestamp(*p.LastFailureAt)
	}
	if p.LastError != "" {
		msg := p.LastError
		out.Message = &msg
	}
	return out
}
