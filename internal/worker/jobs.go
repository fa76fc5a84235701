// Package worker runs the poll loop in the background and accepts poll
// requests from Pub/Sub.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/provider/resilience"
)

// Job types understood by the worker.
const (
	JobPoll        = "poll"
	JobHealthCheck = "health_check"
)

// Job errors.
var (
	ErrUnknownJob = errors.New("unknown job type")
	ErrNotReady   = errors.New("no poll has completed yet")
)

// JobMessage is the payload of a worker message.
type JobMessage struct {
	JobType string `json:"job_type"`
}

// Trigger requests an out-of-cycle poll. *dashboard.Poller implements it.
type Trigger interface {
	Trigger() bool
}

// Board exposes the latest snapshot. *dashboard.Aggregator implements it.
type Board interface {
	Snapshot() *dashboard.Snapshot
}

// ProviderHealth reports upstream health. *resilience.Registry implements it.
type ProviderHealth interface {
	GetAllHealth() []*resilience.ProviderHealth
}

// JobsConfig configures Jobs.
type JobsConfig struct {
	Trigger   Trigger
	Board     Board
	Providers ProviderHealth

	// MaxSnapshotAge fails health checks when the latest poll is older.
	// Zero disables the check.
	MaxSnapshotAge time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Jobs executes worker jobs.
type Jobs struct {
	trigger        Trigger
	board          Board
	providers      ProviderHealth
	maxSnapshotAge time.Duration
	logger         zerolog.Logger
	now            func() time.Time
}

// NewJobs creates a job runner.
func NewJobs(cfg JobsConfig) *Jobs {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Jobs{
		trigger:        cfg.Trigger,
		board:          cfg.Board,
		providers:      cfg.Providers,
		maxSnapshotAge: cfg.MaxSnapshotAge,
		logger:         cfg.Logger,
		now:            now,
	}
}

// Run executes one job.
func (j *Jobs) Run(ctx context.Context, msg JobMessage) error {
	switch msg.JobType {
	case JobPoll:
		return j.poll(ctx)
	case JobHealthCheck:
		return j.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

func (j *Jobs) poll(_ context.Context) error {
	queued := j.trigger.Trigger()
	j.logger.Info().Bool("queued", queued).Msg("poll requested")
	return nil
}

func (j *Jobs) healthCheck(_ context.Context) error {
	snap := j.board.Snapshot()
	if !snap.Ready() {
		return ErrNotReady
	}

	if j.maxSnapshotAge > 0 {
		if age := j.now().Sub(snap.PolledAt); age > j.maxSnapshotAge {
			return fmt.Errorf("latest snapshot is %s old", age.Round(time.Second))
		}
	}

	if j.providers != nil {
		providers := j.providers.GetAllHealth()
		failing := 0
		for _, p := range providers {
			if p.Status() == resilience.StatusFail {
				failing++
			}
		}
		if len(providers) > 0 && failing == len(providers) {
			return fmt.Errorf("all %d providers failing", failing)
		}
	}

	j.logger.Debug().
		Uint64("generation", snap.Generation).
		Msg("health check passed")
	return nil
}
