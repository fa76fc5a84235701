package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/departureboard/departureboard/internal/dashboard"
	"github.com/departureboard/departureboard/internal/provider/resilience"
	"github.com/departureboard/departureboard/internal/worker"
)

var now = time.Date(2026, 4, 14, 6, 15, 0, 0, time.UTC)

type fakeTrigger struct{ calls int }

func (f *fakeTrigger) Trigger() bool {
	f.calls++
	return f.calls == 1
}

type fakeBoard struct{ snap *dashboard.Snapshot }

func (b fakeBoard) Snapshot() *dashboard.Snapshot { return b.snap }

type fakeProviders []*resilience.ProviderHealth

func (p fakeProviders) GetAllHealth() []*resilience.ProviderHealth { return p }

func newJobs(trigger worker.Trigger, snap *dashboard.Snapshot, providers worker.ProviderHealth) *worker.Jobs {
	return worker.NewJobs(worker.JobsConfig{
		Trigger:        trigger,
		Board:          fakeBoard{snap: snap},
		Providers:      providers,
		MaxSnapshotAge: 2 * time.Minute,
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return now },
	})
}

func TestJobs_Poll(t *testing.T) {
	trigger := &fakeTrigger{}
	jobs := newJobs(trigger, &dashboard.Snapshot{}, nil)

	require.NoError(t, jobs.Run(context.Background(), worker.JobMessage{JobType: worker.JobPoll}))
	require.NoError(t, jobs.Run(context.Background(), worker.JobMessage{JobType: worker.JobPoll}))

	assert.Equal(t, 2, trigger.calls)
}

func TestJobs_UnknownJob(t *testing.T) {
	jobs := newJobs(&fakeTrigger{}, &dashboard.Snapshot{}, nil)

	err := jobs.Run(context.Background(), worker.JobMessage{JobType: "provider_refresh"})

	require.ErrorIs(t, err, worker.ErrUnknownJob)
	assert.Contains(t, err.Error(), "provider_refresh")
}

func TestJobs_HealthCheck(t *testing.T) {
	ready := &dashboard.Snapshot{Generation: 4, PolledAt: now.Add(-30 * time.Second)}
	old := &dashboard.Snapshot{Generation: 4, PolledAt: now.Add(-5 * time.Minute)}

	open := &resilience.ProviderHealth{Name: "gbfs", CircuitState: gobreaker.StateOpen}
	closed := &resilience.ProviderHealth{Name: "stm", CircuitState: gobreaker.StateClosed}

	tests := []struct {
		name      string
		snap      *dashboard.Snapshot
		providers worker.ProviderHealth
		wantErr   string
	}{
		{name: "healthy", snap: ready, providers: fakeProviders{closed, open}},
		{name: "no providers registered", snap: ready, providers: fakeProviders{}},
		{name: "before first poll", snap: &dashboard.Snapshot{}, wantErr: worker.ErrNotReady.Error()},
		{name: "stale snapshot", snap: old, wantErr: "latest snapshot is 5m0s old"},
		{name: "every provider failing", snap: ready, providers: fakeProviders{open}, wantErr: "all 1 providers failing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs := newJobs(&fakeTrigger{}, tt.snap, tt.providers)

			err := jobs.Run(context.Background(), worker.JobMessage{JobType: worker.JobHealthCheck})

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
