package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/departureboard/departureboard/internal/alerts"
	"github.com/departureboard/departureboard/internal/bikeshare"
	"github.com/departureboard/departureboard/internal/feed"
	"github.com/departureboard/departureboard/internal/leavenow"
	"github.com/departureboard/departureboard/internal/transit"
	"github.com/departureboard/departureboard/internal/weather"
)

const tracerName = "github.com/departureboard/departureboard/internal/dashboard"

// DefaultBudget bounds a poll when no budget is configured.
const DefaultBudget = 6 * time.Second

// Source is a cached upstream feed. *feed.Cache implements it.
type Source[T any] interface {
	Name() string
	GetOrRefresh(ctx context.Context, now time.Time) feed.Result[T]
	Peek(now time.Time) feed.Result[T]
}

// Publisher receives every stored snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap *Snapshot) error
}

// PollRecorder receives poll metrics. telemetry.PollMetrics implements it.
type PollRecorder interface {
	RecordPoll(duration time.Duration)
	RecordSource(source, status string)
}

// Config configures an Aggregator. A nil source is reported as
// unconfigured in every snapshot.
type Config struct {
	Transit   Source[transit.Board]
	Bikeshare Source[bikeshare.Status]
	Weather   Source[weather.Snapshot]
	Alerts    Source[alerts.Feed]

	// Budget is the wall-clock limit of one poll.
	Budget time.Duration

	Walking time.Duration
	Buffer  time.Duration

	Publisher Publisher
	Recorder  PollRecorder
	Logger    zerolog.Logger

	// Tracer defaults to the global tracer.
	Tracer trace.Tracer
}

// Aggregator polls all sources concurrently and keeps the latest snapshot.
type Aggregator struct {
	transit   Source[transit.Board]
	bikeshare Source[bikeshare.Status]
	weather   Source[weather.Snapshot]
	alerts    Source[alerts.Feed]

	budget  time.Duration
	walking time.Duration
	buffer  time.Duration

	publisher Publisher
	recorder  PollRecorder
	logger    zerolog.Logger
	tracer    trace.Tracer

	generation atomic.Uint64
	latest     atomic.Pointer[Snapshot]
}

// NewAggregator creates an aggregator holding an empty generation-0
// snapshot.
func NewAggregator(cfg Config) *Aggregator {
	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	a := &Aggregator{
		transit:   cfg.Transit,
		bikeshare: cfg.Bikeshare,
		weather:   cfg.Weather,
		alerts:    cfg.Alerts,
		budget:    budget,
		walking:   cfg.Walking,
		buffer:    cfg.Buffer,
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		logger:    cfg.Logger.With().Str("component", "aggregator").Logger(),
		tracer:    cfg.Tracer,
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(tracerName)
	}
	a.latest.Store(emptySnapshot())
	return a
}

// Snapshot returns the latest completed snapshot without blocking.
func (a *Aggregator) Snapshot() *Snapshot {
	return a.latest.Load()
}

// LeaveNow evaluates the leave-now decision at now from the latest
// snapshot's transit data.
func (a *Aggregator) LeaveNow(now time.Time) leavenow.State {
	return evaluate(a.Snapshot().Transit, a.walking, a.buffer, now)
}

// LeaveNowWith is LeaveNow for a different walking time and buffer.
func (a *Aggregator) LeaveNowWith(now time.Time, walking, buffer time.Duration) leavenow.State {
	return evaluate(a.Snapshot().Transit, walking, buffer, now)
}

// Poll refreshes every source in parallel, merges the results into a new
// snapshot and stores it. Sources still pending when the budget runs out
// are recorded from their cached view.
func (a *Aggregator) Poll(ctx context.Context, now time.Time) *Snapshot {
	ctx, span := a.tracer.Start(ctx, "dashboard.Poll")
	defer span.End()

	start := time.Now()
	pollCtx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	transitCh := launch(pollCtx, a.transit, now)
	bikeCh := launch(pollCtx, a.bikeshare, now)
	weatherCh := launch(pollCtx, a.weather, now)
	alertsCh := launch(pollCtx, a.alerts, now)

	snap := &Snapshot{PolledAt: now}
	snap.Transit = settle(pollCtx, a.transit, transitCh, CategoryTransit, now, boardSkipped)
	snap.Bikeshare = settle(pollCtx, a.bikeshare, bikeCh, CategoryBikeshare, now, stationsSkipped)
	snap.Weather = settle(pollCtx, a.weather, weatherCh, CategoryWeather, now, nil)
	snap.Alerts = settle(pollCtx, a.alerts, alertsCh, CategoryAlerts, now, alertsSkipped)
	snap.LeaveNow = evaluate(snap.Transit, a.walking, a.buffer, now)
	snap.Generation = a.generation.Add(1)

	a.store(snap)

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.Int64("dashboard.generation", int64(snap.Generation)),
		attribute.String("dashboard.leave_now", string(snap.LeaveNow.Kind)),
	)
	a.record(snap, elapsed)

	a.logger.Info().
		Uint64("generation", snap.Generation).
		Str("transit", string(snap.Transit.Status)).
		Str("bikeshare", string(snap.Bikeshare.Status)).
		Str("weather", string(snap.Weather.Status)).
		Str("alerts", string(snap.Alerts.Status)).
		Str("leave_now", string(snap.LeaveNow.Kind)).
		Dur("duration", elapsed).
		Msg("poll completed")

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, snap); err != nil {
			a.logger.Error().
				Err(err).
				Uint64("generation", snap.Generation).
				Msg("failed to publish snapshot")
		}
	}

	return snap
}

// store replaces the latest snapshot unless a newer one is already stored.
func (a *Aggregator) store(snap *Snapshot) {
	for {
		cur := a.latest.Load()
		if cur.Generation > snap.Generation {
			return
		}
		if a.latest.CompareAndSwap(cur, snap) {
			return
		}
	}
}

func evaluate(st SourceState[transit.Board], walking, buffer time.Duration, now time.Time) leavenow.State {
	if !st.HasData() {
		return leavenow.State{Kind: leavenow.KindNoData, EvaluatedAt: now}
	}
	return leavenow.Evaluate(st.Value.Departures.Times(), walking, buffer, now)
}

func (a *Aggregator) record(snap *Snapshot, elapsed time.Duration) {
	if a.recorder == nil {
		return
	}
	a.recorder.RecordPoll(elapsed)
	for category, status := range snap.Statuses() {
		a.recorder.RecordSource(category, string(status))
	}
}

func launch[T any](ctx context.Context, src Source[T], now time.Time) <-chan feed.Result[T] {
	if src == nil {
		return nil
	}
	ch := make(chan feed.Result[T], 1)
	go func() {
		ch <- src.GetOrRefresh(ctx, now)
	}()
	return ch
}

func settle[T any](
	ctx context.Context,
	src Source[T],
	ch <-chan feed.Result[T],
	category string,
	now time.Time,
	skipped func(T) int,
) SourceState[T] {
	if src == nil {
		return noDataState[T](category, NoteUnconfigured)
	}

	// A result that is already in wins over an expired budget.
	select {
	case res := <-ch:
		return settled(src.Name(), res, now, skipped)
	default:
	}

	select {
	case res := <-ch:
		return settled(src.Name(), res, now, skipped)
	case <-ctx.Done():
		st := stateFromResult(src.Name(), src.Peek(now), now, skipped)
		st.Note = NoteTimedOut
		if st.Error == nil {
			err := feed.NetworkError(src.Name(), fmt.Errorf("poll budget exceeded: %w", ctx.Err()))
			st.Error = &ErrorInfo{Kind: err.Kind, Message: err.Error()}
		}
		return st
	}
}

func settled[T any](name string, res feed.Result[T], now time.Time, skipped func(T) int) SourceState[T] {
	st := stateFromResult(name, res, now, skipped)
	if res.Err != nil && errors.Is(res.Err, context.DeadlineExceeded) {
		st.Note = NoteTimedOut
	}
	return st
}
