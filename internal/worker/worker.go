package worker

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// PollRunner is the poll loop. *dashboard.Poller implements it.
type PollRunner interface {
	Run(ctx context.Context) error
}

// Subscriber delivers job messages. *PubSubHandler implements it.
type Subscriber interface {
	Start(ctx context.Context) error
}

// Config configures a Worker.
type Config struct {
	Poller PollRunner

	// Subscriber is optional; without it the worker polls on the ticker
	// only.
	Subscriber Subscriber

	Logger zerolog.Logger
}

// Worker runs the poll loop alongside the job subscriber.
type Worker struct {
	poller     PollRunner
	subscriber Subscriber
	logger     zerolog.Logger
}

// New creates a worker.
func New(cfg Config) *Worker {
	return &Worker{
		poller:     cfg.Poller,
		subscriber: cfg.Subscriber,
		logger:     cfg.Logger.With().Str("component", "worker").Logger(),
	}
}

// Run blocks until ctx ends or either loop fails. A cancelled context is
// a clean stop.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.poller.Run(ctx)
	})

	if w.subscriber != nil {
		g.Go(func() error {
			return w.subscriber.Start(ctx)
		})
	} else {
		w.logger.Info().Msg("pubsub not configured, polling on the ticker only")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
