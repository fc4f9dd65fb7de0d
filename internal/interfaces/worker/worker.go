// Package worker turns export.requested events into export runs. One worker
// replica claims each job through a distributed lock, executes it, and lets
// the runner announce the outcome.
package worker

import (
	"context"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
)

// JobLock is the slice of the distributed lock guarding one job.
type JobLock interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LockFactory mints the lock for one export job ID.
type LockFactory func(jobID string) JobLock

// JobRunner executes an already-announced export job.
type JobRunner interface {
	RunJob(ctx context.Context, job export.Job) (export.Job, error)
}

// Worker handles export.requested deliveries.
type Worker struct {
	runner JobRunner
	locks  LockFactory
	logger logging.Logger
}

// New wires a worker over the runner and the per-job lock factory.
func New(runner JobRunner, locks LockFactory, logger logging.Logger) *Worker {
	return &Worker{
		runner: runner,
		locks:  locks,
		logger: logger.Named("worker"),
	}
}

// HandleExportRequested processes one requested event. Its kafka.Handler
// contract: a nil return commits the delivery, an error triggers the
// consumer's retry policy.
//
// Undecodable events and jobs another replica already claimed are dropped;
// neither can turn into a success on redelivery. A failed run is also
// terminal here, because the runner has already announced export.failed.
// Only lock infrastructure errors are surfaced for retry.
func (w *Worker) HandleExportRequested(ctx context.Context, msg *kafka.Message) error {
	env, err := kafka.ParseEnvelope(msg.Value)
	if err != nil {
		w.logger.Warn("dropping undecodable export event",
			logging.Int64("offset", msg.Offset),
			logging.Err(err))
		return nil
	}

	job, err := kafka.DecodeExportJob(env)
	if err != nil {
		w.logger.Warn("dropping export event without a usable job",
			logging.String("event_id", env.EventID),
			logging.Err(err))
		return nil
	}

	lock := w.locks(job.ID)
	ok, err := lock.TryLock(ctx)
	if err != nil {
		return err
	}
	if !ok {
		w.logger.Info("export job already claimed",
			logging.String("job_id", job.ID))
		return nil
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			w.logger.Warn("export job lock release failed",
				logging.String("job_id", job.ID),
				logging.Err(err))
		}
	}()

	w.logger.Info("export job claimed",
		logging.String("job_id", job.ID),
		logging.String("event_id", env.EventID))

	if _, err := w.runner.RunJob(ctx, job); err != nil {
		w.logger.Error("export job failed",
			logging.String("job_id", job.ID),
			logging.Err(err))
	}
	return nil
}
