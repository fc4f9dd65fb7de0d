package export

import (
	"context"
	"strings"
	"time"

	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-Explorer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// Job states as stored and published.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Job describes one export run end to end.
type Job struct {
	ID         string        `json:"id"`
	Filter     patent.Filter `json:"filter"`
	Status     string        `json:"status"`
	Location   string        `json:"location,omitempty"`
	Rows       int           `json:"rows"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
}

// ObjectKey returns the artifact name the job's CSV is stored under.
func (j Job) ObjectKey() string {
	return j.ID + ".csv"
}

// FileStore persists a finished export artifact and returns its location,
// typically an object store URL.
type FileStore interface {
	Save(ctx context.Context, filename string, data []byte) (string, error)
}

// EventPublisher announces export lifecycle transitions. Publishing is best
// effort; a broker outage never fails the export itself.
type EventPublisher interface {
	ExportRequested(ctx context.Context, job Job) error
	ExportCompleted(ctx context.Context, job Job) error
	ExportFailed(ctx context.Context, job Job) error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) ExportRequested(context.Context, Job) error { return nil }
func (NopPublisher) ExportCompleted(context.Context, Job) error { return nil }
func (NopPublisher) ExportFailed(context.Context, Job) error    { return nil }

// Runner drives a full export job: produce the CSV through the engine, save
// the artifact, and publish lifecycle events.
type Runner struct {
	engine  *Engine
	files   FileStore
	events  EventPublisher
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewRunner wires a runner. A nil events publisher is replaced with
// NopPublisher; metrics may be nil.
func NewRunner(engine *Engine, files FileStore, events EventPublisher, metrics *prometheus.AppMetrics, logger logging.Logger) *Runner {
	if events == nil {
		events = NopPublisher{}
	}
	return &Runner{
		engine:  engine,
		files:   files,
		events:  events,
		metrics: metrics,
		logger:  logger.Named("export.runner"),
	}
}

// NewJob stamps a fresh pending job for the filter. The filter is cloned so
// later caller mutations cannot leak into the job.
func NewJob(f patent.Filter) Job {
	return Job{
		ID:        common.GenerateID("exp"),
		Filter:    f.Clone(),
		Status:    JobStatusPending,
		StartedAt: time.Now().UTC(),
	}
}

// Run executes one export job for the filter and returns the finished job.
// The returned job is also populated on failure, with Status and Error set.
func (r *Runner) Run(ctx context.Context, f patent.Filter) (Job, error) {
	job := NewJob(f)
	r.publish(ctx, r.events.ExportRequested, job, "requested")
	return r.RunJob(ctx, job)
}

// RunJob executes a job that was already announced, keeping its ID so
// observers can correlate the completed or failed event with the request.
// The worker calls this for jobs picked up from the requested topic.
func (r *Runner) RunJob(ctx context.Context, job Job) (Job, error) {
	job.Status = JobStatusRunning
	job.StartedAt = time.Now().UTC()
	r.metrics.ExportStarted()
	defer r.metrics.ExportFinished()

	csv, err := r.engine.ExportAll(ctx, job.Filter)
	if err != nil {
		return r.fail(ctx, job, err)
	}

	// A filter matching nothing still produces an artifact, so the job
	// always has a downloadable location.
	location, err := r.files.Save(ctx, job.ObjectKey(), []byte(csv))
	if err != nil {
		return r.fail(ctx, job, errors.Wrap(err, errors.CodeExportFailed, "export artifact save failed"))
	}

	job.Status = JobStatusCompleted
	job.Location = location
	job.Rows = rowCount(csv)
	job.FinishedAt = finishedNow()

	r.metrics.RecordExport(prometheus.ExportModeJob, job.Rows, time.Since(job.StartedAt), nil)
	r.publish(ctx, r.events.ExportCompleted, job, "completed")
	r.logger.Info("export job completed",
		logging.String("job_id", job.ID),
		logging.Int("rows", job.Rows),
		logging.String("location", job.Location))
	return job, nil
}

func (r *Runner) fail(ctx context.Context, job Job, err error) (Job, error) {
	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.FinishedAt = finishedNow()

	r.metrics.RecordExport(prometheus.ExportModeJob, 0, time.Since(job.StartedAt), err)
	r.publish(ctx, r.events.ExportFailed, job, "failed")
	r.logger.Error("export job failed", logging.String("job_id", job.ID), logging.Err(err))
	return job, err
}

func (r *Runner) publish(ctx context.Context, fn func(context.Context, Job) error, job Job, event string) {
	if err := fn(ctx, job); err != nil {
		r.logger.Warn("export event publish failed",
			logging.String("job_id", job.ID),
			logging.String("event", event),
			logging.Err(err))
	}
}

func finishedNow() *time.Time {
	now := time.Now().UTC()
	return &now
}

// rowCount derives the data row count from an encoded file: one header line
// followed by one line per record, with no trailing newline.
func rowCount(csv string) int {
	if csv == "" {
		return 0
	}
	return strings.Count(csv, "\n")
}
