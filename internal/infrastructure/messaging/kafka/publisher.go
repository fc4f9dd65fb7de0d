package kafka

import (
	"context"

	"github.com/turtacn/KeyIP-Explorer/internal/application/export"
	"github.com/turtacn/KeyIP-Explorer/pkg/errors"
)

// ExportEventPublisher announces export job transitions on the export topics.
// The full job rides as the envelope payload, so consumers can act on it
// without a job store round trip.
type ExportEventPublisher struct {
	producer *Producer
	source   string
}

var _ export.EventPublisher = (*ExportEventPublisher)(nil)

// NewExportEventPublisher wires a publisher. Source names the emitting
// process, e.g. "apiserver" or "worker".
func NewExportEventPublisher(producer *Producer, source string) *ExportEventPublisher {
	if source == "" {
		source = "kipx"
	}
	return &ExportEventPublisher{producer: producer, source: source}
}

func (p *ExportEventPublisher) ExportRequested(ctx context.Context, job export.Job) error {
	return p.publish(ctx, TopicExportRequested, job)
}

func (p *ExportEventPublisher) ExportCompleted(ctx context.Context, job export.Job) error {
	return p.publish(ctx, TopicExportCompleted, job)
}

func (p *ExportEventPublisher) ExportFailed(ctx context.Context, job export.Job) error {
	return p.publish(ctx, TopicExportFailed, job)
}

func (p *ExportEventPublisher) publish(ctx context.Context, topic string, job export.Job) error {
	env, err := NewEventEnvelope(topic, p.source, job)
	if err != nil {
		return err
	}
	// Keyed by job ID: one job's lifecycle stays ordered per topic.
	return p.producer.Publish(ctx, topic, job.ID, env)
}

// DecodeExportJob unpacks the job carried by an export lifecycle event.
func DecodeExportJob(env *EventEnvelope) (export.Job, error) {
	var job export.Job
	if err := env.DecodePayload(&job); err != nil {
		return export.Job{}, err
	}
	if job.ID == "" {
		return export.Job{}, errors.New(errors.CodeInvalidParam, "export event carries no job id")
	}
	return job, nil
}
