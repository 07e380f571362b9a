package queue

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

type StreamWriter interface {
	Publish(ctx context.Context, stream string, job *redis.JobMessage) (string, error)
}

// Publisher enqueues jobs onto the work stream.
type Publisher struct {
	streams StreamWriter
	stream  string
}

func NewPublisher(streams StreamWriter, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{streams: streams, stream: stream}
}

func (p *Publisher) Enqueue(ctx context.Context, job *models.Job) error {
	_, err := p.streams.Publish(ctx, p.stream, &redis.JobMessage{
		JobID:     job.ID,
		ProjectID: job.ProjectID,
		Type:      string(job.Type),
	})
	if err != nil {
		metrics.RecordQueueJob(string(job.Type), "enqueue_failed")
		return err
	}
	metrics.RecordQueueJob(string(job.Type), "enqueued")
	return nil
}
