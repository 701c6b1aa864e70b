package inbound

import (
	"context"
	"fmt"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// Publisher enqueues inbound jobs for asynchronous processing.
type Publisher struct {
	queue  queueClient
	logger *logging.Logger
}

func NewPublisher(queue queueClient, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("inbound: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{queue: queue, logger: logger}
}

// Enqueue publishes job and returns it with its assigned id.
func (p *Publisher) Enqueue(ctx context.Context, job Job) (Job, error) {
	job, body, err := encodeJob(job)
	if err != nil {
		return Job{}, err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return Job{}, fmt.Errorf("inbound: enqueue job: %w", err)
	}
	p.logger.Debug("inbound job enqueued", "job_id", job.ID, "kind", job.Kind)
	return job, nil
}
