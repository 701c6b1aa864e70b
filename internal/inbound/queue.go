// Package inbound moves normalized webhook messages from the HTTP edge to
// the intake orchestrator through a queue (in-memory or SQS).
package inbound

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queueClient interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// Job is one inbound patient message waiting for the orchestrator.
type Job struct {
	ID                string    `json:"id"`
	Phone             string    `json:"phone"`
	Text              string    `json:"text"`
	Kind              string    `json:"kind,omitempty"`
	ProviderMessageID string    `json:"provider_message_id,omitempty"`
	SenderName        string    `json:"sender_name,omitempty"`
	Simulated         bool      `json:"simulated,omitempty"`
	TrackStatus       bool      `json:"track_status"`
	ReceivedAt        time.Time `json:"received_at"`
}

// Handler processes a single job.
type Handler interface {
	HandleJob(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job Job) error {
	return f(ctx, job)
}

func encodeJob(job Job) (Job, string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.ReceivedAt.IsZero() {
		job.ReceivedAt = time.Now().UTC()
	}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, "", fmt.Errorf("inbound: encode job: %w", err)
	}
	return job, string(body), nil
}
