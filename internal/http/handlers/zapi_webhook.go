package handlers

import (
	"context"
	"crypto/subtle"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/events"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/whatsapp"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const zapiProvider = "zapi"

// Enqueuer hands inbound jobs to the intake workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, job inbound.Job) (inbound.Job, error)
}

// ZAPIWebhookConfig wires the Z-API webhook handler. Dedupe, Jobs and
// Metrics are optional.
type ZAPIWebhookConfig struct {
	Queue   Enqueuer
	Dedupe  events.Deduper
	Jobs    inbound.JobRecorder
	Secret  string
	Metrics *metrics.IntakeMetrics
	Logger  *logging.Logger
}

// ZAPIWebhookHandler accepts Z-API "on message received" callbacks.
type ZAPIWebhookHandler struct {
	queue   Enqueuer
	dedupe  events.Deduper
	jobs    inbound.JobRecorder
	secret  string
	metrics *metrics.IntakeMetrics
	logger  *logging.Logger
}

func NewZAPIWebhookHandler(cfg ZAPIWebhookConfig) *ZAPIWebhookHandler {
	if cfg.Queue == nil {
		panic("handlers: z-api webhook queue required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &ZAPIWebhookHandler{
		queue:   cfg.Queue,
		dedupe:  cfg.Dedupe,
		jobs:    cfg.Jobs,
		secret:  strings.TrimSpace(cfg.Secret),
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
}

type webhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
}

// Handle is POST /webhooks/zapi.
func (h *ZAPIWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := "processed"
	defer func() {
		h.metrics.ObserveWebhookLatency(result, time.Since(start).Seconds())
	}()

	if h.secret != "" {
		got := r.Header.Get("Client-Token")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			result = "unauthorized"
			h.logger.Warn("z-api webhook rejected: bad client token")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		result = "bad_request"
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	msg, ok, err := whatsapp.ParseWebhook(body)
	if err != nil {
		result = "bad_request"
		h.logger.Warn("z-api webhook decode failed", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if !ok {
		result = "ignored"
		writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: "Ignored"})
		return
	}

	if h.dedupe != nil && msg.MessageID != "" {
		first, err := h.dedupe.Claim(r.Context(), zapiProvider, msg.MessageID)
		if err != nil {
			result = "error"
			h.logger.Error("webhook dedupe failed", "message_id", msg.MessageID, "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		if !first {
			result = "duplicate"
			h.logger.Info("duplicate z-api message ignored", "message_id", msg.MessageID)
			writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: "Ignored"})
			return
		}
	}

	job, err := h.enqueue(r.Context(), msg)
	if err != nil {
		result = "error"
		h.logger.Error("failed to enqueue inbound message", "message_id", msg.MessageID, "error", err)
		if h.dedupe != nil && msg.MessageID != "" {
			if relErr := h.dedupe.Release(r.Context(), zapiProvider, msg.MessageID); relErr != nil {
				h.logger.Error("failed to release webhook claim", "message_id", msg.MessageID, "error", relErr)
			}
		}
		http.Error(w, "processing error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{Success: true, Message: "Processed", JobID: job.ID})
}

func (h *ZAPIWebhookHandler) enqueue(ctx context.Context, msg whatsapp.Message) (inbound.Job, error) {
	job := inbound.Job{
		Phone:             msg.Phone,
		Text:              msg.Text,
		Kind:              msg.Kind,
		ProviderMessageID: msg.MessageID,
		SenderName:        msg.SenderName,
		TrackStatus:       h.jobs != nil,
	}
	if h.jobs == nil {
		return h.queue.Enqueue(ctx, job)
	}

	// The pending record is written before the job is visible to workers.
	job.ID = uuid.NewString()
	if err := h.jobs.PutPending(ctx, &inbound.JobRecord{
		JobID:             job.ID,
		Phone:             msg.Phone,
		ProviderMessageID: msg.MessageID,
	}); err != nil {
		h.logger.Warn("failed to record pending job", "job_id", job.ID, "error", err)
		job.TrackStatus = false
	}
	return h.queue.Enqueue(ctx, job)
}
