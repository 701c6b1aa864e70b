package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/events"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
)

type recordingQueue struct {
	jobs []inbound.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, job inbound.Job) (inbound.Job, error) {
	if q.err != nil {
		return inbound.Job{}, q.err
	}
	if job.ID == "" {
		job.ID = "generated"
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

const textWebhook = `{"messageId":"3EB0ABC","phone":"5511987654321","fromMe":false,"senderName":"Maria","type":"text","text":{"message":"Oi, quero agendar"}}`

func postWebhook(h *ZAPIWebhookHandler, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zapi", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestZAPIWebhookEnqueuesText(t *testing.T) {
	queue := &recordingQueue{}
	jobs := inbound.NewMemoryJobStore()
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: queue, Dedupe: events.NewMemoryDeduper(), Jobs: jobs})

	rec := postWebhook(h, textWebhook, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "Processed", resp.Message)
	require.Len(t, queue.jobs, 1)

	job := queue.jobs[0]
	assert.Equal(t, resp.JobID, job.ID)
	assert.Equal(t, "5511987654321", job.Phone)
	assert.Equal(t, "Oi, quero agendar", job.Text)
	assert.Equal(t, "3EB0ABC", job.ProviderMessageID)
	assert.True(t, job.TrackStatus)

	record, err := jobs.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, inbound.JobStatusPending, record.Status)
}

func TestZAPIWebhookIgnoresOwnAndDuplicateMessages(t *testing.T) {
	queue := &recordingQueue{}
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: queue, Dedupe: events.NewMemoryDeduper()})

	rec := postWebhook(h, `{"messageId":"X","phone":"5511987654321","fromMe":true,"type":"text","text":{"message":"eco"}}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Ignored"`)

	require.Contains(t, postWebhook(h, textWebhook, nil).Body.String(), `"Processed"`)
	require.Contains(t, postWebhook(h, textWebhook, nil).Body.String(), `"Ignored"`)
	assert.Len(t, queue.jobs, 1)
}

func TestZAPIWebhookClientToken(t *testing.T) {
	queue := &recordingQueue{}
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: queue, Secret: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, postWebhook(h, textWebhook, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, postWebhook(h, textWebhook, map[string]string{"Client-Token": "nope"}).Code)
	assert.Equal(t, http.StatusOK, postWebhook(h, textWebhook, map[string]string{"Client-Token": "s3cret"}).Code)
	assert.Len(t, queue.jobs, 1)
}

func TestZAPIWebhookBadPayload(t *testing.T) {
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: &recordingQueue{}})
	assert.Equal(t, http.StatusBadRequest, postWebhook(h, `{not json`, nil).Code)
}

func TestZAPIWebhookEnqueueFailureReleasesClaim(t *testing.T) {
	queue := &recordingQueue{err: errors.New("queue down")}
	dedupe := events.NewMemoryDeduper()
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: queue, Dedupe: dedupe})

	assert.Equal(t, http.StatusInternalServerError, postWebhook(h, textWebhook, nil).Code)

	queue.err = nil
	rec := postWebhook(h, textWebhook, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Processed"`)
	assert.Len(t, queue.jobs, 1)
}

func TestZAPIWebhookWithPublisher(t *testing.T) {
	mq := inbound.NewMemoryQueue(4)
	h := NewZAPIWebhookHandler(ZAPIWebhookConfig{Queue: inbound.NewPublisher(mq, nil)})

	rec := postWebhook(h, textWebhook, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.JobID)
}
