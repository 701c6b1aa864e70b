package inbound

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

type scriptedQueue struct {
	ch       chan queueMessage
	deleted  int
	delMutex sync.Mutex
}

func newScriptedQueue() *scriptedQueue {
	return &scriptedQueue{ch: make(chan queueMessage, 10)}
}

func (s *scriptedQueue) Send(_ context.Context, body string) error {
	s.ch <- queueMessage{ID: "m", Body: body, ReceiptHandle: "rh"}
	return nil
}

func (s *scriptedQueue) Receive(ctx context.Context, _ int, _ int) ([]queueMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-s.ch:
		return []queueMessage{msg}, nil
	case <-time.After(50 * time.Millisecond):
		return nil, nil
	}
}

func (s *scriptedQueue) Delete(_ context.Context, _ string) error {
	s.delMutex.Lock()
	s.deleted++
	s.delMutex.Unlock()
	return nil
}

func (s *scriptedQueue) deletedCount() int {
	s.delMutex.Lock()
	defer s.delMutex.Unlock()
	return s.deleted
}

type recordingHandler struct {
	mu   sync.Mutex
	jobs []Job
	err  error
	boom bool
}

func (h *recordingHandler) HandleJob(_ context.Context, job Job) error {
	h.mu.Lock()
	h.jobs = append(h.jobs, job)
	h.mu.Unlock()
	if h.boom {
		panic("kaboom")
	}
	return h.err
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.jobs)
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func runOne(t *testing.T, handler *recordingHandler, jobs *MemoryJobStore) *scriptedQueue {
	t.Helper()
	queue := newScriptedQueue()
	publisher := NewPublisher(queue, logging.Default())
	worker := NewWorker(handler, queue, jobs, logging.Default(), WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	if err := jobs.PutPending(ctx, &JobRecord{JobID: "job-1"}); err != nil {
		t.Fatalf("PutPending returned error: %v", err)
	}
	if _, err := publisher.Enqueue(ctx, Job{ID: "job-1", Phone: "5511988887777", Text: "oi", TrackStatus: true}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	waitFor(func() bool { return queue.deletedCount() > 0 }, time.Second, t)
	cancel()
	worker.Wait()
	return queue
}

func TestWorkerProcessesJobs(t *testing.T) {
	handler := &recordingHandler{}
	jobs := NewMemoryJobStore()
	runOne(t, handler, jobs)

	if handler.count() != 1 || handler.jobs[0].Text != "oi" {
		t.Fatalf("unexpected handled jobs %#v", handler.jobs)
	}
	rec, err := jobs.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if rec.Status != JobStatusCompleted {
		t.Fatalf("status = %s, want completed", rec.Status)
	}
}

func TestWorkerMarksFailures(t *testing.T) {
	handler := &recordingHandler{err: errors.New("store down")}
	jobs := NewMemoryJobStore()
	runOne(t, handler, jobs)

	rec, _ := jobs.GetJob(context.Background(), "job-1")
	if rec.Status != JobStatusFailed || rec.ErrorMessage != "store down" {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestWorkerRecoversPanics(t *testing.T) {
	handler := &recordingHandler{boom: true}
	jobs := NewMemoryJobStore()
	queue := runOne(t, handler, jobs)

	if queue.deletedCount() != 1 {
		t.Fatalf("expected message deleted after panic")
	}
	rec, _ := jobs.GetJob(context.Background(), "job-1")
	if rec.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", rec.Status)
	}
}

func TestWorkerDropsUndecodableMessages(t *testing.T) {
	queue := newScriptedQueue()
	handler := &recordingHandler{}
	worker := NewWorker(handler, queue, nil, nil, WithWorkerCount(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)
	queue.ch <- queueMessage{ID: "bad", Body: "{", ReceiptHandle: "rh"}

	waitFor(func() bool { return queue.deletedCount() == 1 }, time.Second, t)
	cancel()
	worker.Wait()
	if handler.count() != 0 {
		t.Fatal("handler should not run for undecodable jobs")
	}
}
