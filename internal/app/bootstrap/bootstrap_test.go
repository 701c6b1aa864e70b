package bootstrap

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}
	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if BuildRedisClient(context.Background(), cfg, logging.New("error"), true) != nil {
		t.Fatalf("expected nil client for unreachable redis")
	}
}

func TestOpenDatabaseWithoutURL(t *testing.T) {
	db, err := OpenDatabase(context.Background(), &appconfig.Config{}, nil)
	if err != nil || db != nil {
		t.Fatalf("expected nil database without DATABASE_URL, got %v %v", db, err)
	}
	if _, ok := BuildStore(db, logging.New("error")).(*store.MemoryStore); !ok {
		t.Fatalf("expected memory store fallback")
	}
}

func TestBuildCompletionClientRequiresConfig(t *testing.T) {
	if _, err := BuildCompletionClient(context.Background(), nil, aws.Config{}, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildCompletionClientMissingKey(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "openai"}
	if _, err := BuildCompletionClient(context.Background(), cfg, aws.Config{}, logging.New("error")); err == nil {
		t.Fatalf("expected error without OPENAI_API_KEY")
	}
}

func TestBuildCompletionClientUnknownProvider(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "claude-in-a-box"}
	if _, err := BuildCompletionClient(context.Background(), cfg, aws.Config{}, logging.New("error")); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestBuildCompletionClientBedrock(t *testing.T) {
	cfg := &appconfig.Config{LLMProvider: "bedrock", BedrockModelID: "anthropic.claude-3-haiku", LLMFallbackProvider: "gemini"}
	client, err := BuildCompletionClient(context.Background(), cfg, aws.Config{Region: "us-east-1"}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client == nil {
		t.Fatalf("expected client")
	}
}

func TestWithTimeoutBoundsCalls(t *testing.T) {
	slow := completion.ClientFunc(func(ctx context.Context, _ completion.Request) (completion.Response, error) {
		<-ctx.Done()
		return completion.Response{}, ctx.Err()
	})
	start := time.Now()
	_, err := withTimeout(slow, 20*time.Millisecond).Complete(context.Background(), completion.Request{})
	if err == nil {
		t.Fatalf("expected deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied")
	}
}

func TestBuildEmailSenderFallsBackToStub(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "sendgrid"}
	if _, ok := BuildEmailSender(cfg, aws.Config{}, logging.New("error")).(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without api key")
	}
	cfg = &appconfig.Config{EmailProvider: "ses"}
	if _, ok := BuildEmailSender(cfg, aws.Config{}, logging.New("error")).(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without SES from address")
	}
}

func TestBuildOperatorNotifierSkipsUnconfiguredChannels(t *testing.T) {
	if n := BuildOperatorNotifier(&appconfig.Config{}, nil, nil, nil); n != nil {
		t.Fatalf("expected nil notifier, got %T", n)
	}
	cfg := &appconfig.Config{OperatorEmail: "eliana@evidens.example"}
	n := BuildOperatorNotifier(cfg, nil, notify.NewStubEmailSender(nil), nil)
	multi, ok := n.(intake.MultiNotifier)
	if !ok || len(multi) != 1 {
		t.Fatalf("expected one email channel, got %#v", n)
	}
}

func TestBuildOrchestratorWithoutIntegrations(t *testing.T) {
	cfg := &appconfig.Config{OperatorName: "Eliana", AvailabilityDays: 7, PatientLockTTL: time.Second}
	orch, err := BuildOrchestrator(cfg, IntakeDeps{
		Store: store.NewMemoryStore(),
		Completion: completion.ClientFunc(func(context.Context, completion.Request) (completion.Response, error) {
			return completion.Response{Text: "Olá!"}, nil
		}),
		Logger: logging.New("error"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := orch.Handle(context.Background(), intake.Inbound{Phone: "5511987654321", Text: "Oi"}); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestBuildPipelineInMemory(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true, IntakeJobsTable: "ignored"}
	p, err := BuildPipeline(cfg, aws.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := p.Jobs.(*inbound.MemoryJobStore); !ok {
		t.Fatalf("expected memory job store, got %T", p.Jobs)
	}

	done := make(chan inbound.Job, 1)
	worker := p.NewWorker(inbound.HandlerFunc(func(_ context.Context, job inbound.Job) error {
		done <- job
		return nil
	}), inbound.WithWorkerCount(1))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		worker.Wait()
	}()
	worker.Start(ctx)

	if _, err := p.Publisher.Enqueue(ctx, inbound.Job{Phone: "5511987654321", Text: "Oi"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	select {
	case job := <-done:
		if job.Text != "Oi" {
			t.Fatalf("unexpected job %+v", job)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("job was not consumed")
	}
}
