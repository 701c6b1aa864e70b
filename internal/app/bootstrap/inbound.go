package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// Pipeline is the queue between the webhook and the intake workers.
type Pipeline struct {
	Publisher *inbound.Publisher
	Jobs      interface {
		inbound.JobRecorder
		inbound.JobUpdater
	}
	newWorker func(h inbound.Handler, opts ...inbound.WorkerOption) *inbound.Worker
}

// NewWorker builds a consumer for the pipeline's queue.
func (p *Pipeline) NewWorker(h inbound.Handler, opts ...inbound.WorkerOption) *inbound.Worker {
	return p.newWorker(h, opts...)
}

// BuildPipeline selects the in-memory queue or SQS, and the in-memory or
// DynamoDB job store.
func BuildPipeline(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	p := &Pipeline{}
	if table := strings.TrimSpace(cfg.IntakeJobsTable); table != "" && !InProcess(cfg) {
		p.Jobs = inbound.NewJobStore(dynamodb.NewFromConfig(awsCfg), table, logger)
	} else {
		p.Jobs = inbound.NewMemoryJobStore()
	}

	if InProcess(cfg) {
		if !cfg.UseMemoryQueue {
			logger.Warn("INTAKE_QUEUE_URL not set; using in-memory queue")
		}
		q := inbound.NewMemoryQueue(0)
		p.Publisher = inbound.NewPublisher(q, logger)
		p.newWorker = func(h inbound.Handler, opts ...inbound.WorkerOption) *inbound.Worker {
			return inbound.NewWorker(h, q, p.Jobs, logger, opts...)
		}
		return p, nil
	}

	q := inbound.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.IntakeQueueURL)
	p.Publisher = inbound.NewPublisher(q, logger)
	p.newWorker = func(h inbound.Handler, opts ...inbound.WorkerOption) *inbound.Worker {
		return inbound.NewWorker(h, q, p.Jobs, logger, opts...)
	}
	return p, nil
}

// InProcess reports whether the queue only exists in this process, so the
// API must run its own workers.
func InProcess(cfg *appconfig.Config) bool {
	return cfg.UseMemoryQueue || strings.TrimSpace(cfg.IntakeQueueURL) == ""
}
