package bootstrap

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/archive"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/calendar"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/events"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/ghl"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/whatsapp"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// BuildStore returns the Postgres store, or the in-memory store when no
// database is configured.
func BuildStore(db *Database, logger *logging.Logger) store.Store {
	if db != nil && db.Pool != nil {
		return store.NewPostgresStore(db.Pool)
	}
	if logger != nil {
		logger.Warn("DATABASE_URL not set; using in-memory store")
	}
	return store.NewMemoryStore()
}

// BuildDeduper mirrors BuildStore for webhook message ids.
func BuildDeduper(db *Database) events.Deduper {
	if db != nil && db.Pool != nil {
		return events.NewProcessedStore(db.Pool)
	}
	return events.NewMemoryDeduper()
}

// IntakeDeps is the shared infrastructure the orchestrator is built on.
type IntakeDeps struct {
	Store      store.Store
	Completion completion.Client
	Redis      *redis.Client
	AWS        aws.Config
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
}

// BuildOrchestrator wires the intake orchestrator and its integrations.
// Integrations without credentials are left nil and skipped at runtime.
func BuildOrchestrator(cfg *appconfig.Config, deps IntakeDeps) (*intake.Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}

	zapi := whatsapp.NewClient(whatsapp.Config{
		BaseURL:     cfg.ZAPIBaseURL,
		Instance:    cfg.ZAPIInstance,
		Token:       cfg.ZAPIToken,
		ClientToken: cfg.ZAPIClientToken,
	}, logger)

	od := intake.Deps{
		Store:      deps.Store,
		Completion: deps.Completion,
		Metrics:    deps.Metrics,
		Logger:     logger,
	}
	if zapi.Configured() {
		od.Sender = zapi
	} else {
		logger.Warn("z-api not configured; replies will be stored but not sent")
	}

	crm := ghl.NewClient(cfg.GHLBaseURL, cfg.GHLAPIKey, cfg.GHLLocationID, logger, ghl.WithTimezone(cfg.ClinicTimezone))
	var slots calendar.SlotSource
	if crm.Configured() {
		od.CRM = crm
		slots = crm
	} else {
		logger.Warn("gohighlevel not configured; crm sync and live availability disabled")
	}
	od.Calendar = calendar.NewGateway(slots, cfg.GHLCalendarID, cfg.ClinicTimezone, logger)

	var sender whatsapp.TextSender
	if od.Sender != nil {
		sender = zapi
	}
	od.Notifier = BuildOperatorNotifier(cfg, sender, BuildEmailSender(cfg, deps.AWS, logger), logger)

	if bucket := strings.TrimSpace(cfg.TranscriptBucket); bucket != "" {
		od.Archiver = archive.NewStore(s3.NewFromConfig(deps.AWS), bucket, logger)
	}

	if deps.Redis != nil {
		od.Locker = intake.NewRedisLocker(deps.Redis, cfg.PatientLockTTL)
	} else {
		logger.Warn("redis not configured; per-patient lock is process local")
		od.Locker = intake.NewLocalLocker()
	}

	return intake.NewOrchestrator(cfg.IntakeConfig(), od)
}
