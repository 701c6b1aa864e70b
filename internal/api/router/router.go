package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/evidens-whatsapp-bot/internal/http/middleware"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// Config holds router configuration. Nil handlers leave their routes out.
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.ZAPIWebhookHandler
	Admin          *handlers.AdminHandler
	Simulator      *handlers.SimulatorHandler
	Jobs           *handlers.JobsHandler
	MetricsHandler http.Handler

	// Per-IP token bucket on the webhook. Zero disables it.
	WebhookRateLimit float64
	WebhookRateBurst int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.Webhook != nil {
		webhook := http.Handler(http.HandlerFunc(cfg.Webhook.Handle))
		if cfg.WebhookRateLimit > 0 {
			webhook = httpmiddleware.RateLimit(cfg.WebhookRateLimit, cfg.WebhookRateBurst)(webhook)
		}
		r.Method(http.MethodPost, "/webhooks/zapi", webhook)
	}

	if cfg.Simulator != nil {
		r.Route("/simulator", func(sim chi.Router) {
			sim.Post("/messages", cfg.Simulator.SendMessage)
			sim.Get("/messages", cfg.Simulator.Messages)
			sim.Get("/stream", cfg.Simulator.Stream)
		})
	}

	r.Route("/admin", func(admin chi.Router) {
		if cfg.Admin != nil {
			admin.Get("/metrics", cfg.Admin.Metrics)
			admin.Get("/conversations", cfg.Admin.ListConversations)
			admin.Get("/conversations/{id}/messages", cfg.Admin.ConversationMessages)
			admin.Get("/appointments", cfg.Admin.ListAppointments)
			admin.Post("/appointments", cfg.Admin.CreateAppointment)
			admin.Get("/handoffs", cfg.Admin.ListHandoffs)
			admin.Patch("/handoffs/{id}", cfg.Admin.UpdateHandoff)
		}
		if cfg.Jobs != nil {
			admin.Get("/jobs/{id}", cfg.Jobs.GetJob)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
