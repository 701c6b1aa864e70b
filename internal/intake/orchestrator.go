// Package intake runs the WhatsApp qualification conversation: it records
// each patient message, drafts a reply through the completion provider and
// decides when the human operator takes over.
package intake

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/archive"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/observability/metrics"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

var intakeTracer = otel.Tracer("evidens.internal.intake")

// ErrMissingPhone is returned for an inbound message without a sender.
var ErrMissingPhone = errors.New("intake: inbound phone is required")

// Turn outcomes, used as metric labels.
const (
	OutcomeBlocked    = "blocked"
	OutcomeStoredOnly = "stored_only"
	OutcomeEmpty      = "empty"
	OutcomeReplied    = "replied"
	OutcomeHandoff    = "handoff"
	OutcomeFailed     = "failed"
)

const (
	stepHandoff             = "handoff"
	defaultAvailabilityDays = 7
)

// Sender delivers a text message to a patient.
type Sender interface {
	SendText(ctx context.Context, phone, message string) error
}

// Availability renders upcoming free slots for the prompt. It never fails;
// problems come back as fixed fallback text.
type Availability interface {
	Availability(ctx context.Context, days int) string
}

// TranscriptArchiver stores the transcript of a handed-off conversation.
type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, record archive.TranscriptRecord) error
}

// Config is the explicit policy of an Orchestrator. Nothing is read from the
// environment after construction.
type Config struct {
	// AllowedPhones restricts live traffic to these senders. Empty allows all.
	AllowedPhones    []string
	OperatorName     string
	AvailabilityDays int
	// IsSimulator reports phones whose replies are recorded but never sent.
	IsSimulator func(phone string) bool
	ApologyText string
	CRMTags     []string

	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultApology is sent when a turn fails.
func DefaultApology(operator string) string {
	if strings.TrimSpace(operator) == "" {
		operator = defaultOperatorName
	}
	return "Desculpe, tive um probleminha técnico. Deixa eu chamar a " + operator + " para te ajudar melhor!"
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.OperatorName) == "" {
		c.OperatorName = defaultOperatorName
	}
	if c.AvailabilityDays <= 0 {
		c.AvailabilityDays = defaultAvailabilityDays
	}
	if c.IsSimulator == nil {
		c.IsSimulator = func(string) bool { return false }
	}
	if strings.TrimSpace(c.ApologyText) == "" {
		c.ApologyText = DefaultApology(c.OperatorName)
	}
	if len(c.CRMTags) == 0 {
		c.CRMTags = append([]string(nil), defaultCRMTags...)
	}
	return c
}

// Deps are the collaborators of an Orchestrator. Store and Completion are
// required; everything else may be nil and is then skipped.
type Deps struct {
	Store      store.Store
	Completion completion.Client
	Sender     Sender
	Calendar   Availability
	CRM        CRM
	Notifier   OperatorNotifier
	Archiver   TranscriptArchiver
	Locker     PatientLocker
	Extractor  Extractor
	Policy     *Policy
	Metrics    *metrics.IntakeMetrics
	Logger     *logging.Logger
}

// Inbound is one normalized patient message.
type Inbound struct {
	Phone             string
	Text              string
	Kind              string
	ProviderMessageID string
	SenderName        string
	// Simulated marks admin simulator traffic: it bypasses the allow-list
	// and is never sent through the outbound channel.
	Simulated bool
}

// Orchestrator processes inbound messages one turn at a time.
type Orchestrator struct {
	cfg        Config
	allowed    map[string]struct{}
	store      store.Store
	completion completion.Client
	sender     Sender
	calendar   Availability
	crm        CRM
	notifier   OperatorNotifier
	archiver   TranscriptArchiver
	locker     PatientLocker
	extractor  Extractor
	policy     Policy
	metrics    *metrics.IntakeMetrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewOrchestrator validates deps and applies defaults.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("intake: store is required")
	}
	if deps.Completion == nil {
		return nil, errors.New("intake: completion client is required")
	}
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Locker == nil {
		deps.Locker = NewLocalLocker()
	}
	if deps.Extractor == nil {
		deps.Extractor = KeywordExtractor{}
	}
	policy := NewPolicy(cfg.OperatorName)
	if deps.Policy != nil {
		policy = *deps.Policy
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedPhones))
	for _, p := range cfg.AllowedPhones {
		if p = strings.TrimSpace(p); p != "" {
			allowed[p] = struct{}{}
		}
	}

	return &Orchestrator{
		cfg:        cfg,
		allowed:    allowed,
		store:      deps.Store,
		completion: deps.Completion,
		sender:     deps.Sender,
		calendar:   deps.Calendar,
		crm:        deps.CRM,
		notifier:   deps.Notifier,
		archiver:   deps.Archiver,
		locker:     deps.Locker,
		extractor:  deps.Extractor,
		policy:     policy,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		now:        time.Now,
	}, nil
}

// turn carries the state of one inbound message through processing.
type turn struct {
	phone     string
	text      string
	simulated bool
	patient   *store.Patient
	conv      *store.Conversation
}

// Handle processes one inbound message to completion. It returns an error
// only when the message could not be recorded; every later failure is
// handled with the apology and a forced handoff.
func (o *Orchestrator) Handle(ctx context.Context, in Inbound) error {
	start := o.now()
	kind := strings.TrimSpace(in.Kind)
	if kind == "" {
		kind = "text"
	}
	ctx, span := intakeTracer.Start(ctx, "intake.handle", trace.WithAttributes(
		attribute.String("evidens.message_kind", kind),
		attribute.Bool("evidens.simulated", in.Simulated),
	))
	defer span.End()

	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return ErrMissingPhone
	}
	if !o.admitted(phone, in.Simulated) {
		o.logger.Info("inbound dropped: phone not allowed", "phone_suffix", phoneSuffix(phone))
		o.metrics.ObserveInbound(kind, OutcomeBlocked)
		span.SetAttributes(attribute.String("evidens.outcome", OutcomeBlocked))
		return nil
	}

	release, err := o.locker.Lock(ctx, phone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lock failed")
		return fmt.Errorf("intake: lock patient: %w", err)
	}
	defer release()

	patient, err := o.store.GetOrCreatePatient(ctx, phone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "patient lookup failed")
		return fmt.Errorf("intake: resolve patient: %w", err)
	}
	conv, err := o.store.GetOrCreateActiveConversation(ctx, patient.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversation lookup failed")
		return fmt.Errorf("intake: resolve conversation: %w", err)
	}
	conv.Context = store.NormalizeContext(conv.Context)
	span.SetAttributes(
		attribute.String("evidens.patient_id", patient.ID),
		attribute.String("evidens.conversation_id", conv.ID),
	)

	msg := &store.Message{
		ConversationID:    conv.ID,
		Direction:         store.DirectionInbound,
		Content:           in.Text,
		Kind:              kind,
		ProviderMessageID: strings.TrimSpace(in.ProviderMessageID),
		Metadata:          inboundMetadata(in),
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "inbound persist failed")
		o.metrics.ObserveInbound(kind, "persist_failed")
		return fmt.Errorf("intake: persist inbound: %w", err)
	}
	o.metrics.ObserveInbound(kind, "accepted")

	if conv.Status != store.ConversationActive {
		o.logger.Info("conversation not active; inbound stored only",
			"conversation_id", conv.ID,
			"status", conv.Status,
		)
		o.finish(span, OutcomeStoredOnly, start)
		return nil
	}

	t := &turn{phone: phone, text: in.Text, simulated: in.Simulated, patient: patient, conv: conv}
	outcome := o.process(ctx, t)
	o.finish(span, outcome, start)
	return nil
}

func (o *Orchestrator) finish(span trace.Span, outcome string, start time.Time) {
	span.SetAttributes(attribute.String("evidens.outcome", outcome))
	o.metrics.ObserveTurn(outcome, o.now().Sub(start).Seconds())
}

func (o *Orchestrator) admitted(phone string, simulated bool) bool {
	if simulated || len(o.allowed) == 0 {
		return true
	}
	_, ok := o.allowed[phone]
	return ok
}

// process runs the reply turn and converts errors and panics into the
// failure fallback.
func (o *Orchestrator) process(ctx context.Context, t *turn) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("intake turn panicked",
				"conversation_id", t.conv.ID,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			outcome = o.fail(ctx, t, fmt.Errorf("intake: panic: %v", r))
		}
	}()

	var err error
	outcome, err = o.runTurn(ctx, t)
	if err != nil {
		return o.fail(ctx, t, err)
	}
	return outcome
}

func (o *Orchestrator) runTurn(ctx context.Context, t *turn) (string, error) {
	history, err := o.store.ListMessages(ctx, t.conv.ID)
	if err != nil {
		return "", fmt.Errorf("intake: load history: %w", err)
	}

	convCtx := t.conv.Context
	slots := ""
	if o.calendar != nil && convCtx.Has(store.KeyName) && convCtx.Has(store.KeyConcern) {
		slots = o.calendar.Availability(ctx, o.cfg.AvailabilityDays)
	}

	req := completion.Request{
		Model: o.cfg.Model,
		System: []string{
			SystemPrompt(o.cfg.OperatorName),
			BuildContextSummary(t.patient, convCtx, slots),
		},
		Messages:    historyMessages(history),
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
	resp, err := o.completion.Complete(ctx, req)
	if err != nil {
		if errors.Is(err, completion.ErrEmptyResponse) {
			return o.emptyCompletion(t), nil
		}
		o.metrics.ObserveCompletionFailure("error")
		return "", fmt.Errorf("intake: completion: %w", err)
	}
	draft := strings.TrimSpace(resp.Text)
	if draft == "" {
		return o.emptyCompletion(t), nil
	}

	if trigger := o.policy.Evaluate(convCtx, len(history), draft); trigger != TriggerNone {
		o.logger.Info("handoff triggered",
			"conversation_id", t.conv.ID,
			"trigger", trigger,
			"history_len", len(history),
		)
		if err := o.handoff(ctx, t, draft, store.ReasonQualificationComplete); err != nil {
			return "", err
		}
		return OutcomeHandoff, nil
	}

	o.applyExtraction(ctx, t)
	o.deliver(ctx, t, draft)
	o.syncCRM(ctx, t.patient, t.conv.Context)
	return OutcomeReplied, nil
}

func (o *Orchestrator) emptyCompletion(t *turn) string {
	o.logger.Warn("empty completion; no reply this turn", "conversation_id", t.conv.ID)
	o.metrics.ObserveCompletionFailure("empty")
	return OutcomeEmpty
}

// applyExtraction persists the profile and context changes found in the
// patient's message. Store failures are logged and the turn continues.
func (o *Orchestrator) applyExtraction(ctx context.Context, t *turn) {
	updated, profile := o.extractor.Extract(t.conv.Context, t.text)
	if !profile.Empty() {
		if err := o.store.UpdatePatient(ctx, t.patient.ID, profile.PatientUpdate()); err != nil {
			o.logger.Error("failed to update patient profile", "patient_id", t.patient.ID, "error", err)
		} else {
			if profile.Name != "" {
				t.patient.Name = profile.Name
			}
			if profile.Returning {
				t.patient.IsReturning = true
			}
		}
	}
	if err := o.store.UpdateConversation(ctx, t.conv.ID, store.ConversationUpdate{Context: updated}); err != nil {
		o.logger.Error("failed to update conversation context", "conversation_id", t.conv.ID, "error", err)
		return
	}
	t.conv.Context = updated
}

// deliver sends text to the patient unless the traffic is simulated, then
// records it. The record is written even when the send fails.
func (o *Orchestrator) deliver(ctx context.Context, t *turn, text string) {
	simulated := t.simulated || o.cfg.IsSimulator(t.phone)
	switch {
	case simulated:
		o.metrics.ObserveOutbound("skipped", true)
	case o.sender == nil:
		o.logger.Warn("no outbound sender configured", "conversation_id", t.conv.ID)
		o.metrics.ObserveOutbound("failed", false)
	default:
		if err := o.sender.SendText(ctx, t.phone, text); err != nil {
			o.logger.Error("outbound send failed",
				"conversation_id", t.conv.ID,
				"phone_suffix", phoneSuffix(t.phone),
				"error", err,
			)
			o.metrics.ObserveOutbound("failed", false)
		} else {
			o.metrics.ObserveOutbound("sent", false)
		}
	}

	metadata := map[string]string{}
	if simulated {
		metadata["simulated"] = "true"
	}
	msg := &store.Message{
		ConversationID: t.conv.ID,
		Direction:      store.DirectionOutbound,
		Content:        text,
		Kind:           "text",
		Metadata:       metadata,
	}
	if err := o.store.AppendMessage(ctx, msg); err != nil {
		o.logger.Error("failed to persist outbound message", "conversation_id", t.conv.ID, "error", err)
	}
}

// fail sends the apology once and forces a technical handoff unless the
// conversation already reached handoff.
func (o *Orchestrator) fail(ctx context.Context, t *turn, cause error) string {
	ctx = context.WithoutCancel(ctx)
	o.logger.Error("intake turn failed", "conversation_id", t.conv.ID, "error", cause)
	trace.SpanFromContext(ctx).RecordError(cause)

	o.deliver(ctx, t, o.cfg.ApologyText)
	if t.conv.Status == store.ConversationActive {
		if err := o.handoff(ctx, t, "", store.ReasonTechnicalError); err != nil {
			o.logger.Error("forced handoff failed", "conversation_id", t.conv.ID, "error", err)
		}
	}
	return OutcomeFailed
}

func historyMessages(history []store.Message) []completion.Message {
	out := make([]completion.Message, 0, len(history))
	for _, m := range history {
		role := completion.RoleUser
		if m.Direction == store.DirectionOutbound {
			role = completion.RoleAssistant
		}
		out = append(out, completion.Message{Role: role, Content: m.Content})
	}
	return out
}

func inboundMetadata(in Inbound) map[string]string {
	md := map[string]string{}
	if name := strings.TrimSpace(in.SenderName); name != "" {
		md["sender_name"] = name
	}
	if in.Simulated {
		md["simulated"] = "true"
	}
	return md
}

func phoneSuffix(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return phone[len(phone)-4:]
}
