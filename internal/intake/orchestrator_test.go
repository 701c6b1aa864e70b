package intake

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/archive"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/ghl"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const livePhone = "5511987654"

type sentMessage struct {
	phone string
	text  string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (s *recordingSender) SendText(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{phone: phone, text: message})
	return s.err
}

func (s *recordingSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentMessage(nil), s.sent...)
}

type recordingNotifier struct {
	notices []notify.HandoffNotice
	err     error
}

func (n *recordingNotifier) NotifyHandoff(_ context.Context, notice notify.HandoffNotice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

type recordingCRM struct {
	contacts []ghl.Contact
	notes    []string
	err      error
}

func (c *recordingCRM) UpsertContact(_ context.Context, contact ghl.Contact) (string, error) {
	c.contacts = append(c.contacts, contact)
	if c.err != nil {
		return "", c.err
	}
	return "contact-1", nil
}

func (c *recordingCRM) AddNote(_ context.Context, _ string, body string) error {
	c.notes = append(c.notes, body)
	return nil
}

type recordingArchiver struct {
	records []archive.TranscriptRecord
}

func (a *recordingArchiver) ArchiveTranscript(_ context.Context, r archive.TranscriptRecord) error {
	a.records = append(a.records, r)
	return nil
}

type fixedCalendar struct {
	calls int
	text  string
}

func (c *fixedCalendar) Availability(context.Context, int) string {
	c.calls++
	return c.text
}

type scriptedCompletion struct {
	mu       sync.Mutex
	replies  []string
	err      error
	panicMsg string
	requests []completion.Request
}

func (s *scriptedCompletion) Complete(_ context.Context, req completion.Request) (completion.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.err != nil {
		return completion.Response{}, s.err
	}
	if len(s.replies) == 0 {
		return completion.Response{Text: "Qual é o seu nome completo?"}, nil
	}
	text := s.replies[0]
	s.replies = s.replies[1:]
	return completion.Response{Text: text}, nil
}

func (s *scriptedCompletion) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type harness struct {
	store      *store.MemoryStore
	completion *scriptedCompletion
	sender     *recordingSender
	notifier   *recordingNotifier
	crm        *recordingCRM
	archiver   *recordingArchiver
	calendar   *fixedCalendar
	orch       *Orchestrator
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:      store.NewMemoryStore(),
		completion: &scriptedCompletion{},
		sender:     &recordingSender{},
		notifier:   &recordingNotifier{},
		crm:        &recordingCRM{},
		archiver:   &recordingArchiver{},
		calendar:   &fixedCalendar{text: "segunda-feira, 19/10: 09:00\n"},
	}
	if cfg.IsSimulator == nil {
		cfg.IsSimulator = func(phone string) bool {
			return len(phone) == 13 && strings.HasPrefix(phone, "55")
		}
	}
	orch, err := NewOrchestrator(cfg, Deps{
		Store:      h.store,
		Completion: h.completion,
		Sender:     h.sender,
		Calendar:   h.calendar,
		CRM:        h.crm,
		Notifier:   h.notifier,
		Archiver:   h.archiver,
		Logger:     logging.Default(),
	})
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) conversation(t *testing.T, phone string) (*store.Patient, *store.Conversation, []store.Message) {
	t.Helper()
	ctx := context.Background()
	p, err := h.store.PatientByPhone(ctx, phone)
	if err != nil {
		t.Fatalf("patient: %v", err)
	}
	c, err := h.store.ActiveConversation(ctx, p.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	msgs, err := h.store.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	return p, c, msgs
}

func TestHandleRepliesAndExtracts(t *testing.T) {
	h := newHarness(t, Config{})
	h.completion.replies = []string{"Prazer, Maria! Você busca tratamento para pele, cabelo ou unhas?"}

	err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "Oi, meu nome é Maria", Kind: "text"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	p, c, msgs := h.conversation(t, livePhone)
	if p.Name != "Maria" {
		t.Fatalf("expected patient name Maria, got %q", p.Name)
	}
	if c.Status != store.ConversationActive || c.CurrentStep != "welcome" {
		t.Fatalf("unexpected conversation state: %+v", c)
	}
	if c.Context.Get(store.KeyName) != "Maria" {
		t.Fatalf("expected name in context, got %v", c.Context)
	}
	if len(msgs) != 2 || msgs[0].Direction != store.DirectionInbound || msgs[1].Direction != store.DirectionOutbound {
		t.Fatalf("expected inbound then outbound, got %+v", msgs)
	}
	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].phone != livePhone {
		t.Fatalf("expected one send to patient, got %+v", sent)
	}

	req := h.completion.requests[0]
	if len(req.System) != 2 || !strings.Contains(req.System[1], "INFORMAÇÕES DO PACIENTE") {
		t.Fatalf("expected system prompt and context summary, got %d blocks", len(req.System))
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != completion.RoleUser || req.Messages[0].Content != "Oi, meu nome é Maria" {
		t.Fatalf("expected single user turn without duplication, got %+v", req.Messages)
	}
	if h.calendar.calls != 0 {
		t.Fatal("calendar should not be consulted before name and concern are known")
	}

	if len(h.crm.contacts) != 1 {
		t.Fatalf("expected CRM sync once name is known, got %d", len(h.crm.contacts))
	}
	if got := h.crm.contacts[0]; got.FirstName != "Maria" || got.Phone != livePhone || len(got.Tags) != 2 {
		t.Fatalf("unexpected CRM contact: %+v", got)
	}
	if len(h.crm.notes) != 1 || !strings.HasPrefix(h.crm.notes[0], "Conversa via WhatsApp Bot:") {
		t.Fatalf("unexpected CRM notes: %v", h.crm.notes)
	}
}

func TestHandleAddsAvailabilityOnceNameAndConcernKnown(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	p, _ := h.store.GetOrCreatePatient(ctx, livePhone)
	c, _ := h.store.GetOrCreateActiveConversation(ctx, p.ID)
	if err := h.store.UpdateConversation(ctx, c.ID, store.ConversationUpdate{
		Context: store.Context{"name": "Maria", "need": "pele"},
	}); err != nil {
		t.Fatalf("seed context: %v", err)
	}

	if err := h.orch.Handle(ctx, Inbound{Phone: livePhone, Text: "quais horários?"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.calendar.calls != 1 {
		t.Fatalf("expected one availability lookup, got %d", h.calendar.calls)
	}
	if !strings.Contains(h.completion.requests[0].System[1], "HORÁRIOS DISPONÍVEIS (próximos 7 dias):\nsegunda-feira") {
		t.Fatalf("expected availability in context summary:\n%s", h.completion.requests[0].System[1])
	}
}

func TestHandleQualifiedContextHandsOff(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	p, _ := h.store.GetOrCreatePatient(ctx, livePhone)
	c, _ := h.store.GetOrCreateActiveConversation(ctx, p.ID)
	_ = h.store.UpdateConversation(ctx, c.ID, store.ConversationUpdate{
		Context: store.Context{"name": "Maria", "concern": "pele", "doctor": PrimarySpecialist, "preferred_period": PeriodAfternoon},
	})
	h.completion.replies = []string{"Perfeito! Já anotei tudo."}

	if err := h.orch.Handle(ctx, Inbound{Phone: livePhone, Text: "pode ser"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	_, conv, msgs := h.conversation(t, livePhone)
	if conv.Status != store.ConversationHandoff || conv.CurrentStep != "handoff" {
		t.Fatalf("expected handoff state, got %+v", conv)
	}
	if last := msgs[len(msgs)-1]; last.Direction != store.DirectionOutbound || last.Content != "Perfeito! Já anotei tudo." {
		t.Fatalf("expected draft as final outbound, got %+v", last)
	}
	if len(h.sender.messages()) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(h.sender.messages()))
	}

	if len(h.notifier.notices) != 1 {
		t.Fatalf("expected operator notice, got %d", len(h.notifier.notices))
	}
	notice := h.notifier.notices[0]
	want := "Nome: Maria\nTelefone: " + livePhone + "\nNecessidade: pele\nMédico sugerido: Dr. Gabriel\nPreferência de horário: Tarde (13h30-18h)\nPaciente retornando: Não"
	if notice.Summary != want {
		t.Fatalf("summary mismatch:\n%s\nwant\n%s", notice.Summary, want)
	}
	if notice.Reason != store.ReasonQualificationComplete || notice.Doctor != PrimarySpecialist {
		t.Fatalf("unexpected notice: %+v", notice)
	}
	if len(h.archiver.records) != 1 || h.archiver.records[0].PhoneHash == livePhone {
		t.Fatalf("expected hashed transcript archive, got %+v", h.archiver.records)
	}
	if len(h.crm.contacts) != 0 {
		t.Fatal("CRM sync should not run on the handoff path")
	}
}

func TestHandleHandoffShortCircuit(t *testing.T) {
	h := newHarness(t, Config{})
	h.completion.replies = []string{"Vou chamar a Eliana agora."}
	ctx := context.Background()

	if err := h.orch.Handle(ctx, Inbound{Phone: livePhone, Text: "quero agendar"}); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if h.completion.calls() != 1 || len(h.sender.messages()) != 1 {
		t.Fatalf("expected one completion and one send before handoff")
	}

	if err := h.orch.Handle(ctx, Inbound{Phone: livePhone, Text: "oi?"}); err != nil {
		t.Fatalf("second Handle: %v", err)
	}
	if h.completion.calls() != 1 {
		t.Fatalf("expected no completion after handoff, got %d calls", h.completion.calls())
	}
	if len(h.sender.messages()) != 1 {
		t.Fatalf("expected no send after handoff, got %d", len(h.sender.messages()))
	}
	_, conv, msgs := h.conversation(t, livePhone)
	if conv.Status != store.ConversationHandoff {
		t.Fatalf("expected conversation to stay in handoff, got %s", conv.Status)
	}
	if last := msgs[len(msgs)-1]; last.Direction != store.DirectionInbound || last.Content != "oi?" {
		t.Fatalf("expected inbound persisted after handoff, got %+v", last)
	}
}

func TestHandleEmptyCompletionHalts(t *testing.T) {
	for _, tc := range []struct {
		name string
		set  func(*scriptedCompletion)
	}{
		{"blank text", func(s *scriptedCompletion) { s.replies = []string{"   "} }},
		{"no choices", func(s *scriptedCompletion) { s.err = completion.ErrEmptyResponse }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			tc.set(h.completion)
			if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			_, conv, msgs := h.conversation(t, livePhone)
			if len(msgs) != 1 || msgs[0].Direction != store.DirectionInbound {
				t.Fatalf("expected only the inbound message, got %+v", msgs)
			}
			if conv.Status != store.ConversationActive {
				t.Fatalf("expected no status change, got %s", conv.Status)
			}
			if len(h.sender.messages()) != 0 || len(h.notifier.notices) != 0 {
				t.Fatal("expected nothing sent")
			}
		})
	}
}

func TestHandleCompletionErrorFallsBack(t *testing.T) {
	h := newHarness(t, Config{})
	h.completion.err = errors.New("all providers down")

	if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].text != DefaultApology("Eliana") {
		t.Fatalf("expected a single apology, got %+v", sent)
	}
	_, conv, msgs := h.conversation(t, livePhone)
	if conv.Status != store.ConversationHandoff {
		t.Fatalf("expected forced handoff, got %s", conv.Status)
	}
	outbound := 0
	for _, m := range msgs {
		if m.Direction == store.DirectionOutbound {
			outbound++
		}
	}
	if outbound != 1 {
		t.Fatalf("expected one outbound row, got %d", outbound)
	}
	if len(h.notifier.notices) != 1 || h.notifier.notices[0].Reason != store.ReasonTechnicalError {
		t.Fatalf("expected technical_error notice, got %+v", h.notifier.notices)
	}
}

func TestHandleRecoversPanic(t *testing.T) {
	h := newHarness(t, Config{ApologyText: "Ops!"})
	h.completion.panicMsg = "boom"

	if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	sent := h.sender.messages()
	if len(sent) != 1 || sent[0].text != "Ops!" {
		t.Fatalf("expected custom apology, got %+v", sent)
	}
	_, conv, _ := h.conversation(t, livePhone)
	if conv.Status != store.ConversationHandoff {
		t.Fatalf("expected forced handoff after panic, got %s", conv.Status)
	}
}

func TestHandleSimulatedPhoneSkipsSend(t *testing.T) {
	h := newHarness(t, Config{})
	phone := "5511912345678"
	if err := h.orch.Handle(context.Background(), Inbound{Phone: phone, Text: "oi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(h.sender.messages()) != 0 {
		t.Fatal("expected simulated phone to bypass the sender")
	}
	_, _, msgs := h.conversation(t, phone)
	if len(msgs) != 2 || msgs[1].Direction != store.DirectionOutbound {
		t.Fatalf("expected outbound row for simulated traffic, got %+v", msgs)
	}
	if msgs[1].Metadata["simulated"] != "true" {
		t.Fatalf("expected simulated metadata, got %v", msgs[1].Metadata)
	}
}

func TestHandleSendFailureStillPersists(t *testing.T) {
	h := newHarness(t, Config{})
	h.sender.err = errors.New("z-api 500")
	if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	_, conv, msgs := h.conversation(t, livePhone)
	if len(msgs) != 2 {
		t.Fatalf("expected outbound row despite send failure, got %d rows", len(msgs))
	}
	if conv.Status != store.ConversationActive {
		t.Fatalf("send failure must not escalate, got %s", conv.Status)
	}
}

func TestHandleAllowListDropsSilently(t *testing.T) {
	h := newHarness(t, Config{AllowedPhones: []string{"5511000000000"}})
	if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if _, err := h.store.PatientByPhone(context.Background(), livePhone); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected nothing written, got %v", err)
	}
	if h.completion.calls() != 0 || len(h.sender.messages()) != 0 {
		t.Fatal("expected no completion and no send")
	}

	if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi", Simulated: true}); err != nil {
		t.Fatalf("simulated Handle: %v", err)
	}
	if _, err := h.store.PatientByPhone(context.Background(), livePhone); err != nil {
		t.Fatalf("simulated traffic should bypass the allow-list: %v", err)
	}
	if len(h.sender.messages()) != 0 {
		t.Fatal("simulated traffic must not be sent")
	}
}

func TestHandleRequiresPhone(t *testing.T) {
	h := newHarness(t, Config{})
	if err := h.orch.Handle(context.Background(), Inbound{Text: "oi"}); !errors.Is(err, ErrMissingPhone) {
		t.Fatalf("expected ErrMissingPhone, got %v", err)
	}
}

func TestHandleConcurrentSamePatientSingleConversation(t *testing.T) {
	h := newHarness(t, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.orch.Handle(context.Background(), Inbound{Phone: livePhone, Text: "oi"}); err != nil {
				t.Errorf("Handle: %v", err)
			}
		}()
	}
	wg.Wait()

	_, _, msgs := h.conversation(t, livePhone)
	if len(msgs) != 10 {
		t.Fatalf("expected all 10 messages on one conversation, got %d", len(msgs))
	}
	for i := 0; i < len(msgs); i += 2 {
		if msgs[i].Direction != store.DirectionInbound || msgs[i+1].Direction != store.DirectionOutbound {
			t.Fatalf("turns interleaved at %d: %s then %s", i, msgs[i].Direction, msgs[i+1].Direction)
		}
	}
}

func TestMultiNotifierJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("smtp down")}
	err := MultiNotifier{bad, nil, ok}.NotifyHandoff(context.Background(), notify.HandoffNotice{PatientPhone: "1"})
	if err == nil || !strings.Contains(err.Error(), "smtp down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.notices) != 1 {
		t.Fatal("expected remaining notifiers to run")
	}
}

func TestNewOrchestratorRequiresDeps(t *testing.T) {
	if _, err := NewOrchestrator(Config{}, Deps{Completion: &scriptedCompletion{}}); err == nil {
		t.Fatal("expected missing store error")
	}
	if _, err := NewOrchestrator(Config{}, Deps{Store: store.NewMemoryStore()}); err == nil {
		t.Fatal("expected missing completion error")
	}
}
