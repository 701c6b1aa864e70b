package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreGetOrCreatePatientIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.GetOrCreatePatient(ctx, "5511999990000")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.GetOrCreatePatient(ctx, " 5511999990000 ")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same patient, got %s and %s", first.ID, second.ID)
	}
}

func TestMemoryStorePatientByPhoneDoesNotCreate(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.PatientByPhone(context.Background(), "5511000000000"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(s.patients) != 0 {
		t.Fatal("lookup should not create a patient")
	}
}

func TestMemoryStoreSingleActiveConversation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.GetOrCreatePatient(ctx, "5511999990000")

	var wg sync.WaitGroup
	ids := make(chan string, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := s.GetOrCreateActiveConversation(ctx, p.ID)
			if err != nil {
				t.Errorf("get or create: %v", err)
				return
			}
			ids <- c.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	if len(seen) != 1 {
		t.Fatalf("expected exactly one active conversation, got %d", len(seen))
	}
}

func TestMemoryStoreConversationTransitions(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.GetOrCreatePatient(ctx, "5511999990000")
	c, _ := s.GetOrCreateActiveConversation(ctx, p.ID)

	handoff := ConversationHandoff
	step := "handoff"
	if err := s.UpdateConversation(ctx, c.ID, ConversationUpdate{Status: &handoff, CurrentStep: &step}); err != nil {
		t.Fatalf("active -> handoff: %v", err)
	}

	active := ConversationActive
	if err := s.UpdateConversation(ctx, c.ID, ConversationUpdate{Status: &active}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	open, err := s.GetOrCreateActiveConversation(ctx, p.ID)
	if err != nil {
		t.Fatalf("open conversation: %v", err)
	}
	if open.ID != c.ID || open.Status != ConversationHandoff {
		t.Fatalf("expected the handed-off conversation to stay current, got %+v", open)
	}

	completed := ConversationCompleted
	if err := s.UpdateConversation(ctx, c.ID, ConversationUpdate{Status: &completed}); err != nil {
		t.Fatalf("handoff -> completed: %v", err)
	}
	if _, err := s.ActiveConversation(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected no open conversation after completion, got %v", err)
	}

	next, err := s.GetOrCreateActiveConversation(ctx, p.ID)
	if err != nil {
		t.Fatalf("new conversation: %v", err)
	}
	if next.ID == c.ID {
		t.Fatal("expected a fresh conversation after completion")
	}
	if next.CurrentStep != "welcome" || next.Status != ConversationActive {
		t.Fatalf("unexpected new conversation state: %+v", next)
	}
}

func TestMemoryStoreUpdateContextNormalizes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.GetOrCreatePatient(ctx, "5511999990000")
	c, _ := s.GetOrCreateActiveConversation(ctx, p.ID)

	if err := s.UpdateConversation(ctx, c.ID, ConversationUpdate{Context: Context{"need": "pele"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.Conversation(c.ID)
	if got.Context[KeyConcern] != "pele" {
		t.Fatalf("expected normalized context, got %v", got.Context)
	}
}

func TestMemoryStoreMessagesOrdered(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.GetOrCreatePatient(ctx, "5511999990000")
	c, _ := s.GetOrCreateActiveConversation(ctx, p.ID)

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, text := range []string{"oi", "olá!", "meu nome é Ana"} {
		dir := DirectionInbound
		if text == "olá!" {
			dir = DirectionOutbound
		}
		if err := s.AppendMessage(ctx, &Message{ConversationID: c.ID, Direction: dir, Content: text, Kind: "text"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := s.ListMessages(ctx, c.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "oi" || msgs[2].Content != "meu nome é Ana" {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if msgs[1].Direction != DirectionOutbound {
		t.Fatalf("expected outbound second message, got %s", msgs[1].Direction)
	}
}

func TestMemoryStoreHandoffStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	h := &Handoff{ConversationID: "c", PatientID: "p", Reason: ReasonQualificationComplete, Summary: "Nome: Ana"}
	if err := s.CreateHandoff(ctx, h); err != nil {
		t.Fatalf("create handoff: %v", err)
	}
	if h.Status != HandoffPending {
		t.Fatalf("expected pending status, got %s", h.Status)
	}
	if err := s.UpdateHandoffStatus(ctx, h.ID, HandoffCompleted, "eliana"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := s.Handoffs()[0]
	if got.HandledBy != "eliana" || got.HandledAt == nil {
		t.Fatalf("expected handler stamp, got %+v", got)
	}
	if err := s.UpdateHandoffStatus(ctx, h.ID, HandoffPending, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if err := s.UpdateHandoffStatus(ctx, "missing", HandoffInProgress, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreCreateAppointmentValidates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	p, _ := s.GetOrCreatePatient(ctx, "5511999990000")

	bad := &Appointment{PatientID: p.ID, Doctor: "dr_house", Type: AppointmentProcedure, Date: time.Now()}
	if err := s.CreateAppointment(ctx, bad); !errors.Is(err, ErrInvalidDoctor) {
		t.Fatalf("expected invalid doctor, got %v", err)
	}

	good := &Appointment{PatientID: p.ID, Doctor: DoctorRomulo, Type: AppointmentFirstConsultation, Date: time.Now().Add(48 * time.Hour)}
	if err := s.CreateAppointment(ctx, good); err != nil {
		t.Fatalf("create: %v", err)
	}
	if good.Status != AppointmentPending || good.ID == "" {
		t.Fatalf("expected pending appointment with id, got %+v", good)
	}
}
