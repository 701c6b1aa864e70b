package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for local development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	now           func() time.Time
	patients      map[string]*Patient
	phones        map[string]string
	conversations map[string]*Conversation
	messages      map[string][]Message
	handoffs      map[string]*Handoff
	appointments  map[string]*Appointment
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           func() time.Time { return time.Now().UTC() },
		patients:      make(map[string]*Patient),
		phones:        make(map[string]string),
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]Message),
		handoffs:      make(map[string]*Handoff),
		appointments:  make(map[string]*Appointment),
	}
}

func (s *MemoryStore) GetOrCreatePatient(_ context.Context, phone string) (*Patient, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("store: phone required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.phones[phone]; ok {
		p := *s.patients[id]
		return &p, nil
	}
	now := s.now()
	p := &Patient{ID: uuid.NewString(), Phone: phone, CreatedAt: now, UpdatedAt: now}
	s.patients[p.ID] = p
	s.phones[phone] = p.ID
	out := *p
	return &out, nil
}

func (s *MemoryStore) PatientByPhone(_ context.Context, phone string) (*Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.phones[strings.TrimSpace(phone)]
	if !ok {
		return nil, ErrNotFound
	}
	p := *s.patients[id]
	return &p, nil
}

func (s *MemoryStore) UpdatePatient(_ context.Context, id string, upd PatientUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.IsReturning != nil {
		p.IsReturning = *upd.IsReturning
	}
	p.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ActiveConversation(_ context.Context, patientID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.activeLocked(patientID)
	if c == nil {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

func (s *MemoryStore) GetOrCreateActiveConversation(_ context.Context, patientID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[patientID]; !ok {
		return nil, ErrNotFound
	}
	if c := s.activeLocked(patientID); c != nil {
		return copyConversation(c), nil
	}
	now := s.now()
	c := &Conversation{
		ID:          uuid.NewString(),
		PatientID:   patientID,
		Status:      ConversationActive,
		CurrentStep: "welcome",
		Context:     Context{},
		StartedAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.conversations[c.ID] = c
	return copyConversation(c), nil
}

func (s *MemoryStore) activeLocked(patientID string) *Conversation {
	var latest *Conversation
	for _, c := range s.conversations {
		if c.PatientID != patientID || !c.Status.Open() {
			continue
		}
		if latest == nil || c.StartedAt.After(latest.StartedAt) {
			latest = c
		}
	}
	return latest
}

func (s *MemoryStore) UpdateConversation(_ context.Context, id string, upd ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Status != nil {
		if !CanTransition(c.Status, *upd.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, *upd.Status)
		}
		c.Status = *upd.Status
		if c.Status == ConversationCompleted {
			ended := s.now()
			c.EndedAt = &ended
		}
	}
	if upd.CurrentStep != nil {
		c.CurrentStep = *upd.CurrentStep
	}
	if upd.Context != nil {
		c.Context = NormalizeContext(upd.Context)
	}
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("store: message required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[msg.ConversationID]; !ok {
		return ErrNotFound
	}
	msg.ID = uuid.NewString()
	msg.CreatedAt = s.now()
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], *msg)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateHandoff(_ context.Context, h *Handoff) error {
	if h == nil {
		return fmt.Errorf("store: handoff required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = uuid.NewString()
	if h.Status == "" {
		h.Status = HandoffPending
	}
	h.CreatedAt = s.now()
	stored := *h
	s.handoffs[h.ID] = &stored
	return nil
}

func (s *MemoryStore) UpdateHandoffStatus(_ context.Context, id string, status HandoffStatus, handledBy string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handoffs[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransitionHandoff(h.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, h.Status, status)
	}
	h.Status = status
	if status == HandoffCompleted {
		at := s.now()
		h.HandledAt = &at
		h.HandledBy = handledBy
	}
	return nil
}

func (s *MemoryStore) CreateAppointment(_ context.Context, a *Appointment) error {
	if a == nil {
		return fmt.Errorf("store: appointment required")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[a.PatientID]; !ok {
		return ErrNotFound
	}
	now := s.now()
	a.ID = uuid.NewString()
	a.Status = AppointmentPending
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	s.appointments[a.ID] = &stored
	return nil
}

// Handoffs returns all recorded handoffs, newest first.
func (s *MemoryStore) Handoffs() []Handoff {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Handoff, 0, len(s.handoffs))
	for _, h := range s.handoffs {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Conversation returns a conversation by id regardless of status.
func (s *MemoryStore) Conversation(id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyConversation(c), nil
}

func copyConversation(c *Conversation) *Conversation {
	out := *c
	out.Context = c.Context.Clone()
	if c.EndedAt != nil {
		ended := *c.EndedAt
		out.EndedAt = &ended
	}
	return &out
}
