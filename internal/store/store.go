package store

import "context"

// Store is the record store used by the intake engine and the admin surface.
type Store interface {
	GetOrCreatePatient(ctx context.Context, phone string) (*Patient, error)
	PatientByPhone(ctx context.Context, phone string) (*Patient, error)
	UpdatePatient(ctx context.Context, id string, upd PatientUpdate) error

	ActiveConversation(ctx context.Context, patientID string) (*Conversation, error)
	GetOrCreateActiveConversation(ctx context.Context, patientID string) (*Conversation, error)
	UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error

	AppendMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)

	CreateHandoff(ctx context.Context, h *Handoff) error
	UpdateHandoffStatus(ctx context.Context, id string, status HandoffStatus, handledBy string) error

	CreateAppointment(ctx context.Context, a *Appointment) error
}
