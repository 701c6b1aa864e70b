// Package notify delivers handoff notices to the clinic operator.
package notify

import "context"

// HandoffNotice is what the operator needs to pick up a conversation.
type HandoffNotice struct {
	ConversationID  string
	PatientName     string
	PatientPhone    string
	Summary         string
	Reason          string
	Doctor          string
	PreferredPeriod string
	AppointmentType string
}

// Notifier delivers a handoff notice on one channel.
type Notifier interface {
	NotifyHandoff(ctx context.Context, notice HandoffNotice) error
}
