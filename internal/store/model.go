package store

import (
	"strings"
	"time"
)

// ConversationStatus is the lifecycle state of a qualification session.
type ConversationStatus string

const (
	ConversationActive    ConversationStatus = "active"
	ConversationHandoff   ConversationStatus = "handoff"
	ConversationCompleted ConversationStatus = "completed"
)

// Open reports whether the conversation is still the patient's current one.
// A handed-off conversation stays open until the operator completes it.
func (s ConversationStatus) Open() bool {
	return s == ConversationActive || s == ConversationHandoff
}

// conversationSources lists the statuses a conversation may move to the
// given status from. Nothing ever moves back to active.
func conversationSources(to ConversationStatus) []string {
	switch to {
	case ConversationHandoff:
		return []string{string(ConversationActive)}
	case ConversationCompleted:
		return []string{string(ConversationActive), string(ConversationHandoff)}
	}
	return nil
}

// CanTransition reports whether a conversation may move from one status to
// another.
func CanTransition(from, to ConversationStatus) bool {
	for _, src := range conversationSources(to) {
		if src == string(from) {
			return true
		}
	}
	return false
}

// Direction of a stored message relative to the patient.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// HandoffStatus tracks operator progress on an escalation.
type HandoffStatus string

const (
	HandoffPending    HandoffStatus = "pending"
	HandoffInProgress HandoffStatus = "in_progress"
	HandoffCompleted  HandoffStatus = "completed"
)

// Valid reports whether s is a known handoff status.
func (s HandoffStatus) Valid() bool {
	switch s {
	case HandoffPending, HandoffInProgress, HandoffCompleted:
		return true
	}
	return false
}

// handoffSources lists the statuses a handoff may move to the given status from.
func handoffSources(to HandoffStatus) []string {
	switch to {
	case HandoffPending:
		return []string{string(HandoffPending)}
	case HandoffInProgress:
		return []string{string(HandoffPending), string(HandoffInProgress)}
	case HandoffCompleted:
		return []string{string(HandoffPending), string(HandoffInProgress), string(HandoffCompleted)}
	}
	return nil
}

// CanTransitionHandoff reports whether a handoff may move between statuses.
// Repeating the current status is allowed; moving backwards is not.
func CanTransitionHandoff(from, to HandoffStatus) bool {
	for _, src := range handoffSources(to) {
		if src == string(from) {
			return true
		}
	}
	return false
}

// Handoff reason codes.
const (
	ReasonQualificationComplete = "qualification_complete"
	ReasonTechnicalError        = "technical_error"
)

// Doctor identifiers accepted on appointments.
const (
	DoctorGabriel = "dr_gabriel"
	DoctorRomulo  = "dr_romulo"
)

// Appointment types.
const (
	AppointmentFirstConsultation = "first_consultation"
	AppointmentProcedure         = "procedure"
)

// Appointment statuses.
const (
	AppointmentPending   = "pending"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
	AppointmentNoShow    = "no_show"
)

// Patient is keyed by WhatsApp phone number.
type Patient struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name,omitempty"`
	IsReturning bool      `json:"is_returning_patient"`
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PatientUpdate carries optional profile changes. Nil fields are untouched.
type PatientUpdate struct {
	Name        *string
	IsReturning *bool
}

// Empty reports whether the update changes nothing.
func (u PatientUpdate) Empty() bool {
	return u.Name == nil && u.IsReturning == nil
}

// Conversation is one qualification session.
type Conversation struct {
	ID          string             `json:"id"`
	PatientID   string             `json:"patient_id"`
	Status      ConversationStatus `json:"status"`
	CurrentStep string             `json:"current_step,omitempty"`
	Context     Context            `json:"context"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     *time.Time         `json:"ended_at,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ConversationUpdate carries optional conversation changes. A nil Context
// leaves the stored context untouched.
type ConversationUpdate struct {
	Status      *ConversationStatus
	CurrentStep *string
	Context     Context
}

// Message is an immutable conversation entry.
type Message struct {
	ID                string            `json:"id"`
	ConversationID    string            `json:"conversation_id"`
	Direction         Direction         `json:"direction"`
	Content           string            `json:"content"`
	Kind              string            `json:"message_type"`
	ProviderMessageID string            `json:"provider_message_id,omitempty"`
	Metadata          map[string]string `json:"metadata"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Handoff records one escalation to the human operator.
type Handoff struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	PatientID      string        `json:"patient_id"`
	Reason         string        `json:"reason"`
	Summary        string        `json:"summary"`
	Status         HandoffStatus `json:"status"`
	HandledBy      string        `json:"handled_by,omitempty"`
	HandledAt      *time.Time    `json:"handled_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Appointment is created manually from the admin surface.
type Appointment struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	ConversationID  string    `json:"conversation_id,omitempty"`
	Doctor          string    `json:"doctor"`
	Type            string    `json:"appointment_type"`
	Date            time.Time `json:"appointment_date"`
	Status          string    `json:"status"`
	PreferredPeriod string    `json:"preferred_period,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks the enumerated appointment fields.
func (a *Appointment) Validate() error {
	if strings.TrimSpace(a.PatientID) == "" {
		return ErrPatientIDRequired
	}
	switch a.Doctor {
	case DoctorGabriel, DoctorRomulo:
	default:
		return ErrInvalidDoctor
	}
	switch a.Type {
	case AppointmentFirstConsultation, AppointmentProcedure:
	default:
		return ErrInvalidAppointmentType
	}
	if a.Date.IsZero() {
		return ErrAppointmentDateRequired
	}
	return nil
}
