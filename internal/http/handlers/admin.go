package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const (
	adminListLimit        = 50
	upcomingWindow        = 7 * 24 * time.Hour
	defaultOperatorHandle = "eliana"
)

// AdminHandler serves the clinic back-office projections. Reads go straight
// to SQL; writes go through the record store so status rules apply.
type AdminHandler struct {
	db             *sql.DB
	store          store.Store
	loc            *time.Location
	operatorHandle string
	logger         *logging.Logger
	now            func() time.Time
}

// NewAdminHandler builds the admin handler. A nil location uses UTC.
func NewAdminHandler(db *sql.DB, st store.Store, loc *time.Location, operatorHandle string, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if strings.TrimSpace(operatorHandle) == "" {
		operatorHandle = defaultOperatorHandle
	}
	return &AdminHandler{
		db:             db,
		store:          st,
		loc:            loc,
		operatorHandle: operatorHandle,
		logger:         logger,
		now:            time.Now,
	}
}

// DashboardMetrics is the admin overview.
type DashboardMetrics struct {
	TotalConversationsToday int `json:"total_conversations_today"`
	TotalHandoffsToday      int `json:"total_handoffs_today"`
	TotalAppointmentsToday  int `json:"total_appointments_today"`
	PendingHandoffs         int `json:"pending_handoffs"`
	UpcomingAppointments    int `json:"upcoming_appointments"`
}

// ConversationWithPatient is one row of the conversation list.
type ConversationWithPatient struct {
	ID           string         `json:"id"`
	PatientID    string         `json:"patient_id"`
	PatientName  *string        `json:"patient_name"`
	PatientPhone string         `json:"patient_phone"`
	StartedAt    time.Time      `json:"started_at"`
	EndedAt      *time.Time     `json:"ended_at"`
	Status       string         `json:"status"`
	CurrentStep  *string        `json:"current_step"`
	Context      map[string]any `json:"context"`
}

// MessageRow is a stored message as shown to the operator.
type MessageRow struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// AppointmentWithPatient is one row of the appointment list.
type AppointmentWithPatient struct {
	ID              string    `json:"id"`
	PatientID       string    `json:"patient_id"`
	PatientName     *string   `json:"patient_name"`
	PatientPhone    string    `json:"patient_phone"`
	Doctor          string    `json:"doctor"`
	AppointmentType string    `json:"appointment_type"`
	AppointmentDate time.Time `json:"appointment_date"`
	Status          string    `json:"status"`
	PreferredPeriod *string   `json:"preferred_period"`
	Notes           *string   `json:"notes"`
	CreatedAt       time.Time `json:"created_at"`
}

// HandoffWithDetails is one row of the handoff list.
type HandoffWithDetails struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	PatientID      string     `json:"patient_id"`
	PatientName    *string    `json:"patient_name"`
	PatientPhone   string     `json:"patient_phone"`
	Reason         string     `json:"reason"`
	Summary        *string    `json:"summary"`
	Status         string     `json:"status"`
	HandledBy      *string    `json:"handled_by"`
	CreatedAt      time.Time  `json:"created_at"`
	HandledAt      *time.Time `json:"handled_at"`
}

// Metrics is GET /admin/metrics.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)

	query := `
		SELECT
			(SELECT COUNT(*) FROM conversations WHERE started_at >= $1),
			(SELECT COUNT(*) FROM handoffs WHERE created_at >= $1),
			(SELECT COUNT(*) FROM appointments WHERE created_at >= $1),
			(SELECT COUNT(*) FROM handoffs WHERE status = 'pending'),
			(SELECT COUNT(*) FROM appointments
				WHERE appointment_date >= $2 AND appointment_date <= $3
				AND status IN ('pending', 'confirmed'))
	`
	var m DashboardMetrics
	err := h.db.QueryRowContext(r.Context(), query, midnight, now, now.Add(upcomingWindow)).Scan(
		&m.TotalConversationsToday,
		&m.TotalHandoffsToday,
		&m.TotalAppointmentsToday,
		&m.PendingHandoffs,
		&m.UpcomingAppointments,
	)
	if err != nil {
		h.logger.Error("failed to load dashboard metrics", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ListConversations is GET /admin/conversations.
func (h *AdminHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT c.id, c.patient_id, p.name, p.phone, c.started_at, c.ended_at,
			c.status, c.current_step, c.context
		FROM conversations c
		JOIN patients p ON p.id = c.patient_id
		ORDER BY c.started_at DESC
		LIMIT $1
	`
	rows, err := h.db.QueryContext(r.Context(), query, adminListLimit)
	if err != nil {
		h.logger.Error("failed to query conversations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := []ConversationWithPatient{}
	for rows.Next() {
		var (
			c       ConversationWithPatient
			name    sql.NullString
			step    sql.NullString
			ended   sql.NullTime
			rawCtxt []byte
		)
		if err := rows.Scan(&c.ID, &c.PatientID, &name, &c.PatientPhone, &c.StartedAt, &ended, &c.Status, &step, &rawCtxt); err != nil {
			h.logger.Error("failed to scan conversation", "error", err)
			continue
		}
		c.PatientName = nullString(name)
		c.CurrentStep = nullString(step)
		if ended.Valid {
			t := ended.Time
			c.EndedAt = &t
		}
		c.Context = map[string]any{}
		if len(rawCtxt) > 0 {
			if err := json.Unmarshal(rawCtxt, &c.Context); err != nil {
				h.logger.Warn("invalid conversation context", "conversation_id", c.ID, "error", err)
			}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("conversation rows failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ConversationMessages is GET /admin/conversations/{id}/messages.
func (h *AdminHandler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		http.Error(w, "missing conversation id", http.StatusBadRequest)
		return
	}
	query := `
		SELECT id, direction, content, message_type, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := h.db.QueryContext(r.Context(), query, id)
	if err != nil {
		h.logger.Error("failed to query messages", "conversation_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := []MessageRow{}
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.Direction, &m.Content, &m.MessageType, &m.CreatedAt); err != nil {
			h.logger.Error("failed to scan message", "error", err)
			continue
		}
		out = append(out, m)
	}
	writeJSON(w, http.StatusOK, out)
}

// ListAppointments is GET /admin/appointments.
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT a.id, a.patient_id, p.name, p.phone, a.doctor, a.appointment_type,
			a.appointment_date, a.status, a.preferred_period, a.notes, a.created_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		ORDER BY a.appointment_date DESC
		LIMIT $1
	`
	rows, err := h.db.QueryContext(r.Context(), query, adminListLimit)
	if err != nil {
		h.logger.Error("failed to query appointments", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := []AppointmentWithPatient{}
	for rows.Next() {
		var (
			a                      AppointmentWithPatient
			name, period, notesCol sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.PatientID, &name, &a.PatientPhone, &a.Doctor, &a.AppointmentType,
			&a.AppointmentDate, &a.Status, &period, &notesCol, &a.CreatedAt); err != nil {
			h.logger.Error("failed to scan appointment", "error", err)
			continue
		}
		a.PatientName = nullString(name)
		a.PreferredPeriod = nullString(period)
		a.Notes = nullString(notesCol)
		out = append(out, a)
	}
	writeJSON(w, http.StatusOK, out)
}

type createAppointmentRequest struct {
	PatientID       string `json:"patient_id"`
	ConversationID  string `json:"conversation_id"`
	Doctor          string `json:"doctor"`
	AppointmentType string `json:"appointment_type"`
	AppointmentDate string `json:"appointment_date"`
	PreferredPeriod string `json:"preferred_period"`
	Notes           string `json:"notes"`
}

// CreateAppointment is POST /admin/appointments.
func (h *AdminHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	date, err := time.Parse(time.RFC3339, strings.TrimSpace(req.AppointmentDate))
	if err != nil {
		http.Error(w, "appointment_date must be RFC3339", http.StatusBadRequest)
		return
	}
	appt := &store.Appointment{
		PatientID:       strings.TrimSpace(req.PatientID),
		ConversationID:  strings.TrimSpace(req.ConversationID),
		Doctor:          req.Doctor,
		Type:            req.AppointmentType,
		Date:            date,
		PreferredPeriod: req.PreferredPeriod,
		Notes:           req.Notes,
	}
	if err := h.store.CreateAppointment(r.Context(), appt); err != nil {
		switch {
		case errors.Is(err, store.ErrPatientIDRequired),
			errors.Is(err, store.ErrInvalidDoctor),
			errors.Is(err, store.ErrInvalidAppointmentType),
			errors.Is(err, store.ErrAppointmentDateRequired):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "patient not found", http.StatusNotFound)
		default:
			h.logger.Error("failed to create appointment", "patient_id", appt.PatientID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	h.logger.Info("appointment created", "appointment_id", appt.ID, "patient_id", appt.PatientID, "doctor", appt.Doctor)
	writeJSON(w, http.StatusCreated, appt)
}

// ListHandoffs is GET /admin/handoffs.
func (h *AdminHandler) ListHandoffs(w http.ResponseWriter, r *http.Request) {
	query := `
		SELECT h.id, h.conversation_id, h.patient_id, p.name, p.phone, h.reason,
			h.summary, h.status, h.handled_by, h.created_at, h.handled_at
		FROM handoffs h
		JOIN patients p ON p.id = h.patient_id
		ORDER BY h.created_at DESC
		LIMIT $1
	`
	rows, err := h.db.QueryContext(r.Context(), query, adminListLimit)
	if err != nil {
		h.logger.Error("failed to query handoffs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	out := []HandoffWithDetails{}
	for rows.Next() {
		var (
			ho                       HandoffWithDetails
			name, summary, handledBy sql.NullString
			handledAt                sql.NullTime
		)
		if err := rows.Scan(&ho.ID, &ho.ConversationID, &ho.PatientID, &name, &ho.PatientPhone, &ho.Reason,
			&summary, &ho.Status, &handledBy, &ho.CreatedAt, &handledAt); err != nil {
			h.logger.Error("failed to scan handoff", "error", err)
			continue
		}
		ho.PatientName = nullString(name)
		ho.Summary = nullString(summary)
		ho.HandledBy = nullString(handledBy)
		if handledAt.Valid {
			t := handledAt.Time
			ho.HandledAt = &t
		}
		out = append(out, ho)
	}
	writeJSON(w, http.StatusOK, out)
}

// UpdateHandoff is PATCH /admin/handoffs/{id}. Completing a handoff also
// completes its conversation so the patient's next message starts fresh.
func (h *AdminHandler) UpdateHandoff(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	status := store.HandoffStatus(strings.TrimSpace(req.Status))
	if !status.Valid() {
		http.Error(w, "status must be pending, in_progress or completed", http.StatusBadRequest)
		return
	}

	if err := h.store.UpdateHandoffStatus(r.Context(), id, status, h.operatorHandle); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			http.Error(w, "handoff not found", http.StatusNotFound)
		case errors.Is(err, store.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			h.logger.Error("failed to update handoff", "handoff_id", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	if status == store.HandoffCompleted {
		h.closeConversation(r, id)
	}
	h.logger.Info("handoff updated", "handoff_id", id, "status", status)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *AdminHandler) closeConversation(r *http.Request, handoffID string) {
	var conversationID string
	err := h.db.QueryRowContext(r.Context(), `SELECT conversation_id FROM handoffs WHERE id = $1`, handoffID).Scan(&conversationID)
	if err != nil {
		h.logger.Error("failed to load handoff conversation", "handoff_id", handoffID, "error", err)
		return
	}
	completed := store.ConversationCompleted
	err = h.store.UpdateConversation(r.Context(), conversationID, store.ConversationUpdate{Status: &completed})
	if err != nil && !errors.Is(err, store.ErrInvalidTransition) {
		h.logger.Error("failed to complete conversation", "conversation_id", conversationID, "error", err)
	}
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
