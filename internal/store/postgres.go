package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgxDB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore persists intake records in Postgres.
type PostgresStore struct {
	db pgxDB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore initializes a store backed by pgxpool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

// NewPostgresStoreWithDB accepts any pgx-compatible handle (used by tests).
func NewPostgresStoreWithDB(db pgxDB) *PostgresStore {
	return &PostgresStore{db: db}
}

const patientColumns = `id, phone, COALESCE(name, ''), is_returning_patient, COALESCE(notes, ''), created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Phone, &p.Name, &p.IsReturning, &p.Notes, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreatePatient upserts on phone so concurrent first messages resolve to one row.
func (s *PostgresStore) GetOrCreatePatient(ctx context.Context, phone string) (*Patient, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("store: phone required")
	}
	query := `
		INSERT INTO patients (id, phone)
		VALUES ($1, $2)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING ` + patientColumns
	p, err := scanPatient(s.db.QueryRow(ctx, query, uuid.NewString(), phone))
	if err != nil {
		return nil, fmt.Errorf("store: upsert patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) PatientByPhone(ctx context.Context, phone string) (*Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE phone = $1`
	p, err := scanPatient(s.db.QueryRow(ctx, query, strings.TrimSpace(phone)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: select patient: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpdatePatient(ctx context.Context, id string, upd PatientUpdate) error {
	if upd.Empty() {
		return nil
	}
	query := `
		UPDATE patients SET
			name = COALESCE($2, name),
			is_returning_patient = COALESCE($3, is_returning_patient),
			updated_at = now()
		WHERE id = $1
	`
	tag, err := s.db.Exec(ctx, query, id, upd.Name, upd.IsReturning)
	if err != nil {
		return fmt.Errorf("store: update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const conversationColumns = `id, patient_id, status, COALESCE(current_step, ''), context, started_at, ended_at, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var (
		c      Conversation
		status string
		raw    []byte
	)
	if err := row.Scan(&c.ID, &c.PatientID, &status, &c.CurrentStep, &raw, &c.StartedAt, &c.EndedAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Status = ConversationStatus(status)
	ctxMap, err := decodeContext(raw)
	if err != nil {
		return nil, fmt.Errorf("store: decode context: %w", err)
	}
	c.Context = ctxMap
	return &c, nil
}

func (s *PostgresStore) ActiveConversation(ctx context.Context, patientID string) (*Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations
		WHERE patient_id = $1 AND status IN ('active', 'handoff')
		ORDER BY started_at DESC
		LIMIT 1
	`
	c, err := scanConversation(s.db.QueryRow(ctx, query, patientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: select active conversation: %w", err)
	}
	return c, nil
}

// GetOrCreateActiveConversation relies on the partial unique index
// conversations_one_open_per_patient: a losing concurrent insert returns no
// row and re-reads the winner.
func (s *PostgresStore) GetOrCreateActiveConversation(ctx context.Context, patientID string) (*Conversation, error) {
	c, err := s.ActiveConversation(ctx, patientID)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	query := `
		INSERT INTO conversations (id, patient_id, status, current_step, context)
		VALUES ($1, $2, 'active', 'welcome', '{}'::jsonb)
		ON CONFLICT (patient_id) WHERE status IN ('active', 'handoff') DO NOTHING
		RETURNING ` + conversationColumns
	c, err = scanConversation(s.db.QueryRow(ctx, query, uuid.NewString(), patientID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("store: insert conversation: %w", err)
	}
	return s.ActiveConversation(ctx, patientID)
}

func (s *PostgresStore) UpdateConversation(ctx context.Context, id string, upd ConversationUpdate) error {
	var status *string
	var sources []string
	if upd.Status != nil {
		sources = conversationSources(*upd.Status)
		if len(sources) == 0 {
			return fmt.Errorf("%w: -> %s", ErrInvalidTransition, *upd.Status)
		}
		v := string(*upd.Status)
		status = &v
	}
	var rawContext []byte
	if upd.Context != nil {
		encoded, err := encodeContext(upd.Context)
		if err != nil {
			return fmt.Errorf("store: encode context: %w", err)
		}
		rawContext = encoded
	}

	query := `
		UPDATE conversations SET
			status = COALESCE($2, status),
			current_step = COALESCE($3, current_step),
			context = COALESCE($4::jsonb, context),
			ended_at = CASE WHEN $2 = 'completed' THEN now() ELSE ended_at END,
			updated_at = now()
		WHERE id = $1 AND ($2::text IS NULL OR status = ANY($5::text[]))
	`
	tag, err := s.db.Exec(ctx, query, id, status, upd.CurrentStep, rawContext, sources)
	if err != nil {
		return fmt.Errorf("store: update conversation: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if status == nil {
		return ErrNotFound
	}

	var current string
	if err := s.db.QueryRow(ctx, `SELECT status FROM conversations WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: select conversation status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, *status)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("store: message required")
	}
	if msg.Metadata == nil {
		msg.Metadata = map[string]string{}
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	id := uuid.NewString()
	query := `
		INSERT INTO messages (id, conversation_id, direction, content, message_type, provider_message_id, metadata)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRow(ctx, query,
		id,
		msg.ConversationID,
		string(msg.Direction),
		msg.Content,
		msg.Kind,
		msg.ProviderMessageID,
		metadata,
	).Scan(&createdAt); err != nil {
		return fmt.Errorf("store: insert message: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = createdAt
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	query := `
		SELECT id, conversation_id, direction, content, message_type, COALESCE(provider_message_id, ''), metadata, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			direction string
			metadata  []byte
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &direction, &m.Content, &m.Kind, &m.ProviderMessageID, &metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		m.Direction = Direction(direction)
		m.Metadata = map[string]string{}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
				return nil, fmt.Errorf("store: decode metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateHandoff(ctx context.Context, h *Handoff) error {
	if h == nil {
		return fmt.Errorf("store: handoff required")
	}
	if h.Status == "" {
		h.Status = HandoffPending
	}
	id := uuid.NewString()
	query := `
		INSERT INTO handoffs (id, conversation_id, patient_id, reason, summary, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	var createdAt time.Time
	if err := s.db.QueryRow(ctx, query, id, h.ConversationID, h.PatientID, h.Reason, h.Summary, string(h.Status)).Scan(&createdAt); err != nil {
		return fmt.Errorf("store: insert handoff: %w", err)
	}
	h.ID = id
	h.CreatedAt = createdAt
	return nil
}

func (s *PostgresStore) UpdateHandoffStatus(ctx context.Context, id string, status HandoffStatus, handledBy string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	query := `
		UPDATE handoffs SET
			status = $2,
			handled_at = CASE WHEN $2 = 'completed' THEN now() ELSE handled_at END,
			handled_by = CASE WHEN $2 = 'completed' THEN $3 ELSE handled_by END
		WHERE id = $1 AND status = ANY($4)
	`
	tag, err := s.db.Exec(ctx, query, id, string(status), handledBy, handoffSources(status))
	if err != nil {
		return fmt.Errorf("store: update handoff: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := s.db.QueryRow(ctx, `SELECT status FROM handoffs WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("store: select handoff status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
}

func (s *PostgresStore) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a == nil {
		return fmt.Errorf("store: appointment required")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	id := uuid.NewString()
	query := `
		INSERT INTO appointments (id, patient_id, conversation_id, doctor, appointment_type, appointment_date, status, preferred_period, notes)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, 'pending', NULLIF($7, ''), NULLIF($8, ''))
		RETURNING created_at, updated_at
	`
	var createdAt, updatedAt time.Time
	if err := s.db.QueryRow(ctx, query,
		id,
		a.PatientID,
		a.ConversationID,
		a.Doctor,
		a.Type,
		a.Date,
		a.PreferredPeriod,
		a.Notes,
	).Scan(&createdAt, &updatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("store: insert appointment: %w", err)
	}
	a.ID = id
	a.Status = AppointmentPending
	a.CreatedAt = createdAt
	a.UpdatedAt = updatedAt
	return nil
}
