package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const defaultStreamInterval = time.Second

// TurnHandler runs one intake turn.
type TurnHandler interface {
	Handle(ctx context.Context, in intake.Inbound) error
}

// SimulatorHandler lets operators rehearse conversations without WhatsApp.
type SimulatorHandler struct {
	turns    TurnHandler
	store    store.Store
	logger   *logging.Logger
	interval time.Duration
}

// NewSimulatorHandler builds the simulator endpoints.
func NewSimulatorHandler(turns TurnHandler, st store.Store, logger *logging.Logger) *SimulatorHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SimulatorHandler{turns: turns, store: st, logger: logger, interval: defaultStreamInterval}
}

// SimulatorMessage is the simulator's view of a stored message.
type SimulatorMessage struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type simulatorRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendMessage is POST /simulator/messages.
func (h *SimulatorHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req simulatorRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if phone == "" || strings.TrimSpace(req.Message) == "" {
		http.Error(w, "phone and message are required", http.StatusBadRequest)
		return
	}

	err := h.turns.Handle(r.Context(), intake.Inbound{
		Phone:     phone,
		Text:      req.Message,
		Kind:      "text",
		Simulated: true,
	})
	if err != nil {
		h.logger.Error("simulator turn failed", "error", err)
		http.Error(w, "failed to process message", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Messages is GET /simulator/messages?phone=.
func (h *SimulatorHandler) Messages(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	msgs, err := h.load(r.Context(), phone)
	if err != nil {
		h.logger.Error("failed to load simulator messages", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// load returns the open conversation's messages without creating records.
func (h *SimulatorHandler) load(ctx context.Context, phone string) ([]SimulatorMessage, error) {
	out := []SimulatorMessage{}
	patient, err := h.store.PatientByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	conv, err := h.store.ActiveConversation(ctx, patient.ID)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	msgs, err := h.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out = append(out, SimulatorMessage{
			ID:        m.ID,
			Direction: string(m.Direction),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	return out, nil
}

// Stream is GET /simulator/stream?phone=. It polls the store and pushes
// messages the client has not seen yet.
func (h *SimulatorHandler) Stream(w http.ResponseWriter, r *http.Request) {
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveStream(r.Context(), conn, phone)
	}).ServeHTTP(w, r)
}

func (h *SimulatorHandler) serveStream(ctx context.Context, conn *websocket.Conn, phone string) {
	closed := make(chan struct{})
	go func() {
		// Drain client frames so a close is noticed.
		var discard any
		for websocket.JSON.Receive(conn, &discard) == nil {
		}
		close(closed)
	}()

	seen := map[string]bool{}
	push := func() bool {
		msgs, err := h.load(ctx, phone)
		if err != nil {
			h.logger.Warn("simulator stream load failed", "error", err)
			return true
		}
		for _, m := range msgs {
			if seen[m.ID] {
				continue
			}
			if err := websocket.JSON.Send(conn, m); err != nil {
				return false
			}
			seen[m.ID] = true
		}
		return true
	}

	if !push() {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ticker.C:
			if !push() {
				return
			}
		}
	}
}
