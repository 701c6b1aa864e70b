// Package ghl is a minimal GoHighLevel client covering calendar free slots,
// contacts, notes and appointments.
package ghl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBaseURL  = "https://services.leadconnectorhq.com"
	APIVersion      = "2021-07-28"
	DefaultTimezone = "America/Sao_Paulo"
	defaultTimeout  = 15 * time.Second
)

var ghlTracer = otel.Tracer("evidens.internal.ghl")

// ErrNotConfigured is returned when the API key is missing.
var ErrNotConfigured = errors.New("ghl: api key not configured")

// APIError is a non-2xx response from GoHighLevel.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ghl: api returned %d: %s", e.Status, e.Body)
}

// Client calls the GoHighLevel REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	locationID string
	timezone   string
	logger     *logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimezone sets the timezone sent with free-slot queries.
func WithTimezone(tz string) Option {
	return func(c *Client) {
		if strings.TrimSpace(tz) != "" {
			c.timezone = tz
		}
	}
}

// NewClient builds a client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey, locationID string, logger *logging.Logger, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = logging.Default()
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		locationID: strings.TrimSpace(locationID),
		timezone:   DefaultTimezone,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// FreeSlots returns the ISO timestamps of open slots between startDate and
// endDate (YYYY-MM-DD).
func (c *Client) FreeSlots(ctx context.Context, calendarID, startDate, endDate string) ([]string, error) {
	ctx, span := ghlTracer.Start(ctx, "ghl.free_slots")
	defer span.End()
	span.SetAttributes(attribute.String("evidens.calendar_id", calendarID))

	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	q.Set("timezone", c.timezone)
	path := fmt.Sprintf("/calendars/%s/free-slots?%s", url.PathEscape(calendarID), q.Encode())

	var resp freeSlotsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("ghl: free slots: %w", err)
	}
	return resp.Slots, nil
}

// UpsertContact creates or updates a contact and returns its id.
func (c *Client) UpsertContact(ctx context.Context, contact Contact) (string, error) {
	ctx, span := ghlTracer.Start(ctx, "ghl.upsert_contact")
	defer span.End()

	var resp contactResponse
	body := contactRequest{LocationID: c.locationID, Contact: contact}
	if err := c.doJSON(ctx, http.MethodPost, "/contacts/", body, &resp); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("ghl: upsert contact: %w", err)
	}
	if resp.Contact.ID == "" {
		return "", errors.New("ghl: upsert contact: response missing contact id")
	}
	return resp.Contact.ID, nil
}

// AddNote attaches a free-text note to a contact.
func (c *Client) AddNote(ctx context.Context, contactID, body string) error {
	ctx, span := ghlTracer.Start(ctx, "ghl.add_note")
	defer span.End()

	path := fmt.Sprintf("/contacts/%s/notes", url.PathEscape(contactID))
	if err := c.doJSON(ctx, http.MethodPost, path, noteRequest{Body: body}, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ghl: add note: %w", err)
	}
	return nil
}

// CreateAppointment books a calendar slot for a contact.
func (c *Client) CreateAppointment(ctx context.Context, req AppointmentRequest) error {
	ctx, span := ghlTracer.Start(ctx, "ghl.create_appointment")
	defer span.End()

	if req.SelectedTimezone == "" {
		req.SelectedTimezone = c.timezone
	}
	body := appointmentRequest{LocationID: c.locationID, AppointmentRequest: req}
	if err := c.doJSON(ctx, http.MethodPost, "/calendars/events/appointments", body, nil); err != nil {
		span.RecordError(err)
		return fmt.Errorf("ghl: create appointment: %w", err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Version", APIVersion)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		c.logger.Warn("ghl API non-2xx response", "status", resp.StatusCode, "path", path, "body", msg)
		return &APIError{Status: resp.StatusCode, Body: msg}
	}
	if len(respBody) == 0 || out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
