// Package whatsapp talks to the Z-API WhatsApp gateway: sending text,
// normalizing inbound webhooks and notifying the operator.
package whatsapp

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
	DefaultBaseURL = "https://api.z-api.io"
	defaultTimeout = 15 * time.Second
)

var zapiTracer = otel.Tracer("evidens.internal.whatsapp")

// ErrNotConfigured is returned when the instance or token is missing.
var ErrNotConfigured = errors.New("whatsapp: z-api credentials not configured")

// Config holds Z-API credentials.
type Config struct {
	BaseURL     string
	Instance    string
	Token       string
	ClientToken string
}

// Client sends text messages through a Z-API instance.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	instance    string
	token       string
	clientToken string
	logger      *logging.Logger
}

func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		httpClient:  &http.Client{Timeout: defaultTimeout},
		baseURL:     strings.TrimRight(base, "/"),
		instance:    strings.TrimSpace(cfg.Instance),
		token:       strings.TrimSpace(cfg.Token),
		clientToken: strings.TrimSpace(cfg.ClientToken),
		logger:      logger,
	}
}

// Configured reports whether outbound sends can be attempted.
func (c *Client) Configured() bool {
	return c != nil && c.instance != "" && c.token != ""
}

type sendTextRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// SendText delivers one text message to phone.
func (c *Client) SendText(ctx context.Context, phone, message string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	ctx, span := zapiTracer.Start(ctx, "whatsapp.send_text")
	defer span.End()
	span.SetAttributes(attribute.Int("evidens.message_length", len(message)))

	payload, err := json.Marshal(sendTextRequest{Phone: phone, Message: message})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/instances/%s/token/%s/send-text", c.baseURL, url.PathEscape(c.instance), url.PathEscape(c.token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.clientToken != "" {
		req.Header.Set("Client-Token", c.clientToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("whatsapp: send text: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := fmt.Errorf("whatsapp: z-api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		span.RecordError(err)
		c.logger.Warn("z-api send failed", "status", resp.StatusCode, "body", string(body))
		return err
	}
	c.logger.Debug("z-api message sent", "status", resp.StatusCode)
	return nil
}
