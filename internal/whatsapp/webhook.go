package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// WebhookPayload is the subset of the Z-API on-message-received payload the
// bot reads.
type WebhookPayload struct {
	InstanceID       string `json:"instanceId"`
	MessageID        string `json:"messageId"`
	Phone            string `json:"phone"`
	FromMe           bool   `json:"fromMe"`
	Moment           int64  `json:"momment"`
	Status           string `json:"status"`
	ChatName         string `json:"chatName"`
	SenderName       string `json:"senderName"`
	ParticipantPhone string `json:"participantPhone"`
	Type             string `json:"type"`
	Text             *struct {
		Message string `json:"message"`
	} `json:"text,omitempty"`
	Image *mediaPayload `json:"image,omitempty"`
	Video *mediaPayload `json:"video,omitempty"`
}

type mediaPayload struct {
	Caption  string `json:"caption"`
	MimeType string `json:"mimeType"`
}

// Message is a normalized inbound patient message.
type Message struct {
	Phone      string
	Text       string
	Kind       string
	MessageID  string
	SenderName string
}

// ParseWebhook decodes and normalizes a Z-API webhook body. ok is false for
// payloads the bot should ignore: our own messages, no sender, no type.
func ParseWebhook(body []byte) (Message, bool, error) {
	var p WebhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return Message{}, false, fmt.Errorf("whatsapp: decode webhook: %w", err)
	}
	msg, ok := Normalize(p)
	return msg, ok, nil
}

// Normalize maps a decoded payload to a Message.
func Normalize(p WebhookPayload) (Message, bool) {
	if p.FromMe {
		return Message{}, false
	}
	phone := strings.TrimSpace(p.Phone)
	if phone == "" {
		phone = strings.TrimSpace(p.ParticipantPhone)
	}
	if phone == "" {
		return Message{}, false
	}

	msg := Message{Phone: phone, MessageID: p.MessageID, SenderName: p.SenderName}
	switch {
	case p.Type == "text" && p.Text != nil && p.Text.Message != "":
		msg.Kind, msg.Text = "text", p.Text.Message
	case p.Type == "image" && p.Image != nil && p.Image.Caption != "":
		msg.Kind, msg.Text = "image", p.Image.Caption
	case p.Type == "video" && p.Video != nil && p.Video.Caption != "":
		msg.Kind, msg.Text = "video", p.Video.Caption
	case p.Type != "":
		msg.Kind, msg.Text = p.Type, "["+p.Type+"]"
	default:
		return Message{}, false
	}
	return msg, true
}

// IsSimulatorPhone reports whether phone has the synthetic simulator shape:
// 13 characters starting with the 55 country code.
func IsSimulatorPhone(phone string) bool {
	return len(phone) == 13 && strings.HasPrefix(phone, "55")
}
