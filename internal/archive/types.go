package archive

import "time"

// TranscriptRecord is a handed-off conversation as archived to S3.
type TranscriptRecord struct {
	Version        string            `json:"version"`
	ConversationID string            `json:"conversation_id"`
	PatientID      string            `json:"patient_id"`
	PhoneHash      string            `json:"phone_hash"`
	Reason         string            `json:"reason"`
	Summary        string            `json:"summary"`
	Context        map[string]string `json:"context,omitempty"`
	ArchivedAt     time.Time         `json:"archived_at"`
	MessageCount   int               `json:"message_count"`
	Messages       []Message         `json:"messages"`
}

// Message is a single conversation turn.
type Message struct {
	Direction string    `json:"direction"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one JSONL line in the monthly manifest file.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	S3Key          string `json:"s3_key"`
	Reason         string `json:"reason"`
	ArchivedAt     string `json:"archived_at"`
	MessageCount   int    `json:"message_count"`
}
