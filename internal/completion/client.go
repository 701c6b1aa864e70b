// Package completion wraps the chat-completion providers used to draft
// patient replies.
package completion

import (
	"context"
	"errors"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of the conversation sent to a provider.
type Message struct {
	Role    Role
	Content string
}

// Request is a provider-neutral completion request.
// A negative Temperature leaves the provider default in place.
type Request struct {
	Model       string
	System      []string
	Messages    []Message
	MaxTokens   int32
	Temperature float32
}

// Usage is the token accounting reported by a provider, when available.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Response is the provider-neutral completion result.
type Response struct {
	Text       string
	StopReason string
	Provider   string
	Usage      Usage
}

// Client produces a single completion for a request.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

var (
	// ErrNoMessages is returned when a request carries no conversational turns.
	ErrNoMessages = errors.New("completion: at least one message is required")
	// ErrEmptyResponse is returned when a provider answered without any choice.
	ErrEmptyResponse = errors.New("completion: provider returned no choices")
)

// ClientFunc adapts a function into a Client.
type ClientFunc func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}
