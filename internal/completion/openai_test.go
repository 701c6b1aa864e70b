package completion

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type stubChatClient struct {
	response openai.ChatCompletionResponse
	err      error
	last     openai.ChatCompletionRequest
}

func (s *stubChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.last = req
	return s.response, s.err
}

func TestOpenAIClient_Complete(t *testing.T) {
	stub := &stubChatClient{response: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: "  Olá! Como posso ajudar?  "}, FinishReason: openai.FinishReasonStop},
		},
		Usage: openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
	client := newOpenAIClientWithAPI(stub, "")

	resp, err := client.Complete(context.Background(), Request{
		System:      []string{"prompt", "  ", "context"},
		Messages:    []Message{{Role: RoleUser, Content: "oi"}, {Role: "operator", Content: "?"}},
		MaxTokens:   500,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Text != "Olá! Como posso ajudar?" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if resp.Usage.TotalTokens != 15 || resp.Provider != "openai" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if stub.last.Model != "gpt-4o-mini" || stub.last.MaxTokens != 500 {
		t.Fatalf("unexpected request %#v", stub.last)
	}
	if len(stub.last.Messages) != 4 {
		t.Fatalf("expected 2 system + 2 turns, got %d", len(stub.last.Messages))
	}
	if stub.last.Messages[0].Role != openai.ChatMessageRoleSystem || stub.last.Messages[1].Content != "context" {
		t.Fatalf("system blocks not forwarded: %#v", stub.last.Messages[:2])
	}
	if stub.last.Messages[3].Role != openai.ChatMessageRoleUser {
		t.Fatalf("unknown role should be coerced to user, got %s", stub.last.Messages[3].Role)
	}
}

func TestOpenAIClient_Errors(t *testing.T) {
	client := newOpenAIClientWithAPI(&stubChatClient{}, "gpt-4o")
	if _, err := client.Complete(context.Background(), Request{}); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("expected ErrNoMessages, got %v", err)
	}
	if _, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}

	boom := errors.New("rate limited")
	client = newOpenAIClientWithAPI(&stubChatClient{err: boom}, "gpt-4o")
	if _, err := client.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "oi"}}}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIClient(" ", ""); err == nil {
		t.Fatal("expected error for blank api key")
	}
}
