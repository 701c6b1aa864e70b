package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var completionTracer = otel.Tracer("evidens.internal.completion")

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient drafts replies through the OpenAI chat completion API.
type OpenAIClient struct {
	api   chatClient
	model string
}

// NewOpenAIClient builds a client for the given API key and default model.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("completion: openai api key is required")
	}
	return newOpenAIClientWithAPI(openai.NewClient(apiKey), model), nil
}

func newOpenAIClientWithAPI(api chatClient, model string) *OpenAIClient {
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{api: api, model: model}
}

// Complete sends the system blocks followed by the conversation turns and
// returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	ctx, span := completionTracer.Start(ctx, "completion.openai")
	defer span.End()

	if len(req.Messages) == 0 {
		return Response{}, ErrNoMessages
	}
	model := req.Model
	if strings.TrimSpace(model) == "" {
		model = c.model
	}
	span.SetAttributes(
		attribute.String("completion.model", model),
		attribute.Int("completion.messages", len(req.Messages)),
	)

	msgs := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: block})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}

	oaReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: msgs,
	}
	if req.MaxTokens > 0 {
		oaReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature >= 0 {
		oaReq.Temperature = req.Temperature
	}

	resp, err := c.api.CreateChatCompletion(ctx, oaReq)
	if err != nil {
		span.RecordError(err)
		return Response{}, fmt.Errorf("completion: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}
	choice := resp.Choices[0]
	return Response{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Provider:   "openai",
		Usage: Usage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

// openAIRole coerces unknown roles to user.
func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
