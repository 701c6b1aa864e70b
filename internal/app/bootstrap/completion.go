package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/completion"
	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

const (
	providerOpenAI  = "openai"
	providerGemini  = "gemini"
	providerBedrock = "bedrock"
)

// BuildCompletionClient wires the configured primary provider, an optional
// fallback provider and the per-call timeout.
func BuildCompletionClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (completion.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	primary, err := buildProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: primary completion provider: %w", err)
	}

	var fallback completion.Client
	if name := strings.TrimSpace(cfg.LLMFallbackProvider); name != "" && name != cfg.LLMProvider {
		fallback, err = buildProvider(ctx, name, cfg, awsCfg)
		if err != nil {
			logger.Warn("fallback completion provider unavailable", "provider", name, "error", err)
			fallback = nil
		}
	}

	logger.Info("completion client configured", "provider", cfg.LLMProvider, "fallback", cfg.LLMFallbackProvider)
	client := completion.Client(completion.NewFallbackClient(primary, fallback, logger))
	return withTimeout(client, cfg.LLMTimeout), nil
}

func buildProvider(ctx context.Context, name string, cfg *appconfig.Config, awsCfg aws.Config) (completion.Client, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case providerOpenAI, "":
		return completion.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	case providerGemini:
		return completion.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	case providerBedrock:
		if strings.TrimSpace(cfg.BedrockModelID) == "" {
			return nil, fmt.Errorf("bedrock model id is required")
		}
		return completion.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// withTimeout bounds every completion call.
func withTimeout(client completion.Client, timeout time.Duration) completion.Client {
	if timeout <= 0 {
		return client
	}
	return completion.ClientFunc(func(ctx context.Context, req completion.Request) (completion.Response, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Complete(ctx, req)
	})
}
