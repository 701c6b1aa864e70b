package completion

import (
	"context"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// FallbackClient retries a failed primary completion against a secondary
// provider. A nil fallback makes it a pass-through.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	c.logger.Warn("primary completion failed", "error", err, "fallback_available", c.fallback != nil)
	if c.fallback == nil {
		return Response{}, err
	}
	if ctx.Err() != nil {
		return Response{}, err
	}

	resp, fbErr := c.fallback.Complete(ctx, req)
	if fbErr != nil {
		c.logger.Error("fallback completion failed", "primary_error", err, "fallback_error", fbErr)
		return Response{}, fbErr
	}
	c.logger.Info("fallback completion succeeded", "provider", resp.Provider)
	return resp, nil
}
