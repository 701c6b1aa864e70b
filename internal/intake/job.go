package intake

import (
	"context"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/inbound"
)

var _ inbound.Handler = (*Orchestrator)(nil)

// HandleJob runs the turn for a queued webhook message.
func (o *Orchestrator) HandleJob(ctx context.Context, job inbound.Job) error {
	return o.Handle(ctx, Inbound{
		Phone:             job.Phone,
		Text:              job.Text,
		Kind:              job.Kind,
		ProviderMessageID: job.ProviderMessageID,
		SenderName:        job.SenderName,
		Simulated:         job.Simulated,
	})
}
