package intake

import (
	"context"
	"errors"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
)

// OperatorNotifier tells the human operator a conversation needs them.
type OperatorNotifier interface {
	NotifyHandoff(ctx context.Context, notice notify.HandoffNotice) error
}

// MultiNotifier fans a notice out to every channel. All channels are
// attempted; the joined error reports the ones that failed.
type MultiNotifier []OperatorNotifier

func (m MultiNotifier) NotifyHandoff(ctx context.Context, notice notify.HandoffNotice) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyHandoff(ctx, notice); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
