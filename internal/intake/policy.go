package intake

import (
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
)

// MaxAutomatedHistory is the history length beyond which the bot stops.
const MaxAutomatedHistory = 10

// Handoff triggers, reported for logging.
const (
	TriggerNone      = ""
	TriggerDraftCue  = "draft_cue"
	TriggerQualified = "qualified"
	TriggerHistory   = "history_limit"
)

var defaultCues = []string{"chamar", "transferir"}

// Policy decides when the bot hands a conversation to the operator.
type Policy struct {
	OperatorName string
	Cues         []string
}

// DefaultPolicy escalates to Eliana on the standard cues.
func DefaultPolicy() Policy {
	return NewPolicy(defaultOperatorName)
}

// NewPolicy builds a policy for the named operator with the standard cues.
func NewPolicy(operatorName string) Policy {
	if strings.TrimSpace(operatorName) == "" {
		operatorName = defaultOperatorName
	}
	cues := make([]string, len(defaultCues))
	copy(cues, defaultCues)
	return Policy{OperatorName: operatorName, Cues: cues}
}

// ShouldHandoff reports whether the turn should end in a handoff.
func (p Policy) ShouldHandoff(ctx store.Context, historyLen int, draft string) bool {
	return p.Evaluate(ctx, historyLen, draft) != TriggerNone
}

// Evaluate returns the first trigger that fires, or TriggerNone.
func (p Policy) Evaluate(ctx store.Context, historyLen int, draft string) string {
	lower := strings.ToLower(draft)
	if name := strings.ToLower(strings.TrimSpace(p.OperatorName)); name != "" && strings.Contains(lower, name) {
		return TriggerDraftCue
	}
	for _, cue := range p.Cues {
		cue = strings.ToLower(strings.TrimSpace(cue))
		if cue != "" && strings.Contains(lower, cue) {
			return TriggerDraftCue
		}
	}

	normalized := store.NormalizeContext(ctx)
	if normalized.Has(store.KeyName) && normalized.Has(store.KeyConcern) && normalized.Has(store.KeyPreferredPeriod) {
		return TriggerQualified
	}

	if historyLen > MaxAutomatedHistory {
		return TriggerHistory
	}
	return TriggerNone
}
