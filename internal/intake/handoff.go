package intake

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/archive"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/store"
)

// BuildHandoffSummary renders the operator summary stored on the handoff.
func BuildHandoffSummary(patient *store.Patient, ctx store.Context) string {
	returning := "Não"
	if patient.IsReturning {
		returning = "Sim"
	}
	lines := []string{
		"Nome: " + orDefault(ctx.Get(store.KeyName), "Não informado"),
		"Telefone: " + patient.Phone,
		"Necessidade: " + orDefault(ctx.Get(store.KeyConcern), "Não especificada"),
		"Médico sugerido: " + orDefault(ctx.Get(store.KeyDoctor), "Não definido"),
		"Preferência de horário: " + orDefault(ctx.Get(store.KeyPreferredPeriod), "Não informada"),
		"Paciente retornando: " + returning,
	}
	return strings.Join(lines, "\n")
}

// handoff hands the conversation to the operator. finalMessage is sent
// first when non-empty. Only the status transition is fatal; the handoff
// record, notification and archive are best effort.
func (o *Orchestrator) handoff(ctx context.Context, t *turn, finalMessage, reason string) error {
	ctx, span := intakeTracer.Start(ctx, "intake.handoff")
	defer span.End()

	if finalMessage != "" {
		o.deliver(ctx, t, finalMessage)
	}

	status := store.ConversationHandoff
	step := stepHandoff
	if err := o.store.UpdateConversation(ctx, t.conv.ID, store.ConversationUpdate{
		Status:      &status,
		CurrentStep: &step,
	}); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intake: transition to handoff: %w", err)
	}
	t.conv.Status = status
	t.conv.CurrentStep = step
	o.metrics.ObserveHandoff(reason)

	summary := BuildHandoffSummary(t.patient, t.conv.Context)
	record := &store.Handoff{
		ConversationID: t.conv.ID,
		PatientID:      t.patient.ID,
		Reason:         reason,
		Summary:        summary,
		Status:         store.HandoffPending,
	}
	if err := o.store.CreateHandoff(ctx, record); err != nil {
		span.RecordError(err)
		o.logger.Error("failed to persist handoff", "conversation_id", t.conv.ID, "reason", reason, "error", err)
	}

	o.logger.Info("conversation handed off",
		"conversation_id", t.conv.ID,
		"patient_id", t.patient.ID,
		"reason", reason,
	)

	if o.notifier != nil {
		notice := notify.HandoffNotice{
			ConversationID:  t.conv.ID,
			PatientName:     orDefault(t.conv.Context.Get(store.KeyName), "Não informado"),
			PatientPhone:    t.patient.Phone,
			Summary:         summary,
			Reason:          reason,
			Doctor:          t.conv.Context.Get(store.KeyDoctor),
			PreferredPeriod: t.conv.Context.Get(store.KeyPreferredPeriod),
		}
		if err := o.notifier.NotifyHandoff(ctx, notice); err != nil {
			o.logger.Warn("operator notification failed", "conversation_id", t.conv.ID, "error", err)
		}
	}

	o.archive(ctx, t, reason, summary)
	return nil
}

func (o *Orchestrator) archive(ctx context.Context, t *turn, reason, summary string) {
	if o.archiver == nil {
		return
	}
	history, err := o.store.ListMessages(ctx, t.conv.ID)
	if err != nil {
		o.logger.Warn("transcript archive skipped", "conversation_id", t.conv.ID, "error", err)
		return
	}
	messages := make([]archive.Message, 0, len(history))
	for _, m := range history {
		messages = append(messages, archive.Message{
			Direction: string(m.Direction),
			Content:   m.Content,
			Timestamp: m.CreatedAt,
		})
	}
	record := archive.TranscriptRecord{
		ConversationID: t.conv.ID,
		PatientID:      t.patient.ID,
		PhoneHash:      archive.HashPhone(t.patient.Phone),
		Reason:         reason,
		Summary:        summary,
		Context:        t.conv.Context.Clone(),
		Messages:       messages,
	}
	if err := o.archiver.ArchiveTranscript(ctx, record); err != nil {
		o.logger.Warn("transcript archive failed", "conversation_id", t.conv.ID, "error", err)
	}
}
