package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// HandoffEmailNotifier mails the handoff summary to the operator inbox.
type HandoffEmailNotifier struct {
	sender     EmailSender
	to         string
	clinicName string
	logger     *logging.Logger
}

func NewHandoffEmailNotifier(sender EmailSender, to, clinicName string, logger *logging.Logger) *HandoffEmailNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = defaultFromName
	}
	return &HandoffEmailNotifier{sender: sender, to: strings.TrimSpace(to), clinicName: clinicName, logger: logger}
}

// NotifyHandoff is a no-op when no sender or recipient is configured.
func (n *HandoffEmailNotifier) NotifyHandoff(ctx context.Context, notice HandoffNotice) error {
	if n == nil || n.sender == nil || n.to == "" {
		return nil
	}
	msg := EmailMessage{
		To:      n.to,
		Subject: fmt.Sprintf("Novo atendimento - %s (%s)", notice.PatientName, notice.PatientPhone),
		Body:    FormatHandoffEmail(n.clinicName, notice),
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: handoff email: %w", err)
	}
	n.logger.Info("handoff email sent", "conversation_id", notice.ConversationID, "to", n.to)
	return nil
}

// FormatHandoffEmail renders the plain-text handoff email body.
func FormatHandoffEmail(clinicName string, notice HandoffNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Novo atendimento - %s\n\n", clinicName)
	fmt.Fprintf(&b, "Paciente: %s\n", notice.PatientName)
	fmt.Fprintf(&b, "Telefone: %s\n", notice.PatientPhone)
	if notice.Reason != "" {
		fmt.Fprintf(&b, "Motivo: %s\n", notice.Reason)
	}
	b.WriteString("\nResumo da conversa:\n")
	b.WriteString(notice.Summary)
	b.WriteString("\n\nPor favor, entre em contato com o paciente para finalizar o agendamento.\n")
	return b.String()
}
