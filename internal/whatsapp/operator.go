package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// TextSender is the outbound primitive the operator notifier needs.
type TextSender interface {
	SendText(ctx context.Context, phone, message string) error
}

// OperatorNotifier sends the handoff card to the operator's WhatsApp.
type OperatorNotifier struct {
	sender     TextSender
	phone      string
	clinicName string
	logger     *logging.Logger
}

func NewOperatorNotifier(sender TextSender, operatorPhone, clinicName string, logger *logging.Logger) *OperatorNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if clinicName == "" {
		clinicName = "EviDenS Clinic"
	}
	return &OperatorNotifier{
		sender:     sender,
		phone:      strings.TrimSpace(operatorPhone),
		clinicName: clinicName,
		logger:     logger,
	}
}

// NotifyHandoff returns ErrNotConfigured when no operator phone is set.
func (n *OperatorNotifier) NotifyHandoff(ctx context.Context, notice notify.HandoffNotice) error {
	if n.phone == "" || n.sender == nil {
		n.logger.Warn("operator phone not configured, skipping whatsapp handoff notice", "conversation_id", notice.ConversationID)
		return ErrNotConfigured
	}
	if err := n.sender.SendText(ctx, n.phone, FormatOperatorMessage(n.clinicName, notice)); err != nil {
		return fmt.Errorf("whatsapp: notify operator: %w", err)
	}
	n.logger.Info("operator notified via whatsapp", "conversation_id", notice.ConversationID)
	return nil
}

// FormatOperatorMessage renders the WhatsApp handoff card.
func FormatOperatorMessage(clinicName string, notice notify.HandoffNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 *Novo Atendimento - %s*\n\n", clinicName)
	fmt.Fprintf(&b, "👤 *Paciente:* %s\n", notice.PatientName)
	fmt.Fprintf(&b, "📱 *Telefone:* %s\n\n", notice.PatientPhone)
	fmt.Fprintf(&b, "📋 *Resumo da Conversa:*\n%s\n\n", notice.Summary)
	if notice.Doctor != "" {
		fmt.Fprintf(&b, "👨‍⚕️ *Médico Escolhido:* %s\n", notice.Doctor)
	}
	if notice.PreferredPeriod != "" {
		fmt.Fprintf(&b, "🕐 *Preferência de Horário:* %s\n", notice.PreferredPeriod)
	}
	if notice.AppointmentType != "" {
		fmt.Fprintf(&b, "📝 *Tipo:* %s\n", notice.AppointmentType)
	}
	b.WriteString("\n---\nPor favor, entre em contato com o paciente para finalizar o agendamento.")
	return strings.TrimSpace(b.String())
}
