package bootstrap

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/evidens-whatsapp-bot/internal/config"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/notify"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/whatsapp"
	"github.com/wolfman30/evidens-whatsapp-bot/pkg/logging"
)

// BuildEmailSender picks the configured email provider. Missing credentials
// fall back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		if strings.TrimSpace(cfg.SESFromEmail) != "" {
			return notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
				FromEmail: cfg.SESFromEmail,
				FromName:  cfg.ClinicName,
			}, logger)
		}
		logger.Warn("ses selected but SES_FROM_EMAIL is empty; using stub email sender")
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildOperatorNotifier fans handoff notices out to the operator's WhatsApp
// and inbox. Channels without a destination are left out.
func BuildOperatorNotifier(cfg *appconfig.Config, sender whatsapp.TextSender, email notify.EmailSender, logger *logging.Logger) intake.OperatorNotifier {
	var channels intake.MultiNotifier
	if strings.TrimSpace(cfg.OperatorPhone) != "" && sender != nil {
		channels = append(channels, whatsapp.NewOperatorNotifier(sender, cfg.OperatorPhone, cfg.ClinicName, logger))
	}
	if strings.TrimSpace(cfg.OperatorEmail) != "" && email != nil {
		channels = append(channels, notify.NewHandoffEmailNotifier(email, cfg.OperatorEmail, cfg.ClinicName, logger))
	}
	if len(channels) == 0 {
		return nil
	}
	return channels
}
