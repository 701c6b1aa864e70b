package config

import (
	"github.com/wolfman30/evidens-whatsapp-bot/internal/intake"
	"github.com/wolfman30/evidens-whatsapp-bot/internal/whatsapp"
)

// IntakeConfig builds the orchestrator policy. Model stays empty so each
// completion provider uses its own configured model.
func (c *Config) IntakeConfig() intake.Config {
	return intake.Config{
		AllowedPhones:    append([]string(nil), c.AllowedPhoneNumbers...),
		OperatorName:     c.OperatorName,
		AvailabilityDays: c.AvailabilityDays,
		IsSimulator:      whatsapp.IsSimulatorPhone,
		MaxTokens:        int32(c.LLMMaxTokens),
		Temperature:      float32(c.LLMTemperature),
	}
}
