package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int
	DatabaseURL    string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	IntakeQueueURL      string
	IntakeJobsTable     string
	TranscriptBucket    string

	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	PatientLockTTL time.Duration

	// Completion providers
	LLMProvider         string
	LLMFallbackProvider string
	LLMTimeout          time.Duration
	LLMMaxTokens        int
	LLMTemperature      float64
	OpenAIAPIKey        string
	OpenAIModel         string
	GeminiAPIKey        string
	GeminiModel         string
	BedrockModelID      string

	// Z-API WhatsApp gateway
	ZAPIBaseURL       string
	ZAPIInstance      string
	ZAPIToken         string
	ZAPIClientToken   string
	ZAPIWebhookSecret string
	WebhookRateLimit  float64
	WebhookRateBurst  int

	// Intake policy
	AllowedPhoneNumbers []string
	OperatorName        string
	OperatorHandle      string
	OperatorPhone       string
	OperatorEmail       string
	ClinicName          string
	ClinicTimezone      string
	AvailabilityDays    int

	// GoHighLevel CRM / calendar
	GHLBaseURL    string
	GHLAPIKey     string
	GHLLocationID string
	GHLCalendarID string

	// Email notification
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),
		DatabaseURL:    getEnv("DATABASE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "sa-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		IntakeQueueURL:      getEnv("INTAKE_QUEUE_URL", ""),
		IntakeJobsTable:     getEnv("INTAKE_JOBS_TABLE", ""),
		TranscriptBucket:    getEnv("TRANSCRIPT_BUCKET", ""),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		PatientLockTTL: getEnvAsDuration("PATIENT_LOCK_TTL", 30*time.Second),

		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMFallbackProvider: strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", "")),
		LLMTimeout:          getEnvAsDuration("LLM_TIMEOUT", 30*time.Second),
		LLMMaxTokens:        getEnvAsInt("LLM_MAX_TOKENS", 500),
		LLMTemperature:      getEnvAsFloat("LLM_TEMPERATURE", 0.7),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		BedrockModelID:      getEnv("BEDROCK_MODEL_ID", ""),

		ZAPIBaseURL:       getEnv("Z_API_BASE_URL", "https://api.z-api.io"),
		ZAPIInstance:      getEnv("Z_API_INSTANCE", ""),
		ZAPIToken:         getEnv("Z_API_TOKEN", ""),
		ZAPIClientToken:   getEnv("Z_API_CLIENT_TOKEN", ""),
		ZAPIWebhookSecret: getEnv("Z_API_WEBHOOK_SECRET", ""),
		WebhookRateLimit:  getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:  getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		AllowedPhoneNumbers: getEnvAsList("ALLOWED_PHONE_NUMBERS"),
		OperatorName:        getEnv("OPERATOR_NAME", "Eliana"),
		OperatorHandle:      getEnv("OPERATOR_HANDLE", "eliana"),
		OperatorPhone:       getEnv("OPERATOR_PHONE_NUMBER", ""),
		OperatorEmail:       getEnv("OPERATOR_EMAIL", ""),
		ClinicName:          getEnv("CLINIC_NAME", "EviDenS Clinic"),
		ClinicTimezone:      getEnv("CLINIC_TIMEZONE", "America/Sao_Paulo"),
		AvailabilityDays:    getEnvAsInt("AVAILABILITY_DAYS", 7),

		GHLBaseURL:    getEnv("GHL_BASE_URL", "https://services.leadconnectorhq.com"),
		GHLAPIKey:     getEnv("GHL_API_KEY", ""),
		GHLLocationID: getEnv("GHL_LOCATION_ID", ""),
		GHLCalendarID: getEnv("GHL_CALENDAR_ID", ""),

		EmailProvider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "sendgrid")),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "EviDenS Clinic"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
