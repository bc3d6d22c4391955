package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Consultation pricing
	ConsultationAmount     int64   // gross price in whole currency units
	PlatformCommissionRate float64 // platform's fraction of the amount

	// Bot fallback
	BotActivationThreshold  time.Duration // pending age before the bot takes over
	BotScanInterval         time.Duration // how often the pending scan runs
	EstimatedMinutesPerSlot int           // rough wait estimate per queue position

	// Responder backend
	GeminiApiKey string // empty means rule-based responses only

	// Messaging
	MessageMaxLength int

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string
	EmailLogFile    string // when set, emails are also appended to this file
	MockServices    bool   // capture emails in Redis instead of relying on SMTP

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "agriiq")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "8081")
	cfg.GeminiApiKey = getEnv("GEMINI_API_KEY", "")
	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "noreply@agriiq.example.com")
	cfg.EmailLogFile = getEnv("EMAIL_LOG_FILE", "")
	cfg.MockServices = getEnv("MOCK_SERVICES", "") != ""

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.ConsultationAmount, err = strconv.ParseInt(getEnv("CONSULTATION_AMOUNT", "199"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CONSULTATION_AMOUNT: %w", err)
	}

	cfg.PlatformCommissionRate, err = strconv.ParseFloat(getEnv("PLATFORM_COMMISSION_RATE", "0.30"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid PLATFORM_COMMISSION_RATE: %w", err)
	}
	if cfg.PlatformCommissionRate < 0 || cfg.PlatformCommissionRate > 1 {
		return nil, fmt.Errorf("PLATFORM_COMMISSION_RATE must be between 0 and 1")
	}

	botThresholdSeconds, err := strconv.ParseInt(getEnv("BOT_ACTIVATION_THRESHOLD_SECONDS", "120"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_ACTIVATION_THRESHOLD_SECONDS: %w", err)
	}
	cfg.BotActivationThreshold = time.Duration(botThresholdSeconds) * time.Second

	botScanSeconds, err := strconv.ParseInt(getEnv("BOT_SCAN_INTERVAL_SECONDS", "20"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BOT_SCAN_INTERVAL_SECONDS: %w", err)
	}
	cfg.BotScanInterval = time.Duration(botScanSeconds) * time.Second

	cfg.EstimatedMinutesPerSlot, err = strconv.Atoi(getEnv("ESTIMATED_MINUTES_PER_SLOT", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESTIMATED_MINUTES_PER_SLOT: %w", err)
	}

	cfg.MessageMaxLength, err = strconv.Atoi(getEnv("MESSAGE_MAX_LENGTH", "2000"))
	if err != nil {
		return nil, fmt.Errorf("invalid MESSAGE_MAX_LENGTH: %w", err)
	}

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
