package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Ticket payload encryption
	TicketSecret  string
	PayloadMaxAge time.Duration

	// QR rendering
	QRSize int

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Scan endpoint rate limiting (requests per validator per minute)
	ScanRateLimit int

	// PubNub configuration (realtime gate feed)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// MailerSend configuration
	MailerSendAPIKey string
	MailFromEmail    string
	MailFromName     string

	// Expiry sweeper
	ExpirySweepInterval time.Duration

	// Pricing
	DefaultCurrency string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Ticket payload encryption
		TicketSecret:  getEnv("TICKET_SECRET", "dev-only-ticket-secret"),
		PayloadMaxAge: getEnvAsDuration("PAYLOAD_MAX_AGE", "24h"),

		// QR rendering
		QRSize: getEnvAsInt("QR_SIZE", 256),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Rate limiting
		ScanRateLimit: getEnvAsInt("SCAN_RATE_LIMIT", 60),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// MailerSend
		MailerSendAPIKey: getEnv("MAILERSEND_API_KEY", ""),
		MailFromEmail:    getEnv("MAIL_FROM_EMAIL", "tickets@example.com"),
		MailFromName:     getEnv("MAIL_FROM_NAME", "Ticket Desk"),

		// Expiry sweeper
		ExpirySweepInterval: getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", "1h"),

		// Pricing
		DefaultCurrency: getEnv("DEFAULT_CURRENCY", "USD"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
