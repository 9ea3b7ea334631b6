package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Email    EmailConfig
	Stripe   StripeConfig
	Auth     AuthConfig
	Buzz     BuzzConfig
}

type AuthConfig struct {
	OIDCIssuer string
	// Enabled switches the verifying middleware off for local development.
	Enabled bool
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
}

type RedisConfig struct {
	Addr string
	// ClaimLockTTL bounds how long a ticket-type claim lock survives when a
	// draft booking never reaches submit.
	ClaimLockTTL time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromAddress  string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// BuzzConfig carries the organization-wide defaults. Event-level fields take
// precedence over these at the point of use.
type BuzzConfig struct {
	DefaultTicketEmailTemplate string
	// ReverseCouponUsageOnCancel controls whether cancelling a booking frees
	// its coupon usage and free-ticket claims again. Off by default.
	ReverseCouponUsageOnCancel bool
	QRSecretKey                string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			DSN:          getEnv("POSTGRES_DSN", ""),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
		},
		Redis: RedisConfig{
			Addr:         getEnv("REDIS_ADDR", "localhost:6379"),
			ClaimLockTTL: time.Duration(getEnvInt("CLAIM_LOCK_TTL_MINUTES", 5)) * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{getEnv("KAFKA_ADDR", "localhost:9092")},
			Enabled: getEnvBool("KAFKA_ENABLED", true),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", "localhost"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromAddress:  getEnv("SMTP_FROM", "tickets@buzz.local"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "usd"),
		},
		Auth: AuthConfig{
			OIDCIssuer: getEnv("OIDC_ISSUER", ""),
			Enabled:    getEnvBool("AUTH_ENABLED", true),
		},
		Buzz: BuzzConfig{
			DefaultTicketEmailTemplate: getEnv("DEFAULT_TICKET_EMAIL_TEMPLATE", ""),
			ReverseCouponUsageOnCancel: getEnvBool("REVERSE_COUPON_USAGE_ON_CANCEL", false),
			QRSecretKey:                getEnv("QR_SECRET_KEY", ""),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
