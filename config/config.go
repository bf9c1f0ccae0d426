package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	App      AppConfig
	Gateway  GatewayConfig
	AWS      AWSConfig
	Email    EmailConfig
	Kafka    KafkaConfig
	Referral ReferralConfig
	Worker   WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AppConfig holds public site settings used to build redirects.
type AppConfig struct {
	BaseURL          string // public site origin, e.g. https://kampusakademi.com
	DefaultLocale    string
	SupportedLocales []string
	OrderIDPrefix    string
}

// GatewayConfig holds the payment processor's OAuth2 client settings.
type GatewayConfig struct {
	ClientID        string
	ClientSecret    string
	AuthURL         string
	TokenURL        string
	RedirectURL     string
	Scopes          []string
	StateSecret     string
	StateTTLMinutes int
	WebhookSecret   string // empty disables signature verification
	TimeoutSec      int
}

// AWSConfig holds AWS credentials and the bucket for form attachments.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	FormsBucket          string
	PresignExpireMinutes int
}

// EmailConfig holds transactional email (Brevo) settings.
type EmailConfig struct {
	APIURL       string
	APIKey       string
	FromAddress  string
	FromName     string
	AdminAddress string // receives form submissions
}

// KafkaConfig for order lifecycle events. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// ReferralConfig controls reward code issuance.
type ReferralConfig struct {
	RewardEvery     int    // issue a reward every N successful referrals
	RewardAmount    string // decimal string, balance of the reward code
	RewardValidDays int
	RefereePercent  int // discount a referred buyer gets
	MaxUsage        int
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	SyncCron      string
	SyncBatchSize int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "kampus"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		App: AppConfig{
			BaseURL:          strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
			DefaultLocale:    getEnv("APP_DEFAULT_LOCALE", "tr"),
			SupportedLocales: splitTrim(getEnv("APP_LOCALES", "tr,en"), ","),
			OrderIDPrefix:    getEnv("ORDER_ID_PREFIX", "ORD"),
		},
		Gateway: GatewayConfig{
			ClientID:        getEnv("GATEWAY_CLIENT_ID", ""),
			ClientSecret:    getEnv("GATEWAY_CLIENT_SECRET", ""),
			AuthURL:         getEnv("GATEWAY_AUTH_URL", ""),
			TokenURL:        getEnv("GATEWAY_TOKEN_URL", ""),
			RedirectURL:     getEnv("GATEWAY_REDIRECT_URL", "http://localhost:8080/payments/callback"),
			Scopes:          splitTrim(getEnv("GATEWAY_SCOPES", "payment"), ","),
			StateSecret:     getEnv("GATEWAY_STATE_SECRET", ""),
			StateTTLMinutes: getEnvInt("GATEWAY_STATE_TTL_MINUTES", 120),
			WebhookSecret:   getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			TimeoutSec:      getEnvInt("GATEWAY_TIMEOUT_SEC", 15),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "eu-central-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			FormsBucket:          getEnv("AWS_S3_FORMS_BUCKET", "kampus-form-attachments"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Email: EmailConfig{
			APIURL:       getEnv("BREVO_API_URL", "https://api.brevo.com/v3/smtp/email"),
			APIKey:       getEnv("BREVO_API_KEY", ""),
			FromAddress:  getEnv("EMAIL_FROM_ADDRESS", "noreply@kampusakademi.com"),
			FromName:     getEnv("EMAIL_FROM_NAME", "Kampus Akademi"),
			AdminAddress: getEnv("EMAIL_ADMIN_ADDRESS", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitTrim(getEnv("KAFKA_BROKERS", ""), ","),
			Topic:   getEnv("KAFKA_ORDER_TOPIC", "orders"),
		},
		Referral: ReferralConfig{
			RewardEvery:     getEnvInt("REFERRAL_REWARD_EVERY", 1),
			RewardAmount:    getEnv("REFERRAL_REWARD_AMOUNT", "100.00"),
			RewardValidDays: getEnvInt("REFERRAL_REWARD_VALID_DAYS", 180),
			RefereePercent:  getEnvInt("REFERRAL_REFEREE_PERCENT", 10),
			MaxUsage:        getEnvInt("REFERRAL_MAX_USAGE", 1000),
		},
		Worker: WorkerConfig{
			SyncCron:      getEnv("WORKER_SYNC_CRON", "*/10 * * * *"),
			SyncBatchSize: getEnvInt("WORKER_SYNC_BATCH", 100),
		},
	}
	if cfg.Gateway.StateSecret == "" {
		return nil, fmt.Errorf("GATEWAY_STATE_SECRET must not be empty")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
