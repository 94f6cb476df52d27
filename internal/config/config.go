// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Payment     PaymentConfig
	Inference   InferenceConfig
	Matching    MatchingConfig
	Batch       BatchConfig
	Email       EmailConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	Log         LogConfig
}

type FrontendConfig struct {
	BaseURL string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Driver       string // postgres or sqlite
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	SQLitePath   string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
}

type PaymentConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	WebhookSecret        string
	Currency             string
	UnitPrice            decimal.Decimal
	SimilarityUnitPrice  decimal.Decimal
	MaxSelection         int
	SuccessURL           string
	FailureURL           string
	PendingURL           string
}

type InferenceConfig struct {
	Provider          string
	APIKey            string
	BaseURL           string
	Model             string
	Temperature       float64
	MaxTokens         int
	RequestsPerMinute int
	Timeout           time.Duration
}

type MatchingConfig struct {
	MaxCandidates  int
	MaxSuggestions int
	MinMatchScore  int
}

type BatchConfig struct {
	MaxAttempts        int
	InitialBackoff     time.Duration
	MaxBackoff         time.Duration
	RateLimitBackoff   time.Duration
	ErrorMessageLength int
	AllowWebContext    bool
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type I18nConfig struct {
	DefaultLocale string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "vendormatch"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("DB_SQLITE_PATH", "vendormatch.db"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "vendormatch-uploads"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
		},
		Payment: PaymentConfig{
			StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
			WebhookSecret:        getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Currency:             getEnv("PAYMENT_CURRENCY", "usd"),
			UnitPrice:            getEnvAsDecimal("UNLOCK_UNIT_PRICE", decimal.NewFromInt(5)),
			SimilarityUnitPrice:  getEnvAsDecimal("SIMILARITY_UNIT_PRICE", decimal.NewFromInt(3)),
			MaxSelection:         getEnvAsInt("MAX_SELECTION", 5),
			SuccessURL:           getEnv("PAYMENT_SUCCESS_URL", ""),
			FailureURL:           getEnv("PAYMENT_FAILURE_URL", ""),
			PendingURL:           getEnv("PAYMENT_PENDING_URL", ""),
		},
		Inference: InferenceConfig{
			Provider:          getEnv("INFERENCE_PROVIDER", "openai"),
			APIKey:            getEnv("INFERENCE_API_KEY", ""),
			BaseURL:           getEnv("INFERENCE_BASE_URL", ""),
			Model:             getEnv("INFERENCE_MODEL", "gpt-4o-mini"),
			Temperature:       getEnvAsFloat("INFERENCE_TEMPERATURE", 0.2),
			MaxTokens:         getEnvAsInt("INFERENCE_MAX_TOKENS", 2000),
			RequestsPerMinute: getEnvAsInt("INFERENCE_REQUESTS_PER_MINUTE", 60),
			Timeout:           getEnvAsDuration("INFERENCE_TIMEOUT", 60*time.Second),
		},
		Matching: MatchingConfig{
			MaxCandidates:  getEnvAsInt("MATCH_MAX_CANDIDATES", 100),
			MaxSuggestions: getEnvAsInt("MATCH_MAX_SUGGESTIONS", 8),
			MinMatchScore:  getEnvAsInt("MATCH_MIN_SCORE", 50),
		},
		Batch: BatchConfig{
			MaxAttempts:        getEnvAsInt("BATCH_MAX_ATTEMPTS", 3),
			InitialBackoff:     getEnvAsDuration("BATCH_INITIAL_BACKOFF", 2*time.Second),
			MaxBackoff:         getEnvAsDuration("BATCH_MAX_BACKOFF", 30*time.Second),
			RateLimitBackoff:   getEnvAsDuration("BATCH_RATE_LIMIT_BACKOFF", 15*time.Second),
			ErrorMessageLength: getEnvAsInt("BATCH_ERROR_MESSAGE_LENGTH", 500),
			AllowWebContext:    getEnvAsBool("BATCH_ALLOW_WEB_CONTEXT", false),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@vendormatch.io"),
			FromName:     getEnv("FROM_NAME", "VendorMatch"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL: getEnv("FRONTEND_BASE_URL", "http://localhost:3000"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Payment.WebhookSecret == "" && c.Environment == "production" {
		return fmt.Errorf("payment webhook secret is required in production")
	}

	if c.Payment.MaxSelection < 1 {
		return fmt.Errorf("MAX_SELECTION must be at least 1")
	}

	if !c.Payment.UnitPrice.IsPositive() || !c.Payment.SimilarityUnitPrice.IsPositive() {
		return fmt.Errorf("unit prices must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
