package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Provider   ProviderConfig
	Webhook    WebhookConfig
	Storage    StorageConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

// JWTConfig describes tokens minted by the external identity service.
type JWTConfig struct {
	Secret      string
	Issuer      string
	Audience    string
	ExpiryHours int
}

type EncryptionConfig struct {
	Key        string
	Recipients []string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	UserRequests  int
}

type ProviderConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	CallbackURL    string
	MaxRetries     int
	TimeoutSeconds int
}

type WebhookConfig struct {
	Secret           string
	ToleranceSeconds int
}

type StorageConfig struct {
	S3Region           string
	S3Endpoint         string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	GCSCredentialsFile string
	SignedURLMinutes   int
}

type WorkerConfig struct {
	Concurrency   int
	ReconcileCron string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) Expiry() time.Duration {
	return time.Duration(j.ExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (p *ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (p *ProviderConfig) Enabled() bool {
	return p.BaseURL != ""
}

func (w *WebhookConfig) Tolerance() time.Duration {
	return time.Duration(w.ToleranceSeconds) * time.Second
}

func (s *StorageConfig) SignedURLTTL() time.Duration {
	return time.Duration(s.SignedURLMinutes) * time.Minute
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "iamarketing")
	v.SetDefault("DATABASE_PASSWORD", "iamarketing_secret")
	v.SetDefault("DATABASE_NAME", "iamarketing")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "")
	v.SetDefault("JWT_AUDIENCE", "")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)
	v.SetDefault("ENCRYPTION_RECIPIENTS", "")
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_USER_REQUESTS", 60)
	v.SetDefault("PROVIDER_NAME", "default")
	v.SetDefault("PROVIDER_BASE_URL", "")
	v.SetDefault("PROVIDER_API_KEY", "")
	v.SetDefault("PROVIDER_CALLBACK_URL", "")
	v.SetDefault("PROVIDER_MAX_RETRIES", 3)
	v.SetDefault("PROVIDER_TIMEOUT_SECONDS", 30)
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("WEBHOOK_TOLERANCE_SECONDS", 300)
	v.SetDefault("STORAGE_S3_REGION", "us-east-1")
	v.SetDefault("STORAGE_S3_ENDPOINT", "")
	v.SetDefault("STORAGE_GCS_CREDENTIALS_FILE", "")
	v.SetDefault("STORAGE_SIGNED_URL_MINUTES", 60)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_RECONCILE_CRON", "17 * * * *")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			AllowedOrigins: splitList(v.GetString("SERVER_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:      v.GetString("JWT_SECRET"),
			Issuer:      v.GetString("JWT_ISSUER"),
			Audience:    v.GetString("JWT_AUDIENCE"),
			ExpiryHours: v.GetInt("JWT_EXPIRY_HOURS"),
		},
		Encryption: EncryptionConfig{
			Key:        v.GetString("ENCRYPTION_KEY"),
			Recipients: splitList(v.GetString("ENCRYPTION_RECIPIENTS")),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			UserRequests:  v.GetInt("RATE_LIMIT_USER_REQUESTS"),
		},
		Provider: ProviderConfig{
			Name:           v.GetString("PROVIDER_NAME"),
			BaseURL:        strings.TrimRight(v.GetString("PROVIDER_BASE_URL"), "/"),
			APIKey:         v.GetString("PROVIDER_API_KEY"),
			CallbackURL:    v.GetString("PROVIDER_CALLBACK_URL"),
			MaxRetries:     v.GetInt("PROVIDER_MAX_RETRIES"),
			TimeoutSeconds: v.GetInt("PROVIDER_TIMEOUT_SECONDS"),
		},
		Webhook: WebhookConfig{
			Secret:           v.GetString("WEBHOOK_SECRET"),
			ToleranceSeconds: v.GetInt("WEBHOOK_TOLERANCE_SECONDS"),
		},
		Storage: StorageConfig{
			S3Region:           v.GetString("STORAGE_S3_REGION"),
			S3Endpoint:         v.GetString("STORAGE_S3_ENDPOINT"),
			S3AccessKeyID:      v.GetString("STORAGE_S3_ACCESS_KEY_ID"),
			S3SecretAccessKey:  v.GetString("STORAGE_S3_SECRET_ACCESS_KEY"),
			GCSCredentialsFile: v.GetString("STORAGE_GCS_CREDENTIALS_FILE"),
			SignedURLMinutes:   v.GetInt("STORAGE_SIGNED_URL_MINUTES"),
		},
		Worker: WorkerConfig{
			Concurrency:   v.GetInt("WORKER_CONCURRENCY"),
			ReconcileCron: v.GetString("WORKER_RECONCILE_CRON"),
		},
	}

	return cfg, nil
}

// splitList parses a comma separated env value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
