// Package config loads ConeDex runtime configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the full server/CLI configuration.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=15s"`
	LogLevel        string        `env:"LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOG_FORMAT,default=json"`

	DatabaseURL    string        `env:"DATABASE_URL"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS,default=20"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS,default=5"`
	DBConnMaxLife  time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE,default=true"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_KEY"`
	SupabaseJWTSecret  string `env:"SUPABASE_JWT_SECRET"`
	StorageBucket      string `env:"STORAGE_BUCKET,default=shop-photos"`

	PlacesAPIKey string  `env:"GOOGLE_PLACES_API_KEY"`
	PlacesRPS    float64 `env:"PLACES_RPS,default=5"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	MailFrom       string `env:"MAIL_FROM,default=hello@conedex.app"`
	MailFromName   string `env:"MAIL_FROM_NAME,default=ConeDex"`
	PublicBaseURL  string `env:"PUBLIC_BASE_URL,default=http://localhost:8080"`

	OpenAIAPIKey   string `env:"OPENAI_API_KEY"`
	OpenAIModel    string `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY"`
	EmbeddingModel string `env:"EMBEDDING_MODEL,default=gemini-embedding-001"`

	RedisURL string `env:"REDIS_URL"`

	CORSOrigins    string  `env:"CORS_ORIGINS,default=*"`
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=40"`
	AdminAuditFile string  `env:"ADMIN_AUDIT_FILE"`
}

// Load reads an optional .env file (or the files named in envFiles) and
// decodes the environment into a Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must not be negative")
	}
	if c.PlacesRPS <= 0 {
		return fmt.Errorf("PLACES_RPS must be positive")
	}
	if c.SupabaseServiceKey != "" && c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required when SUPABASE_SERVICE_KEY is set")
	}
	if c.PublicBaseURL == "" {
		return fmt.Errorf("PUBLIC_BASE_URL is required")
	}
	return nil
}

// CORSOriginList splits CORS_ORIGINS on commas.
func (c *Config) CORSOriginList() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

// UsePostgres reports whether a database URL was configured.
func (c *Config) UsePostgres() bool {
	return strings.TrimSpace(c.DatabaseURL) != ""
}
