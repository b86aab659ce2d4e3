package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port           string `envconfig:"PORT" default:"5300"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`
	Environment    string `envconfig:"ENVIRONMENT" default:"production"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	LevelXPUnit         int           `envconfig:"LEVEL_XP_UNIT" default:"1000"`
	RequiredValidations int           `envconfig:"REQUIRED_VALIDATIONS" default:"2"`
	ValidationTTL       time.Duration `envconfig:"VALIDATION_TTL" default:"168h"`
	ExpirySweepInterval time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"1h"`

	AMQPURL       string `envconfig:"AMQP_URL"`
	EventExchange string `envconfig:"EVENT_EXCHANGE" default:"progression.events"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	R2 R2Config

	ArchiveInterval time.Duration `envconfig:"ARCHIVE_INTERVAL" default:"24h"`
}

type R2Config struct {
	AccountID       string `envconfig:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `envconfig:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `envconfig:"R2_BUCKET_NAME"`
}

// Enabled reports whether the ledger archive has somewhere to go.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.Bucket != ""
}

// Development toggles strict catalog checking: a missing reward reason
// is fatal in dev and a zero-amount warning in prod.
func (c *Config) Development() bool {
	return c.Environment == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
