package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// Config holds every runtime knob. Environment variables are the single
// source; a .env file is loaded first when present so local development
// matches the deployed shape.
type Config struct {
	Addr     string `env:"BOT_ADDR" envDefault:":8790"`
	MongoURI string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	MongoDB  string `env:"MONGO_DB" envDefault:"glossa"`

	SessionTTLSeconds    int `env:"SESSION_TTL_SECONDS" envDefault:"120"`
	WizardStepTTLSeconds int `env:"WIZARD_STEP_TTL_SECONDS" envDefault:"60"`
	PageSize             int `env:"PAGE_SIZE" envDefault:"5"`

	// ModeratorRole is the platform role allowed to delete any entry and to
	// retire categories/topics.
	ModeratorRole string `env:"MODERATOR_ROLE" envDefault:"curator"`

	// GatewayPublicKey is the hex ed25519 key used to verify inbound webhook
	// signatures. Empty disables verification (local development only).
	GatewayPublicKey string `env:"GATEWAY_PUBLIC_KEY"`

	// AdminToken guards the admin endpoints. Empty disables them.
	AdminToken string `env:"ADMIN_TOKEN"`

	MeiliURL       string `env:"MEILI_URL"`
	MeiliMasterKey string `env:"MEILI_MASTER_KEY"`

	// RedisURL enables the Redis event dedup cache. Empty falls back to the
	// in-memory cache.
	RedisURL             string `env:"REDIS_URL"`
	EventDedupTTLSeconds int    `env:"EVENT_DEDUP_TTL_SECONDS" envDefault:"300"`

	StartupRetries        int `env:"STARTUP_RETRIES" envDefault:"3"`
	StartupBackoffSeconds int `env:"STARTUP_BACKOFF_SECONDS" envDefault:"2"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = 5
	}
	return cfg, nil
}

func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c Config) WizardStepTTL() time.Duration {
	return time.Duration(c.WizardStepTTLSeconds) * time.Second
}

func (c Config) EventDedupTTL() time.Duration {
	return time.Duration(c.EventDedupTTLSeconds) * time.Second
}

func (c Config) StartupBackoff() time.Duration {
	return time.Duration(c.StartupBackoffSeconds) * time.Second
}
