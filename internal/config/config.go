package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "Attestia"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultChallengeTTL   = 5 * time.Minute
	defaultSessionTTL     = 15 * time.Minute
	defaultLockoutWindow  = 15 * time.Minute
	defaultMaxPINAttempts = 5
	defaultNumberPrefix   = "ATT"
	defaultDocumentDir    = "./documents"

	// devSigningKey is only ever substituted outside production, with a warning.
	devSigningKey = "6174746573746961206465762d6f6e6c79207369676e696e67206b65792e2e2e"
	devMasterKey  = "attestia-development-master-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	// SigningKey is the 256-bit key behind verification-code signatures.
	SigningKey []byte
	// SigningKeyIsDev reports that the fixed development key was substituted.
	SigningKeyIsDev bool
	// MasterSecret seeds the secret-box key protecting TOTP material at rest.
	MasterSecret string
	// VerifyBaseURL is the public verification endpoint embedded in QR codes.
	VerifyBaseURL string
	// VerifyMaxAge bounds accepted verification-payload age; zero disables the check.
	VerifyMaxAge time.Duration

	NumberPrefix   string
	DocumentDir    string
	TemplatePath   string
	FontDir        string
	ChallengeTTL   time.Duration
	SessionTTL     time.Duration
	LockoutWindow  time.Duration
	MaxPINAttempts int
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		IdempotencyTTL: defaultIdempotencyTTL,
		MasterSecret:   os.Getenv("MASTER_SECRET"),
		VerifyBaseURL:  getEnv("VERIFY_BASE_URL", "https://verify.attestia.example/attestation"),
		NumberPrefix:   getEnv("NUMBER_PREFIX", defaultNumberPrefix),
		DocumentDir:    getEnv("DOCUMENT_DIR", defaultDocumentDir),
		TemplatePath:   os.Getenv("TEMPLATE_PATH"),
		FontDir:        os.Getenv("FONT_DIR"),
		ChallengeTTL:   defaultChallengeTTL,
		SessionTTL:     defaultSessionTTL,
		LockoutWindow:  defaultLockoutWindow,
		MaxPINAttempts: defaultMaxPINAttempts,
	}

	durations := []struct {
		env    string
		target *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", &cfg.IdempotencyTTL},
		{"CHALLENGE_TTL", &cfg.ChallengeTTL},
		{"SESSION_TOKEN_TTL", &cfg.SessionTTL},
		{"PIN_LOCKOUT_WINDOW", &cfg.LockoutWindow},
		{"VERIFY_MAX_AGE", &cfg.VerifyMaxAge},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return Config{}, fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.target = parsed
		}
	}

	if v := os.Getenv("PIN_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid PIN_MAX_ATTEMPTS: %q", v)
		}
		cfg.MaxPINAttempts = n
	}

	keyHex := os.Getenv("SIGNING_KEY")
	if keyHex == "" {
		if cfg.IsProduction() {
			return Config{}, fmt.Errorf("SIGNING_KEY must be set when APP_ENV=%s", cfg.AppEnv)
		}
		keyHex = devSigningKey
		cfg.SigningKeyIsDev = true
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SIGNING_KEY: %w", err)
	}
	if len(key) != 32 {
		return Config{}, fmt.Errorf("SIGNING_KEY must be 32 bytes, got %d", len(key))
	}
	cfg.SigningKey = key

	if cfg.MasterSecret == "" {
		if cfg.IsProduction() {
			return Config{}, fmt.Errorf("MASTER_SECRET must be set when APP_ENV=%s", cfg.AppEnv)
		}
		cfg.MasterSecret = devMasterKey
	}

	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsProduction reports whether the app runs outside a development environment.
func (c Config) IsProduction() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return false
	default:
		return true
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
