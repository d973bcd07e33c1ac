package config

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds every runtime setting. Secrets are required: the process
// must fail at startup rather than fall back to a generated key, so that
// key rotation is always a deliberate operation.
type Config struct {
	ServerAddr     string   `env:"SERVER_ADDR" envDefault:"localhost:8000"`
	DatabaseDSN    string   `env:"DATABASE_URL,required"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	// SigningSecret is the base64 encoded HMAC secret for bearer tokens.
	SigningSecret string `env:"SIGNING_KEY,required"`
	// EncryptionKeyHex is the hex encoded 32-byte key used to seal
	// anonymous sender identities.
	EncryptionKeyHex string `env:"ENCRYPTION_KEY,required"`

	OpenRouterAPIKey string `env:"OPENROUTER_API_KEY"`
	AIModel          string `env:"AI_MODEL" envDefault:"google/gemini-2.0-flash-lite-001"`
	AIBaseURL        string `env:"AI_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`

	SigningKey    []byte `env:"-"`
	EncryptionKey []byte `env:"-"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.decodeSecrets(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// NewConfig builds a config from explicit values, used by main to merge
// flag overrides with the environment.
func NewConfig(serverAddr, databaseDSN, base64Secret, hexEncryptionKey string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if databaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	cfg := &Config{
		ServerAddr:       serverAddr,
		DatabaseDSN:      databaseDSN,
		SigningSecret:    base64Secret,
		EncryptionKeyHex: hexEncryptionKey,
		AllowedOrigins:   allowedOrigins,
	}

	if err := cfg.decodeSecrets(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) decodeSecrets() error {
	if c.SigningSecret == "" {
		return fmt.Errorf("signing secret cannot be empty")
	}
	if c.EncryptionKeyHex == "" {
		return fmt.Errorf("encryption key cannot be empty")
	}

	signingKey, err := base64.StdEncoding.DecodeString(c.SigningSecret)
	if err != nil {
		return fmt.Errorf("decode signing secret: %w", err)
	}
	c.SigningKey = signingKey

	encryptionKey, err := hex.DecodeString(c.EncryptionKeyHex)
	if err != nil {
		return fmt.Errorf("decode encryption key: %w", err)
	}
	if len(encryptionKey) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(encryptionKey))
	}
	c.EncryptionKey = encryptionKey

	return nil
}
