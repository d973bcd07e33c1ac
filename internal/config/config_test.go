package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig(t *testing.T) {
	var (
		addr   = "localhost:8080"
		dsn    = "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable"
		key    = "c29tZV9zZWNyZXQ="
		encKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
		orig   = []string{"http://localhost:3000"}
	)

	tcases := []struct {
		name   string
		addr   string
		dsn    string
		key    string
		encKey string
		orig   []string
		err    bool
	}{
		{
			name:   "valid config",
			addr:   addr,
			dsn:    dsn,
			key:    key,
			encKey: encKey,
			orig:   orig,
			err:    false,
		},
		{
			name:   "empty address",
			addr:   "",
			dsn:    dsn,
			key:    key,
			encKey: encKey,
			orig:   orig,
			err:    true,
		},
		{
			name:   "empty DSN",
			addr:   addr,
			dsn:    "",
			key:    key,
			encKey: encKey,
			orig:   orig,
			err:    true,
		},
		{
			name:   "empty signing key",
			addr:   addr,
			dsn:    dsn,
			key:    "",
			encKey: encKey,
			orig:   orig,
			err:    true,
		},
		{
			name:   "empty encryption key",
			addr:   addr,
			dsn:    dsn,
			key:    key,
			encKey: "",
			orig:   orig,
			err:    true,
		},
		{
			name:   "invalid base64 signing key",
			addr:   addr,
			dsn:    dsn,
			key:    "invalid_base64",
			encKey: encKey,
			orig:   orig,
			err:    true,
		},
		{
			name:   "encryption key not hex",
			addr:   addr,
			dsn:    dsn,
			key:    key,
			encKey: "not-hex",
			orig:   orig,
			err:    true,
		},
		{
			name:   "encryption key wrong length",
			addr:   addr,
			dsn:    dsn,
			key:    key,
			encKey: "0001020304",
			orig:   orig,
			err:    true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := NewConfig(tc.addr, tc.dsn, tc.key, tc.encKey, tc.orig)
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)

			assert.Equal(t, tc.addr, config.ServerAddr, "expected server address to match")
			assert.Equal(t, tc.dsn, config.DatabaseDSN, "expected database DSN to match")
			assert.Equal(t, tc.orig, config.AllowedOrigins, "expected allowed origins to match")
			assert.Equal(t, []byte("some_secret"), config.SigningKey, "expected signing key to be decoded")
			assert.Len(t, config.EncryptionKey, 32, "expected encryption key to be decoded to 32 bytes")
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("SERVER_ADDR", "localhost:9000")
	t.Setenv("DATABASE_URL", "host=localhost dbname=commitkings sslmode=disable")
	t.Setenv("SIGNING_KEY", "c29tZV9zZWNyZXQ=")
	t.Setenv("ENCRYPTION_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")

	cfg, err := Load()
	assert.NoError(t, err, "expected no error loading config from env")
	assert.Equal(t, "localhost:9000", cfg.ServerAddr)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, []byte("some_secret"), cfg.SigningKey)
	assert.Len(t, cfg.EncryptionKey, 32)
}

func TestLoad_MissingSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "host=localhost dbname=commitkings sslmode=disable")
	t.Setenv("SIGNING_KEY", "")
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := Load()
	assert.Error(t, err, "expected error when required secrets are absent")
}
