package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "secret"
	return cfg
}

func TestDefaults_ValidWithSecret(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.ReadOnly())
	assert.Equal(t, 10, cfg.Ledger.ConfirmAttempts)
	assert.Equal(t, 2*time.Second, cfg.Ledger.ConfirmInterval.Duration)
	assert.Equal(t, 30, cfg.Gateway.RateLimit)
	assert.Equal(t, 100, cfg.Gateway.MaxMarketIDLen)
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = ""
	cfg.LogLevel = "loud"
	cfg.Ledger.ConfirmAttempts = 0
	cfg.Wallet.EncryptedKeyPath = "/tmp/key.json"
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"jwt_secret", "log_level", "confirm_attempts", "key_password", "redis: addr"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_MissingContractsAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Ledger.AMMContract = ""
	cfg.Ledger.OracleContract = ""
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[ledger]
amm_contract     = "CAMM"
confirm_interval = "500ms"

[gateway]
rate_limit = 5
`), 0o600))

	t.Setenv("MARKETRELAY_GATEWAY_RATE_LIMIT", "7")
	t.Setenv("MARKETRELAY_AUTH_JWT_SECRET", "from-env")
	t.Setenv("MARKETRELAY_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "CAMM", cfg.Ledger.AMMContract)
	assert.Equal(t, 500*time.Millisecond, cfg.Ledger.ConfirmInterval.Duration)
	assert.Equal(t, 7, cfg.Gateway.RateLimit)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 10, cfg.Ledger.ConfirmAttempts)
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[ledger\n"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Postgres.DSN = "postgres://u:p@h/db"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Auth.JWTSecret)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Empty(t, out.Redis.Password)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}
