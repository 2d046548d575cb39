package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies MARKETRELAY_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known MARKETRELAY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Ledger ──
	setStr(&cfg.Ledger.RPCURL, "MARKETRELAY_LEDGER_RPC_URL")
	setStr(&cfg.Ledger.NetworkPassphrase, "MARKETRELAY_LEDGER_NETWORK_PASSPHRASE")
	setStr(&cfg.Ledger.AMMContract, "MARKETRELAY_LEDGER_AMM_CONTRACT")
	setStr(&cfg.Ledger.OracleContract, "MARKETRELAY_LEDGER_ORACLE_CONTRACT")
	setDuration(&cfg.Ledger.RequestTimeout, "MARKETRELAY_LEDGER_REQUEST_TIMEOUT")
	setDuration(&cfg.Ledger.CallTimeout, "MARKETRELAY_LEDGER_CALL_TIMEOUT")
	setDuration(&cfg.Ledger.ConfirmInterval, "MARKETRELAY_LEDGER_CONFIRM_INTERVAL")
	setInt(&cfg.Ledger.ConfirmAttempts, "MARKETRELAY_LEDGER_CONFIRM_ATTEMPTS")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "MARKETRELAY_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "MARKETRELAY_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "MARKETRELAY_WALLET_KEY_PASSWORD")

	// ── Odds ──
	setDuration(&cfg.Odds.PollInterval, "MARKETRELAY_ODDS_POLL_INTERVAL")
	setFloat64(&cfg.Odds.ThresholdPct, "MARKETRELAY_ODDS_THRESHOLD_PCT")
	setInt(&cfg.Odds.Concurrency, "MARKETRELAY_ODDS_CONCURRENCY")
	setDuration(&cfg.Odds.Timeout, "MARKETRELAY_ODDS_TIMEOUT")

	// ── Gateway ──
	setDuration(&cfg.Gateway.HeartbeatSweep, "MARKETRELAY_GATEWAY_HEARTBEAT_SWEEP")
	setDuration(&cfg.Gateway.StaleAfter, "MARKETRELAY_GATEWAY_STALE_AFTER")
	setDuration(&cfg.Gateway.PingInterval, "MARKETRELAY_GATEWAY_PING_INTERVAL")
	setDuration(&cfg.Gateway.PingTimeout, "MARKETRELAY_GATEWAY_PING_TIMEOUT")
	setInt(&cfg.Gateway.RateLimit, "MARKETRELAY_GATEWAY_RATE_LIMIT")
	setDuration(&cfg.Gateway.RateWindow, "MARKETRELAY_GATEWAY_RATE_WINDOW")
	setInt(&cfg.Gateway.MaxMarketIDLen, "MARKETRELAY_GATEWAY_MAX_MARKET_ID_LEN")

	// ── Auth ──
	setStr(&cfg.Auth.JWTSecret, "MARKETRELAY_AUTH_JWT_SECRET")
	setStr(&cfg.Auth.Issuer, "MARKETRELAY_AUTH_ISSUER")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MARKETRELAY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MARKETRELAY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MARKETRELAY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MARKETRELAY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MARKETRELAY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MARKETRELAY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MARKETRELAY_REDIS_TLS_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MARKETRELAY_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.DSN, "MARKETRELAY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MARKETRELAY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MARKETRELAY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MARKETRELAY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MARKETRELAY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MARKETRELAY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MARKETRELAY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MARKETRELAY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MARKETRELAY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MARKETRELAY_POSTGRES_RUN_MIGRATIONS")

	// ── Server ──
	setInt(&cfg.Server.Port, "PORT") // platform-assigned port
	setInt(&cfg.Server.Port, "MARKETRELAY_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MARKETRELAY_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MARKETRELAY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MARKETRELAY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MARKETRELAY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MARKETRELAY_NOTIFY_EVENTS")

	// ── Signer ──
	setBool(&cfg.Signer.Serialize, "MARKETRELAY_SIGNER_SERIALIZE")
	setDuration(&cfg.Signer.LockTTL, "MARKETRELAY_SIGNER_LOCK_TTL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MARKETRELAY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
