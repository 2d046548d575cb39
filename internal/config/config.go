// Package config defines the top-level configuration for the market relay
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by MARKETRELAY_* environment variables.
type Config struct {
	Ledger   LedgerConfig   `toml:"ledger"`
	Wallet   WalletConfig   `toml:"wallet"`
	Odds     OddsConfig     `toml:"odds"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Auth     AuthConfig     `toml:"auth"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Signer   SignerConfig   `toml:"signer"`
	LogLevel string         `toml:"log_level"`
}

// LedgerConfig addresses the ledger RPC endpoint and the deployed contracts.
// Empty contract addresses leave the matching operations unavailable.
type LedgerConfig struct {
	RPCURL            string   `toml:"rpc_url"`
	NetworkPassphrase string   `toml:"network_passphrase"`
	AMMContract       string   `toml:"amm_contract"`
	OracleContract    string   `toml:"oracle_contract"`
	RequestTimeout    duration `toml:"request_timeout"`
	CallTimeout       duration `toml:"call_timeout"`
	ConfirmInterval   duration `toml:"confirm_interval"`
	ConfirmAttempts   int      `toml:"confirm_attempts"`
}

// WalletConfig holds the signer key source.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// OddsConfig tunes the odds poller.
type OddsConfig struct {
	PollInterval duration `toml:"poll_interval"`
	ThresholdPct float64  `toml:"threshold_pct"`
	Concurrency  int      `toml:"concurrency"`
	Timeout      duration `toml:"timeout"`
}

// GatewayConfig tunes the websocket gateway and its rate limiter.
type GatewayConfig struct {
	HeartbeatSweep duration `toml:"heartbeat_sweep"`
	StaleAfter     duration `toml:"stale_after"`
	PingInterval   duration `toml:"ping_interval"`
	PingTimeout    duration `toml:"ping_timeout"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	MaxMarketIDLen int      `toml:"max_market_id_len"`
}

// AuthConfig holds the bearer token verification parameters.
type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; when
// disabled the gateway runs single-instance and signer locking is local.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds connection parameters for the transaction journal.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// SignerConfig controls cross-process serialization of signer writes.
// LockTTL zero derives the TTL from the confirmation budget.
type SignerConfig struct {
	Serialize bool     `toml:"serialize"`
	LockTTL   duration `toml:"lock_ttl"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Ledger: LedgerConfig{
			RPCURL:            "http://localhost:8000/rpc",
			NetworkPassphrase: "Test SDF Network ; September 2015",
			RequestTimeout:    duration{15 * time.Second},
			CallTimeout:       duration{30 * time.Second},
			ConfirmInterval:   duration{2 * time.Second},
			ConfirmAttempts:   10,
		},
		Odds: OddsConfig{
			PollInterval: duration{5 * time.Second},
			ThresholdPct: 1.0,
			Concurrency:  16,
			Timeout:      duration{15 * time.Second},
		},
		Gateway: GatewayConfig{
			HeartbeatSweep: duration{30 * time.Second},
			StaleAfter:     duration{90 * time.Second},
			PingInterval:   duration{25 * time.Second},
			PingTimeout:    duration{60 * time.Second},
			RateLimit:      30,
			RateWindow:     duration{time.Minute},
			MaxMarketIDLen: 100,
		},
		Auth: AuthConfig{
			Issuer: "marketrelay",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"tx_outcome_unknown"},
		},
		Signer: SignerConfig{
			Serialize: true,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// ReadOnly reports whether no signer key is configured. The relay still
// serves reads and broadcasts odds; write calls fail at call time.
func (c *Config) ReadOnly() bool {
	return c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == ""
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found. Missing contract addresses
// and a missing signer are allowed.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Ledger
	if strings.TrimSpace(c.Ledger.RPCURL) == "" {
		errs = append(errs, "ledger: rpc_url must not be empty")
	}
	if strings.TrimSpace(c.Ledger.NetworkPassphrase) == "" {
		errs = append(errs, "ledger: network_passphrase must not be empty")
	}
	if c.Ledger.ConfirmAttempts < 1 {
		errs = append(errs, "ledger: confirm_attempts must be >= 1")
	}
	if c.Ledger.ConfirmInterval.Duration <= 0 {
		errs = append(errs, "ledger: confirm_interval must be > 0")
	}
	if c.Ledger.CallTimeout.Duration <= 0 {
		errs = append(errs, "ledger: call_timeout must be > 0")
	}

	// Wallet
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
	}

	// Odds
	if c.Odds.PollInterval.Duration <= 0 {
		errs = append(errs, "odds: poll_interval must be > 0")
	}
	if c.Odds.ThresholdPct < 0 {
		errs = append(errs, "odds: threshold_pct must be >= 0")
	}
	if c.Odds.Concurrency < 1 {
		errs = append(errs, "odds: concurrency must be >= 1")
	}

	// Gateway
	if c.Gateway.RateLimit < 1 {
		errs = append(errs, "gateway: rate_limit must be >= 1")
	}
	if c.Gateway.RateWindow.Duration <= 0 {
		errs = append(errs, "gateway: rate_window must be > 0")
	}
	if c.Gateway.MaxMarketIDLen < 1 {
		errs = append(errs, "gateway: max_market_id_len must be >= 1")
	}
	if c.Gateway.StaleAfter.Duration <= c.Gateway.HeartbeatSweep.Duration {
		errs = append(errs, "gateway: stale_after must exceed heartbeat_sweep")
	}
	if c.Gateway.PingInterval.Duration >= c.Gateway.PingTimeout.Duration {
		errs = append(errs, "gateway: ping_interval must be shorter than ping_timeout")
	}

	// Auth
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, "auth: jwt_secret must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	// Signer
	if c.Signer.Serialize && c.Signer.LockTTL.Duration < 0 {
		errs = append(errs, "signer: lock_ttl must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
