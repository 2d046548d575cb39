package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/marketrelay/internal/cache/redis"
	"github.com/alanyoungcy/marketrelay/internal/config"
	"github.com/alanyoungcy/marketrelay/internal/crypto"
	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/executor"
	"github.com/alanyoungcy/marketrelay/internal/ledger"
	"github.com/alanyoungcy/marketrelay/internal/notify"
	"github.com/alanyoungcy/marketrelay/internal/odds"
	"github.com/alanyoungcy/marketrelay/internal/ratelimit"
	"github.com/alanyoungcy/marketrelay/internal/server"
	"github.com/alanyoungcy/marketrelay/internal/server/auth"
	"github.com/alanyoungcy/marketrelay/internal/server/handler"
	"github.com/alanyoungcy/marketrelay/internal/server/ws"
	"github.com/alanyoungcy/marketrelay/internal/store/postgres"
)

// lockNamespace prefixes every distributed lock key this service takes.
const lockNamespace = "marketrelay"

// Components bundles the running parts of the relay. It is constructed by
// Wire and torn down by the returned cleanup function.
type Components struct {
	Executor *executor.Executor
	Gateway  *ws.Gateway
	Poller   *odds.Poller
	Server   *server.Server
}

// Wire constructs all concrete implementations from the given configuration
// and returns them together with a cleanup function that should be called on
// shutdown to release resources. Redis and Postgres are optional.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(what string, err error) (*Components, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", what, err)
	}

	deps := map[string]handler.Pinger{}

	// --- Redis ---
	var (
		bus   domain.SignalBus
		locks domain.LockManager
	)
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps["redis"] = redisClient

		bus = redis.NewSignalBus(redisClient)
		if cfg.Signer.Serialize {
			locks = redis.NewLockManager(redisClient, lockNamespace)
		}
	}

	// --- PostgreSQL ---
	var journal domain.TxJournal
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)
		deps["postgres"] = pgClient

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		journal = postgres.NewJournalStore(pgClient.Pool())
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
			"",
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Ledger + executor ---
	rpcClient, err := ledger.Dial(ctx, ledger.ClientConfig{
		URL:            cfg.Ledger.RPCURL,
		RequestTimeout: cfg.Ledger.RequestTimeout.Duration,
	})
	if err != nil {
		return fail("ledger", err)
	}
	closers = append(closers, rpcClient.Close)

	keySigner, err := crypto.LoadSigner(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return fail("signer", err)
	}
	// A nil *crypto.Signer must stay a nil interface.
	var signer domain.Signer
	if keySigner != nil {
		signer = keySigner
	}

	execOpts := []executor.Option{}
	if locks != nil {
		execOpts = append(execOpts, executor.WithLockManager(locks))
	}
	if journal != nil {
		execOpts = append(execOpts, executor.WithJournal(journal))
	}
	if notifier.Enabled() {
		execOpts = append(execOpts, executor.WithAlerter(notifier))
	}
	exec, err := executor.New(rpcClient, signer, executor.Config{
		AMMContract:     cfg.Ledger.AMMContract,
		OracleContract:  cfg.Ledger.OracleContract,
		Network:         cfg.Ledger.NetworkPassphrase,
		CallTimeout:     cfg.Ledger.CallTimeout.Duration,
		ConfirmInterval: cfg.Ledger.ConfirmInterval.Duration,
		ConfirmAttempts: cfg.Ledger.ConfirmAttempts,
		LockTTL:         cfg.Signer.LockTTL.Duration,
	}, logger, execOpts...)
	if err != nil {
		return fail("executor", err)
	}
	if exec.ReadOnly() {
		logger.WarnContext(ctx, "no signer configured, write calls are disabled")
	}
	if cfg.Ledger.AMMContract == "" {
		logger.WarnContext(ctx, "amm contract not configured, pool reads and trades are disabled")
	}

	// --- Gateway + poller ---
	verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fail("auth", err)
	}
	limiter := ratelimit.New(cfg.Gateway.RateLimit, cfg.Gateway.RateWindow.Duration)

	// The gateway releases markets into the poller, which is built after it.
	var poller *odds.Poller
	gwOpts := []ws.Option{
		ws.WithMarketReleased(func(id domain.MarketID) { poller.Forget(id) }),
	}
	if bus != nil {
		gwOpts = append(gwOpts, ws.WithSignalBus(bus))
	}
	gateway := ws.New(ws.Config{
		HeartbeatSweep: cfg.Gateway.HeartbeatSweep.Duration,
		StaleAfter:     cfg.Gateway.StaleAfter.Duration,
		PingInterval:   cfg.Gateway.PingInterval.Duration,
		PongWait:       cfg.Gateway.PingTimeout.Duration,
		MaxMarketIDLen: cfg.Gateway.MaxMarketIDLen,
		AllowedOrigins: cfg.Server.CORSOrigins,
	}, verifier, limiter, logger, gwOpts...)

	poller = odds.New(odds.Config{
		Interval:     cfg.Odds.PollInterval.Duration,
		ThresholdPct: cfg.Odds.ThresholdPct,
		Concurrency:  cfg.Odds.Concurrency,
		Timeout:      cfg.Odds.Timeout.Duration,
	}, exec, gateway, gateway, logger)

	// --- HTTP ---
	health := handler.NewHealthHandler(gateway, exec.ReadOnly(), deps, logger)
	srv := server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
	}, health, gateway, logger)

	return &Components{
		Executor: exec,
		Gateway:  gateway,
		Poller:   poller,
		Server:   srv,
	}, cleanup, nil
}
