// Package executor submits contract calls to the ledger and reads pool state
// back. Write calls are signed with the configured signer, submitted once and
// polled to finality; read calls only ever simulate.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/marketrelay/internal/crypto"
	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/ledger"
)

// Config controls contract addressing and the confirmation budget.
type Config struct {
	AMMContract     string
	OracleContract  string
	Network         string
	CallTimeout     time.Duration // validity bound baked into each envelope
	ConfirmInterval time.Duration
	ConfirmAttempts int
	LockTTL         time.Duration // distributed signer lock; must outlive one write call
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.ConfirmInterval <= 0 {
		c.ConfirmInterval = 2 * time.Second
	}
	if c.ConfirmAttempts <= 0 {
		c.ConfirmAttempts = 10
	}
	if c.LockTTL <= 0 {
		c.LockTTL = c.CallTimeout + time.Duration(c.ConfirmAttempts)*c.ConfirmInterval + 30*time.Second
	}
	return c
}

// Alerter receives operator alerts. notify.Notifier implements it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Option configures optional collaborators.
type Option func(*Executor)

// WithLockManager serializes writes across processes sharing the signer.
func WithLockManager(lm domain.LockManager) Option {
	return func(e *Executor) { e.locks = lm }
}

// WithJournal records terminal write outcomes.
func WithJournal(j domain.TxJournal) Option {
	return func(e *Executor) { e.journal = j }
}

// WithAlerter sends outcome-unknown alerts.
func WithAlerter(a Alerter) Option {
	return func(e *Executor) { e.alerts = a }
}

// WithClock replaces the wall clock and the wait between confirmation polls.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(e *Executor) {
		e.now = now
		e.sleep = sleep
	}
}

// Executor is the TransactionExecutor. It is safe for concurrent use; write
// calls through the signer run one at a time.
type Executor struct {
	rpc    domain.LedgerRPC
	signer domain.Signer // nil in read-only mode
	reader string        // account id used as simulation source
	cfg    Config
	logger *slog.Logger

	locks   domain.LockManager
	journal domain.TxJournal
	alerts  Alerter

	writeSlot *semaphore.Weighted

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// New creates an Executor. signer may be nil, in which case every write call
// fails with domain.ErrConfiguration and reads simulate from an ephemeral
// account.
func New(rpc domain.LedgerRPC, signer domain.Signer, cfg Config, logger *slog.Logger, opts ...Option) (*Executor, error) {
	e := &Executor{
		rpc:       rpc,
		signer:    signer,
		cfg:       cfg.withDefaults(),
		logger:    logger.With(slog.String("component", "executor")),
		now:       time.Now,
		sleep:     sleepContext,
		writeSlot: semaphore.NewWeighted(1),
	}
	if signer != nil {
		e.reader = signer.PublicKey()
	} else {
		eph, err := crypto.NewEphemeralSigner()
		if err != nil {
			return nil, fmt.Errorf("executor: read-only account: %w", err)
		}
		e.reader = eph.PublicKey()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ReadOnly reports whether write calls are unavailable.
func (e *Executor) ReadOnly() bool {
	return e.signer == nil
}

// BuyShares buys outcome shares with amount of collateral.
func (e *Executor) BuyShares(ctx context.Context, p domain.BuyParams) (domain.BuyResult, error) {
	const op = "buy_shares"
	if err := e.requireWrite(op, e.cfg.AMMContract); err != nil {
		return domain.BuyResult{}, err
	}
	if !p.Outcome.Valid() || p.Amount <= 0 || p.MinShares < 0 {
		return domain.BuyResult{}, &domain.TxError{Op: op, Err: fmt.Errorf("%w: outcome %d amount %d min shares %d", domain.ErrValidation, p.Outcome, p.Amount, p.MinShares)}
	}
	market, err := ledger.MarketBytes(p.MarketID)
	if err != nil {
		return domain.BuyResult{}, &domain.TxError{Op: op, Err: err}
	}

	call := domain.LedgerCall{
		Contract: e.cfg.AMMContract,
		Function: op,
		Args: []domain.Arg{
			ledger.Address(e.signer.PublicKey()),
			market,
			ledger.U32(uint32(p.Outcome)),
			ledger.I128(p.Amount),
			ledger.I128(p.MinShares),
		},
	}
	res, hash, err := e.submit(ctx, op, p.MarketID, call)
	if err != nil {
		return domain.BuyResult{}, err
	}
	shares, err := ledger.DecodeInt64(res.ReturnValue)
	if err != nil {
		return domain.BuyResult{}, &domain.TxError{Op: op, TxHash: hash, Status: res.Status, Err: fmt.Errorf("decode shares: %w", err)}
	}
	price, fee := BuyEconomics(p.Amount, shares)
	return domain.BuyResult{
		SharesReceived: shares,
		PricePerUnit:   price,
		TotalCost:      p.Amount,
		FeeAmount:      fee,
		TxHash:         hash,
	}, nil
}

// SellShares sells outcome shares back to the pool.
func (e *Executor) SellShares(ctx context.Context, p domain.SellParams) (domain.SellResult, error) {
	const op = "sell_shares"
	if err := e.requireWrite(op, e.cfg.AMMContract); err != nil {
		return domain.SellResult{}, err
	}
	if !p.Outcome.Valid() || p.Shares <= 0 || p.MinPayout < 0 {
		return domain.SellResult{}, &domain.TxError{Op: op, Err: fmt.Errorf("%w: outcome %d shares %d min payout %d", domain.ErrValidation, p.Outcome, p.Shares, p.MinPayout)}
	}
	market, err := ledger.MarketBytes(p.MarketID)
	if err != nil {
		return domain.SellResult{}, &domain.TxError{Op: op, Err: err}
	}

	call := domain.LedgerCall{
		Contract: e.cfg.AMMContract,
		Function: op,
		Args: []domain.Arg{
			ledger.Address(e.signer.PublicKey()),
			market,
			ledger.U32(uint32(p.Outcome)),
			ledger.I128(p.Shares),
			ledger.I128(p.MinPayout),
		},
	}
	res, hash, err := e.submit(ctx, op, p.MarketID, call)
	if err != nil {
		return domain.SellResult{}, err
	}
	payout, err := ledger.DecodeInt64(res.ReturnValue)
	if err != nil {
		return domain.SellResult{}, &domain.TxError{Op: op, TxHash: hash, Status: res.Status, Err: fmt.Errorf("decode payout: %w", err)}
	}
	price, fee := SellEconomics(payout, p.Shares)
	return domain.SellResult{
		Payout:       payout,
		PricePerUnit: price,
		FeeAmount:    fee,
		TxHash:       hash,
	}, nil
}

// CreatePool seeds a pool and reads its state back once confirmed. A failed
// read-back does not fail the call; Pool is then left zero.
func (e *Executor) CreatePool(ctx context.Context, p domain.CreatePoolParams) (domain.CreatePoolResult, error) {
	const op = "create_pool"
	if err := e.requireWrite(op, e.cfg.AMMContract); err != nil {
		return domain.CreatePoolResult{}, err
	}
	if p.InitialLiquidity <= 0 {
		return domain.CreatePoolResult{}, &domain.TxError{Op: op, Err: fmt.Errorf("%w: initial liquidity %d", domain.ErrValidation, p.InitialLiquidity)}
	}
	market, err := ledger.MarketBytes(p.MarketID)
	if err != nil {
		return domain.CreatePoolResult{}, &domain.TxError{Op: op, Err: err}
	}

	call := domain.LedgerCall{
		Contract: e.cfg.AMMContract,
		Function: op,
		Args:     []domain.Arg{market, ledger.I128(p.InitialLiquidity)},
	}
	_, hash, err := e.submit(ctx, op, p.MarketID, call)
	if err != nil {
		return domain.CreatePoolResult{}, err
	}

	out := domain.CreatePoolResult{TxHash: hash}
	pool, err := e.GetPoolState(ctx, p.MarketID)
	if err != nil {
		e.logger.WarnContext(ctx, "pool read-back failed",
			slog.String("market_id", p.MarketID.String()),
			slog.String("tx_hash", hash),
			slog.String("error", err.Error()),
		)
		return out, nil
	}
	out.Pool = pool
	return out, nil
}

// SubmitAttestation records the signer's attestation of outcome with the
// oracle contract.
func (e *Executor) SubmitAttestation(ctx context.Context, id domain.MarketID, outcome domain.Outcome) (domain.AttestationResult, error) {
	const op = "submit_attestation"
	if err := e.requireWrite(op, e.cfg.OracleContract); err != nil {
		return domain.AttestationResult{}, err
	}
	if !outcome.Valid() {
		return domain.AttestationResult{}, &domain.TxError{Op: op, Err: fmt.Errorf("%w: outcome %d", domain.ErrValidation, outcome)}
	}
	market, err := ledger.MarketRawBytes(id)
	if err != nil {
		return domain.AttestationResult{}, &domain.TxError{Op: op, Err: err}
	}

	call := domain.LedgerCall{
		Contract: e.cfg.OracleContract,
		Function: op,
		Args:     []domain.Arg{market, ledger.U32(uint32(outcome))},
	}
	_, hash, err := e.submit(ctx, op, id, call)
	if err != nil {
		return domain.AttestationResult{}, err
	}
	return domain.AttestationResult{TxHash: hash}, nil
}

func (e *Executor) requireWrite(op, contract string) error {
	switch {
	case contract == "":
		return &domain.TxError{Op: op, Err: fmt.Errorf("%w: contract address not set", domain.ErrConfiguration)}
	case e.signer == nil:
		return &domain.TxError{Op: op, Err: fmt.Errorf("%w: no signer", domain.ErrConfiguration)}
	}
	return nil
}

// submit runs account fetch, prepare, sign, send and confirm strictly in
// order while holding the signer. The sequence number read here is consumed
// by the send, so nothing after a send is ever retried.
func (e *Executor) submit(ctx context.Context, op string, market domain.MarketID, call domain.LedgerCall) (domain.TxResult, string, error) {
	release, err := e.holdSigner(ctx)
	if err != nil {
		e.observe(ctx, op, market, "", domain.TxStatusError, err)
		return domain.TxResult{}, "", &domain.TxError{Op: op, Err: err}
	}
	defer release()

	fail := func(err error) (domain.TxResult, string, error) {
		e.observe(ctx, op, market, "", domain.TxStatusError, err)
		return domain.TxResult{}, "", &domain.TxError{Op: op, Err: err}
	}

	acct, err := e.rpc.GetAccount(ctx, e.signer.PublicKey())
	if err != nil {
		return fail(err)
	}
	env := ledger.Build(acct, e.cfg.Network, call, e.cfg.CallTimeout, e.now())
	prepared, err := e.rpc.PrepareTransaction(ctx, env)
	if err != nil {
		return fail(err)
	}
	signed, err := ledger.Sign(prepared, e.signer)
	if err != nil {
		return fail(err)
	}

	sent, err := e.rpc.SendTransaction(ctx, signed)
	if err != nil {
		return fail(err)
	}
	if sent.Status != domain.TxPending {
		err := fmt.Errorf("%w: status %s", domain.ErrSubmissionRejected, sent.Status)
		if sent.ErrorResult != "" {
			err = fmt.Errorf("%w: %s", err, sent.ErrorResult)
		}
		e.observe(ctx, op, market, sent.Hash, sent.Status, err)
		return domain.TxResult{}, sent.Hash, &domain.TxError{Op: op, TxHash: sent.Hash, Status: sent.Status, Err: err}
	}

	e.logger.InfoContext(ctx, "transaction submitted",
		slog.String("op", op),
		slog.String("market_id", market.String()),
		slog.String("tx_hash", sent.Hash),
		slog.Int64("sequence", signed.Sequence),
	)

	start := e.now()
	res, err := e.waitForTransaction(ctx, sent.Hash)
	observeConfirm(op, e.now().Sub(start))
	if err != nil {
		status := res.Status
		if domain.OutcomeUnknown(err) {
			status = domain.TxTimedOut
		}
		e.observe(ctx, op, market, sent.Hash, status, err)
		return res, sent.Hash, &domain.TxError{Op: op, TxHash: sent.Hash, Status: status, Err: err}
	}
	e.observe(ctx, op, market, sent.Hash, domain.TxSuccess, nil)
	return res, sent.Hash, nil
}

// waitForTransaction polls hash until SUCCESS or FAILED, sleeping between
// attempts. NOT_FOUND and transport errors consume one attempt each; only the
// last attempt's transport error is reported.
func (e *Executor) waitForTransaction(ctx context.Context, hash string) (domain.TxResult, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.ConfirmAttempts; attempt++ {
		res, err := e.rpc.GetTransaction(ctx, hash)
		switch {
		case err != nil:
			lastErr = err
			e.logger.DebugContext(ctx, "confirmation poll error",
				slog.String("tx_hash", hash),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		case res.Status == domain.TxSuccess:
			return res, nil
		case res.Status == domain.TxFailed:
			return res, fmt.Errorf("%w: tx %s", domain.ErrLedgerExecutionFailed, hash)
		default:
			lastErr = nil
		}

		if attempt == e.cfg.ConfirmAttempts {
			break
		}
		if err := e.sleep(ctx, e.cfg.ConfirmInterval); err != nil {
			return domain.TxResult{Status: domain.TxTimedOut}, fmt.Errorf("%w: tx %s: %w", domain.ErrConfirmationTimeout, hash, err)
		}
	}

	if lastErr != nil {
		return domain.TxResult{Status: domain.TxTimedOut}, fmt.Errorf("%w: tx %s after %d attempts: %w", domain.ErrConfirmationTimeout, hash, e.cfg.ConfirmAttempts, lastErr)
	}
	return domain.TxResult{Status: domain.TxTimedOut}, fmt.Errorf("%w: tx %s after %d attempts", domain.ErrConfirmationTimeout, hash, e.cfg.ConfirmAttempts)
}

// holdSigner serializes write calls through the signer: in process always,
// across processes when a LockManager is set. Waiting for either ends with
// ctx; the distributed lock is polled at the confirmation interval.
func (e *Executor) holdSigner(ctx context.Context) (func(), error) {
	if err := e.writeSlot.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("signer queue: %w", err)
	}
	if e.locks == nil {
		return func() { e.writeSlot.Release(1) }, nil
	}

	key := "signer:" + e.signer.PublicKey()
	for {
		unlock, err := e.locks.Acquire(ctx, key, e.cfg.LockTTL)
		if err == nil {
			return func() {
				unlock()
				e.writeSlot.Release(1)
			}, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			e.writeSlot.Release(1)
			return nil, fmt.Errorf("signer lock: %w", err)
		}
		if err := e.sleep(ctx, e.cfg.ConfirmInterval); err != nil {
			e.writeSlot.Release(1)
			return nil, fmt.Errorf("signer lock: %w", err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
