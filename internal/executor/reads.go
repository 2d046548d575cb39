package executor

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/ledger"
)

// GetPoolState simulates get_pool and decodes the result. Nothing is signed
// or submitted.
func (e *Executor) GetPoolState(ctx context.Context, id domain.MarketID) (domain.PoolSnapshot, error) {
	if e.cfg.AMMContract == "" {
		return domain.PoolSnapshot{}, fmt.Errorf("executor: get_pool: %w: amm contract not set", domain.ErrConfiguration)
	}
	market, err := ledger.MarketBytes(id)
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("executor: get_pool: %w", err)
	}
	sim, err := e.simulate(ctx, domain.LedgerCall{
		Contract: e.cfg.AMMContract,
		Function: "get_pool",
		Args:     []domain.Arg{market},
	})
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("executor: get_pool %s: %w", id, err)
	}
	if !sim.Success() {
		return domain.PoolSnapshot{}, fmt.Errorf("executor: get_pool %s: simulation failed: %s", id, sim.Error)
	}
	snap, err := ledger.DecodePool(id, sim.ReturnValue)
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("executor: get_pool %s: %w", id, err)
	}
	return snap, nil
}

// GetOdds reads contract odds and pool liquidity. Odds default to 0.5 each
// when get_odds cannot be simulated; a failed pool read is an error.
func (e *Executor) GetOdds(ctx context.Context, id domain.MarketID) (domain.OddsQuote, error) {
	if e.cfg.AMMContract == "" {
		return domain.OddsQuote{}, fmt.Errorf("executor: get_odds: %w: amm contract not set", domain.ErrConfiguration)
	}
	market, err := ledger.MarketBytes(id)
	if err != nil {
		return domain.OddsQuote{}, fmt.Errorf("executor: get_odds: %w", err)
	}

	yes, no := 0.5, 0.5
	sim, err := e.simulate(ctx, domain.LedgerCall{
		Contract: e.cfg.AMMContract,
		Function: "get_odds",
		Args:     []domain.Arg{market},
	})
	switch {
	case err != nil:
		return domain.OddsQuote{}, fmt.Errorf("executor: get_odds %s: %w", id, err)
	case sim.Success() && !ledger.IsEmpty(sim.ReturnValue):
		y, n, derr := ledger.DecodeOdds(sim.ReturnValue)
		if derr != nil {
			e.logger.DebugContext(ctx, "odds decode failed, using defaults",
				slog.String("market_id", id.String()),
				slog.String("error", derr.Error()),
			)
			break
		}
		yes, no = y, n
	}

	pool, err := e.GetPoolState(ctx, id)
	if err != nil {
		return domain.OddsQuote{}, err
	}
	return domain.OddsQuote{
		YesOdds:        yes,
		NoOdds:         no,
		YesPercentage:  int(math.Round(yes * 100)),
		NoPercentage:   int(math.Round(no * 100)),
		YesLiquidity:   pool.YesReserve,
		NoLiquidity:    pool.NoReserve,
		TotalLiquidity: pool.YesReserve + pool.NoReserve,
	}, nil
}

// CheckConsensus reports the oracle's resolved outcome, if any. Simulation
// failures, RPC errors and empty results all mean no consensus yet; only a
// missing oracle address is an error.
func (e *Executor) CheckConsensus(ctx context.Context, id domain.MarketID) (domain.Outcome, bool, error) {
	if e.cfg.OracleContract == "" {
		return 0, false, fmt.Errorf("executor: check_consensus: %w: oracle contract not set", domain.ErrConfiguration)
	}
	market, err := ledger.MarketRawBytes(id)
	if err != nil {
		return 0, false, fmt.Errorf("executor: check_consensus: %w", err)
	}

	sim, err := e.simulate(ctx, domain.LedgerCall{
		Contract: e.cfg.OracleContract,
		Function: "check_consensus",
		Args:     []domain.Arg{market},
	})
	if err != nil {
		e.logger.WarnContext(ctx, "consensus check failed",
			slog.String("market_id", id.String()),
			slog.String("error", err.Error()),
		)
		return 0, false, nil
	}
	if !sim.Success() {
		return 0, false, nil
	}
	outcome, ok, err := ledger.DecodeOutcome(sim.ReturnValue)
	if err != nil {
		e.logger.WarnContext(ctx, "consensus decode failed",
			slog.String("market_id", id.String()),
			slog.String("error", err.Error()),
		)
		return 0, false, nil
	}
	return outcome, ok, nil
}

// simulate dry-runs call from the read account. An account the ledger does
// not know still simulates from sequence zero; reads need no funds.
func (e *Executor) simulate(ctx context.Context, call domain.LedgerCall) (domain.SimulateResult, error) {
	acct, err := e.rpc.GetAccount(ctx, e.reader)
	if err != nil {
		e.logger.DebugContext(ctx, "read account unavailable, simulating from fresh account",
			slog.String("account", e.reader),
			slog.String("error", err.Error()),
		)
		acct = domain.Account{ID: e.reader}
	}
	env := ledger.Build(acct, e.cfg.Network, call, e.cfg.CallTimeout, e.now())
	return e.rpc.SimulateTransaction(ctx, env)
}
