package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/marketrelay/internal/domain"
	"github.com/alanyoungcy/marketrelay/internal/metrics"
)

// EventOutcomeUnknown is the notifier event type for confirmation timeouts.
const EventOutcomeUnknown = "tx_outcome_unknown"

const recordTimeout = 5 * time.Second

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrConfirmationTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrLedgerExecutionFailed):
		return "failed"
	case errors.Is(err, domain.ErrSubmissionRejected):
		return "rejected"
	default:
		return "error"
	}
}

func observeConfirm(op string, d time.Duration) {
	metrics.TxConfirmSeconds.WithLabelValues(op).Observe(d.Seconds())
}

// observe logs, counts, journals and alerts one terminal write outcome.
// Journal and alert failures are logged and never change the call's result.
func (e *Executor) observe(ctx context.Context, op string, market domain.MarketID, hash string, status domain.TxStatus, err error) {
	outcome := outcomeLabel(err)
	metrics.TxTotal.WithLabelValues(op, outcome).Inc()

	attrs := []any{
		slog.String("op", op),
		slog.String("market_id", market.String()),
		slog.String("tx_hash", hash),
		slog.String("status", string(status)),
	}
	switch outcome {
	case "success":
		e.logger.InfoContext(ctx, "transaction confirmed", attrs...)
	case "timeout":
		e.logger.ErrorContext(ctx, "transaction outcome unknown", append(attrs, slog.String("error", err.Error()))...)
	default:
		e.logger.WarnContext(ctx, "transaction failed", append(attrs, slog.String("error", err.Error()))...)
	}

	// Detach so a cancelled caller still leaves a reconciliation record.
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if e.journal != nil && hash != "" {
		entry := domain.JournalEntry{
			TxHash:    hash,
			Op:        op,
			MarketID:  market,
			Signer:    e.signer.PublicKey(),
			Status:    status,
			CreatedAt: e.now().UTC(),
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if jerr := e.journal.Record(bg, entry); jerr != nil {
			e.logger.WarnContext(ctx, "journal record failed",
				slog.String("tx_hash", hash),
				slog.String("error", jerr.Error()),
			)
		}
	}

	if e.alerts != nil && outcome == "timeout" {
		msg := fmt.Sprintf("%s on market %s: tx %s not confirmed; reconcile before retrying", op, market, hash)
		if aerr := e.alerts.Notify(bg, EventOutcomeUnknown, "Transaction outcome unknown", msg); aerr != nil {
			e.logger.WarnContext(ctx, "outcome alert failed",
				slog.String("tx_hash", hash),
				slog.String("error", aerr.Error()),
			)
		}
	}
}
