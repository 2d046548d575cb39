package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// ErrConfiguration means a write path is missing its contract address or
	// signer. It is returned before any network access.
	ErrConfiguration = errors.New("ledger not configured")

	// ErrSubmissionRejected means the ledger did not accept the envelope as
	// pending. The sequence number is consumed; never resubmit.
	ErrSubmissionRejected = errors.New("transaction submission rejected")

	// ErrLedgerExecutionFailed means the ledger executed the call and it failed.
	ErrLedgerExecutionFailed = errors.New("transaction failed on ledger")

	// ErrConfirmationTimeout means finality was not observed within the retry
	// budget. The outcome is unknown, not failed.
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")
	ErrValidation           = errors.New("validation failed")
)

// TxError decorates a terminal write-path error with the operation and the
// ledger-assigned hash, when one exists.
type TxError struct {
	Op     string
	TxHash string
	Status TxStatus
	Err    error
}

func (e *TxError) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: tx %s (%s): %v", e.Op, e.TxHash, e.Status, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// OutcomeUnknown reports whether err leaves the ledger state undetermined.
// Callers must treat funds touched by such a call as at risk until reconciled.
func OutcomeUnknown(err error) bool {
	return errors.Is(err, ErrConfirmationTimeout)
}
