package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// JournalEntry records the terminal outcome of one write call so an operator
// can reconcile outcome-unknown transactions. It holds no trade economics.
type JournalEntry struct {
	ID        int64
	TxHash    string
	Op        string
	MarketID  MarketID
	Signer    string
	Status    TxStatus
	Error     string
	CreatedAt time.Time
}

// TxJournal persists JournalEntry rows.
type TxJournal interface {
	Record(ctx context.Context, e JournalEntry) error
	ListByStatus(ctx context.Context, status TxStatus, opts ListOpts) ([]JournalEntry, error)
	Resolve(ctx context.Context, txHash string, status TxStatus) error
}
