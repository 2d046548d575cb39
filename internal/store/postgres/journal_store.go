package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketrelay/internal/domain"
)

// JournalStore implements domain.TxJournal using PostgreSQL.
type JournalStore struct {
	pool *pgxpool.Pool
}

// NewJournalStore creates a JournalStore backed by the given connection pool.
func NewJournalStore(pool *pgxpool.Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Record inserts e. A second record for the same hash overwrites its status
// and error; the original creation time is kept.
func (s *JournalStore) Record(ctx context.Context, e domain.JournalEntry) error {
	if e.TxHash == "" {
		return fmt.Errorf("postgres: record journal entry: %w: empty tx hash", domain.ErrValidation)
	}
	const query = `
		INSERT INTO tx_journal (tx_hash, op, market_id, signer, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tx_hash) DO UPDATE
		SET status = EXCLUDED.status, error = EXCLUDED.error`

	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, query,
		e.TxHash, e.Op, string(e.MarketID), e.Signer, string(e.Status), e.Error, createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record journal entry %s: %w", e.TxHash, err)
	}
	return nil
}

// ListByStatus returns entries with status, newest first.
func (s *JournalStore) ListByStatus(ctx context.Context, status domain.TxStatus, opts domain.ListOpts) ([]domain.JournalEntry, error) {
	query, args := listByStatusQuery(status, opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list journal entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e              domain.JournalEntry
			market, status string
		)
		if err := rows.Scan(&e.ID, &e.TxHash, &e.Op, &market, &e.Signer, &status, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan journal entry: %w", err)
		}
		e.MarketID = domain.MarketID(market)
		e.Status = domain.TxStatus(status)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list journal entries rows: %w", err)
	}
	return entries, nil
}

func listByStatusQuery(status domain.TxStatus, opts domain.ListOpts) (string, []any) {
	query := `SELECT id, tx_hash, op, market_id, signer, status, error, created_at
		FROM tx_journal WHERE status = $1`
	args := []any{string(status)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return query, args
}

// Resolve sets the reconciled terminal status of an entry. Only SUCCESS and
// FAILED are valid resolutions.
func (s *JournalStore) Resolve(ctx context.Context, txHash string, status domain.TxStatus) error {
	if status != domain.TxSuccess && status != domain.TxFailed {
		return fmt.Errorf("postgres: resolve %s: %w: status %s", txHash, domain.ErrValidation, status)
	}
	const query = `UPDATE tx_journal SET status = $2, resolved_at = NOW() WHERE tx_hash = $1`
	tag, err := s.pool.Exec(ctx, query, txHash, string(status))
	if err != nil {
		return fmt.Errorf("postgres: resolve %s: %w", txHash, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: resolve %s: %w", txHash, domain.ErrNotFound)
	}
	return nil
}

var _ domain.TxJournal = (*JournalStore)(nil)
