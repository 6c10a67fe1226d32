package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateLotParams groups the arguments to CreateLot.
type CreateLotParams struct {
	UserID        uuid.UUID
	Source        string
	AmountGranted int64
	ExpiresAt     *time.Time
}

// CreateLot inserts a new credit lot with amount_remaining = amount_granted.
func (q *Queries) CreateLot(ctx context.Context, arg CreateLotParams) (CreditLot, error) {
	const sql = `
		INSERT INTO credit_lots (lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $3, $4, now())
		RETURNING lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at`

	var l CreditLot
	err := q.db.QueryRow(ctx, sql, arg.UserID, arg.Source, arg.AmountGranted, arg.ExpiresAt).Scan(
		&l.LotID, &l.UserID, &l.Source, &l.AmountGranted, &l.AmountRemaining, &l.ExpiresAt, &l.CreatedAt,
	)
	if err != nil {
		return CreditLot{}, fmt.Errorf("creating lot for user %s: %w", arg.UserID, err)
	}
	return l, nil
}

// ListActiveLotsForUpdate returns every lot with amount_remaining > 0 that
// is not expired (as of asOf), locking each row for the enclosing
// transaction. Ordered by expires_at ascending (nulls last) and lot_id;
// the ledger service re-sorts these by the configured source priority,
// which is runtime config and so cannot live in the SQL order by.
func (q *Queries) ListActiveLotsForUpdate(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]CreditLot, error) {
	const sql = `
		SELECT lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at
		FROM credit_lots
		WHERE user_id = $1
		  AND amount_remaining > 0
		  AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY expires_at ASC NULLS LAST, lot_id ASC
		FOR UPDATE`

	rows, err := q.db.Query(ctx, sql, userID, asOf)
	if err != nil {
		return nil, fmt.Errorf("listing active lots for user %s: %w", userID, err)
	}
	defer rows.Close()

	var lots []CreditLot
	for rows.Next() {
		var l CreditLot
		if err := rows.Scan(&l.LotID, &l.UserID, &l.Source, &l.AmountGranted, &l.AmountRemaining, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// ListLotsForUser returns all lots for a user, newest first, for the
// summary view. Unlike ListActiveLotsForUpdate, this is not locked and
// includes exhausted/expired lots for the caller to filter/display.
func (q *Queries) ListLotsForUser(ctx context.Context, userID uuid.UUID) ([]CreditLot, error) {
	const sql = `
		SELECT lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at
		FROM credit_lots
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := q.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, fmt.Errorf("listing lots for user %s: %w", userID, err)
	}
	defer rows.Close()

	var lots []CreditLot
	for rows.Next() {
		var l CreditLot
		if err := rows.Scan(&l.LotID, &l.UserID, &l.Source, &l.AmountGranted, &l.AmountRemaining, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// GetLotForUpdate locks a single lot by ID, used by refund_by_job to
// restore amount_remaining to lots that may have since expired or been
// fully consumed by other debits.
func (q *Queries) GetLotForUpdate(ctx context.Context, lotID uuid.UUID) (CreditLot, error) {
	const sql = `
		SELECT lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at
		FROM credit_lots
		WHERE lot_id = $1
		FOR UPDATE`

	var l CreditLot
	err := q.db.QueryRow(ctx, sql, lotID).Scan(&l.LotID, &l.UserID, &l.Source, &l.AmountGranted, &l.AmountRemaining, &l.ExpiresAt, &l.CreatedAt)
	if err != nil {
		return CreditLot{}, fmt.Errorf("getting lot %s for update: %w", lotID, err)
	}
	return l, nil
}

// AdjustLotRemaining adds delta (positive or negative) to amount_remaining.
// Callers are responsible for keeping the result within [0, amount_granted]
// except for refunds to an already-exhausted or expired lot, which are
// explicitly allowed to restore history even though the amount is not
// spendable (spec.md §9 decision).
func (q *Queries) AdjustLotRemaining(ctx context.Context, lotID uuid.UUID, delta int64) error {
	const sql = `UPDATE credit_lots SET amount_remaining = amount_remaining + $2 WHERE lot_id = $1`
	if _, err := q.db.Exec(ctx, sql, lotID, delta); err != nil {
		return fmt.Errorf("adjusting lot %s by %d: %w", lotID, delta, err)
	}
	return nil
}

// ZeroOutLot sets amount_remaining to zero, used by expire_now.
func (q *Queries) ZeroOutLot(ctx context.Context, lotID uuid.UUID) error {
	const sql = `UPDATE credit_lots SET amount_remaining = 0 WHERE lot_id = $1`
	if _, err := q.db.Exec(ctx, sql, lotID); err != nil {
		return fmt.Errorf("zeroing lot %s: %w", lotID, err)
	}
	return nil
}

// ListExpiringLotsForUpdate returns lots with expires_at <= asOf and
// amount_remaining > 0, locked for the enclosing transaction. A nil
// userID scans every user's lots (the daily expire_lots beat); a non-nil
// userID scopes to a single user.
func (q *Queries) ListExpiringLotsForUpdate(ctx context.Context, userID *uuid.UUID, asOf time.Time) ([]CreditLot, error) {
	var sql string
	var args []any

	if userID != nil {
		sql = `
			SELECT lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at
			FROM credit_lots
			WHERE user_id = $1 AND expires_at IS NOT NULL AND expires_at <= $2 AND amount_remaining > 0
			ORDER BY lot_id
			FOR UPDATE`
		args = []any{*userID, asOf}
	} else {
		sql = `
			SELECT lot_id, user_id, source, amount_granted, amount_remaining, expires_at, created_at
			FROM credit_lots
			WHERE expires_at IS NOT NULL AND expires_at <= $1 AND amount_remaining > 0
			ORDER BY lot_id
			FOR UPDATE`
		args = []any{asOf}
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing expiring lots: %w", err)
	}
	defer rows.Close()

	var lots []CreditLot
	for rows.Next() {
		var l CreditLot
		if err := rows.Scan(&l.LotID, &l.UserID, &l.Source, &l.AmountGranted, &l.AmountRemaining, &l.ExpiresAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lot: %w", err)
		}
		lots = append(lots, l)
	}
	return lots, rows.Err()
}

// CreateTransactionParams groups the arguments to CreateTransaction.
type CreateTransactionParams struct {
	UserID   uuid.UUID
	Amount   int64
	Kind     string
	Status   string
	Reason   string
	JobID    *uuid.UUID
	StoryID  *string
	Metadata []byte
}

// CreateTransaction inserts a ledger transaction. For debits, the caller
// must rely on the partial unique index on (job_id) where kind='debit' and
// status='applied' to enforce idempotency; a unique violation here means
// the caller should look up the existing transaction via
// GetAppliedDebitByJobID instead of treating this as a hard error.
func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (CreditTransaction, error) {
	const sql = `
		INSERT INTO credit_transactions (tx_id, user_id, amount, kind, status, reason, job_id, story_id, metadata, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8::jsonb, now())
		RETURNING tx_id, user_id, amount, kind, status, reason, job_id, story_id, metadata, created_at`

	var t CreditTransaction
	err := q.db.QueryRow(ctx, sql, arg.UserID, arg.Amount, arg.Kind, arg.Status, arg.Reason, arg.JobID, arg.StoryID, arg.Metadata).Scan(
		&t.TxID, &t.UserID, &t.Amount, &t.Kind, &t.Status, &t.Reason, &t.JobID, &t.StoryID, &t.Metadata, &t.CreatedAt,
	)
	if err != nil {
		return CreditTransaction{}, fmt.Errorf("creating %s transaction for user %s: %w", arg.Kind, arg.UserID, err)
	}
	return t, nil
}

// GetAppliedDebitByJobID returns the applied debit transaction for a job,
// if one exists. Used both to detect DuplicateDebit and to find the
// allocations a refund must mirror.
func (q *Queries) GetAppliedDebitByJobID(ctx context.Context, jobID uuid.UUID) (*CreditTransaction, error) {
	const sql = `
		SELECT tx_id, user_id, amount, kind, status, reason, job_id, story_id, metadata, created_at
		FROM credit_transactions
		WHERE job_id = $1 AND kind = 'debit' AND status = 'applied'`

	var t CreditTransaction
	err := q.db.QueryRow(ctx, sql, jobID).Scan(
		&t.TxID, &t.UserID, &t.Amount, &t.Kind, &t.Status, &t.Reason, &t.JobID, &t.StoryID, &t.Metadata, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// MarkDebitRefunded flips a debit transaction's status to refunded.
func (q *Queries) MarkDebitRefunded(ctx context.Context, txID uuid.UUID) error {
	const sql = `UPDATE credit_transactions SET status = 'refunded' WHERE tx_id = $1`
	if _, err := q.db.Exec(ctx, sql, txID); err != nil {
		return fmt.Errorf("marking transaction %s refunded: %w", txID, err)
	}
	return nil
}

// CreateAllocation inserts one (tx_id, lot_id) -> amount mapping.
func (q *Queries) CreateAllocation(ctx context.Context, txID, lotID uuid.UUID, amount int64) error {
	const sql = `INSERT INTO credit_allocations (tx_id, lot_id, amount) VALUES ($1, $2, $3)`
	if _, err := q.db.Exec(ctx, sql, txID, lotID, amount); err != nil {
		return fmt.Errorf("creating allocation tx=%s lot=%s: %w", txID, lotID, err)
	}
	return nil
}

// ListAllocationsForTx returns every (lot_id, amount) pair for a
// transaction, used by refund_by_job to mirror the original debit.
func (q *Queries) ListAllocationsForTx(ctx context.Context, txID uuid.UUID) ([]CreditAllocation, error) {
	const sql = `SELECT tx_id, lot_id, amount FROM credit_allocations WHERE tx_id = $1 ORDER BY lot_id`

	rows, err := q.db.Query(ctx, sql, txID)
	if err != nil {
		return nil, fmt.Errorf("listing allocations for tx %s: %w", txID, err)
	}
	defer rows.Close()

	var allocs []CreditAllocation
	for rows.Next() {
		var a CreditAllocation
		if err := rows.Scan(&a.TxID, &a.LotID, &a.Amount); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// ListTransactionsParams groups the arguments to ListTransactions.
type ListTransactionsParams struct {
	UserID uuid.UUID
	Kinds  []string // empty means no filter
	Limit  int32
	Offset int32
}

// ListTransactions pages through a user's ledger history, newest first.
func (q *Queries) ListTransactions(ctx context.Context, arg ListTransactionsParams) ([]CreditTransaction, error) {
	sql := `
		SELECT tx_id, user_id, amount, kind, status, reason, job_id, story_id, metadata, created_at
		FROM credit_transactions
		WHERE user_id = $1`
	args := []any{arg.UserID}

	if len(arg.Kinds) > 0 {
		sql += fmt.Sprintf(" AND kind = ANY($%d)", len(args)+1)
		args = append(args, arg.Kinds)
	}

	sql += fmt.Sprintf(" ORDER BY created_at DESC, tx_id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, arg.Limit, arg.Offset)

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for user %s: %w", arg.UserID, err)
	}
	defer rows.Close()

	var txs []CreditTransaction
	for rows.Next() {
		var t CreditTransaction
		if err := rows.Scan(&t.TxID, &t.UserID, &t.Amount, &t.Kind, &t.Status, &t.Reason, &t.JobID, &t.StoryID, &t.Metadata, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// CountTransactions returns the total transaction count for a user
// matching the optional kind filter, for pagination metadata.
func (q *Queries) CountTransactions(ctx context.Context, userID uuid.UUID, kinds []string) (int, error) {
	sql := `SELECT count(*) FROM credit_transactions WHERE user_id = $1`
	args := []any{userID}
	if len(kinds) > 0 {
		sql += " AND kind = ANY($2)"
		args = append(args, kinds)
	}

	var n int
	if err := q.db.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting transactions for user %s: %w", userID, err)
	}
	return n, nil
}
