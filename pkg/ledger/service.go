// Package ledger implements the Credit Ledger: grant, debit, refund_by_job,
// expire_now, summary, and history over per-source, per-expiry credit lots.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duskvoice/narrator/internal/db"
	"github.com/duskvoice/narrator/internal/telemetry"
	"github.com/duskvoice/narrator/pkg/clockid"
)

// Service implements the Credit Ledger contract of spec.md §4.2.
type Service struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	priority   []string // earlier = consumed first
	rank       map[string]int
	initialBal int64
	clock      clockid.Clock
}

// NewService creates a ledger Service. priority is the configured
// credit_sources_priority list; initialBalance seeds newly-seen users
// (the spec's initial_credits configuration key).
func NewService(pool *pgxpool.Pool, logger *slog.Logger, priority []string, initialBalance int64) *Service {
	rank := make(map[string]int, len(priority))
	for i, s := range priority {
		rank[s] = i
	}
	return &Service{pool: pool, logger: logger, priority: priority, rank: rank, initialBal: initialBalance, clock: clockid.RealClock{}}
}

// WithClock overrides the Service's clock, for tests that need to fix
// expiry comparisons to a deterministic instant.
func (s *Service) WithClock(c clockid.Clock) *Service {
	s.clock = c
	return s
}

func (s *Service) priorityRank(source string) int {
	if r, ok := s.rank[source]; ok {
		return r
	}
	return len(s.priority) // unknown sources sort last
}

// sortLotsByPriority orders lots by configured source priority first, then
// by soonest expiry (nulls last), then by lot ID as a deterministic
// tiebreak. Debit consumes lots in this order.
func (s *Service) sortLotsByPriority(lots []db.CreditLot) {
	sort.SliceStable(lots, func(i, j int) bool {
		ri, rj := s.priorityRank(lots[i].Source), s.priorityRank(lots[j].Source)
		if ri != rj {
			return ri < rj
		}
		ei, ej := lots[i].ExpiresAt, lots[j].ExpiresAt
		switch {
		case ei == nil && ej == nil:
			return lots[i].LotID.String() < lots[j].LotID.String()
		case ei == nil:
			return false
		case ej == nil:
			return true
		case !ei.Equal(*ej):
			return ei.Before(*ej)
		default:
			return lots[i].LotID.String() < lots[j].LotID.String()
		}
	})
}

// Grant creates a new lot, writes a credit transaction with a single
// allocation into the new lot, and updates the cached balance.
func (s *Service) Grant(ctx context.Context, userID uuid.UUID, amount int64, source string, expiresAt *time.Time, reason string, metadata json.RawMessage) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidArgument{Msg: "amount must be positive"}
	}
	if !ValidSources[source] {
		return Transaction{}, ErrInvalidArgument{Msg: fmt.Sprintf("unknown source %q", source)}
	}
	if expiresAt != nil && expiresAt.Before(s.clock.Now()) {
		return Transaction{}, ErrInvalidArgument{Msg: "expires_at is in the past"}
	}

	var result Transaction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		q := db.New(tx)

		if _, err := q.GetOrCreateUser(ctx, userID, s.initialBal); err != nil {
			return err
		}
		if _, err := q.GetUserForUpdate(ctx, userID); err != nil {
			return err
		}

		lot, err := q.CreateLot(ctx, db.CreateLotParams{
			UserID:        userID,
			Source:        source,
			AmountGranted: amount,
			ExpiresAt:     expiresAt,
		})
		if err != nil {
			return fmt.Errorf("creating lot: %w", err)
		}

		txRow, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
			UserID:   userID,
			Amount:   amount,
			Kind:     db.TxKindCredit,
			Status:   db.TxStatusApplied,
			Reason:   reason,
			Metadata: metadata,
		})
		if err != nil {
			return fmt.Errorf("creating credit transaction: %w", err)
		}

		if err := q.CreateAllocation(ctx, txRow.TxID, lot.LotID, amount); err != nil {
			return err
		}

		if _, err := s.reconcileBalance(ctx, q, userID); err != nil {
			return err
		}

		result = txFromRow(txRow)
		return nil
	})
	return result, err
}

// Debit consumes amount across active lots in priority order, writing one
// debit transaction with one allocation per touched lot. The unique
// open-debit constraint on (job_id, kind=debit, status=applied) is the
// idempotency key: on conflict, the existing transaction is returned.
func (s *Service) Debit(ctx context.Context, userID uuid.UUID, amount int64, jobID uuid.UUID, storyID *string, reason string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidArgument{Msg: "amount must be positive"}
	}

	var result Transaction
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		q := db.New(tx)

		if _, err := q.GetOrCreateUser(ctx, userID, s.initialBal); err != nil {
			return err
		}
		if _, err := q.GetUserForUpdate(ctx, userID); err != nil {
			return err
		}

		// Checked under the user row lock, so a concurrent debit for the
		// same job has committed (and is found here) before this one runs.
		if existing, err := q.GetAppliedDebitByJobID(ctx, jobID); err == nil {
			result = txFromRow(*existing)
			return nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("checking for existing debit: %w", err)
		}

		lots, err := q.ListActiveLotsForUpdate(ctx, userID, s.clock.Now())
		if err != nil {
			return err
		}
		s.sortLotsByPriority(lots)

		var available int64
		for _, l := range lots {
			available += l.AmountRemaining
		}
		if available < amount {
			return ErrInsufficientCredits{Required: amount, Available: available}
		}

		txRow, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
			UserID:  userID,
			Amount:  -amount,
			Kind:    db.TxKindDebit,
			Status:  db.TxStatusApplied,
			Reason:  reason,
			JobID:   &jobID,
			StoryID: storyID,
		})
		if err != nil {
			return fmt.Errorf("creating debit transaction: %w", err)
		}

		remaining := amount
		for _, l := range lots {
			if remaining <= 0 {
				break
			}
			take := l.AmountRemaining
			if take > remaining {
				take = remaining
			}
			if err := q.AdjustLotRemaining(ctx, l.LotID, -take); err != nil {
				return err
			}
			if err := q.CreateAllocation(ctx, txRow.TxID, l.LotID, -take); err != nil {
				return err
			}
			remaining -= take
		}

		if _, err := s.reconcileBalance(ctx, q, userID); err != nil {
			return err
		}

		telemetry.CreditsDebitedTotal.Add(float64(amount))
		result = txFromRow(txRow)
		return nil
	})

	var insufficient ErrInsufficientCredits
	if errors.As(err, &insufficient) {
		telemetry.InsufficientCreditsTotal.Inc()
	}
	return result, err
}

// RefundByJob is idempotent: if an applied debit exists for job_id,
// restores the original amounts to the same lots the debit drew from and
// marks it refunded. Returns (Transaction{}, false, nil) — a NoOp — if the
// debit is already refunded or does not exist.
func (s *Service) RefundByJob(ctx context.Context, jobID uuid.UUID, reason string) (Transaction, bool, error) {
	var result Transaction
	var refunded bool

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		q := db.New(tx)

		debit, err := q.GetAppliedDebitByJobID(ctx, jobID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil // NoOp: no applied debit for this job.
			}
			return fmt.Errorf("looking up debit for job %s: %w", jobID, err)
		}

		if _, err := q.GetUserForUpdate(ctx, debit.UserID); err != nil {
			return err
		}

		allocations, err := q.ListAllocationsForTx(ctx, debit.TxID)
		if err != nil {
			return err
		}

		refundTx, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
			UserID:  debit.UserID,
			Amount:  -debit.Amount, // debit.Amount is negative; refund is positive
			Kind:    db.TxKindRefund,
			Status:  db.TxStatusApplied,
			Reason:  reason,
			JobID:   &jobID,
			StoryID: debit.StoryID,
		})
		if err != nil {
			return fmt.Errorf("creating refund transaction: %w", err)
		}

		for _, a := range allocations {
			restore := -a.Amount // original allocation was negative
			if _, err := q.GetLotForUpdate(ctx, a.LotID); err != nil {
				return fmt.Errorf("locking lot %s for refund: %w", a.LotID, err)
			}
			if err := q.AdjustLotRemaining(ctx, a.LotID, restore); err != nil {
				return err
			}
			if err := q.CreateAllocation(ctx, refundTx.TxID, a.LotID, restore); err != nil {
				return err
			}
		}

		if err := q.MarkDebitRefunded(ctx, debit.TxID); err != nil {
			return err
		}

		if _, err := s.reconcileBalance(ctx, q, debit.UserID); err != nil {
			return err
		}

		telemetry.CreditsRefundedTotal.Add(float64(-debit.Amount))
		result = txFromRow(refundTx)
		refunded = true
		return nil
	})

	return result, refunded, err
}

// ExpireNow zeroes amount_remaining on every lot with expires_at <= asOf,
// recording one expire transaction per affected lot. A nil userID expires
// lots across every user (the daily expire_lots beat); a non-nil userID
// scopes to one user. Summary does not call it: expired lots are left out
// of its active balance without being zeroed.
func (s *Service) ExpireNow(ctx context.Context, userID *uuid.UUID, asOf time.Time) (int, error) {
	count := 0
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		q := db.New(tx)

		lots, err := q.ListExpiringLotsForUpdate(ctx, userID, asOf)
		if err != nil {
			return err
		}

		touched := make(map[uuid.UUID]bool)
		for _, l := range lots {
			lost := l.AmountRemaining

			txRow, err := q.CreateTransaction(ctx, db.CreateTransactionParams{
				UserID: l.UserID,
				Amount: -lost,
				Kind:   db.TxKindExpire,
				Status: db.TxStatusApplied,
				Reason: "lot expired",
			})
			if err != nil {
				return fmt.Errorf("creating expire transaction for lot %s: %w", l.LotID, err)
			}
			if err := q.CreateAllocation(ctx, txRow.TxID, l.LotID, -lost); err != nil {
				return err
			}
			if err := q.ZeroOutLot(ctx, l.LotID); err != nil {
				return err
			}

			touched[l.UserID] = true
			count++
		}

		for uid := range touched {
			if _, err := s.reconcileBalance(ctx, q, uid); err != nil {
				return err
			}
		}
		return nil
	})
	return count, err
}

// Summary computes active balance as Σ amount_remaining over non-expired
// lots, reconciling the cached balance if it has drifted.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID, unitLabel string) (Summary, error) {
	var summary Summary
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		q := db.New(tx)

		user, err := q.GetOrCreateUser(ctx, userID, s.initialBal)
		if err != nil {
			return err
		}

		active, err := s.reconcileBalance(ctx, q, userID)
		if err != nil {
			return err
		}

		lots, err := q.ListLotsForUser(ctx, userID)
		if err != nil {
			return err
		}

		viewLots := make([]Lot, 0, len(lots))
		for _, l := range lots {
			viewLots = append(viewLots, lotFromRow(l))
		}

		summary = Summary{
			ActiveBalance: active,
			CachedBalance: user.CreditsBalanceCached,
			Mismatch:      active != user.CreditsBalanceCached,
			Lots:          viewLots,
			UnitLabel:     unitLabel,
		}
		return nil
	})
	return summary, err
}

// History pages through a user's transactions, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, page, pageSize int, kinds []string) (History, error) {
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	q := db.New(s.pool)
	txs, err := q.ListTransactions(ctx, db.ListTransactionsParams{
		UserID: userID,
		Kinds:  kinds,
		Limit:  int32(pageSize),
		Offset: int32(offset),
	})
	if err != nil {
		return History{}, fmt.Errorf("listing history: %w", err)
	}

	total, err := q.CountTransactions(ctx, userID, kinds)
	if err != nil {
		return History{}, fmt.Errorf("counting history: %w", err)
	}

	items := make([]Transaction, 0, len(txs))
	for _, t := range txs {
		items = append(items, txFromRow(t))
	}

	totalPages := (total + pageSize - 1) / pageSize
	return History{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// reconcileBalance recomputes the active balance from lots and, if it
// differs from the cached value, emits a reconciliation metric and
// updates the cache to match (spec.md §4.2).
func (s *Service) reconcileBalance(ctx context.Context, q *db.Queries, userID uuid.UUID) (int64, error) {
	lots, err := q.ListLotsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	var active int64
	for _, l := range lots {
		if l.ExpiresAt == nil || l.ExpiresAt.After(now) {
			active += l.AmountRemaining
		}
	}

	user, err := q.GetUserForUpdate(ctx, userID)
	if err != nil {
		return 0, err
	}

	if user.CreditsBalanceCached != active {
		telemetry.LedgerReconciliationMismatchTotal.Inc()
		s.logger.Warn("ledger cache mismatch reconciled",
			"user_id", userID, "cached", user.CreditsBalanceCached, "active", active)
		if err := q.SetUserCachedBalance(ctx, userID, active); err != nil {
			return 0, err
		}
	}

	return active, nil
}

// withTx runs fn inside a transaction, translating serialization failures
// and deadlocks into ErrConcurrencyConflict for callers to retry.
func (s *Service) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
			return ErrConcurrencyConflict{Cause: err}
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
