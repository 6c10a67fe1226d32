package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateUser fetches a user row, creating one with the given initial
// balance if it does not exist yet. Used on first contact (voice upload,
// credit summary) so callers never have to provision users explicitly.
func (q *Queries) GetOrCreateUser(ctx context.Context, userID uuid.UUID, initialBalance int64) (User, error) {
	const sql = `
		INSERT INTO users (user_id, credits_balance_cached, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = users.user_id
		RETURNING user_id, credits_balance_cached, updated_at`

	var u User
	err := q.db.QueryRow(ctx, sql, userID, initialBalance).Scan(&u.UserID, &u.CreditsBalanceCached, &u.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("get or create user %s: %w", userID, err)
	}
	return u, nil
}

// GetUserForUpdate locks the user row for the duration of the enclosing
// transaction. Every ledger write must hold this lock first.
func (q *Queries) GetUserForUpdate(ctx context.Context, userID uuid.UUID) (User, error) {
	const sql = `
		SELECT user_id, credits_balance_cached, updated_at
		FROM users
		WHERE user_id = $1
		FOR UPDATE`

	var u User
	err := q.db.QueryRow(ctx, sql, userID).Scan(&u.UserID, &u.CreditsBalanceCached, &u.UpdatedAt)
	if err != nil {
		return User{}, fmt.Errorf("get user %s for update: %w", userID, err)
	}
	return u, nil
}

// SetUserCachedBalance overwrites the cached balance, e.g. after summary()
// detects drift or after grant/debit/refund/expire.
func (q *Queries) SetUserCachedBalance(ctx context.Context, userID uuid.UUID, balance int64) error {
	const sql = `
		UPDATE users SET credits_balance_cached = $2, updated_at = now()
		WHERE user_id = $1`

	if _, err := q.db.Exec(ctx, sql, userID, balance); err != nil {
		return fmt.Errorf("set cached balance for user %s: %w", userID, err)
	}
	return nil
}
