// Package db is a hand-written, sqlc-shaped query layer: a DBTX interface
// satisfied by both *pgxpool.Pool and pgx.Tx, and a Queries struct whose
// methods run SQL against the schema created by migrations/. Every query
// here has its SQL string next to its scan; a few methods append optional
// filter and paging clauses to that string at runtime.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, pgx.Tx, and pgx.Conn. Methods accept
// either a pool (auto-managed connection per call) or an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New wraps a DBTX in a Queries value.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries groups every narrator SQL statement behind typed Go methods.
type Queries struct {
	db DBTX
}

// WithTx returns a Queries bound to an open transaction, so a caller can
// run several statements atomically.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}
