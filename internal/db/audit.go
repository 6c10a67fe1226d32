package db

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/google/uuid"
)

// CreateAuditLogEntryParams groups the arguments to CreateAuditLogEntry.
type CreateAuditLogEntryParams struct {
	ActorID    *uuid.UUID
	Action     string
	Resource   string
	ResourceID *uuid.UUID
	Detail     []byte
	IPAddress  *netip.Addr
	UserAgent  *string
}

// CreateAuditLogEntry inserts one audit log row.
func (q *Queries) CreateAuditLogEntry(ctx context.Context, arg CreateAuditLogEntryParams) (AuditLogEntry, error) {
	const sql = `
		INSERT INTO audit_log (log_id, actor_id, action, resource, resource_id, detail, ip_address, user_agent, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5::jsonb, $6, $7, now())
		RETURNING log_id, actor_id, action, resource, resource_id, detail, ip_address, user_agent, created_at`

	var e AuditLogEntry
	err := q.db.QueryRow(ctx, sql, arg.ActorID, arg.Action, arg.Resource, arg.ResourceID, arg.Detail, arg.IPAddress, arg.UserAgent).Scan(
		&e.LogID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt,
	)
	if err != nil {
		return AuditLogEntry{}, fmt.Errorf("creating audit log entry action=%s: %w", arg.Action, err)
	}
	return e, nil
}

// ListAuditLogParams groups the arguments to ListAuditLog.
type ListAuditLogParams struct {
	Limit  int32
	Offset int32
}

// ListAuditLog pages through the audit log, newest first.
func (q *Queries) ListAuditLog(ctx context.Context, arg ListAuditLogParams) ([]AuditLogEntry, error) {
	const sql = `
		SELECT log_id, actor_id, action, resource, resource_id, detail, ip_address, user_agent, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := q.db.Query(ctx, sql, arg.Limit, arg.Offset)
	if err != nil {
		return nil, fmt.Errorf("listing audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditLogEntry
	for rows.Next() {
		var e AuditLogEntry
		if err := rows.Scan(&e.LogID, &e.ActorID, &e.Action, &e.Resource, &e.ResourceID, &e.Detail, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
