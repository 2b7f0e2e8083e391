package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends events to the audit_events table. The table is
// INSERT-only; retention is an operational concern (partition or prune by
// created_at).

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
    id               UUID PRIMARY KEY,
    type             TEXT NOT NULL,
    call_id          TEXT NOT NULL DEFAULT '',
    provider_call_id TEXT NOT NULL DEFAULT '',
    source           TEXT NOT NULL DEFAULT '',
    outcome          TEXT NOT NULL DEFAULT '',
    message          TEXT NOT NULL DEFAULT '',
    metadata         TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the audit_events table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, auditSchema)
	return err
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, call_id, provider_call_id, source, outcome, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.CallID, e.ProviderCallID, e.Source, e.Outcome, e.Message, e.Metadata, e.CreatedAt,
	)
	return err
}
