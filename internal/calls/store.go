package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Store is the persistence contract for call records.
//
// Implementations set CreatedAt on insert and UpdatedAt on every write.
// GetByProviderCallID must treat the provider call id as unique among
// non-empty values.
type Store interface {
	Insert(ctx context.Context, c *Call) error
	Update(ctx context.Context, c *Call) error
	GetByID(ctx context.Context, id string) (Call, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (Call, error)
	List(ctx context.Context) ([]Call, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// PostgresStore persists calls in the calls table (see EnsureSchema).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const callsSchema = `
CREATE TABLE IF NOT EXISTS calls (
    id               UUID PRIMARY KEY,
    provider_call_id TEXT UNIQUE,
    phone_number     TEXT NOT NULL,
    from_number      TEXT NOT NULL DEFAULT '',
    script           TEXT NOT NULL DEFAULT '',
    status           TEXT NOT NULL,
    transcript       TEXT NOT NULL DEFAULT '',
    duration_seconds INT  NOT NULL DEFAULT 0,
    recording_url    TEXT NOT NULL DEFAULT '',
    issues           TEXT NOT NULL DEFAULT '',
    transferred_to   TEXT NOT NULL DEFAULT '',
    summary          TEXT NOT NULL DEFAULT '',
    pathway          TEXT NOT NULL DEFAULT '',
    review_status    TEXT NOT NULL DEFAULT 'pending',
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
)`

// EnsureSchema creates the calls table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, callsSchema)
	return err
}

const callColumns = `id, provider_call_id, phone_number, from_number, script, status,
transcript, duration_seconds, recording_url, issues, transferred_to, summary,
pathway, review_status, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, c *Call) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	const q = `
INSERT INTO calls (` + callColumns + `)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID, c.ProviderCallID, c.PhoneNumber, c.FromNumber, c.Script, c.Status,
		c.Transcript, c.DurationSeconds, c.RecordingURL, c.Issues, c.TransferredTo,
		c.Summary, c.Pathway, c.ReviewStatus, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, c *Call) error {
	c.UpdatedAt = time.Now().UTC()

	const q = `
UPDATE calls
SET provider_call_id = NULLIF($2, ''),
    phone_number = $3, from_number = $4, script = $5, status = $6,
    transcript = $7, duration_seconds = $8, recording_url = $9, issues = $10,
    transferred_to = $11, summary = $12, pathway = $13, review_status = $14,
    updated_at = $15
WHERE id = $1
`
	res, err := s.db.ExecContext(ctx, q,
		c.ID, c.ProviderCallID, c.PhoneNumber, c.FromNumber, c.Script, c.Status,
		c.Transcript, c.DurationSeconds, c.RecordingURL, c.Issues, c.TransferredTo,
		c.Summary, c.Pathway, c.ReviewStatus, c.UpdatedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	if providerCallID == "" {
		return Call{}, ErrNotFound
	}
	const q = `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) List(ctx context.Context) ([]Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calls`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (Call, error) {
	c, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func scanCall(r rowScanner) (Call, error) {
	var c Call
	var providerCallID sql.NullString
	err := r.Scan(
		&c.ID, &providerCallID, &c.PhoneNumber, &c.FromNumber, &c.Script, &c.Status,
		&c.Transcript, &c.DurationSeconds, &c.RecordingURL, &c.Issues, &c.TransferredTo,
		&c.Summary, &c.Pathway, &c.ReviewStatus, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	c.ProviderCallID = providerCallID.String
	return c, nil
}
