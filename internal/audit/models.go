package audit

import "time"

// Event is an immutable, append-only record of one lifecycle action: a call
// creation, a merge from one of the async update feeds, a sync run, or a
// report dispatch attempt.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; critical flows must not block on audit failures.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the lifecycle category of the record.
	Type EventType `json:"type" db:"type"`

	// CallID is the local call identifier, when known.
	CallID string `json:"call_id,omitempty" db:"call_id"`
	// ProviderCallID is the external join key, when known.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	// Source tags which feed produced a merge event (webhook or sync).
	Source string `json:"source,omitempty" db:"source"`

	// Outcome is a short machine-readable result: created, updated,
	// unchanged, dispatched, failed.
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeCallCreated    EventType = "call_created"
	EventTypeMerge          EventType = "merge"
	EventTypeSyncRun        EventType = "sync_run"
	EventTypeReportDispatch EventType = "report_dispatch"
)
