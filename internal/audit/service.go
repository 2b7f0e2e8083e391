package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only. No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records lifecycle events for operator visibility.
//
// Callers should treat appends as best-effort: log the returned error and
// move on.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogMerge records one merge from an async update feed.
func (s *Service) LogMerge(ctx context.Context, source, callID, providerCallID, outcome, message string) error {
	return s.Append(ctx, Event{
		Type:           EventTypeMerge,
		Source:         source,
		CallID:         callID,
		ProviderCallID: providerCallID,
		Outcome:        outcome,
		Message:        message,
	})
}

// LogReportDispatch records a report render/send attempt for a completed call.
func (s *Service) LogReportDispatch(ctx context.Context, callID, outcome, message string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeReportDispatch,
		CallID:  callID,
		Outcome: outcome,
		Message: message,
	})
}

// LogSyncRun records the aggregate result of one bulk sync pass.
func (s *Service) LogSyncRun(ctx context.Context, outcome, message, metadata string) error {
	return s.Append(ctx, Event{
		Type:     EventTypeSyncRun,
		Outcome:  outcome,
		Message:  message,
		Metadata: metadata,
	})
}
