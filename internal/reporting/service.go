// Package reporting aggregates call records into operator-facing summaries.
package reporting

import (
	"context"
	"errors"

	"callsight/internal/calls"
)

// Repository abstracts the read side of call storage. *calls.PostgresStore
// and *calls.MemoryStore both satisfy it.
type Repository interface {
	List(ctx context.Context) ([]calls.Call, error)
}

// CallsSummary is the aggregate view over all tracked calls.
type CallsSummary struct {
	TotalCalls       int `json:"total_calls"`
	CompletedCalls   int `json:"completed_calls"`
	NotAnsweredCalls int `json:"not_answered_calls"`
	InProgressCalls  int `json:"in_progress_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context) (CallsSummary, error) {
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.List(ctx)
	if err != nil {
		return CallsSummary{}, err
	}

	var out CallsSummary
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Status {
		case calls.CallStatusCompleted:
			out.CompletedCalls++
		case calls.CallStatusNotAnswered:
			out.NotAnsweredCalls++
		case calls.CallStatusInProgress:
			out.InProgressCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
	}
	return out, nil
}
