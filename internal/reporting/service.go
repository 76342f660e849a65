package reporting

import (
	"context"
	"errors"
	"time"

	"welfarecheck-platform/internal/callrecords"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce workspace filtering.
// - Implementations should read the reconciled call records, never raw
//   provider payloads.

type Repository interface {
	ListCalls(ctx context.Context, workspaceID string, from, to time.Time) ([]callrecords.CallRecord, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.WorkspaceID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{WorkspaceID: req.WorkspaceID, Outcomes: map[string]int{}}
	for _, c := range rows {
		out.TotalCalls++
		if c.DurationSeconds != nil {
			out.TotalDurationSeconds += *c.DurationSeconds
		}
		if c.Outcome != "" {
			out.Outcomes[c.Outcome]++
		}

		switch c.Status {
		case callrecords.CallStatusCompleted:
			out.CompletedCalls++
		case callrecords.CallStatusCompletedTransferred:
			out.TransferredCalls++
		case callrecords.CallStatusFailed:
			out.FailedCalls++
		case callrecords.CallStatusNoAnswer:
			out.NoAnswerCalls++
		case callrecords.CallStatusBusy:
			out.BusyCalls++
		case callrecords.CallStatusCanceled:
			out.CanceledCalls++
		case callrecords.CallStatusRinging, callrecords.CallStatusInProgress:
			out.InProgressCalls++
		case callrecords.CallStatusScheduled:
			out.ScheduledCalls++
		default:
			out.UnknownCalls++
		}
	}

	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.AnswerRate = float64(out.CompletedCalls+out.TransferredCalls) / float64(out.TotalCalls)
	}
	return out, nil
}
