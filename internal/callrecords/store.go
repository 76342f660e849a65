package callrecords

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("callrecords: not found")
	ErrConflict        = errors.New("callrecords: version conflict")
	ErrInvalidArgument = errors.New("callrecords: invalid argument")
)

// Update is the partial field set the reconciler may write. Nil fields are
// left untouched. RawPayload, when non-nil, replaces the stored payload;
// callers that need merge semantics merge before building the Update.
type Update struct {
	Status          *CallStatus
	Outcome         *string
	StartedAt       *time.Time
	EndedAt         *time.Time
	DurationSeconds *int
	RawPayload      json.RawMessage
}

// IsZero reports whether the update would not change any field.
func (u Update) IsZero() bool {
	return u.Status == nil &&
		u.Outcome == nil &&
		u.StartedAt == nil &&
		u.EndedAt == nil &&
		u.DurationSeconds == nil &&
		u.RawPayload == nil
}

// Store is the persistence contract for call records.
//
// Concurrency contract: UpdateByProviderCallID applies the update only when
// the stored version matches expectedVersion, and returns ErrConflict
// otherwise. Callers re-read, re-merge and retry on conflict.
type Store interface {
	Insert(ctx context.Context, rec CallRecord) (CallRecord, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error)
	UpdateByProviderCallID(ctx context.Context, providerCallID string, upd Update, expectedVersion int64) (CallRecord, error)

	// ListByWorkspace returns records for a workspace, newest first.
	ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]CallRecord, error)
}

func applyUpdate(rec CallRecord, upd Update, now time.Time) CallRecord {
	if upd.Status != nil {
		rec.Status = *upd.Status
	}
	if upd.Outcome != nil {
		rec.Outcome = *upd.Outcome
	}
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		rec.StartedAt = &t
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		rec.EndedAt = &t
	}
	if upd.DurationSeconds != nil {
		d := *upd.DurationSeconds
		rec.DurationSeconds = &d
	}
	if upd.RawPayload != nil {
		rec.RawPayload = append(json.RawMessage(nil), upd.RawPayload...)
	}
	rec.Version++
	rec.UpdatedAt = now
	return rec
}
