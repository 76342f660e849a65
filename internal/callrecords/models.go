package callrecords

import (
	"encoding/json"
	"time"
)

// CallRecord is one scheduled welfare check-in call attempt.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
//
// Lifecycle invariant: records are created once by the scheduling flow with
// status "scheduled" and a provider call id from the create-call response.
// After that, only the reconciler mutates them in response to provider
// events. Records are never deleted by this service.
//
// ProviderCallID is the correlation key for all inbound provider events and
// is immutable after insert.

type CallRecord struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// ProviderCallID is the voice provider's identifier for this call.
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	RecipientName string `json:"recipient_name" db:"recipient_name"`
	PhoneNumber   string `json:"phone_number" db:"phone_number"`
	Message       string `json:"message" db:"message"`

	Status CallStatus `json:"status" db:"status"`

	// Outcome is a short human-facing summary derived from terminal or
	// analysis events. Empty until one arrives; refined, never cleared.
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is derived from start/end timestamps, never set on
	// its own.
	DurationSeconds *int `json:"duration_seconds,omitempty" db:"duration_seconds"`

	// RawPayload accumulates provider event payloads; later events merge
	// into it rather than replacing it (store as JSONB).
	RawPayload json.RawMessage `json:"raw_payload,omitempty" db:"raw_payload"`

	// Version is the optimistic concurrency token; every successful update
	// increments it.
	Version int64 `json:"version" db:"version"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusScheduled            CallStatus = "scheduled"
	CallStatusRinging              CallStatus = "ringing"
	CallStatusInProgress           CallStatus = "in_progress"
	CallStatusCompleted            CallStatus = "completed"
	CallStatusCompletedTransferred CallStatus = "completed_transferred"
	CallStatusFailed               CallStatus = "failed"
	CallStatusBusy                 CallStatus = "busy"
	CallStatusNoAnswer             CallStatus = "no_answer"
	CallStatusCanceled             CallStatus = "canceled"
	CallStatusUnknown              CallStatus = "unknown"
)

// IsTerminal reports whether s is a status this service does not expect
// further status transitions from. Terminal records still accept outcome and
// payload refinement from analysis events.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted,
		CallStatusCompletedTransferred,
		CallStatusFailed,
		CallStatusBusy,
		CallStatusNoAnswer,
		CallStatusCanceled:
		return true
	default:
		return false
	}
}
