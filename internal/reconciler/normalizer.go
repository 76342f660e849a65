package reconciler

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrMalformedPayload     = errors.New("reconciler: malformed payload")
	ErrMissingCorrelationID = errors.New("reconciler: missing call id")
)

// Event type strings the provider sends. Anything else normalizes fine and
// is acknowledged as a no-op by the reconciler.
const (
	EventCallStarted  = "call_started"
	EventCallEnded    = "call_ended"
	EventCallAnalyzed = "call_analyzed"
)

// Event is the typed form of one inbound provider lifecycle event.
// Optional fields are zero-valued when the variant does not carry them.
type Event struct {
	Type           string
	ProviderCallID string

	ProviderStatus      string
	DisconnectionReason string

	// StartedAt/EndedAt are zero when the event carries no timestamp.
	StartedAt time.Time
	EndedAt   time.Time

	Transcript string
	Analysis   map[string]any

	// Raw is the full event payload as received.
	Raw json.RawMessage
}

// wireEvent is the provider's JSON envelope: an event tag plus a call object
// whose field set varies by event type.
type wireEvent struct {
	Event string   `json:"event"`
	Call  wireCall `json:"call"`
}

type wireCall struct {
	CallID              string         `json:"call_id"`
	CallStatus          string         `json:"call_status"`
	DisconnectionReason string         `json:"disconnection_reason"`
	StartTimestamp      int64          `json:"start_timestamp"`
	EndTimestamp        int64          `json:"end_timestamp"`
	Transcript          string         `json:"transcript"`
	CallAnalysis        map[string]any `json:"call_analysis"`
}

// Normalize parses a raw provider webhook body into a typed Event.
//
// Failure contract:
//   - body not parseable as the envelope shape -> ErrMalformedPayload
//   - no call id present -> ErrMissingCorrelationID (callers must not touch
//     the store before this check)
//
// An unrecognized event tag is NOT an error; classification of unhandled
// types belongs to the reconciler.
func Normalize(raw []byte) (Event, error) {
	if len(raw) == 0 {
		return Event{}, ErrMalformedPayload
	}
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return Event{}, ErrMalformedPayload
	}
	if strings.TrimSpace(w.Event) == "" {
		return Event{}, ErrMalformedPayload
	}
	if strings.TrimSpace(w.Call.CallID) == "" {
		return Event{}, ErrMissingCorrelationID
	}

	ev := Event{
		Type:                w.Event,
		ProviderCallID:      w.Call.CallID,
		ProviderStatus:      w.Call.CallStatus,
		DisconnectionReason: w.Call.DisconnectionReason,
		StartedAt:           epochToTime(w.Call.StartTimestamp),
		EndedAt:             epochToTime(w.Call.EndTimestamp),
		Transcript:          w.Call.Transcript,
		Analysis:            w.Call.CallAnalysis,
		Raw:                 append(json.RawMessage(nil), raw...),
	}
	return ev, nil
}

// epochToTime accepts epoch seconds or epoch milliseconds; the provider has
// shipped both over time. Values above 1e12 can only be milliseconds.
func epochToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
