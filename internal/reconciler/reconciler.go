package reconciler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"welfarecheck-platform/internal/callrecords"
	"welfarecheck-platform/pkg/logger"
)

// ErrUpdateConflict is returned when an optimistic write fails twice in a
// row for the same event, i.e. after one internal re-read-merge retry.
var ErrUpdateConflict = errors.New("reconciler: update conflict after retry")

// Recorder receives reconciliation metrics. Implementations must be cheap
// and non-blocking.
type Recorder interface {
	EventReceived(eventType string)
	StatusWritten(status callrecords.CallStatus)
	ConflictRetried()
}

// EventSink receives a log entry for every processed provider event.
// Sinks are best-effort; failures must never block reconciliation.
type EventSink interface {
	RecordProviderEvent(ctx context.Context, entry EventLogEntry) error
}

type EventLogEntry struct {
	WorkspaceID    string
	ProviderCallID string
	EventType      string
	Applied        bool
	Ignored        bool
	Status         callrecords.CallStatus
}

// Result describes what processing one event did.
type Result struct {
	EventType      string
	ProviderCallID string

	// Applied is true when a store write happened. A successfully processed
	// event with nothing new to write leaves it false.
	Applied bool

	// Ignored is true for event types outside the handled set. These are
	// acknowledged without touching the store.
	Ignored bool

	// Record is the current record after processing; zero when Ignored.
	Record callrecords.CallRecord
}

// Reconciler converts provider lifecycle events into call record updates.
//
// Guarantees:
//  - events for the same provider call id are serialized in-process, and the
//    store's version check protects against writers elsewhere
//  - replaying an event is a no-op once its effects are present
//  - a terminal status is never downgraded to a non-terminal one
//  - the reconciler never creates records; scheduling owns creation
type Reconciler struct {
	store   callrecords.Store
	locks   *keyedLocks
	clock   func() time.Time
	metrics Recorder
	events  EventSink
}

type Options struct {
	// Metrics and Events are optional observers.
	Metrics Recorder
	Events  EventSink

	// Clock is injectable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

func New(store callrecords.Store, opts Options) *Reconciler {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Reconciler{
		store:   store,
		locks:   newKeyedLocks(),
		clock:   clock,
		metrics: opts.Metrics,
		events:  opts.Events,
	}
}

// Process reconciles one raw provider event against the call record store.
//
// Error contract (callers map these to transport codes):
//  - ErrMalformedPayload, ErrMissingCorrelationID: client-input errors,
//    returned before any store access
//  - callrecords.ErrNotFound: no record matches the call id
//  - ErrUpdateConflict: optimistic write failed after the internal retry
//  - anything else: store failure
func (r *Reconciler) Process(ctx context.Context, raw []byte) (Result, error) {
	ev, err := Normalize(raw)
	if err != nil {
		return Result{}, err
	}

	res := Result{EventType: ev.Type, ProviderCallID: ev.ProviderCallID}
	if r.metrics != nil {
		r.metrics.EventReceived(ev.Type)
	}

	switch ev.Type {
	case EventCallStarted, EventCallEnded, EventCallAnalyzed:
	default:
		// Forward compatibility: acknowledge and move on.
		logger.From(ctx).Debug("unhandled provider event type",
			"event_type", ev.Type, "provider_call_id", ev.ProviderCallID)
		res.Ignored = true
		r.sink(ctx, res)
		return res, nil
	}

	r.locks.lock(ev.ProviderCallID)
	defer r.locks.unlock(ev.ProviderCallID)

	rec, err := r.store.GetByProviderCallID(ctx, ev.ProviderCallID)
	if err != nil {
		return Result{}, err
	}

	upd := r.buildUpdate(rec, ev)
	if upd.IsZero() {
		res.Record = rec
		r.sink(ctx, res)
		return res, nil
	}

	updated, err := r.store.UpdateByProviderCallID(ctx, ev.ProviderCallID, upd, rec.Version)
	if errors.Is(err, callrecords.ErrConflict) {
		// Lost the race to another writer: re-read, re-merge, retry once.
		if r.metrics != nil {
			r.metrics.ConflictRetried()
		}
		rec, err = r.store.GetByProviderCallID(ctx, ev.ProviderCallID)
		if err != nil {
			return Result{}, err
		}
		upd = r.buildUpdate(rec, ev)
		if upd.IsZero() {
			res.Record = rec
			r.sink(ctx, res)
			return res, nil
		}
		updated, err = r.store.UpdateByProviderCallID(ctx, ev.ProviderCallID, upd, rec.Version)
		if errors.Is(err, callrecords.ErrConflict) {
			return Result{}, ErrUpdateConflict
		}
	}
	if err != nil {
		return Result{}, err
	}

	if r.metrics != nil && upd.Status != nil {
		r.metrics.StatusWritten(*upd.Status)
	}
	res.Applied = true
	res.Record = updated
	r.sink(ctx, res)
	return res, nil
}

// buildUpdate computes the minimal field set that brings rec in line with
// ev. An empty Update means the event's effects are already present.
func (r *Reconciler) buildUpdate(rec callrecords.CallRecord, ev Event) callrecords.Update {
	var upd callrecords.Update

	switch ev.Type {
	case EventCallStarted:
		next := callrecords.CallStatusInProgress
		if ev.ProviderStatus == "ringing" {
			next = callrecords.CallStatusRinging
		}
		if statusWriteAllowed(rec.Status, next) {
			upd.Status = &next
		}
		setStartedAt(&upd, rec, ev.StartedAt, r.clock)

	case EventCallEnded:
		next := MapStatus(ev.ProviderStatus, ev.DisconnectionReason)
		if statusWriteAllowed(rec.Status, next) {
			upd.Status = &next
		}
		setStartedAt(&upd, rec, ev.StartedAt, nil)
		setEndedAt(&upd, rec, ev.EndedAt, r.clock)
		setDuration(&upd, rec, ev)
		// An analysis event may already have landed a richer outcome; the
		// generic reason-derived label only fills a blank.
		if rec.Outcome == "" || rec.Outcome == OutcomeUndetermined {
			setOutcome(&upd, rec, ExtractOutcome(ev))
		}
		if merged := mergePayloads(rec.RawPayload, ev.Raw); !bytes.Equal(rec.RawPayload, merged) {
			upd.RawPayload = merged
		}

	case EventCallAnalyzed:
		// Open design point settled here: analysis never overwrites a
		// terminal status, it only refines outcome and payload.
		if !rec.Status.IsTerminal() {
			next := MapStatus(ev.ProviderStatus, ev.DisconnectionReason)
			if statusWriteAllowed(rec.Status, next) {
				upd.Status = &next
			}
		}
		setOutcome(&upd, rec, ExtractOutcome(ev))
		if merged := mergePayloads(rec.RawPayload, ev.Raw); !bytes.Equal(rec.RawPayload, merged) {
			upd.RawPayload = merged
		}
	}

	return upd
}

// statusWriteAllowed encodes the ordering rules:
//   - terminal statuses may be overwritten only by other terminal statuses
//     (late-arriving definitive events win, stale progress events do not)
//   - unknown absorbs everything except a definitive terminal resolution
func statusWriteAllowed(cur, next callrecords.CallStatus) bool {
	if cur == next {
		return false
	}
	if next.IsTerminal() {
		return true
	}
	if cur.IsTerminal() || cur == callrecords.CallStatusUnknown {
		return false
	}
	return true
}

// setStartedAt prefers the event timestamp; without one it falls back to the
// clock, but only for the first write so replays stay idempotent. A nil
// clock disables the fallback.
func setStartedAt(upd *callrecords.Update, rec callrecords.CallRecord, eventTS time.Time, clock func() time.Time) {
	if !eventTS.IsZero() {
		if rec.StartedAt == nil || !rec.StartedAt.Equal(eventTS) {
			t := eventTS
			upd.StartedAt = &t
		}
		return
	}
	if rec.StartedAt == nil && clock != nil {
		t := clock().UTC()
		upd.StartedAt = &t
	}
}

func setEndedAt(upd *callrecords.Update, rec callrecords.CallRecord, eventTS time.Time, clock func() time.Time) {
	if !eventTS.IsZero() {
		if rec.EndedAt == nil || !rec.EndedAt.Equal(eventTS) {
			t := eventTS
			upd.EndedAt = &t
		}
		return
	}
	if rec.EndedAt == nil && clock != nil {
		t := clock().UTC()
		upd.EndedAt = &t
	}
}

// setDuration derives duration from both timestamps, never from one alone.
// Pending writes in upd count, so the clock-fallback endedAt produces a
// duration in the same pass instead of on a replay.
func setDuration(upd *callrecords.Update, rec callrecords.CallRecord, ev Event) {
	start := ev.StartedAt
	if start.IsZero() && rec.StartedAt != nil {
		start = *rec.StartedAt
	}
	if start.IsZero() && upd.StartedAt != nil {
		start = *upd.StartedAt
	}
	end := ev.EndedAt
	if end.IsZero() && rec.EndedAt != nil {
		end = *rec.EndedAt
	}
	if end.IsZero() && upd.EndedAt != nil {
		end = *upd.EndedAt
	}
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return
	}
	secs := int(end.Sub(start) / time.Second)
	if rec.DurationSeconds == nil || *rec.DurationSeconds != secs {
		upd.DurationSeconds = &secs
	}
}

// setOutcome writes a newly derived outcome. The sentinel never replaces a
// meaningful outcome already on the record.
func setOutcome(upd *callrecords.Update, rec callrecords.CallRecord, outcome string) {
	if outcome == rec.Outcome {
		return
	}
	if outcome == OutcomeUndetermined && rec.Outcome != "" {
		return
	}
	upd.Outcome = &outcome
}

// mergePayloads deep-merges the incoming event payload into the stored one.
// Incoming scalars win, nested objects merge key by key, so an analysis
// event adds its block without discarding call_ended fields and a late
// call_ended cannot discard a merged analysis block. Output is re-marshaled,
// which makes replays byte-comparable.
func mergePayloads(existing, incoming json.RawMessage) json.RawMessage {
	var src map[string]any
	if json.Unmarshal(incoming, &src) != nil || src == nil {
		return existing
	}
	var dst map[string]any
	if len(existing) == 0 || json.Unmarshal(existing, &dst) != nil || dst == nil {
		dst = map[string]any{}
	}
	merged, err := json.Marshal(mergeMaps(dst, src))
	if err != nil {
		return existing
	}
	return merged
}

func mergeMaps(dst, src map[string]any) map[string]any {
	for k, sv := range src {
		if dm, ok := dst[k].(map[string]any); ok {
			if sm, ok := sv.(map[string]any); ok {
				dst[k] = mergeMaps(dm, sm)
				continue
			}
		}
		dst[k] = sv
	}
	return dst
}

func (r *Reconciler) sink(ctx context.Context, res Result) {
	if r.events == nil {
		return
	}
	entry := EventLogEntry{
		WorkspaceID:    res.Record.WorkspaceID,
		ProviderCallID: res.ProviderCallID,
		EventType:      res.EventType,
		Applied:        res.Applied,
		Ignored:        res.Ignored,
		Status:         res.Record.Status,
	}
	if err := r.events.RecordProviderEvent(ctx, entry); err != nil {
		logger.From(ctx).Warn("provider event log failed", "err", err)
	}
}
