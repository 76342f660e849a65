package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"welfarecheck-platform/internal/callrecords"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedRecord(t *testing.T, store callrecords.Store, providerCallID string) callrecords.CallRecord {
	t.Helper()
	rec, err := store.Insert(context.Background(), callrecords.CallRecord{
		ID:             "rec-" + providerCallID,
		WorkspaceID:    "ws-1",
		ProviderCallID: providerCallID,
		RecipientName:  "Ada",
		PhoneNumber:    "+447700900123",
		Status:         callrecords.CallStatusScheduled,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

func endedEvent(callID string, start, end int64) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "call_ended",
		"call": {
			"call_id": %q,
			"call_status": "completed",
			"disconnection_reason": "user_hangup",
			"start_timestamp": %d,
			"end_timestamp": %d,
			"transcript": "Agent: hello"
		}
	}`, callID, start, end))
}

func TestProcess_CallLifecycle(t *testing.T) {
	store := callrecords.NewMemoryStore()
	now := time.Unix(1714000100, 0).UTC()
	r := New(store, Options{Clock: fixedClock(now)})
	seedRecord(t, store, "call_1")

	// call_started moves scheduled to ringing.
	res, err := r.Process(context.Background(), []byte(`{"event":"call_started","call":{"call_id":"call_1","call_status":"ringing","start_timestamp":1714000000}}`))
	if err != nil {
		t.Fatalf("call_started: %v", err)
	}
	if !res.Applied || res.Record.Status != callrecords.CallStatusRinging {
		t.Fatalf("after call_started: %+v", res)
	}
	if res.Record.StartedAt == nil || res.Record.StartedAt.Unix() != 1714000000 {
		t.Fatalf("StartedAt = %v", res.Record.StartedAt)
	}

	// call_ended resolves the terminal status, outcome and duration.
	res, err = r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030))
	if err != nil {
		t.Fatalf("call_ended: %v", err)
	}
	rec := res.Record
	if rec.Status != callrecords.CallStatusCompleted {
		t.Fatalf("status = %q", rec.Status)
	}
	if rec.Outcome != "call ended" {
		t.Fatalf("outcome = %q", rec.Outcome)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 30 {
		t.Fatalf("duration = %v", rec.DurationSeconds)
	}
	if len(rec.RawPayload) == 0 {
		t.Fatalf("raw payload not stored")
	}
}

func TestProcess_ReplayIsIdempotent(t *testing.T) {
	store := callrecords.NewMemoryStore()
	r := New(store, Options{Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, store, "call_1")

	raw := endedEvent("call_1", 1714000000, 1714000030)
	first, err := r.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if !first.Applied {
		t.Fatalf("first delivery should write")
	}

	second, err := r.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if second.Applied {
		t.Fatalf("replay should be a no-op")
	}
	if second.Record.Version != first.Record.Version {
		t.Fatalf("replay bumped version: %d -> %d", first.Record.Version, second.Record.Version)
	}
}

func TestProcess_AnalyzedAfterEndedMergesWithoutDowngrade(t *testing.T) {
	store := callrecords.NewMemoryStore()
	r := New(store, Options{Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, store, "call_1")

	if _, err := r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030)); err != nil {
		t.Fatalf("call_ended: %v", err)
	}

	res, err := r.Process(context.Background(), []byte(`{
		"event": "call_analyzed",
		"call": {
			"call_id": "call_1",
			"call_status": "in-progress",
			"call_analysis": {
				"call_summary": "resident answered and confirmed wellbeing",
				"custom_analysis_data": {"call_outcome": "resident_ok"}
			}
		}
	}`))
	if err != nil {
		t.Fatalf("call_analyzed: %v", err)
	}
	rec := res.Record
	if rec.Status != callrecords.CallStatusCompleted {
		t.Fatalf("analysis downgraded status to %q", rec.Status)
	}
	if rec.Outcome != "resident ok" {
		t.Fatalf("outcome = %q", rec.Outcome)
	}

	// The merged payload keeps both the call_ended fields and the analysis.
	var merged map[string]any
	if err := json.Unmarshal(rec.RawPayload, &merged); err != nil {
		t.Fatalf("merged payload not json: %v", err)
	}
	call, _ := merged["call"].(map[string]any)
	if call == nil {
		t.Fatalf("merged payload lost call object")
	}
	if call["transcript"] != "Agent: hello" {
		t.Fatalf("merge dropped transcript: %v", call["transcript"])
	}
	if _, ok := call["call_analysis"].(map[string]any); !ok {
		t.Fatalf("merge dropped analysis: %v", call["call_analysis"])
	}
}

func TestProcess_AnalyzedBeforeEnded(t *testing.T) {
	store := callrecords.NewMemoryStore()
	r := New(store, Options{Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, store, "call_1")

	res, err := r.Process(context.Background(), []byte(`{
		"event": "call_analyzed",
		"call": {
			"call_id": "call_1",
			"call_status": "completed",
			"call_analysis": {"call_outcome": "resident_ok"}
		}
	}`))
	if err != nil {
		t.Fatalf("call_analyzed: %v", err)
	}
	if res.Record.Status != callrecords.CallStatusCompleted {
		t.Fatalf("status = %q", res.Record.Status)
	}

	// The late call_ended still lands its timestamps; the richer outcome
	// already on the record survives the sentinel-free "call ended" label.
	res, err = r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030))
	if err != nil {
		t.Fatalf("call_ended: %v", err)
	}
	if res.Record.DurationSeconds == nil || *res.Record.DurationSeconds != 30 {
		t.Fatalf("duration = %v", res.Record.DurationSeconds)
	}
}

func TestProcess_StrayStartedCannotReopenTerminalCall(t *testing.T) {
	store := callrecords.NewMemoryStore()
	r := New(store, Options{Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, store, "call_1")

	if _, err := r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030)); err != nil {
		t.Fatalf("call_ended: %v", err)
	}

	res, err := r.Process(context.Background(), []byte(`{"event":"call_started","call":{"call_id":"call_1","call_status":"in-progress"}}`))
	if err != nil {
		t.Fatalf("stray call_started: %v", err)
	}
	if res.Record.Status != callrecords.CallStatusCompleted {
		t.Fatalf("terminal status lost: %q", res.Record.Status)
	}
}

func TestProcess_UnhandledEventTypeAcknowledged(t *testing.T) {
	store := &countingStore{Store: callrecords.NewMemoryStore()}
	r := New(store, Options{})

	res, err := r.Process(context.Background(), []byte(`{"event":"call_queued","call":{"call_id":"call_1"}}`))
	if err != nil {
		t.Fatalf("call_queued: %v", err)
	}
	if !res.Ignored {
		t.Fatalf("expected ignored result")
	}
	if store.reads != 0 || store.writes != 0 {
		t.Fatalf("ignored event touched the store: %d reads, %d writes", store.reads, store.writes)
	}
}

func TestProcess_InputErrorsPrecedeStoreAccess(t *testing.T) {
	store := &countingStore{Store: callrecords.NewMemoryStore()}
	r := New(store, Options{})

	if _, err := r.Process(context.Background(), []byte(`garbage`)); !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err = %v", err)
	}
	if _, err := r.Process(context.Background(), []byte(`{"event":"call_ended","call":{}}`)); !errors.Is(err, ErrMissingCorrelationID) {
		t.Fatalf("err = %v", err)
	}
	if store.reads != 0 || store.writes != 0 {
		t.Fatalf("input errors touched the store")
	}
}

func TestProcess_UnknownCall(t *testing.T) {
	r := New(callrecords.NewMemoryStore(), Options{})
	_, err := r.Process(context.Background(), endedEvent("call_nope", 1000, 1030))
	if !errors.Is(err, callrecords.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcess_ConflictRetriesOnce(t *testing.T) {
	inner := callrecords.NewMemoryStore()
	store := &conflictingStore{Store: inner, conflicts: 1}
	metrics := &recordingMetrics{}
	r := New(store, Options{Metrics: metrics, Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, inner, "call_1")

	res, err := r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !res.Applied || res.Record.Status != callrecords.CallStatusCompleted {
		t.Fatalf("unexpected result: %+v", res)
	}
	if metrics.retries != 1 {
		t.Fatalf("retries = %d", metrics.retries)
	}
}

func TestProcess_ConflictAfterRetryFails(t *testing.T) {
	inner := callrecords.NewMemoryStore()
	store := &conflictingStore{Store: inner, conflicts: 2}
	r := New(store, Options{Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, inner, "call_1")

	_, err := r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030))
	if !errors.Is(err, ErrUpdateConflict) {
		t.Fatalf("err = %v", err)
	}
}

func TestProcess_SinkReceivesEntries(t *testing.T) {
	store := callrecords.NewMemoryStore()
	sink := &recordingSink{}
	r := New(store, Options{Events: sink, Clock: fixedClock(time.Unix(1714000100, 0).UTC())})
	seedRecord(t, store, "call_1")

	if _, err := r.Process(context.Background(), endedEvent("call_1", 1714000000, 1714000030)); err != nil {
		t.Fatalf("process: %v", err)
	}
	entries := sink.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	e := entries[0]
	if !e.Applied || e.WorkspaceID != "ws-1" || e.EventType != EventCallEnded || e.Status != callrecords.CallStatusCompleted {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

// --- test doubles ---

type countingStore struct {
	callrecords.Store
	reads  int
	writes int
}

func (s *countingStore) GetByProviderCallID(ctx context.Context, id string) (callrecords.CallRecord, error) {
	s.reads++
	return s.Store.GetByProviderCallID(ctx, id)
}

func (s *countingStore) UpdateByProviderCallID(ctx context.Context, id string, upd callrecords.Update, expectedVersion int64) (callrecords.CallRecord, error) {
	s.writes++
	return s.Store.UpdateByProviderCallID(ctx, id, upd, expectedVersion)
}

// conflictingStore fails the first N updates with ErrConflict, simulating a
// concurrent writer winning the version race.
type conflictingStore struct {
	callrecords.Store
	conflicts int
}

func (s *conflictingStore) UpdateByProviderCallID(ctx context.Context, id string, upd callrecords.Update, expectedVersion int64) (callrecords.CallRecord, error) {
	if s.conflicts > 0 {
		s.conflicts--
		return callrecords.CallRecord{}, callrecords.ErrConflict
	}
	return s.Store.UpdateByProviderCallID(ctx, id, upd, expectedVersion)
}

type recordingMetrics struct {
	mu       sync.Mutex
	received int
	written  int
	retries  int
}

func (m *recordingMetrics) EventReceived(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received++
}

func (m *recordingMetrics) StatusWritten(callrecords.CallStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written++
}

func (m *recordingMetrics) ConflictRetried() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
}

type recordingSink struct {
	mu      sync.Mutex
	entries []EventLogEntry
}

func (s *recordingSink) RecordProviderEvent(ctx context.Context, e EventLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *recordingSink) Entries() []EventLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EventLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
