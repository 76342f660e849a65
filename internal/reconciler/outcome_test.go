package reconciler

import "testing"

func TestExtractOutcome_AnalysisTagWins(t *testing.T) {
	ev := Event{
		Type:                EventCallAnalyzed,
		DisconnectionReason: "user_hangup",
		Analysis: map[string]any{
			"call_outcome": "Resident_Confirmed_OK",
		},
	}
	if got := ExtractOutcome(ev); got != "resident confirmed ok" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractOutcome_NestedCustomAnalysisData(t *testing.T) {
	ev := Event{
		Type: EventCallAnalyzed,
		Analysis: map[string]any{
			"call_summary": "spoke with resident",
			"custom_analysis_data": map[string]any{
				"outcome": "needs follow up",
			},
		},
	}
	if got := ExtractOutcome(ev); got != "needs follow up" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractOutcome_DisconnectionReasonFallback(t *testing.T) {
	cases := []struct {
		reason string
		want   string
	}{
		{"user_hangup", "call ended"},
		{"agent_hangup", "call ended"},
		{"error_telephony", "error"},
		{"error_internal", "error"},
		{"dial_failed", "dial failed"},
		{"voicemail_reached", "voicemail reached"},
	}
	for _, tc := range cases {
		ev := Event{Type: EventCallEnded, DisconnectionReason: tc.reason}
		if got := ExtractOutcome(ev); got != tc.want {
			t.Fatalf("reason %q: got %q, want %q", tc.reason, got, tc.want)
		}
	}
}

func TestExtractOutcome_EventTypeFallback(t *testing.T) {
	ev := Event{Type: EventCallEnded}
	if got := ExtractOutcome(ev); got != "event: call ended" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractOutcome_Sentinel(t *testing.T) {
	if got := ExtractOutcome(Event{}); got != OutcomeUndetermined {
		t.Fatalf("got %q", got)
	}
}

func TestExtractOutcome_NonStringTagIgnored(t *testing.T) {
	ev := Event{
		Type: EventCallAnalyzed,
		Analysis: map[string]any{
			"call_outcome": 42,
		},
	}
	if got := ExtractOutcome(ev); got != "event: call analyzed" {
		t.Fatalf("got %q", got)
	}
}
