package reconciler

import "strings"

// OutcomeUndetermined is the sentinel outcome: nothing human-facing could be
// derived from the event, inspect the raw payload instead.
const OutcomeUndetermined = "undetermined (see raw payload)"

// Analysis keys checked for an explicit outcome tag, in order.
var outcomeTagKeys = []string{"call_outcome", "outcome"}

// ExtractOutcome derives a short human-facing summary from a terminal or
// analysis event. It never fails; missing information degrades to
// OutcomeUndetermined.
//
// Priority:
//  1. explicit outcome tag from the call analysis block, verbatim but
//     normalized
//  2. disconnection reason, classified into a small label set
//  3. the event type itself, as a labeled fallback
//  4. the sentinel
func ExtractOutcome(ev Event) string {
	if tag := analysisOutcomeTag(ev.Analysis); tag != "" {
		return tag
	}

	if r := ev.DisconnectionReason; r != "" {
		switch r {
		case "user_hangup", "agent_hangup":
			return "call ended"
		}
		if strings.HasPrefix(r, "error") {
			return "error"
		}
		return normalizeLabel(r)
	}

	if ev.Type != "" {
		return "event: " + normalizeLabel(ev.Type)
	}

	return OutcomeUndetermined
}

// analysisOutcomeTag looks for a transcript-derived outcome tag, either at
// the top of the analysis block or nested under custom_analysis_data.
func analysisOutcomeTag(analysis map[string]any) string {
	if len(analysis) == 0 {
		return ""
	}
	if nested, ok := analysis["custom_analysis_data"].(map[string]any); ok {
		if tag := stringTag(nested); tag != "" {
			return tag
		}
	}
	return stringTag(analysis)
}

func stringTag(m map[string]any) string {
	for _, k := range outcomeTagKeys {
		if v, ok := m[k].(string); ok {
			if tag := normalizeLabel(v); tag != "" {
				return tag
			}
		}
	}
	return ""
}

// normalizeLabel lowercases and collapses whitespace/underscores so values
// render consistently on the dashboard.
func normalizeLabel(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
