package reconciler

import "welfarecheck-platform/internal/callrecords"

// MapStatus converts a provider (call status, disconnection reason) pair to
// the internal status enum.
//
// The disconnection reason is authoritative when present: providers report a
// generic "failed" call status while the reason carries the real
// transfer/completion semantics. The call status is only a fallback.
//
// Unmapped inputs degrade to CallStatusUnknown; this is never an error, so
// new provider values cannot break reconciliation.
func MapStatus(providerStatus, disconnectionReason string) callrecords.CallStatus {
	switch disconnectionReason {
	case "user_hangup", "agent_hangup":
		return callrecords.CallStatusCompleted
	case "call_transferred":
		return callrecords.CallStatusCompletedTransferred
	case "error_internal", "error_telephony", "dial_failed":
		return callrecords.CallStatusFailed
	}

	switch providerStatus {
	case "completed":
		return callrecords.CallStatusCompleted
	case "failed":
		return callrecords.CallStatusFailed
	case "busy":
		return callrecords.CallStatusBusy
	case "no-answer":
		return callrecords.CallStatusNoAnswer
	case "canceled":
		return callrecords.CallStatusCanceled
	case "in-progress", "ringing", "queued":
		return callrecords.CallStatusInProgress
	case "error":
		return callrecords.CallStatusFailed
	}

	return callrecords.CallStatusUnknown
}
