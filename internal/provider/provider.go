package provider

import (
	"context"
	"time"
)

// VoiceProvider is the provider-agnostic interface the scheduling flow uses
// to place outbound calls.
//
// Rules:
// - No provider SDK/HTTP calls outside provider adapters.
// - Keep request/response types provider-agnostic; lifecycle updates arrive
//   via the webhook and are handled by the reconciler, not here.
type VoiceProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)
}

// CreateCallRequest asks the provider to place one outbound check-in call.
type CreateCallRequest struct {
	// ToNumber is the recipient in E.164.
	ToNumber string `json:"to_number"`

	// RecipientName and Message are handed to the voice agent as dynamic
	// variables so the conversation can address the person by name.
	RecipientName string `json:"recipient_name"`
	Message       string `json:"message"`
}

// CreateCallResult is the provider's acknowledgment of a placed call.
type CreateCallResult struct {
	// ProviderCallID correlates every later webhook event with the record
	// created at scheduling time.
	ProviderCallID string `json:"provider_call_id"`

	AcceptedAt time.Time `json:"accepted_at"`
}
