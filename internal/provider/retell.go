package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"welfarecheck-platform/internal/config"
)

// RetellProvider places calls through Retell's create-phone-call API.
//
// Only the fields this service needs are modeled; the response payload
// beyond call_id is ignored on purpose.

const defaultRetellBaseURL = "https://api.retellai.com"

type RetellProvider struct {
	apiKey     string
	baseURL    string
	fromNumber string
	agentID    string

	httpClient *http.Client
	clock      func() time.Time
}

func NewRetellProvider(cfg config.ProviderConfig) (*RetellProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("provider: api key is required")
	}
	if cfg.FromNumber == "" {
		return nil, errors.New("provider: from number is required")
	}
	if cfg.AgentID == "" {
		return nil, errors.New("provider: agent id is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultRetellBaseURL
	}
	return &RetellProvider{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		fromNumber: cfg.FromNumber,
		agentID:    cfg.AgentID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		clock:      time.Now,
	}, nil
}

func (p *RetellProvider) Name() string { return "retell" }

func (p *RetellProvider) HealthCheck(ctx context.Context) error {
	// Credentials are validated at construction; Retell has no cheap
	// unauthenticated ping endpoint worth hitting here.
	return nil
}

type retellCreateCallRequest struct {
	OverrideAgentID string            `json:"override_agent_id"`
	FromNumber      string            `json:"from_number"`
	ToNumber        string            `json:"to_number"`
	DynamicVars     map[string]string `json:"retell_llm_dynamic_variables,omitempty"`
}

type retellCreateCallResponse struct {
	CallID string `json:"call_id"`
}

func (p *RetellProvider) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	if req.ToNumber == "" {
		return CreateCallResult{}, errors.New("provider: to_number is required")
	}

	body, err := json.Marshal(retellCreateCallRequest{
		OverrideAgentID: p.agentID,
		FromNumber:      p.fromNumber,
		ToNumber:        req.ToNumber,
		DynamicVars: map[string]string{
			"service_user_name": req.RecipientName,
			"welfare_message":   req.Message,
		},
	})
	if err != nil {
		return CreateCallResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/create-phone-call", bytes.NewReader(body))
	if err != nil {
		return CreateCallResult{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return CreateCallResult{}, fmt.Errorf("provider: create call request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return CreateCallResult{}, fmt.Errorf("provider: create call returned %d: %s", resp.StatusCode, msg)
	}

	var out retellCreateCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return CreateCallResult{}, fmt.Errorf("provider: create call response decode failed: %w", err)
	}
	if out.CallID == "" {
		return CreateCallResult{}, errors.New("provider: create call response missing call_id")
	}

	return CreateCallResult{ProviderCallID: out.CallID, AcceptedAt: p.clock().UTC()}, nil
}
