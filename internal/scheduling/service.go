package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"welfarecheck-platform/internal/audit"
	"welfarecheck-platform/internal/callrecords"
	"welfarecheck-platform/internal/config"
	"welfarecheck-platform/internal/metrics"
	"welfarecheck-platform/internal/provider"
	"welfarecheck-platform/pkg/logger"
	"welfarecheck-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/redis/go-redis/v9"
)

var (
	ErrInvalidRequest     = errors.New("scheduling: invalid request")
	ErrTooManyActiveCalls = errors.New("scheduling: too many active calls for workspace")
	ErrProviderFailure    = errors.New("scheduling: provider call placement failed")
)

// ScheduleRequest is a carer's request to place one check-in call.
type ScheduleRequest struct {
	RecipientName string `json:"recipient_name"`
	PhoneNumber   string `json:"phone_number"`
	Message       string `json:"message"`
}

// Service owns the outbound scheduling flow: validate, reserve a concurrency
// slot, place the provider call, persist the record the reconciler will
// update from then on.
type Service struct {
	store    callrecords.Store
	provider provider.VoiceProvider
	rdb      *redis.Client
	audit    *audit.Service
	cfg      config.CallsConfig
	clock    func() time.Time
}

func NewService(store callrecords.Store, vp provider.VoiceProvider, rdb *redis.Client, auditSvc *audit.Service, cfg config.CallsConfig) *Service {
	return &Service{
		store:    store,
		provider: vp,
		rdb:      rdb,
		audit:    auditSvc,
		cfg:      cfg,
		clock:    time.Now,
	}
}

// SetClock is for deterministic tests.
func (s *Service) SetClock(fn func() time.Time) { s.clock = fn }

// Schedule places one outbound check-in call and persists its record.
//
// The concurrency slot is intentionally NOT released on success: it expires
// with the configured TTL, which bounds how fast a workspace can burn
// through outbound calls even when webhooks lag.
func (s *Service) Schedule(ctx context.Context, workspaceID, actorUserID string, req ScheduleRequest) (callrecords.CallRecord, error) {
	if workspaceID == "" {
		return callrecords.CallRecord{}, ErrInvalidRequest
	}
	if strings.TrimSpace(req.RecipientName) == "" || strings.TrimSpace(req.Message) == "" {
		return callrecords.CallRecord{}, fmt.Errorf("%w: recipient_name and message required", ErrInvalidRequest)
	}
	toNumber, err := normalizeE164(req.PhoneNumber)
	if err != nil {
		return callrecords.CallRecord{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if s.rdb != nil {
		ok, err := utils.AcquireConcurrencyCap(ctx, s.rdb, capKey(workspaceID), s.cfg.MaxConcurrent, s.cfg.ConcurrencyTTL)
		if err != nil {
			return callrecords.CallRecord{}, fmt.Errorf("scheduling: concurrency check: %w", err)
		}
		if !ok {
			return callrecords.CallRecord{}, ErrTooManyActiveCalls
		}
	}

	res, err := s.provider.CreateCall(ctx, provider.CreateCallRequest{
		ToNumber:      toNumber,
		RecipientName: strings.TrimSpace(req.RecipientName),
		Message:       strings.TrimSpace(req.Message),
	})
	if err != nil {
		if s.rdb != nil {
			if relErr := utils.ReleaseConcurrencyCap(ctx, s.rdb, capKey(workspaceID)); relErr != nil {
				logger.From(ctx).Warn("concurrency slot release failed", "err", relErr)
			}
		}
		return callrecords.CallRecord{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	rec := callrecords.CallRecord{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		ProviderCallID: res.ProviderCallID,
		RecipientName:  strings.TrimSpace(req.RecipientName),
		PhoneNumber:    toNumber,
		Message:        strings.TrimSpace(req.Message),
		Status:         callrecords.CallStatusScheduled,
	}
	rec, err = s.store.Insert(ctx, rec)
	if err != nil {
		// The provider call is already in flight; its webhooks will now hit
		// an unknown call id. Loud log, surfaced error.
		logger.From(ctx).Error("call placed but record insert failed",
			"provider_call_id", res.ProviderCallID, "err", err)
		return callrecords.CallRecord{}, fmt.Errorf("scheduling: persist record: %w", err)
	}

	metrics.IncScheduledCalls()
	if s.audit != nil {
		if err := s.audit.LogCallScheduled(ctx, workspaceID, actorUserID, "", "", rec.ID, rec.ProviderCallID, ""); err != nil {
			logger.From(ctx).Warn("audit append failed", "err", err)
		}
	}
	return rec, nil
}

// List returns the workspace's call records, newest first.
func (s *Service) List(ctx context.Context, workspaceID string, limit int) ([]callrecords.CallRecord, error) {
	if workspaceID == "" {
		return nil, ErrInvalidRequest
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByWorkspace(ctx, workspaceID, limit)
}

func capKey(workspaceID string) string { return "calls:active:" + workspaceID }

// normalizeE164 validates and canonicalizes a dialable number. Scheduling is
// strict here; an undialable number must fail before any provider spend.
func normalizeE164(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("phone_number required")
	}
	num, err := phonenumbers.Parse(trimmed, "")
	if err != nil {
		return "", fmt.Errorf("phone_number unparseable: %v", err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errors.New("phone_number not a valid number")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
