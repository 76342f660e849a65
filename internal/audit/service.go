package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCallScheduled records that a carer scheduled an outbound check-in call.
func (s *Service) LogCallScheduled(ctx context.Context, workspaceID, actorUserID, actorRole, ip, callRecordID, providerCallID string, metadata string) error {
	return s.Append(ctx, Event{
		WorkspaceID:    workspaceID,
		Type:           EventTypeCallScheduled,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		IPAddress:      ip,
		CallRecordID:   callRecordID,
		ProviderCallID: providerCallID,
		Message:        "call scheduled",
		Metadata:       metadata,
	})
}

// LogProviderEvent records a voice provider lifecycle event and whether
// reconciliation applied it.
func (s *Service) LogProviderEvent(ctx context.Context, workspaceID, providerCallID, eventType, message string, metadata string) error {
	return s.Append(ctx, Event{
		WorkspaceID:       workspaceID,
		Type:              EventTypeProviderEvent,
		ProviderCallID:    providerCallID,
		ProviderEventType: eventType,
		Message:           message,
		Metadata:          metadata,
	})
}
