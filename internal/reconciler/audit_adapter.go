package reconciler

import (
	"context"
	"fmt"

	"welfarecheck-platform/internal/audit"
)

// AuditAdapter bridges the reconciler's event sink to the shared audit.Service.
//
// This keeps reconciliation internals from depending on persistence or on any
// user-facing surface.

type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) RecordProviderEvent(ctx context.Context, entry EventLogEntry) error {
	if a.Audit == nil {
		return nil
	}
	workspaceID := entry.WorkspaceID
	if workspaceID == "" {
		// Ignored events never load a record, so no workspace is known.
		workspaceID = "unattributed"
	}
	msg := "event ignored"
	if entry.Applied {
		msg = fmt.Sprintf("event applied, status %s", entry.Status)
	} else if !entry.Ignored {
		msg = "event replayed, no change"
	}
	return a.Audit.LogProviderEvent(ctx, workspaceID, entry.ProviderCallID, entry.EventType, msg, "")
}
