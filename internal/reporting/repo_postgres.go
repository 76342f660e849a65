package reporting

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"welfarecheck-platform/internal/callrecords"
)

// PostgresRepo reads reconciled call records for aggregation. It selects only
// the columns the summary needs.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) ListCalls(ctx context.Context, workspaceID string, from, to time.Time) ([]callrecords.CallRecord, error) {
	if workspaceID == "" {
		return nil, errors.New("workspace_id required")
	}

	const q = `
		SELECT id, workspace_id, status, outcome, duration_seconds, created_at
		FROM call_records
		WHERE workspace_id = $1 AND created_at >= $2 AND created_at < $3`

	rows, err := r.db.QueryContext(ctx, q, workspaceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []callrecords.CallRecord
	for rows.Next() {
		var rec callrecords.CallRecord
		var outcome sql.NullString
		var duration sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &rec.Status, &outcome, &duration, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Outcome = outcome.String
		if duration.Valid {
			d := int(duration.Int64)
			rec.DurationSeconds = &d
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
