package callrecords

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"welfarecheck-platform/pkg/utils"
)

// PostgresStore persists call records in the call_records table.
//
// Assumed schema:
//   call_records (
//     id UUID PRIMARY KEY,
//     workspace_id TEXT NOT NULL,
//     provider_call_id TEXT NOT NULL UNIQUE,
//     recipient_name TEXT NOT NULL,
//     phone_number TEXT NOT NULL,
//     message TEXT NOT NULL,
//     status TEXT NOT NULL,
//     outcome TEXT NOT NULL DEFAULT '',
//     started_at TIMESTAMPTZ,
//     ended_at TIMESTAMPTZ,
//     duration_seconds INT,
//     raw_payload JSONB,
//     version BIGINT NOT NULL DEFAULT 1,
//     created_at TIMESTAMPTZ NOT NULL,
//     updated_at TIMESTAMPTZ NOT NULL
//   )

type PostgresStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const recordColumns = `
id, workspace_id, provider_call_id, recipient_name, phone_number, message,
status, outcome, started_at, ended_at, duration_seconds, raw_payload,
version, created_at, updated_at`

func scanRecord(row *sql.Row) (CallRecord, error) {
	var rec CallRecord
	var rawPayload []byte
	err := row.Scan(
		&rec.ID,
		&rec.WorkspaceID,
		&rec.ProviderCallID,
		&rec.RecipientName,
		&rec.PhoneNumber,
		&rec.Message,
		&rec.Status,
		&rec.Outcome,
		&rec.StartedAt,
		&rec.EndedAt,
		&rec.DurationSeconds,
		&rawPayload,
		&rec.Version,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallRecord{}, ErrNotFound
		}
		return CallRecord{}, err
	}
	rec.RawPayload = rawPayload
	return rec, nil
}

func (s *PostgresStore) Insert(ctx context.Context, rec CallRecord) (CallRecord, error) {
	if rec.ID == "" || rec.WorkspaceID == "" || rec.ProviderCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = rec.CreatedAt
	if rec.Version == 0 {
		rec.Version = 1
	}

	const q = `
INSERT INTO call_records (
  id, workspace_id, provider_call_id, recipient_name, phone_number, message,
  status, outcome, started_at, ended_at, duration_seconds, raw_payload,
  version, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
`
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.WorkspaceID,
		rec.ProviderCallID,
		rec.RecipientName,
		rec.PhoneNumber,
		rec.Message,
		rec.Status,
		rec.Outcome,
		rec.StartedAt,
		rec.EndedAt,
		rec.DurationSeconds,
		[]byte(rec.RawPayload),
		rec.Version,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return CallRecord{}, err
	}
	return rec, nil
}

func (s *PostgresStore) GetByProviderCallID(ctx context.Context, providerCallID string) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + recordColumns + `
FROM call_records
WHERE provider_call_id = $1
`
	return scanRecord(s.db.QueryRowContext(ctx, q, providerCallID))
}

func (s *PostgresStore) UpdateByProviderCallID(ctx context.Context, providerCallID string, upd Update, expectedVersion int64) (CallRecord, error) {
	if providerCallID == "" {
		return CallRecord{}, ErrInvalidArgument
	}

	var out CallRecord
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		// Lock the row to serialize concurrent event writes per call.
		const sel = `
SELECT ` + recordColumns + `
FROM call_records
WHERE provider_call_id = $1
FOR UPDATE
`
		rec, err := scanRecord(tx.QueryRowContext(ctx, sel, providerCallID))
		if err != nil {
			return err
		}
		if rec.Version != expectedVersion {
			return ErrConflict
		}

		rec = applyUpdate(rec, upd, s.clock().UTC())

		const q = `
UPDATE call_records
SET status = $2,
    outcome = $3,
    started_at = $4,
    ended_at = $5,
    duration_seconds = $6,
    raw_payload = $7,
    version = $8,
    updated_at = $9
WHERE provider_call_id = $1
`
		if _, err := tx.ExecContext(ctx, q,
			providerCallID,
			rec.Status,
			rec.Outcome,
			rec.StartedAt,
			rec.EndedAt,
			rec.DurationSeconds,
			[]byte(rec.RawPayload),
			rec.Version,
			rec.UpdatedAt,
		); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return CallRecord{}, err
	}
	return out, nil
}

func (s *PostgresStore) ListByWorkspace(ctx context.Context, workspaceID string, limit int) ([]CallRecord, error) {
	if workspaceID == "" {
		return nil, ErrInvalidArgument
	}
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT ` + recordColumns + `
FROM call_records
WHERE workspace_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallRecord, 0)
	for rows.Next() {
		var rec CallRecord
		var rawPayload []byte
		if err := rows.Scan(
			&rec.ID,
			&rec.WorkspaceID,
			&rec.ProviderCallID,
			&rec.RecipientName,
			&rec.PhoneNumber,
			&rec.Message,
			&rec.Status,
			&rec.Outcome,
			&rec.StartedAt,
			&rec.EndedAt,
			&rec.DurationSeconds,
			&rawPayload,
			&rec.Version,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.RawPayload = rawPayload
		out = append(out, rec)
	}
	return out, rows.Err()
}
