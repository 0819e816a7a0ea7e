package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/db"
)

// PostgresStore records report exchanges and the device directory in
// postgres using raw SQL.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, r *Report) error {

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (id, document_id, client_id, requester, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
	`,
		r.ID,
		r.DocumentID,
		r.ClientID,
		r.Requester,
		r.Status,
		r.Payload,
		r.CreatedAt,
	)

	return err
}

func (s *PostgresStore) MarkProcessing(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2, started_at = NOW()
		WHERE id = $1
	`, id, StatusProcessing)
	return err
}

func (s *PostgresStore) MarkCompleted(ctx context.Context, id, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2, payload = $3, finished_at = NOW()
		WHERE id = $1
	`, id, StatusCompleted, payload)
	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, code int, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE reports
		SET status = $2, error_code = $3, error_message = $4, finished_at = NOW()
		WHERE id = $1
	`, id, StatusFailed, code, message)
	return err
}

func (s *PostgresStore) LatestCompleted(ctx context.Context, documentID, clientID string) (*Report, error) {

	var (
		r       Report
		payload sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_id, client_id, requester, status, COALESCE(payload, ''), created_at
		FROM reports
		WHERE document_id = $1
		  AND client_id = $2
		  AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`,
		documentID,
		clientID,
		StatusCompleted,
	).Scan(&r.ID, &r.DocumentID, &r.ClientID, &r.Requester, &r.Status, &payload, &r.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	r.Payload = payload.String
	return &r, nil
}

func (s *PostgresStore) UpsertDevice(ctx context.Context, status ClientStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (client_id, name, host, app_type, app_version, db_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id) DO UPDATE SET
			name = EXCLUDED.name,
			host = EXCLUDED.host,
			app_type = EXCLUDED.app_type,
			app_version = EXCLUDED.app_version,
			db_type = EXCLUDED.db_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
	`,
		status.ClientID,
		status.Name,
		status.Host,
		status.AppType,
		status.AppVersion,
		status.DBType,
		nullTime(status.ExpiresAt),
	)
	return err
}

func nullTime(ts time.Time) any {
	if ts.IsZero() {
		return nil
	}
	return ts
}
