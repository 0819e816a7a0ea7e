package db

import (
	"context"
	"database/sql"
)

const reportServerMigration = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS devices (
    client_id text PRIMARY KEY,
    name text NOT NULL DEFAULT '',
    host text NOT NULL DEFAULT '',
    app_type text NOT NULL DEFAULT '',
    app_version text NOT NULL DEFAULT '',
    db_type text NOT NULL DEFAULT '',
    expires_at timestamptz,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reports (
    id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
    document_id text NOT NULL,
    client_id text NOT NULL,
    requester text NOT NULL DEFAULT '',
    status text NOT NULL DEFAULT 'pending',
    payload text,
    error_code integer,
    error_message text,
    created_at timestamptz NOT NULL DEFAULT NOW(),
    started_at timestamptz,
    finished_at timestamptz
);

CREATE INDEX IF NOT EXISTS reports_client_id_idx
ON reports (client_id);

CREATE INDEX IF NOT EXISTS reports_document_id_idx
ON reports (document_id);
`

func RunReportServerMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, reportServerMigration)
	return err
}
