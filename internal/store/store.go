package store

import (
	"context"
	"time"
)

// ClientStatus is the persisted online-status record for one
// installation, kept current as sessions come and go.
type ClientStatus struct {
	ClientID   string    `json:"clientId"`
	Name       string    `json:"name"`
	Host       string    `json:"host"`
	AppType    string    `json:"appType"`
	AppVersion string    `json:"appVersion"`
	DBType     string    `json:"dbType"`
	Online     bool      `json:"online"`
	ExpiresAt  time.Time `json:"expiresAt"`
	LastSeen   time.Time `json:"lastSeen"`
}

// StatusStore is the online-status side of the persistence collaborator.
type StatusStore interface {
	MarkOnline(ctx context.Context, status ClientStatus) error
	MarkOffline(ctx context.Context, clientID string) error
	IsOnline(ctx context.Context, clientID string) (bool, error)
}

// Report lifecycle statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Report is one report-generation record with its status transitions
// and timing.
type Report struct {
	ID           string
	DocumentID   string
	ClientID     string
	Requester    string
	Status       string
	Payload      string
	ErrorCode    int
	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
}

// ReportStore records report exchanges and serves stored results.
type ReportStore interface {
	// Create inserts the record and assigns Report.ID.
	Create(ctx context.Context, r *Report) error
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id, payload string) error
	MarkFailed(ctx context.Context, id string, code int, message string) error
	// LatestCompleted returns the most recent completed report for the
	// document/client pair, or nil when none exists.
	LatestCompleted(ctx context.Context, documentID, clientID string) (*Report, error)
}

// DeviceStore keeps the durable device directory.
type DeviceStore interface {
	UpsertDevice(ctx context.Context, status ClientStatus) error
}
