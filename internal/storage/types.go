package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"promocast/internal/target"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only
//   - "file": JSON snapshot + audit JSONL next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the publisher and the HTTP surface.
//
// The publish core only reads from it (target.Source + GetContent).
type Store interface {
	target.Source

	PutTarget(ctx context.Context, t target.Target) error
	// DeleteTarget removes the target and every group membership referencing it.
	DeleteTarget(ctx context.Context, id string) error
	PutGroup(ctx context.Context, g target.Group) error
	DeleteGroup(ctx context.Context, id string) error

	GetContent(ctx context.Context, platform string) (json.RawMessage, bool, error)
	PutContent(ctx context.Context, platform string, blob json.RawMessage) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// AuditEntry records one publish batch.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At        time.Time `json:"at"`
	RunID     string    `json:"run_id"`
	Trigger   string    `json:"trigger"` // "http", "cli", "schedule:<name>"
	Platforms int       `json:"platforms"`
	OK        int       `json:"ok"`
	Fail      int       `json:"fail"`
	Error     string    `json:"error,omitempty"`
	TookMS    int64     `json:"took_ms"`
	MetaJSON  string    `json:"meta,omitempty"`
}
