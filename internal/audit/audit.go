package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder persists one audit row per mutating call.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// Entry describes a single audited action.
type Entry struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Success      bool
}

// auditStore is the slice of the repository the logger needs.
type auditStore interface {
	InsertAudit(ctx context.Context, id, actor, action, resourceType, resourceID string, details map[string]any, success bool, now time.Time) error
}

// Logger writes audit rows through the repository. Audit writes are
// best-effort: a failed insert is logged, never surfaced, so an audit outage
// cannot block the audited operation itself.
type Logger struct {
	store auditStore
	clock func() time.Time
}

// NewLogger creates an audit logger over the given store.
func NewLogger(store auditStore) *Logger {
	return &Logger{store: store, clock: time.Now}
}

// Record persists the audit entry.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	err := l.store.InsertAudit(ctx,
		uuid.New().String(),
		entry.Actor, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Details, entry.Success, l.clock())
	if err != nil {
		slog.Warn("Failed to write audit row",
			"action", entry.Action,
			"resource_type", entry.ResourceType,
			"resource_id", entry.ResourceID,
			"error", err)
	}
}

// Discard is a Recorder that drops entries, for tests.
type Discard struct{}

func (Discard) Record(context.Context, Entry) {}
