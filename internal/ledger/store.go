package ledger

import (
	"context"
	"time"

	"github.com/skillchain/reputation-engine/internal/types"
)

// Filter narrows a ledger query. Zero values mean "no constraint". Category
// matches against the "category" context value on each entry.
type Filter struct {
	EventType types.EventType
	Category  types.Category
	Since     time.Time
	Limit     int
}

// Store is the append-only reputation transaction log. Query returns entries
// most recent first. Implementations must make Append all-or-nothing.
type Store interface {
	Append(ctx context.Context, tx *types.Transaction) (string, error)
	Query(ctx context.Context, user string, f Filter) ([]types.Transaction, error)
	CountSince(ctx context.Context, user string, since time.Time) (int, error)
}
