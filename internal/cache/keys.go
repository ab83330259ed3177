package cache

import (
	"fmt"

	"github.com/skillchain/reputation-engine/internal/types"
)

// Scope namespaces cache entries by the kind of data they hold.
type Scope string

const (
	ScopeReputation  Scope = "reputation"
	ScopeLeaderboard Scope = "leaderboard"
	ScopeOracle      Scope = "oracle"
	ScopeEvaluation  Scope = "evaluation"
)

// Key is a typed cache key. Building keys from fields instead of ad hoc
// strings keeps invalidation patterns and entry keys from drifting apart.
type Key struct {
	Scope    Scope
	User     string
	Category types.Category
}

// UserKey addresses a user's overall score entry.
func UserKey(user string) Key {
	return Key{Scope: ScopeReputation, User: user}
}

// UserCategoryKey addresses one (user, category) score entry.
func UserCategoryKey(user string, category types.Category) Key {
	return Key{Scope: ScopeReputation, User: user, Category: category}
}

// LeaderboardKey addresses the global leaderboard entry.
func LeaderboardKey() Key {
	return Key{Scope: ScopeLeaderboard}
}

// String renders the storage key.
func (k Key) String() string {
	switch {
	case k.User == "":
		return string(k.Scope)
	case k.Category == "":
		return fmt.Sprintf("%s:%s", k.Scope, k.User)
	default:
		return fmt.Sprintf("%s:%s:%s", k.Scope, k.User, k.Category)
	}
}

// UserPattern matches every cached entry for one user within a scope.
func UserPattern(scope Scope, user string) string {
	return fmt.Sprintf("%s:%s*", scope, user)
}

// ScopePattern matches every cached entry within a scope.
func ScopePattern(scope Scope) string {
	return fmt.Sprintf("%s*", scope)
}
