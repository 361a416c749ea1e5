// Package store persists module enabled flags and the history of toggles, so
// administrative changes survive a restart. SQLite, Neo4j and in-memory
// backends implement the same interface.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Toggle is one recorded enable or disable.
type Toggle struct {
	ID        string    `json:"id"`
	ModuleID  string    `json:"module_id"`
	Enabled   bool      `json:"enabled"`
	ChangedBy string    `json:"changed_by,omitempty"`
	Changed   time.Time `json:"changed"`
}

// NewToggle creates a toggle record stamped with a fresh id and the current time.
func NewToggle(moduleID string, enabled bool, changedBy string) Toggle {
	return Toggle{
		ID:        uuid.New().String(),
		ModuleID:  moduleID,
		Enabled:   enabled,
		ChangedBy: changedBy,
		Changed:   time.Now().UTC(),
	}
}

// Store defines the persistence contract. Backends must be safe for
// concurrent use.
type Store interface {
	// LoadStates returns the last persisted enabled flag per module id.
	LoadStates(ctx context.Context) (map[string]bool, error)
	// SaveState records t and makes t.Enabled the persisted flag of t.ModuleID.
	SaveState(ctx context.Context, t Toggle) error
	// History returns the most recent toggles of a module, newest first.
	// A limit of zero or less means DefaultHistoryLimit.
	History(ctx context.Context, moduleID string, limit int) ([]Toggle, error)
	Close(ctx context.Context) error
}

// DefaultHistoryLimit caps History when no limit is given.
const DefaultHistoryLimit = 50

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendNeo4j  = "neo4j"
	BackendMemory = "memory"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string
	SQLitePath string
	Neo4j      Neo4jConfig
}

// Open connects to the configured backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		return NewSQLite(ctx, cfg.SQLitePath)
	case BackendNeo4j:
		return NewNeo4j(ctx, cfg.Neo4j)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func historyLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
