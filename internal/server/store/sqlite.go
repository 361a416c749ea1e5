package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite implements Store on a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath.
func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite store: empty database path")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent toggles.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLite{db: db}, nil
}

// Close closes the database.
func (s *SQLite) Close(ctx context.Context) error {
	return s.db.Close()
}

// LoadStates returns the persisted flag of every module ever toggled.
func (s *SQLite) LoadStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT module_id, enabled FROM module_state`)
	if err != nil {
		return nil, fmt.Errorf("querying module state: %w", err)
	}
	defer rows.Close()

	states := make(map[string]bool)
	for rows.Next() {
		var id string
		var enabled int
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, fmt.Errorf("scanning module state: %w", err)
		}
		states[id] = enabled == 1
	}
	return states, rows.Err()
}

// SaveState upserts the module flag and appends the toggle in one transaction.
func (s *SQLite) SaveState(ctx context.Context, t Toggle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	changed := t.Changed.UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO module_state (module_id, enabled, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(module_id) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at
	`, t.ModuleID, boolToInt(t.Enabled), changed)
	if err != nil {
		return fmt.Errorf("saving module state: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO module_toggles (id, module_id, enabled, changed_by, changed_at)
		VALUES (?, ?, ?, ?, ?)
	`, t.ID, t.ModuleID, boolToInt(t.Enabled), t.ChangedBy, changed)
	if err != nil {
		return fmt.Errorf("recording toggle: %w", err)
	}

	return tx.Commit()
}

// History returns toggles for moduleID, newest first.
func (s *SQLite) History(ctx context.Context, moduleID string, limit int) ([]Toggle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module_id, enabled, changed_by, changed_at
		FROM module_toggles
		WHERE module_id = ?
		ORDER BY seq DESC
		LIMIT ?
	`, moduleID, historyLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying toggle history: %w", err)
	}
	defer rows.Close()

	history := []Toggle{}
	for rows.Next() {
		var t Toggle
		var enabled int
		var changedBy sql.NullString
		var changedAt string
		if err := rows.Scan(&t.ID, &t.ModuleID, &enabled, &changedBy, &changedAt); err != nil {
			return nil, fmt.Errorf("scanning toggle: %w", err)
		}
		t.Enabled = enabled == 1
		if changedBy.Valid {
			t.ChangedBy = changedBy.String
		}
		if ts, err := time.Parse(time.RFC3339Nano, changedAt); err == nil {
			t.Changed = ts
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
