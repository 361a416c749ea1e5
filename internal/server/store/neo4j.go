package store

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds Neo4j connection configuration.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4j implements Store as (:Module) nodes with their history as
// (:Toggle)-[:TOGGLED]->(:Module) edges.
type Neo4j struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4j connects to Neo4j and ensures the uniqueness constraint exists.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4j, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}

	s := &Neo4j{driver: driver, database: database}
	if err := s.ensureConstraints(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// Close closes the driver.
func (s *Neo4j) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4j) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4j) ensureConstraints(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `CREATE CONSTRAINT module_id IF NOT EXISTS FOR (m:Module) REQUIRE m.id IS UNIQUE`, nil)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("creating module constraint: %w", err)
	}
	return nil
}

// LoadStates returns the enabled flag of every module node.
func (s *Neo4j) LoadStates(ctx context.Context) (map[string]bool, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (m:Module) RETURN m.id AS id, m.enabled AS enabled`, nil)
		if err != nil {
			return nil, err
		}

		states := make(map[string]bool)
		for res.Next(ctx) {
			record := res.Record()
			id, _ := record.Get("id")
			enabled, _ := record.Get("enabled")
			idStr, ok := id.(string)
			if !ok {
				continue
			}
			flag, _ := enabled.(bool)
			states[idStr] = flag
		}
		return states, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("loading module state: %w", err)
	}
	return result.(map[string]bool), nil
}

// SaveState sets the module flag and links a new toggle node to it.
func (s *Neo4j) SaveState(ctx context.Context, t Toggle) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (m:Module {id: $module_id})
			SET m.enabled = $enabled, m.updated = $changed
			CREATE (t:Toggle {
				id: $id,
				enabled: $enabled,
				changed_by: $changed_by,
				changed: $changed
			})-[:TOGGLED]->(m)
		`
		params := map[string]any{
			"module_id":  t.ModuleID,
			"id":         t.ID,
			"enabled":    t.Enabled,
			"changed_by": t.ChangedBy,
			"changed":    t.Changed.UTC().Format(time.RFC3339Nano),
		}
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("saving module state: %w", err)
	}
	return nil
}

// History returns toggles for moduleID, newest first.
func (s *Neo4j) History(ctx context.Context, moduleID string, limit int) ([]Toggle, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (t:Toggle)-[:TOGGLED]->(m:Module {id: $module_id})
			RETURN t
			ORDER BY t.changed DESC
			LIMIT $limit
		`
		res, err := tx.Run(ctx, query, map[string]any{
			"module_id": moduleID,
			"limit":     int64(historyLimit(limit)),
		})
		if err != nil {
			return nil, err
		}

		history := []Toggle{}
		for res.Next(ctx) {
			value, _ := res.Record().Get("t")
			node, ok := value.(neo4j.Node)
			if !ok {
				continue
			}
			history = append(history, toggleFromProps(moduleID, node.Props))
		}
		return history, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("querying toggle history: %w", err)
	}
	return result.([]Toggle), nil
}

func toggleFromProps(moduleID string, props map[string]any) Toggle {
	t := Toggle{ModuleID: moduleID}
	t.ID, _ = props["id"].(string)
	t.Enabled, _ = props["enabled"].(bool)
	t.ChangedBy, _ = props["changed_by"].(string)
	if changed, ok := props["changed"].(string); ok {
		if ts, err := time.Parse(time.RFC3339Nano, changed); err == nil {
			t.Changed = ts
		}
	}
	return t
}
