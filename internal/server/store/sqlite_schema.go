package store

const schemaModuleState = `
CREATE TABLE IF NOT EXISTS module_state (
    module_id TEXT PRIMARY KEY,
    enabled INTEGER NOT NULL,
    updated_at TEXT NOT NULL
)`

const schemaModuleToggles = `
CREATE TABLE IF NOT EXISTS module_toggles (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT UNIQUE NOT NULL,
    module_id TEXT NOT NULL,
    enabled INTEGER NOT NULL,
    changed_by TEXT,
    changed_at TEXT NOT NULL
)`

const indexTogglesModule = `CREATE INDEX IF NOT EXISTS idx_module_toggles_module ON module_toggles(module_id, seq)`

const pragmaWAL = `PRAGMA journal_mode=WAL`
const pragmaBusyTimeout = `PRAGMA busy_timeout=5000`
const pragmaSynchronous = `PRAGMA synchronous=NORMAL`

func allSchemaStatements() []string {
	return []string{
		schemaModuleState,
		schemaModuleToggles,
		indexTogglesModule,
	}
}

func allPragmas() []string {
	return []string{
		pragmaWAL,
		pragmaBusyTimeout,
		pragmaSynchronous,
	}
}
