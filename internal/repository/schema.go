package repository

// Schema definitions for the Rastreador database.
// Compatible with both SQLite and PostgreSQL.

// schemaDatasets holds the uploaded tables. A workspace has at most one
// dataset per kind; uploads replace it.
const schemaDatasets = `
CREATE TABLE IF NOT EXISTS datasets (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    kind TEXT NOT NULL,
    checksum TEXT NOT NULL,
    row_count INTEGER NOT NULL,
    tables TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_datasets_workspace_kind ON datasets(workspace_id, kind);
`

const schemaAnalysisRuns = `
CREATE TABLE IF NOT EXISTS analysis_runs (
    id TEXT PRIMARY KEY,
    workspace_id TEXT NOT NULL,
    params TEXT NOT NULL,
    contributions_checksum TEXT NOT NULL,
    contracts_checksum TEXT NOT NULL,
    alert_count INTEGER NOT NULL,
    shared_identities INTEGER NOT NULL,
    result TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_runs_workspace ON analysis_runs(workspace_id);
CREATE INDEX IF NOT EXISTS idx_analysis_runs_created ON analysis_runs(workspace_id, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaDatasets,
		schemaAnalysisRuns,
	}
}
