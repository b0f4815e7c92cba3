// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/rastreador/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultRunsLimit bounds ListAnalysisRuns when the caller passes no limit.
const DefaultRunsLimit = 50

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// ReplaceDataset swaps the workspace's dataset of ds.Kind for ds in one
// transaction.
func (r *SQLRepository) ReplaceDataset(ctx context.Context, workspaceID string, ds *domain.Dataset) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if ds == nil || ds.ID == "" || !ds.Kind.Valid() {
		return fmt.Errorf("%w: dataset id and kind are required", ErrInvalidInput)
	}

	tables, err := json.Marshal(ds.Tables)
	if err != nil {
		return fmt.Errorf("encode tables: %w", err)
	}
	createdAt := ds.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	del := `DELETE FROM datasets WHERE workspace_id = ? AND kind = ?`
	if _, err := tx.ExecContext(ctx, r.rebind(del), workspaceID, string(ds.Kind)); err != nil {
		return err
	}

	ins := `
		INSERT INTO datasets (id, workspace_id, kind, checksum, row_count, tables, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, r.rebind(ins),
		ds.ID, workspaceID, string(ds.Kind), ds.Checksum, ds.RowCount, string(tables), createdAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetDataset retrieves the current dataset of a kind, tables included.
func (r *SQLRepository) GetDataset(ctx context.Context, workspaceID string, kind domain.DatasetKind) (*domain.Dataset, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, kind, checksum, row_count, tables, created_at
		FROM datasets
		WHERE workspace_id = ? AND kind = ?
	`

	var ds domain.Dataset
	var kindStr, tables string
	err := r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, string(kind)).Scan(
		&ds.ID, &ds.WorkspaceID, &kindStr, &ds.Checksum, &ds.RowCount, &tables, &ds.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ds.Kind = domain.DatasetKind(kindStr)
	if err := json.Unmarshal([]byte(tables), &ds.Tables); err != nil {
		return nil, fmt.Errorf("failed to parse dataset %s tables: %w", ds.ID, err)
	}
	return &ds, nil
}

// ListDatasets returns the workspace's datasets without their tables.
func (r *SQLRepository) ListDatasets(ctx context.Context, workspaceID string) ([]*domain.Dataset, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, kind, checksum, row_count, created_at
		FROM datasets
		WHERE workspace_id = ?
		ORDER BY kind
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []*domain.Dataset
	for rows.Next() {
		var ds domain.Dataset
		var kindStr string
		if err := rows.Scan(&ds.ID, &ds.WorkspaceID, &kindStr, &ds.Checksum, &ds.RowCount, &ds.CreatedAt); err != nil {
			return nil, err
		}
		ds.Kind = domain.DatasetKind(kindStr)
		datasets = append(datasets, &ds)
	}

	return datasets, rows.Err()
}

// SaveAnalysisRun stores an analysis run with its full result.
func (r *SQLRepository) SaveAnalysisRun(ctx context.Context, workspaceID string, run *domain.AnalysisRun) error {
	if workspaceID == "" {
		return fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if run == nil || run.ID == "" {
		return fmt.Errorf("%w: run id is required", ErrInvalidInput)
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	var result sql.NullString
	if run.Result != nil {
		b, err := json.Marshal(run.Result)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		result = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO analysis_runs (
			id, workspace_id, params, contributions_checksum, contracts_checksum,
			alert_count, shared_identities, result, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		run.ID, workspaceID, string(params),
		run.ContributionsChecksum, run.ContractsChecksum,
		run.AlertCount, run.SharedIdentities, result, run.CreatedAt,
	)
	return err
}

// GetAnalysisRun retrieves a run with its stored result.
func (r *SQLRepository) GetAnalysisRun(ctx context.Context, workspaceID string, runID string) (*domain.AnalysisRun, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, workspace_id, params, contributions_checksum, contracts_checksum,
			   alert_count, shared_identities, result, created_at
		FROM analysis_runs
		WHERE workspace_id = ? AND id = ?
	`

	var run domain.AnalysisRun
	var params string
	var result sql.NullString

	err := r.db.QueryRowContext(ctx, r.rebind(query), workspaceID, runID).Scan(
		&run.ID, &run.WorkspaceID, &params, &run.ContributionsChecksum, &run.ContractsChecksum,
		&run.AlertCount, &run.SharedIdentities, &result, &run.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, fmt.Errorf("failed to parse run %s params: %w", run.ID, err)
	}
	if result.Valid {
		run.Result = &domain.AnalysisResult{}
		if err := json.Unmarshal([]byte(result.String), run.Result); err != nil {
			return nil, fmt.Errorf("failed to parse run %s result: %w", run.ID, err)
		}
	}
	return &run, nil
}

// ListAnalysisRuns returns the most recent runs first, without results.
func (r *SQLRepository) ListAnalysisRuns(ctx context.Context, workspaceID string, limit int) ([]*domain.AnalysisRun, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultRunsLimit
	}

	query := `
		SELECT id, workspace_id, params, contributions_checksum, contracts_checksum,
			   alert_count, shared_identities, created_at
		FROM analysis_runs
		WHERE workspace_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AnalysisRun
	for rows.Next() {
		var run domain.AnalysisRun
		var params string
		if err := rows.Scan(
			&run.ID, &run.WorkspaceID, &params, &run.ContributionsChecksum, &run.ContractsChecksum,
			&run.AlertCount, &run.SharedIdentities, &run.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
			return nil, fmt.Errorf("failed to parse run %s params: %w", run.ID, err)
		}
		runs = append(runs, &run)
	}

	return runs, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
