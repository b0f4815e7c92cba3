// Package domain defines the core interfaces and types for Rastreador.
package domain

import (
	"context"
	"time"
)

// Repository persists datasets and analysis history.
// All methods require workspaceID; workspaces never see each other's data.
type Repository interface {
	// ReplaceDataset stores ds as the only dataset of its kind in the
	// workspace. The previous dataset of that kind is removed in the same
	// transaction.
	ReplaceDataset(ctx context.Context, workspaceID string, ds *Dataset) error
	GetDataset(ctx context.Context, workspaceID string, kind DatasetKind) (*Dataset, error)

	// ListDatasets returns dataset metadata only; Tables is left empty.
	ListDatasets(ctx context.Context, workspaceID string) ([]*Dataset, error)

	// Analysis history
	SaveAnalysisRun(ctx context.Context, workspaceID string, run *AnalysisRun) error
	GetAnalysisRun(ctx context.Context, workspaceID string, runID string) (*AnalysisRun, error)
	ListAnalysisRuns(ctx context.Context, workspaceID string, limit int) ([]*AnalysisRun, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `yaml:"driver" json:"driver"`

	SQLitePath string `yaml:"sqlite_path" json:"sqlitePath"`

	PostgresHost     string `yaml:"postgres_host" json:"postgresHost"`
	PostgresPort     int    `yaml:"postgres_port" json:"postgresPort"`
	PostgresUser     string `yaml:"postgres_user" json:"postgresUser"`
	PostgresPassword string `yaml:"postgres_password" json:"-"`
	PostgresDB       string `yaml:"postgres_db" json:"postgresDb"`
	PostgresSSLMode  string `yaml:"postgres_sslmode" json:"postgresSslmode"`

	// Connection pool settings
	MaxOpenConns    int           `yaml:"max_open_conns" json:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"connMaxLifetime"`
}
