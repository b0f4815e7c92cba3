package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/rastreador/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "rastreador-test.db"),
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func contractsDataset(id string, rows ...[]string) *domain.Dataset {
	tables := []domain.Table{{
		Name:    "2023.xlsx",
		Columns: []string{"cedula_proveedor", "numero_contrato", "fecha_notificacion"},
		Rows:    rows,
	}}
	return &domain.Dataset{
		ID:        id,
		Kind:      domain.KindContracts,
		Tables:    tables,
		Checksum:  domain.Checksum(tables),
		RowCount:  domain.CountRows(tables),
		CreatedAt: time.Now().UTC(),
	}
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	workspaceID := "ws-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("ReplaceAndGetDataset", func(t *testing.T) {
		ds := contractsDataset("ds-001", []string{"1234567890", "C-1", "15/03/2023"})
		if err := repo.ReplaceDataset(ctx, workspaceID, ds); err != nil {
			t.Fatalf("ReplaceDataset failed: %v", err)
		}

		got, err := repo.GetDataset(ctx, workspaceID, domain.KindContracts)
		if err != nil {
			t.Fatalf("GetDataset failed: %v", err)
		}
		if got.ID != ds.ID {
			t.Errorf("expected ID %s, got %s", ds.ID, got.ID)
		}
		if got.WorkspaceID != workspaceID {
			t.Errorf("expected WorkspaceID %s, got %s", workspaceID, got.WorkspaceID)
		}
		if got.Checksum != ds.Checksum {
			t.Errorf("checksum mismatch: %s vs %s", got.Checksum, ds.Checksum)
		}
		if len(got.Tables) != 1 || got.Tables[0].Cell(0, 1) != "C-1" {
			t.Errorf("tables did not round-trip: %+v", got.Tables)
		}
	})

	t.Run("ReplaceOverwritesPrevious", func(t *testing.T) {
		next := contractsDataset("ds-002",
			[]string{"1234567890", "C-2", "01/04/2023"},
			[]string{"2345678901", "C-3", "02/04/2023"},
		)
		if err := repo.ReplaceDataset(ctx, workspaceID, next); err != nil {
			t.Fatalf("ReplaceDataset failed: %v", err)
		}

		got, err := repo.GetDataset(ctx, workspaceID, domain.KindContracts)
		if err != nil {
			t.Fatalf("GetDataset failed: %v", err)
		}
		if got.ID != "ds-002" || got.RowCount != 2 {
			t.Errorf("expected ds-002 with 2 rows, got %s with %d", got.ID, got.RowCount)
		}

		list, err := repo.ListDatasets(ctx, workspaceID)
		if err != nil {
			t.Fatalf("ListDatasets failed: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 dataset, got %d", len(list))
		}
		if list[0].Tables != nil {
			t.Error("ListDatasets should not load tables")
		}
	})

	t.Run("WorkspaceIsolation", func(t *testing.T) {
		_, err := repo.GetDataset(ctx, "ws-002", domain.KindContracts)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for different workspace, got: %v", err)
		}

		list, err := repo.ListDatasets(ctx, "ws-002")
		if err != nil {
			t.Fatalf("ListDatasets failed: %v", err)
		}
		if len(list) != 0 {
			t.Errorf("expected no datasets for other workspace, got %d", len(list))
		}
	})

	t.Run("SaveAndGetAnalysisRun", func(t *testing.T) {
		base := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
		for i, id := range []string{"run-001", "run-002", "run-003"} {
			run := &domain.AnalysisRun{
				ID:                    id,
				Params:                domain.AnalysisParams{WindowMonths: 6, PartyFilter: "Partido A"},
				ContributionsChecksum: "c1",
				ContractsChecksum:     "k1",
				AlertCount:            i,
				SharedIdentities:      i + 1,
				CreatedAt:             base.Add(time.Duration(i) * time.Hour),
				Result: &domain.AnalysisResult{
					Params:   domain.AnalysisParams{WindowMonths: 6},
					Alerts:   []domain.Alert{},
					Overview: domain.Overview{SharedIdentities: i + 1},
				},
			}
			if err := repo.SaveAnalysisRun(ctx, workspaceID, run); err != nil {
				t.Fatalf("SaveAnalysisRun(%s) failed: %v", id, err)
			}
		}

		got, err := repo.GetAnalysisRun(ctx, workspaceID, "run-002")
		if err != nil {
			t.Fatalf("GetAnalysisRun failed: %v", err)
		}
		if got.Params.PartyFilter != "Partido A" || got.Params.WindowMonths != 6 {
			t.Errorf("params did not round-trip: %+v", got.Params)
		}
		if got.Result == nil || got.Result.Overview.SharedIdentities != 2 {
			t.Errorf("result did not round-trip: %+v", got.Result)
		}

		runs, err := repo.ListAnalysisRuns(ctx, workspaceID, 2)
		if err != nil {
			t.Fatalf("ListAnalysisRuns failed: %v", err)
		}
		if len(runs) != 2 {
			t.Fatalf("expected 2 runs, got %d", len(runs))
		}
		if runs[0].ID != "run-003" || runs[1].ID != "run-002" {
			t.Errorf("expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
		}
		if runs[0].Result != nil {
			t.Error("ListAnalysisRuns should not load results")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetAnalysisRun(ctx, workspaceID, "non-existent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}

		_, err = repo.GetDataset(ctx, workspaceID, domain.KindContributions)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if err := repo.ReplaceDataset(ctx, "", contractsDataset("x")); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty workspace, got: %v", err)
		}

		bad := contractsDataset("y")
		bad.Kind = "invoices"
		if err := repo.ReplaceDataset(ctx, workspaceID, bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for unknown kind, got: %v", err)
		}

		if _, err := repo.ListAnalysisRuns(ctx, "", 10); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}

	sqlite := &SQLRepository{driver: "sqlite"}
	if got := sqlite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind should be a no-op, got %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	want := "file:data/x.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	if got := sqliteDSN("data/x.db"); got != want {
		t.Errorf("sqliteDSN = %q, want %q", got, want)
	}
}

func TestInMemorySQLite(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	if err != nil {
		t.Fatalf("failed to open in-memory repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	if err := repo.ReplaceDataset(ctx, "ws-mem", contractsDataset("d1", []string{"101234567", "C1", "2023-01-01"})); err != nil {
		t.Fatalf("ReplaceDataset failed: %v", err)
	}
	if _, err := repo.GetDataset(ctx, "ws-mem", domain.KindContracts); err != nil {
		t.Errorf("GetDataset failed: %v", err)
	}
}
