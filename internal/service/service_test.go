package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/rastreador/internal/analysis"
	"github.com/opensource-finance/rastreador/internal/bus"
	"github.com/opensource-finance/rastreador/internal/cache"
	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/repository"
	"github.com/opensource-finance/rastreador/internal/rules"
)

func newTestService(t *testing.T, dbPath string) *Service {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create rules engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })

	cfg := domain.DefaultConfig().Analysis
	return New(repo, cache.NewLRUCache(16), analysis.NewAnalyzer(engine, cfg.TopDonors), cfg)
}

func contributions() domain.Table {
	return domain.Table{
		Name:    "BBDD",
		Columns: []string{"CÉDULA", "NOMBRE", "FECHA", "MONTO", "PARTIDO POLÍTICO"},
		Rows: [][]string{
			{"101234567", "Ana", "2020-01-10", "1000", "Partido A"},
			{"201234567", "Luis", "2020-01-10", "50", "Partido B"},
			{"301234567", "Eva", "2018-01-10", "75", "Partido B"},
		},
	}
}

func contracts() domain.Table {
	return domain.Table{
		Name:    "2020.xlsx",
		Columns: []string{"Cédula Proveedor", "Fecha Notificación", "Nro Contrato"},
		Rows: [][]string{
			{"101234567", "2020-02-01", "C1"},
			{"201234567", "2020-03-01", "C2"},
			{"301234567", "2020-03-01", "C3"},
		},
	}
}

func TestServiceAnalyze(t *testing.T) {
	svc := newTestService(t, filepath.Join(t.TempDir(), "svc.db"))
	ctx := context.Background()
	ws := "ws-001"

	t.Run("MissingDatasets", func(t *testing.T) {
		_, err := svc.Analyze(ctx, ws, domain.AnalysisParams{})
		if !errors.Is(err, domain.ErrDatasetMissing) {
			t.Errorf("expected ErrDatasetMissing, got %v", err)
		}
	})

	t.Run("Load", func(t *testing.T) {
		ds, err := svc.LoadContributions(ctx, ws, contributions())
		if err != nil {
			t.Fatalf("LoadContributions failed: %v", err)
		}
		if ds.RowCount != 3 || ds.Checksum == "" || ds.Tables != nil {
			t.Errorf("unexpected dataset metadata: %+v", ds)
		}

		if _, err := svc.LoadContracts(ctx, ws, []domain.Table{contracts()}); err != nil {
			t.Fatalf("LoadContracts failed: %v", err)
		}

		list, err := svc.Datasets(ctx, ws)
		if err != nil {
			t.Fatalf("Datasets failed: %v", err)
		}
		if len(list) != 2 {
			t.Errorf("expected 2 datasets, got %d", len(list))
		}
	})

	t.Run("AnalyzeDefaults", func(t *testing.T) {
		run, err := svc.Analyze(ctx, ws, domain.AnalysisParams{})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if run.Params.WindowMonths != 6 || run.Params.PartyFilter != domain.PartyAll {
			t.Errorf("defaults not applied: %+v", run.Params)
		}
		if run.AlertCount != 2 || run.SharedIdentities != 3 {
			t.Errorf("alerts=%d shared=%d, want 2 and 3", run.AlertCount, run.SharedIdentities)
		}

		stored, err := svc.Run(ctx, ws, run.ID)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if stored.Result == nil || len(stored.Result.Alerts) != 2 {
			t.Errorf("stored result missing alerts: %+v", stored.Result)
		}
	})

	t.Run("PartyFilter", func(t *testing.T) {
		run, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 6, PartyFilter: "partido b"})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if run.AlertCount != 1 || run.Result.Alerts[0].Identity != "201234567" {
			t.Errorf("unexpected alerts: %+v", run.Result.Alerts)
		}
	})

	t.Run("WideWindow", func(t *testing.T) {
		run, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 24})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		if run.AlertCount != 2 {
			t.Errorf("alerts = %d, want 2 (the 2018 contribution is outside 24 months)", run.AlertCount)
		}
	})

	t.Run("InvalidParams", func(t *testing.T) {
		if _, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 30}); !errors.Is(err, domain.ErrInvalidWindow) {
			t.Errorf("expected ErrInvalidWindow, got %v", err)
		}
		if _, err := svc.Analyze(ctx, ws, domain.AnalysisParams{Filter: "amount +"}); !errors.Is(err, rules.ErrInvalidExpression) {
			t.Errorf("expected ErrInvalidExpression, got %v", err)
		}
	})

	t.Run("Runs", func(t *testing.T) {
		runs, err := svc.Runs(ctx, ws, 10)
		if err != nil {
			t.Fatalf("Runs failed: %v", err)
		}
		if len(runs) != 3 {
			t.Errorf("expected 3 recorded runs, got %d", len(runs))
		}
	})

	t.Run("Parties", func(t *testing.T) {
		parties, err := svc.Parties(ctx, ws)
		if err != nil {
			t.Fatalf("Parties failed: %v", err)
		}
		want := []string{domain.PartyAll, "Partido A", "Partido B"}
		if strings.Join(parties, "|") != strings.Join(want, "|") {
			t.Errorf("Parties = %v, want %v", parties, want)
		}
	})

	t.Run("ExportCSV", func(t *testing.T) {
		var buf bytes.Buffer
		name, err := svc.ExportCSV(ctx, ws, domain.AnalysisParams{WindowMonths: 6}, &buf)
		if err != nil {
			t.Fatalf("ExportCSV failed: %v", err)
		}
		if name != "alertas_contratos_6meses.csv" {
			t.Errorf("file name = %q", name)
		}

		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header + 2 rows, got %d", len(records))
		}
		if records[1][0] != "101***" {
			t.Errorf("identity should be masked, got %q", records[1][0])
		}
	})

	t.Run("WorkspaceRequired", func(t *testing.T) {
		if _, err := svc.Analyze(ctx, "", domain.AnalysisParams{}); !errors.Is(err, ErrWorkspaceRequired) {
			t.Errorf("expected ErrWorkspaceRequired, got %v", err)
		}
	})
}

func TestServiceReplaceDataset(t *testing.T) {
	svc := newTestService(t, filepath.Join(t.TempDir(), "svc.db"))
	ctx := context.Background()
	ws := "ws-replace"

	if _, err := svc.LoadContributions(ctx, ws, contributions()); err != nil {
		t.Fatalf("LoadContributions failed: %v", err)
	}
	if _, err := svc.LoadContracts(ctx, ws, []domain.Table{contracts()}); err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}

	first, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 6})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	only := contracts()
	only.Rows = only.Rows[:1]
	if _, err := svc.LoadContracts(ctx, ws, []domain.Table{only}); err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}

	second, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 6})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if first.ContractsChecksum == second.ContractsChecksum {
		t.Error("replacing contracts should change the checksum")
	}
	if second.AlertCount != 1 {
		t.Errorf("stale result served: alerts = %d, want 1", second.AlertCount)
	}
}

func TestServiceRestoresPersistedDatasets(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "svc.db")
	ctx := context.Background()
	ws := "ws-restore"

	first := newTestService(t, dbPath)
	if _, err := first.LoadContributions(ctx, ws, contributions()); err != nil {
		t.Fatalf("LoadContributions failed: %v", err)
	}
	if _, err := first.LoadContracts(ctx, ws, []domain.Table{contracts()}); err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}

	second := newTestService(t, dbPath)
	run, err := second.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 6})
	if err != nil {
		t.Fatalf("Analyze after restart failed: %v", err)
	}
	if run.AlertCount != 2 {
		t.Errorf("alerts = %d, want 2", run.AlertCount)
	}
}

func TestServiceWarm(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "svc.db")
	ctx := context.Background()
	ws := "ws-warm"

	writer := newTestService(t, dbPath)
	reader := newTestService(t, dbPath)

	event := func(ds *domain.Dataset) domain.DatasetEvent {
		return domain.DatasetEvent{DatasetID: ds.ID, Kind: ds.Kind, Checksum: ds.Checksum, RowCount: ds.RowCount}
	}

	contrib, err := writer.LoadContributions(ctx, ws, contributions())
	if err != nil {
		t.Fatalf("LoadContributions failed: %v", err)
	}
	ok, err := reader.Warm(ctx, ws, event(contrib))
	if err != nil || ok {
		t.Fatalf("Warm with one dataset = %v, %v; want false, nil", ok, err)
	}

	contr, err := writer.LoadContracts(ctx, ws, []domain.Table{contracts()})
	if err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}
	ok, err = reader.Warm(ctx, ws, event(contr))
	if err != nil || !ok {
		t.Fatalf("Warm with both datasets = %v, %v; want true, nil", ok, err)
	}

	single := contracts()
	single.Rows = single.Rows[:1]
	replaced, err := writer.LoadContracts(ctx, ws, []domain.Table{single})
	if err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}

	stale, err := reader.Analyze(ctx, ws, domain.AnalysisParams{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if stale.AlertCount != 2 {
		t.Errorf("before warm-up alerts = %d, want 2", stale.AlertCount)
	}

	if ok, err := reader.Warm(ctx, ws, event(replaced)); err != nil || !ok {
		t.Fatalf("Warm after replace = %v, %v; want true, nil", ok, err)
	}
	fresh, err := reader.Analyze(ctx, ws, domain.AnalysisParams{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if fresh.AlertCount != 1 || fresh.ContractsChecksum != replaced.Checksum {
		t.Errorf("after warm-up alerts = %d checksum = %s, want 1 and %s", fresh.AlertCount, fresh.ContractsChecksum, replaced.Checksum)
	}
}

func TestServiceLoadErrors(t *testing.T) {
	svc := newTestService(t, filepath.Join(t.TempDir(), "svc.db"))
	ctx := context.Background()

	t.Run("ContributionsMissingIdentity", func(t *testing.T) {
		bad := domain.Table{Name: "BBDD", Columns: []string{"NOMBRE", "FECHA"}, Rows: [][]string{{"Ana", "2020-01-01"}}}
		_, err := svc.LoadContributions(ctx, "ws", bad)

		var missing *domain.MissingColumnError
		if !errors.As(err, &missing) {
			t.Fatalf("expected MissingColumnError, got %v", err)
		}
		if missing.Role != domain.RoleIdentity {
			t.Errorf("role = %s, want identity", missing.Role)
		}
	})

	t.Run("NoUsableContractTables", func(t *testing.T) {
		bad := domain.Table{Name: "x.xlsx", Columns: []string{"Monto"}, Rows: [][]string{{"1"}}}
		if _, err := svc.LoadContracts(ctx, "ws", []domain.Table{bad}); !errors.Is(err, ErrNoUsableTables) {
			t.Errorf("expected ErrNoUsableTables, got %v", err)
		}
	})

	t.Run("SkipsBrokenTable", func(t *testing.T) {
		bad := domain.Table{Name: "x.xlsx", Columns: []string{"Monto"}, Rows: [][]string{{"1"}}}
		ds, err := svc.LoadContracts(ctx, "ws", []domain.Table{bad, contracts()})
		if err != nil {
			t.Fatalf("LoadContracts failed: %v", err)
		}
		if ds.RowCount != 4 {
			t.Errorf("row count = %d, want 4", ds.RowCount)
		}
	})
}

func TestServicePublishesEvents(t *testing.T) {
	events := bus.NewChannelBus(16)
	defer events.Close()

	svc := newTestService(t, filepath.Join(t.TempDir(), "svc.db")).WithEvents(events)
	ctx := context.Background()
	ws := "ws-events"

	datasets := make(chan *domain.Message, 4)
	analyses := make(chan *domain.Message, 4)
	collect := func(ch chan *domain.Message) domain.MessageHandler {
		return func(ctx context.Context, msg *domain.Message) error {
			ch <- msg
			return nil
		}
	}
	if _, err := events.Subscribe(ctx, ws, domain.TopicDatasetReplaced, collect(datasets)); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if _, err := events.Subscribe(ctx, ws, domain.TopicAnalysisCompleted, collect(analyses)); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if _, err := svc.LoadContributions(ctx, ws, contributions()); err != nil {
		t.Fatalf("LoadContributions failed: %v", err)
	}
	if _, err := svc.LoadContracts(ctx, ws, []domain.Table{contracts()}); err != nil {
		t.Fatalf("LoadContracts failed: %v", err)
	}
	run, err := svc.Analyze(ctx, ws, domain.AnalysisParams{WindowMonths: 6})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	receive := func(ch chan *domain.Message) *domain.Message {
		t.Helper()
		select {
		case msg := <-ch:
			return msg
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
			return nil
		}
	}

	kinds := map[domain.DatasetKind]bool{}
	for i := 0; i < 2; i++ {
		var ev domain.DatasetEvent
		if err := json.Unmarshal(receive(datasets).Payload, &ev); err != nil {
			t.Fatalf("bad dataset event: %v", err)
		}
		kinds[ev.Kind] = true
	}
	if !kinds[domain.KindContributions] || !kinds[domain.KindContracts] {
		t.Errorf("expected one event per dataset kind, got %v", kinds)
	}

	var ev domain.AnalysisEvent
	if err := json.Unmarshal(receive(analyses).Payload, &ev); err != nil {
		t.Fatalf("bad analysis event: %v", err)
	}
	if ev.RunID != run.ID || ev.AlertCount != run.AlertCount {
		t.Errorf("unexpected analysis event: %+v", ev)
	}
	if ev.CriticalSuspects != 2 {
		t.Errorf("critical suspects = %d, want 2", ev.CriticalSuspects)
	}
}
