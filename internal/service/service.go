// Package service ties persistence, caching and the analyzer together per
// workspace. It is the only layer the HTTP API talks to.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/rastreador/internal/analysis"
	"github.com/opensource-finance/rastreador/internal/cache"
	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/linkage"
	"github.com/opensource-finance/rastreador/internal/normalize"
	"github.com/opensource-finance/rastreador/internal/report"
	"github.com/opensource-finance/rastreador/internal/repository"
)

var (
	// ErrWorkspaceRequired is returned when a call carries no workspace ID.
	ErrWorkspaceRequired = errors.New("workspace ID is required")

	// ErrNoUsableTables is returned when none of the uploaded contract
	// tables has the columns needed for linkage.
	ErrNoUsableTables = errors.New("no contract table has identity and date columns")
)

// Service serves analyses for any number of workspaces.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	events   domain.EventBus
	analyzer *analysis.Analyzer
	cfg      domain.AnalysisConfig

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates a service. cache may be nil to disable result caching.
func New(repo domain.Repository, c domain.Cache, analyzer *analysis.Analyzer, cfg domain.AnalysisConfig) *Service {
	return &Service{
		repo:     repo,
		cache:    c,
		analyzer: analyzer,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// WithEvents publishes dataset and analysis events to bus. A nil bus
// disables publishing.
func (s *Service) WithEvents(bus domain.EventBus) *Service {
	s.events = bus
	return s
}

// Session returns the workspace's session, restoring persisted datasets on
// first use.
func (s *Service) Session(ctx context.Context, workspaceID string) (*Session, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}

	s.mu.Lock()
	sess, ok := s.sessions[workspaceID]
	if !ok {
		sess = newSession(workspaceID)
		s.sessions[workspaceID] = sess
	}
	s.mu.Unlock()

	if err := sess.restore(ctx, s.repo); err != nil {
		return nil, err
	}
	return sess, nil
}

// LoadContributions validates, persists and activates a contributions table.
func (s *Service) LoadContributions(ctx context.Context, workspaceID string, table domain.Table) (*domain.Dataset, error) {
	sess, err := s.Session(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	set, err := normalize.PrepareContributions(&table)
	if err != nil {
		return nil, err
	}

	ds := newDataset(workspaceID, domain.KindContributions, []domain.Table{table})
	if err := s.repo.ReplaceDataset(ctx, workspaceID, ds); err != nil {
		return nil, fmt.Errorf("store contributions: %w", err)
	}
	sess.setContributions(withoutTables(ds), set)
	s.publishDataset(ctx, ds)

	slog.InfoContext(ctx, "contributions loaded",
		"workspace_id", workspaceID,
		"dataset_id", ds.ID,
		"rows", ds.RowCount,
		"kept", set.Stats.Kept,
	)
	return withoutTables(ds), nil
}

// LoadContracts validates, persists and activates the contract tables.
// Tables lacking identity or date columns are skipped; the load fails only
// when no table is usable.
func (s *Service) LoadContracts(ctx context.Context, workspaceID string, tables []domain.Table) (*domain.Dataset, error) {
	sess, err := s.Session(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	set := normalize.PrepareContracts(tables)
	if len(tables) == 0 || len(set.Errors) == len(tables) {
		if len(set.Errors) > 0 {
			return nil, fmt.Errorf("%w: %v", ErrNoUsableTables, set.Errors[0])
		}
		return nil, ErrNoUsableTables
	}

	ds := newDataset(workspaceID, domain.KindContracts, tables)
	if err := s.repo.ReplaceDataset(ctx, workspaceID, ds); err != nil {
		return nil, fmt.Errorf("store contracts: %w", err)
	}
	sess.setContracts(withoutTables(ds), set)
	s.publishDataset(ctx, ds)

	slog.InfoContext(ctx, "contracts loaded",
		"workspace_id", workspaceID,
		"dataset_id", ds.ID,
		"tables", len(tables),
		"skipped_tables", len(set.Errors),
		"rows", ds.RowCount,
		"kept", set.Stats.Kept,
	)
	return withoutTables(ds), nil
}

// Result computes (or fetches from cache) the analysis for the workspace's
// current datasets.
func (s *Service) Result(ctx context.Context, workspaceID string, params domain.AnalysisParams) (*domain.AnalysisResult, *Snapshot, error) {
	sess, err := s.Session(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	params = s.withDefaults(params)
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	if err := s.analyzer.ValidateFilter(params.Filter); err != nil {
		return nil, nil, err
	}

	snap := sess.Snapshot()
	if !snap.Ready() {
		return nil, nil, domain.ErrDatasetMissing
	}

	key := cache.ResultKey(snap.Contributions.Checksum, snap.Contracts.Checksum, params)
	if s.cache != nil {
		cached, err := s.cache.GetResult(ctx, workspaceID, key)
		if err != nil {
			slog.WarnContext(ctx, "result cache read failed", "workspace_id", workspaceID, "error", err)
		}
		if cached != nil {
			return cached, snap, nil
		}
	}

	result, err := s.analyzer.Run(ctx, snap.ContributionSet, snap.ContractSet, params)
	if err != nil {
		return nil, nil, err
	}

	if s.cache != nil {
		ttl := time.Duration(s.cfg.ResultTTL) * time.Second
		if err := s.cache.SetResult(ctx, workspaceID, key, result, ttl); err != nil {
			slog.WarnContext(ctx, "result cache write failed", "workspace_id", workspaceID, "error", err)
		}
	}
	return result, snap, nil
}

// Warm brings the workspace session in line with a dataset.replaced event and
// precomputes the default analysis into the cache. It reports false when the
// workspace does not have both datasets yet. Events may come from another
// process, so a checksum mismatch reloads the dataset from the repository.
func (s *Service) Warm(ctx context.Context, workspaceID string, ev domain.DatasetEvent) (bool, error) {
	sess, err := s.Session(ctx, workspaceID)
	if err != nil {
		return false, err
	}

	if current := sess.Snapshot().dataset(ev.Kind); current == nil || current.Checksum != ev.Checksum {
		sess.invalidate(ev.Kind)
		if err := sess.restore(ctx, s.repo); err != nil {
			return false, err
		}
	}
	if !sess.Snapshot().Ready() {
		return false, nil
	}

	if _, _, err := s.Result(ctx, workspaceID, s.DefaultParams()); err != nil {
		return false, err
	}
	return true, nil
}

// Analyze runs an analysis and records it in the workspace history.
func (s *Service) Analyze(ctx context.Context, workspaceID string, params domain.AnalysisParams) (*domain.AnalysisRun, error) {
	result, snap, err := s.Result(ctx, workspaceID, params)
	if err != nil {
		return nil, err
	}

	run := &domain.AnalysisRun{
		ID:                    uuid.New().String(),
		WorkspaceID:           workspaceID,
		Params:                result.Params,
		ContributionsChecksum: snap.Contributions.Checksum,
		ContractsChecksum:     snap.Contracts.Checksum,
		AlertCount:            len(result.Alerts),
		SharedIdentities:      result.Overview.SharedIdentities,
		CreatedAt:             time.Now().UTC(),
		Result:                result,
	}
	if err := s.repo.SaveAnalysisRun(ctx, workspaceID, run); err != nil {
		return nil, fmt.Errorf("store analysis run: %w", err)
	}

	s.publish(ctx, workspaceID, domain.TopicAnalysisCompleted, domain.AnalysisEvent{
		RunID:            run.ID,
		Params:           run.Params,
		AlertCount:       run.AlertCount,
		SharedIdentities: run.SharedIdentities,
		CriticalSuspects: countLevel(result.Suspects, domain.LevelCritical),
	})

	slog.InfoContext(ctx, "analysis recorded",
		"workspace_id", workspaceID,
		"run_id", run.ID,
		"window_months", run.Params.WindowMonths,
		"alerts", run.AlertCount,
	)
	return run, nil
}

// ExportCSV writes the alerts of an analysis as CSV and returns the
// download file name.
func (s *Service) ExportCSV(ctx context.Context, workspaceID string, params domain.AnalysisParams, w io.Writer) (string, error) {
	result, _, err := s.Result(ctx, workspaceID, params)
	if err != nil {
		return "", err
	}
	opts := report.CSVOptions{MaskIdentities: s.cfg.MaskIdentities}
	if err := report.WriteAlertsCSV(w, result.Alerts, opts); err != nil {
		return "", err
	}
	return report.FileName(result.Params.WindowMonths), nil
}

// Parties lists the party filter choices of the loaded contributions.
func (s *Service) Parties(ctx context.Context, workspaceID string) ([]string, error) {
	sess, err := s.Session(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	snap := sess.Snapshot()
	if snap.Contributions == nil {
		return nil, domain.ErrDatasetMissing
	}
	return linkage.AvailableParties(snap.ContributionSet.Records), nil
}

// Datasets lists dataset metadata for the workspace.
func (s *Service) Datasets(ctx context.Context, workspaceID string) ([]*domain.Dataset, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}
	return s.repo.ListDatasets(ctx, workspaceID)
}

// Runs lists recent analyses, newest first.
func (s *Service) Runs(ctx context.Context, workspaceID string, limit int) ([]*domain.AnalysisRun, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}
	return s.repo.ListAnalysisRuns(ctx, workspaceID, limit)
}

// Run returns a recorded analysis with its result.
func (s *Service) Run(ctx context.Context, workspaceID, runID string) (*domain.AnalysisRun, error) {
	if workspaceID == "" {
		return nil, ErrWorkspaceRequired
	}
	return s.repo.GetAnalysisRun(ctx, workspaceID, runID)
}

// DefaultParams returns the configured defaults for an unparameterized
// analysis.
func (s *Service) DefaultParams() domain.AnalysisParams {
	return s.withDefaults(domain.AnalysisParams{})
}

func (s *Service) withDefaults(p domain.AnalysisParams) domain.AnalysisParams {
	if p.WindowMonths == 0 {
		p.WindowMonths = s.cfg.DefaultWindowMonths
	}
	if p.TopSuspects == 0 {
		p.TopSuspects = s.cfg.TopSuspects
	}
	if p.PartyFilter == "" {
		p.PartyFilter = domain.PartyAll
	}
	return p
}

func (s *Service) publishDataset(ctx context.Context, ds *domain.Dataset) {
	s.publish(ctx, ds.WorkspaceID, domain.TopicDatasetReplaced, domain.DatasetEvent{
		DatasetID: ds.ID,
		Kind:      ds.Kind,
		Checksum:  ds.Checksum,
		RowCount:  ds.RowCount,
	})
}

// publish is best effort: a failed publish is logged, never returned.
func (s *Service) publish(ctx context.Context, workspaceID, topic string, event any) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err == nil {
		err = s.events.Publish(ctx, workspaceID, topic, payload)
	}
	if err != nil {
		slog.WarnContext(ctx, "event publish failed",
			"workspace_id", workspaceID,
			"topic", topic,
			"error", err,
		)
	}
}

func countLevel(suspects []domain.Suspect, level domain.SuspicionLevel) int {
	n := 0
	for i := range suspects {
		if suspects[i].Level == level {
			n++
		}
	}
	return n
}

func newDataset(workspaceID string, kind domain.DatasetKind, tables []domain.Table) *domain.Dataset {
	return &domain.Dataset{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		Kind:        kind,
		Tables:      tables,
		Checksum:    domain.Checksum(tables),
		RowCount:    domain.CountRows(tables),
		CreatedAt:   time.Now().UTC(),
	}
}

func withoutTables(ds *domain.Dataset) *domain.Dataset {
	cp := *ds
	cp.Tables = nil
	return &cp
}

// isNotFound reports whether err means nothing is stored yet.
func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
