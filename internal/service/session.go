package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/normalize"
)

// Snapshot is an immutable view of a workspace's loaded datasets. Loads
// replace the snapshot; readers holding the old one are unaffected.
type Snapshot struct {
	Contributions   *domain.Dataset
	ContributionSet domain.ContributionSet
	Contracts       *domain.Dataset
	ContractSet     domain.ContractSet
}

// Ready reports whether both datasets are loaded.
func (s *Snapshot) Ready() bool {
	return s.Contributions != nil && s.Contracts != nil
}

func (s *Snapshot) dataset(kind domain.DatasetKind) *domain.Dataset {
	switch kind {
	case domain.KindContributions:
		return s.Contributions
	case domain.KindContracts:
		return s.Contracts
	}
	return nil
}

// Session holds the active datasets of one workspace.
type Session struct {
	WorkspaceID string

	mu       sync.Mutex
	restored bool
	snap     *Snapshot
}

func newSession(workspaceID string) *Session {
	return &Session{WorkspaceID: workspaceID, snap: &Snapshot{}}
}

// Snapshot returns the current datasets.
func (s *Session) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Session) setContributions(ds *domain.Dataset, set domain.ContributionSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap
	next.Contributions = ds
	next.ContributionSet = set
	s.snap = &next
}

func (s *Session) setContracts(ds *domain.Dataset, set domain.ContractSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap
	next.Contracts = ds
	next.ContractSet = set
	s.snap = &next
}

// invalidate drops the dataset of kind so the next restore reloads it from
// the repository.
func (s *Session) invalidate(kind domain.DatasetKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := *s.snap
	switch kind {
	case domain.KindContributions:
		next.Contributions = nil
		next.ContributionSet = domain.ContributionSet{}
	case domain.KindContracts:
		next.Contracts = nil
		next.ContractSet = domain.ContractSet{}
	}
	s.snap = &next
	s.restored = false
}

// restore loads persisted datasets once. A failed restore is retried on the
// next call.
func (s *Session) restore(ctx context.Context, repo domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restored {
		return nil
	}

	next := *s.snap

	if next.Contributions == nil {
		ds, err := repo.GetDataset(ctx, s.WorkspaceID, domain.KindContributions)
		switch {
		case err == nil && len(ds.Tables) == 1:
			set, err := normalize.PrepareContributions(&ds.Tables[0])
			if err != nil {
				return fmt.Errorf("restore contributions: %w", err)
			}
			next.Contributions = withoutTables(ds)
			next.ContributionSet = set
		case err != nil && !isNotFound(err):
			return fmt.Errorf("restore contributions: %w", err)
		}
	}

	if next.Contracts == nil {
		ds, err := repo.GetDataset(ctx, s.WorkspaceID, domain.KindContracts)
		switch {
		case err == nil:
			next.Contracts = withoutTables(ds)
			next.ContractSet = normalize.PrepareContracts(ds.Tables)
		case !isNotFound(err):
			return fmt.Errorf("restore contracts: %w", err)
		}
	}

	s.snap = &next
	s.restored = true
	return nil
}
