// Package analysis runs the full linkage pipeline: identity intersection,
// temporal join, party filter, aggregation, optional alert filter, ranking
// and concentration statistics.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/linkage"
	"github.com/opensource-finance/rastreador/internal/normalize"
	"github.com/opensource-finance/rastreador/internal/rules"
	"github.com/opensource-finance/rastreador/internal/scoring"
)

// PartyChartLimit caps the per-party alert counts.
const PartyChartLimit = 10

// ErrFilterUnavailable is returned when a filter expression is supplied to
// an analyzer built without a filter engine.
var ErrFilterUnavailable = errors.New("alert filter engine not configured")

var tracer = otel.Tracer("rastreador-analysis")

// Analyzer is stateless between calls; one instance may serve concurrent
// requests.
type Analyzer struct {
	filter    *rules.Engine
	topDonors int
}

// NewAnalyzer creates an analyzer. filter may be nil when filter
// expressions are not needed.
func NewAnalyzer(filter *rules.Engine, topDonors int) *Analyzer {
	return &Analyzer{filter: filter, topDonors: topDonors}
}

// RunTables normalizes the raw tables and runs the analysis. A contracts
// table whose columns cannot be resolved is skipped and reported as a
// warning; a contributions table without identity or date is an error.
func (a *Analyzer) RunTables(ctx context.Context, contributions *domain.Table, contracts []domain.Table, params domain.AnalysisParams) (*domain.AnalysisResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	_, span := tracer.Start(ctx, "analysis.normalize")
	contribSet, err := normalize.PrepareContributions(contributions)
	if err != nil {
		span.RecordError(err)
		span.End()
		return nil, fmt.Errorf("contributions: %w", err)
	}
	contractSet := normalize.PrepareContracts(contracts)
	span.SetAttributes(
		attribute.Int("contributions.kept", contribSet.Stats.Kept),
		attribute.Int("contracts.kept", contractSet.Stats.Kept),
	)
	span.End()

	return a.Run(ctx, contribSet, contractSet, params)
}

// Run analyzes already normalized datasets.
func (a *Analyzer) Run(ctx context.Context, contribs domain.ContributionSet, contracts domain.ContractSet, params domain.AnalysisParams) (*domain.AnalysisResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := a.ValidateFilter(params.Filter); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, span := tracer.Start(ctx, "analysis.run", trace.WithAttributes(
		attribute.Int("window_months", params.WindowMonths),
		attribute.String("party_filter", params.PartyFilter),
	))
	defer span.End()

	contribIDs := linkage.ContributionIdentities(contribs.Records)
	contractIDs := linkage.ContractIdentities(contracts.Records)
	shared := linkage.Intersect(contribIDs, contractIDs)

	pairs := linkage.Join(contribs.Records, contracts.Records, shared, params.WindowMonths)
	if !params.AllParties() {
		pairs = linkage.FilterByParty(pairs, params.PartyFilter)
	}
	alerts := linkage.Aggregate(pairs)

	if params.Filter != "" {
		kept, err := a.filter.Filter(ctx, params.Filter, alerts)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		pairs = pairsOf(pairs, kept)
		alerts = kept
	}

	concentration := scoring.Concentration(contracts.Records)
	result := &domain.AnalysisResult{
		Params: params,
		Overview: domain.Overview{
			Contracts:              concentration.TotalContracts,
			ContractIdentities:     contractIDs.Len(),
			ContributionIdentities: contribIDs.Len(),
			SharedIdentities:       shared.Len(),
		},
		Contributions: contribs.Stats,
		ContractRows:  contracts.Stats,
		Alerts:        alerts,
		Summary:       linkage.Summarize(pairs, alerts),
		ByParty:       linkage.CountByParty(pairs, PartyChartLimit),
		Suspects:      scoring.RankSuspects(alerts, contracts.Records, params.TopSuspects),
		Concentration: concentration,
		Duplication:   scoring.Duplication(contracts.Records),
		Donors:        scoring.Donors(contribs.Records, a.topDonors),
		Warnings:      warnings(contribs, contracts),
		ComputedAt:    time.Now().UTC(),
	}
	if result.Alerts == nil {
		result.Alerts = []domain.Alert{}
	}

	span.SetAttributes(
		attribute.Int("identities.shared", shared.Len()),
		attribute.Int("pairs", len(pairs)),
		attribute.Int("alerts", len(alerts)),
	)
	slog.DebugContext(ctx, "analysis completed",
		"window_months", params.WindowMonths,
		"party_filter", params.PartyFilter,
		"shared_identities", shared.Len(),
		"pairs", len(pairs),
		"alerts", len(alerts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// ValidateFilter compiles expr so malformed filters are rejected even when
// there are no alerts to evaluate. An empty expression is always valid.
func (a *Analyzer) ValidateFilter(expr string) error {
	if expr == "" {
		return nil
	}
	if a.filter == nil {
		return ErrFilterUnavailable
	}
	return a.filter.Validate(expr)
}

// pairsOf keeps the pairs that belong to one of alerts.
func pairsOf(pairs []domain.AlertPair, alerts []domain.Alert) []domain.AlertPair {
	type key struct{ identity, contract string }
	keep := make(map[key]struct{}, len(alerts))
	for i := range alerts {
		keep[key{alerts[i].Identity, alerts[i].ContractKey}] = struct{}{}
	}

	out := make([]domain.AlertPair, 0, len(pairs))
	for _, p := range pairs {
		if _, ok := keep[key{p.Contract.Identity, p.Contract.Key()}]; ok {
			out = append(out, p)
		}
	}
	return out
}

func warnings(contribs domain.ContributionSet, contracts domain.ContractSet) []string {
	var out []string
	if n := contribs.Stats.Dropped(); n > 0 {
		out = append(out, fmt.Sprintf("excluded %d of %d contribution records (invalid identity: %d, invalid date: %d)",
			n, contribs.Stats.Total, contribs.Stats.InvalidIdentity, contribs.Stats.InvalidDate))
	}
	if n := contracts.Stats.Dropped(); n > 0 {
		out = append(out, fmt.Sprintf("excluded %d of %d contract records (invalid identity: %d, invalid date: %d)",
			n, contracts.Stats.Total, contracts.Stats.InvalidIdentity, contracts.Stats.InvalidDate))
	}
	for _, e := range contracts.Errors {
		out = append(out, "skipped "+e.Error())
	}
	if contracts.NumberColumnMissing {
		out = append(out, "contract number column not found in some tables; those contracts are keyed by notification date")
	}
	return out
}
