package scoring

import (
	"sort"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// Band boundaries by rank (1-based, inclusive).
const (
	topBandSize = 10
	midBandEnd  = 50
)

type providerCount struct {
	identity string
	count    int
}

// Concentration ranks providers by distinct contracts and splits them into
// the Top 10, Top 11-50 and Rest bands. Percentages are relative to the
// total distinct contracts, which the three bands partition exactly.
func Concentration(contracts []domain.ContractRecord) domain.ConcentrationReport {
	keys := ContractKeysByIdentity(contracts)

	ranked := make([]providerCount, 0, len(keys))
	total := 0
	for id, k := range keys {
		ranked = append(ranked, providerCount{identity: id, count: len(k)})
		total += len(k)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].identity < ranked[j].identity
	})

	bands := []domain.ConcentrationBand{
		{Label: domain.BandTop10},
		{Label: domain.BandTop1150},
		{Label: domain.BandRest},
	}
	for rank, p := range ranked {
		b := &bands[bandIndex(rank+1)]
		b.Identities++
		b.Contracts += p.count
	}
	for i := range bands {
		bands[i].Percentage = percent(bands[i].Contracts, total)
	}

	return domain.ConcentrationReport{
		Bands:          bands,
		TotalContracts: total,
		Providers:      len(ranked),
	}
}

func bandIndex(rank int) int {
	switch {
	case rank <= topBandSize:
		return 0
	case rank <= midBandEnd:
		return 1
	default:
		return 2
	}
}

// Duplication reports, per provider, how many rows are repeated filings of
// a contract already counted. Entries are ordered by duplicate rows
// descending, then identity.
func Duplication(contracts []domain.ContractRecord) domain.DuplicationReport {
	rows := make(map[string]int)
	for i := range contracts {
		rows[contracts[i].Identity]++
	}
	keys := ContractKeysByIdentity(contracts)

	var report domain.DuplicationReport
	report.Entries = make([]domain.DuplicationEntry, 0, len(rows))
	for id, n := range rows {
		distinct := len(keys[id])
		e := domain.DuplicationEntry{
			Identity:          id,
			TotalRows:         n,
			DistinctContracts: distinct,
			DuplicateRows:     n - distinct,
			DuplicatePct:      percent(n-distinct, n),
		}
		report.Entries = append(report.Entries, e)
		report.TotalRows += n
		report.DistinctContracts += distinct
	}
	report.DuplicateRows = report.TotalRows - report.DistinctContracts
	report.DuplicatePct = percent(report.DuplicateRows, report.TotalRows)

	sort.Slice(report.Entries, func(i, j int) bool {
		a, b := report.Entries[i], report.Entries[j]
		if a.DuplicateRows != b.DuplicateRows {
			return a.DuplicateRows > b.DuplicateRows
		}
		return a.Identity < b.Identity
	})
	return report
}

// percent returns 100*part/whole, or 0 when whole is 0.
func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return 100 * float64(part) / float64(whole)
}
