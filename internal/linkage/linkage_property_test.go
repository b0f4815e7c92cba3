package linkage

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/normalize"
)

var propertyEpoch = date(2018, 1, 1)

// buildContribs turns generated (identity, day offset) pairs into records.
// Identities come from a small pool so that collisions are frequent.
func buildContribs(ids, days []int) []domain.ContributionRecord {
	n := min(len(ids), len(days))
	out := make([]domain.ContributionRecord, n)
	for i := 0; i < n; i++ {
		out[i] = domain.ContributionRecord{
			Identity: fmt.Sprintf("10000000%d", ids[i]),
			Date:     propertyEpoch.AddDate(0, 0, days[i]),
			Amount:   decimal.NewFromInt(int64(i + 1)),
			Party:    fmt.Sprintf("P%d", i%3),
			Row:      i,
		}
	}
	return out
}

// buildContracts gives every row its own contract number.
func buildContracts(ids, days []int) []domain.ContractRecord {
	n := min(len(ids), len(days))
	out := make([]domain.ContractRecord, n)
	for i := 0; i < n; i++ {
		out[i] = domain.ContractRecord{
			Identity: fmt.Sprintf("10000000%d", ids[i]),
			Date:     propertyEpoch.AddDate(0, 0, days[i]),
			Number:   fmt.Sprintf("K%d", i),
			Row:      i,
		}
	}
	return out
}

func pairKey(p domain.AlertPair) string {
	return fmt.Sprintf("%d/%s", p.Contribution.Row, p.Contract.Key())
}

func genIDs() gopter.Gen  { return gen.SliceOf(gen.IntRange(0, 5)) }
func genDays() gopter.Gen { return gen.SliceOf(gen.IntRange(0, 1500)) }

func TestJoinMatchesCrossProduct(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("join equals filtered cross product", prop.ForAll(
		func(cids, cdays, kids, kdays []int, window int) bool {
			contribs := buildContribs(cids, cdays)
			contracts := buildContracts(kids, kdays)

			want := make(map[string]bool)
			for _, c := range contribs {
				for _, k := range contracts {
					if c.Identity != k.Identity {
						continue
					}
					if float64(normalize.ElapsedDays(c.Date, k.Date))/domain.DaysPerMonth <= float64(window) {
						want[fmt.Sprintf("%d/%s", c.Row, k.Key())] = true
					}
				}
			}

			got := Join(contribs, contracts, nil, window)
			if len(got) != len(want) {
				return false
			}
			for _, p := range got {
				if !want[pairKey(p)] || p.Contribution.Identity != p.Contract.Identity {
					return false
				}
			}
			return true
		},
		genIDs(), genDays(), genIDs(), genDays(), gen.IntRange(domain.MinWindowMonths, domain.MaxWindowMonths),
	))

	properties.TestingRun(t)
}

func TestJoinWindowMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("narrow window pairs are a subset of wide window pairs", prop.ForAll(
		func(cids, cdays, kids, kdays []int, w1, w2 int) bool {
			if w1 > w2 {
				w1, w2 = w2, w1
			}
			contribs := buildContribs(cids, cdays)
			contracts := buildContracts(kids, kdays)

			wide := make(map[string]bool)
			for _, p := range Join(contribs, contracts, nil, w2) {
				wide[pairKey(p)] = true
			}
			for _, p := range Join(contribs, contracts, nil, w1) {
				if !wide[pairKey(p)] {
					return false
				}
			}
			return true
		},
		genIDs(), genDays(), genIDs(), genDays(),
		gen.IntRange(domain.MinWindowMonths, domain.MaxWindowMonths),
		gen.IntRange(domain.MinWindowMonths, domain.MaxWindowMonths),
	))

	properties.TestingRun(t)
}

func TestAggregateConservation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("alert counts and amounts add up to the pairs", prop.ForAll(
		func(cids, cdays, kids, kdays []int, window int) bool {
			contribs := buildContribs(cids, cdays)
			pairs := Join(contribs, buildContracts(kids, kdays), nil, window)
			alerts := Aggregate(pairs)

			pairCount := make(map[string]int)
			pairAmount := make(map[string]decimal.Decimal)
			for _, p := range pairs {
				id := p.Contract.Identity
				pairCount[id]++
				pairAmount[id] = pairAmount[id].Add(p.Contribution.Amount)
			}

			contribCount := make(map[string]int)
			for _, c := range contribs {
				contribCount[c.Identity]++
			}

			alertCount := make(map[string]int)
			alertAmount := make(map[string]decimal.Decimal)
			for _, a := range alerts {
				if a.ContributionCount > contribCount[a.Identity] {
					return false
				}
				alertCount[a.Identity] += a.ContributionCount
				alertAmount[a.Identity] = alertAmount[a.Identity].Add(a.TotalAmount)
			}

			if len(alertCount) != len(pairCount) {
				return false
			}
			for id, n := range pairCount {
				if alertCount[id] != n || !alertAmount[id].Equal(pairAmount[id]) {
					return false
				}
			}
			return true
		},
		genIDs(), genDays(), genIDs(), genDays(), gen.IntRange(domain.MinWindowMonths, domain.MaxWindowMonths),
	))

	properties.TestingRun(t)
}

func TestPipelineIdempotence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("same inputs give the same alerts", prop.ForAll(
		func(cids, cdays, kids, kdays []int) bool {
			contribs := buildContribs(cids, cdays)
			contracts := buildContracts(kids, kdays)

			a := Aggregate(Join(contribs, contracts, nil, 12))
			b := Aggregate(Join(contribs, contracts, nil, 12))
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i].Identity != b[i].Identity || a[i].ContractKey != b[i].ContractKey ||
					a[i].ContributionCount != b[i].ContributionCount || !a[i].TotalAmount.Equal(b[i].TotalAmount) {
					return false
				}
			}
			return true
		},
		genIDs(), genDays(), genIDs(), genDays(),
	))

	properties.TestingRun(t)
}

// The window check works on whole days; keep the boundary honest.
func TestWithinWindowBoundary(t *testing.T) {
	daysPerMonth := domain.DaysPerMonth
	limit := int(6 * daysPerMonth) // 182
	if !WithinWindow(limit, 6) {
		t.Errorf("%d days should be inside a 6 month window", limit)
	}
	if WithinWindow(limit+1, 6) {
		t.Errorf("%d days should be outside a 6 month window", limit+1)
	}
}
