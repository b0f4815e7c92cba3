// Package scoring ranks alerted identities and measures how contracts are
// distributed across providers.
package scoring

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// Suspicion level thresholds.
const (
	CriticalThreshold = 80.0
	HighThreshold     = 60.0
)

// Classify maps a score to its display level.
func Classify(score float64) domain.SuspicionLevel {
	switch {
	case score >= CriticalThreshold:
		return domain.LevelCritical
	case score >= HighThreshold:
		return domain.LevelHigh
	default:
		return domain.LevelMedium
	}
}

// ContractKeysByIdentity returns the distinct contract keys of each identity.
func ContractKeysByIdentity(contracts []domain.ContractRecord) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})
	for i := range contracts {
		c := &contracts[i]
		keys, ok := out[c.Identity]
		if !ok {
			keys = make(map[string]struct{})
			out[c.Identity] = keys
		}
		keys[c.Key()] = struct{}{}
	}
	return out
}

type suspectAcc struct {
	keys    map[string]struct{}
	amount  decimal.Decimal
	parties map[string]struct{}
	minDays int
}

// RankSuspects scores every identity that has at least one alert by the
// share of its distinct contracts (over the full contract table) that are
// alert-linked. Identities are ordered by score descending, then identity
// ascending. topN <= 0 returns every suspect.
func RankSuspects(alerts []domain.Alert, contracts []domain.ContractRecord, topN int) []domain.Suspect {
	if len(alerts) == 0 {
		return nil
	}

	acc := make(map[string]*suspectAcc)
	for i := range alerts {
		a := &alerts[i]
		s, ok := acc[a.Identity]
		if !ok {
			s = &suspectAcc{
				keys:    make(map[string]struct{}),
				parties: make(map[string]struct{}),
				minDays: a.MinElapsedDays,
			}
			acc[a.Identity] = s
		}
		s.keys[a.ContractKey] = struct{}{}
		s.amount = s.amount.Add(a.TotalAmount)
		for _, p := range a.Parties {
			s.parties[p] = struct{}{}
		}
		if a.MinElapsedDays < s.minDays {
			s.minDays = a.MinElapsedDays
		}
	}

	totals := ContractKeysByIdentity(contracts)
	suspects := make([]domain.Suspect, 0, len(acc))
	for id, s := range acc {
		total := len(totals[id])
		score := 0.0
		if total > 0 {
			score = min(100*float64(len(s.keys))/float64(total), 100)
		}
		suspects = append(suspects, domain.Suspect{
			Identity:       id,
			AlertContracts: len(s.keys),
			TotalContracts: total,
			Score:          score,
			Level:          Classify(score),
			TotalAmount:    s.amount,
			Parties:        sortedKeys(s.parties),
			MinElapsedDays: s.minDays,
		})
	}

	sort.Slice(suspects, func(i, j int) bool {
		if suspects[i].Score != suspects[j].Score {
			return suspects[i].Score > suspects[j].Score
		}
		return suspects[i].Identity < suspects[j].Identity
	})
	if topN > 0 && len(suspects) > topN {
		suspects = suspects[:topN]
	}
	return suspects
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
