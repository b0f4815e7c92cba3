package linkage

import (
	"sort"

	"github.com/opensource-finance/rastreador/internal/domain"
)

type alertKey struct {
	identity string
	contract string
}

// Aggregate collapses pairs into one Alert per (identity, contract key).
// Amounts are summed and contributions counted; parties are kept as a
// sorted distinct list. When filings of one contract carry different
// dates, the earliest is reported. Alerts are ordered by identity, contract date and
// contract key.
func Aggregate(pairs []domain.AlertPair) []domain.Alert {
	if len(pairs) == 0 {
		return nil
	}

	index := make(map[alertKey]int)
	alerts := make([]domain.Alert, 0)
	parties := make([]map[string]struct{}, 0)

	for i := range pairs {
		p := &pairs[i]
		key := alertKey{identity: p.Contract.Identity, contract: p.Contract.Key()}

		n, ok := index[key]
		if !ok {
			n = len(alerts)
			index[key] = n
			alerts = append(alerts, domain.Alert{
				Identity:          key.identity,
				ContractKey:       key.contract,
				ContractNumber:    p.Contract.Number,
				ContractDate:      p.Contract.Date,
				ContractYear:      p.Contract.Date.Year(),
				MinElapsedDays:    p.ElapsedDays,
				FirstContribution: p.Contribution.Date,
				LastContribution:  p.Contribution.Date,
			})
			parties = append(parties, make(map[string]struct{}))
		}

		a := &alerts[n]
		if p.Contract.Date.Before(a.ContractDate) {
			a.ContractDate = p.Contract.Date
			a.ContractYear = p.Contract.Date.Year()
		}
		a.TotalAmount = a.TotalAmount.Add(p.Contribution.Amount)
		a.ContributionCount++
		if p.ElapsedDays < a.MinElapsedDays {
			a.MinElapsedDays = p.ElapsedDays
		}
		if p.Contribution.Date.Before(a.FirstContribution) {
			a.FirstContribution = p.Contribution.Date
		}
		if p.Contribution.Date.After(a.LastContribution) {
			a.LastContribution = p.Contribution.Date
		}
		if p.Contribution.Party != "" {
			parties[n][p.Contribution.Party] = struct{}{}
		}
	}

	for i := range alerts {
		alerts[i].Parties = sortedKeys(parties[i])
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		a, b := alerts[i], alerts[j]
		if a.Identity != b.Identity {
			return a.Identity < b.Identity
		}
		if !a.ContractDate.Equal(b.ContractDate) {
			return a.ContractDate.Before(b.ContractDate)
		}
		return a.ContractKey < b.ContractKey
	})
	return alerts
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
