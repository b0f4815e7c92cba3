package linkage

import (
	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/normalize"
)

// Join pairs every contribution with every contract of the same identity
// and keeps the pairs whose elapsed time is at most windowMonths, with
// months approximated as domain.DaysPerMonth days.
//
// Contracts are first restricted to shared and indexed by identity, so the
// cost is proportional to the number of candidate pairs rather than the
// full cross product. A nil shared set is computed from the inputs.
//
// Repeated filings of one contract (rows sharing a contract key) pair with
// a contribution once, through the filing closest in time. Pairs come out
// in contribution order, then contract order.
func Join(contribs []domain.ContributionRecord, contracts []domain.ContractRecord, shared IdentitySet, windowMonths int) []domain.AlertPair {
	if len(contribs) == 0 || len(contracts) == 0 {
		return nil
	}
	if shared == nil {
		shared = Intersect(ContributionIdentities(contribs), ContractIdentities(contracts))
	}
	if len(shared) == 0 {
		return nil
	}

	byIdentity := make(map[string][]int, len(shared))
	for i := range contracts {
		id := contracts[i].Identity
		if shared.Has(id) {
			byIdentity[id] = append(byIdentity[id], i)
		}
	}

	var pairs []domain.AlertPair
	seen := make(map[string]int)
	for i := range contribs {
		c := &contribs[i]
		clear(seen)
		for _, j := range byIdentity[c.Identity] {
			k := &contracts[j]
			days := normalize.ElapsedDays(c.Date, k.Date)
			if !WithinWindow(days, windowMonths) {
				continue
			}

			pair := domain.AlertPair{
				Contribution:   *c,
				Contract:       *k,
				ElapsedDays:    days,
				ElapsedMonths:  float64(days) / domain.DaysPerMonth,
				DonationBefore: !c.Date.After(k.Date),
			}
			if n, dup := seen[k.Key()]; dup {
				if days < pairs[n].ElapsedDays {
					pairs[n] = pair
				}
				continue
			}
			seen[k.Key()] = len(pairs)
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

// WithinWindow reports whether days, converted to months, is at most
// windowMonths.
func WithinWindow(days, windowMonths int) bool {
	return float64(days)/domain.DaysPerMonth <= float64(windowMonths)
}
