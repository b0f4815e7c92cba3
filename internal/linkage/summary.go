package linkage

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// FilterByParty keeps the pairs whose contribution party equals party,
// ignoring case and surrounding space. An empty party or domain.PartyAll
// keeps everything.
func FilterByParty(pairs []domain.AlertPair, party string) []domain.AlertPair {
	party = strings.TrimSpace(party)
	if party == "" || strings.EqualFold(party, domain.PartyAll) {
		return pairs
	}

	out := make([]domain.AlertPair, 0, len(pairs))
	for _, p := range pairs {
		if strings.EqualFold(strings.TrimSpace(p.Contribution.Party), party) {
			out = append(out, p)
		}
	}
	return out
}

// AvailableParties returns domain.PartyAll followed by the distinct
// non-empty parties of contribs in ascending order.
func AvailableParties(contribs []domain.ContributionRecord) []string {
	set := make(map[string]struct{})
	for i := range contribs {
		if p := strings.TrimSpace(contribs[i].Party); p != "" {
			set[p] = struct{}{}
		}
	}
	return append([]string{domain.PartyAll}, sortedKeys(set)...)
}

// Summarize condenses pairs and their aggregated alerts.
func Summarize(pairs []domain.AlertPair, alerts []domain.Alert) domain.AlertSummary {
	s := domain.AlertSummary{
		Pairs:       len(pairs),
		Alerts:      len(alerts),
		TotalAmount: decimal.Zero,
	}
	if len(pairs) == 0 {
		return s
	}

	persons := make(map[string]struct{})
	contracts := make(map[alertKey]struct{})
	total := 0
	s.MinElapsedDays = pairs[0].ElapsedDays
	for i := range pairs {
		p := &pairs[i]
		total += p.ElapsedDays
		if p.ElapsedDays < s.MinElapsedDays {
			s.MinElapsedDays = p.ElapsedDays
		}
		if p.DonationBefore {
			s.DonationsBefore++
		}
		persons[p.Contribution.Identity] = struct{}{}
		contracts[alertKey{identity: p.Contract.Identity, contract: p.Contract.Key()}] = struct{}{}
	}
	s.MeanElapsedDays = float64(total) / float64(len(pairs))
	s.UniquePersons = len(persons)
	s.UniqueContracts = len(contracts)

	for i := range alerts {
		s.TotalAmount = s.TotalAmount.Add(alerts[i].TotalAmount)
	}
	return s
}

// CountByParty counts pairs per contribution party, largest first, ties by
// party name. limit <= 0 keeps every party.
func CountByParty(pairs []domain.AlertPair, limit int) []domain.PartyCount {
	counts := make(map[string]int)
	for i := range pairs {
		if p := strings.TrimSpace(pairs[i].Contribution.Party); p != "" {
			counts[p]++
		}
	}

	out := make([]domain.PartyCount, 0, len(counts))
	for party, n := range counts {
		out = append(out, domain.PartyCount{Party: party, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Party < out[j].Party
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
