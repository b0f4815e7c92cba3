package scoring

import (
	"sort"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// Donors summarizes contributions per identity. TopByAmount holds the topN
// largest donors by total amount (ties by identity); topN <= 0 keeps all.
func Donors(contribs []domain.ContributionRecord, topN int) domain.DonorStats {
	byID := make(map[string]*domain.Donor)
	for i := range contribs {
		c := &contribs[i]
		d, ok := byID[c.Identity]
		if !ok {
			d = &domain.Donor{Identity: c.Identity}
			byID[c.Identity] = d
		}
		d.TotalAmount = d.TotalAmount.Add(c.Amount)
		d.Count++
	}

	stats := domain.DonorStats{TotalDonors: len(byID)}
	donors := make([]domain.Donor, 0, len(byID))
	for _, d := range byID {
		if d.Count > 1 {
			stats.RepeatDonors++
		}
		if d.Count > stats.MaxCount {
			stats.MaxCount = d.Count
		}
		donors = append(donors, *d)
	}

	sort.Slice(donors, func(i, j int) bool {
		if c := donors[i].TotalAmount.Cmp(donors[j].TotalAmount); c != 0 {
			return c > 0
		}
		return donors[i].Identity < donors[j].Identity
	})
	if topN > 0 && len(donors) > topN {
		donors = donors[:topN]
	}
	stats.TopByAmount = donors
	return stats
}
