// Package linkage joins contributions and contracts on identity and turns
// the pairs that fall inside the time window into aggregated alerts.
package linkage

import (
	"sort"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// IdentitySet is the set of distinct identity keys of a dataset.
// Iteration order is unspecified; use Sorted for stable output.
type IdentitySet map[string]struct{}

// NewIdentitySet builds a set from ids.
func NewIdentitySet(ids ...string) IdentitySet {
	s := make(IdentitySet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// ContributionIdentities returns the identities present in contribs.
func ContributionIdentities(contribs []domain.ContributionRecord) IdentitySet {
	s := make(IdentitySet)
	for i := range contribs {
		s[contribs[i].Identity] = struct{}{}
	}
	return s
}

// ContractIdentities returns the identities present in contracts.
func ContractIdentities(contracts []domain.ContractRecord) IdentitySet {
	s := make(IdentitySet)
	for i := range contracts {
		s[contracts[i].Identity] = struct{}{}
	}
	return s
}

// Has reports whether id is in the set.
func (s IdentitySet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of identities.
func (s IdentitySet) Len() int {
	return len(s)
}

// Sorted returns the identities in ascending order.
func (s IdentitySet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Intersect returns the identities present in both a and b.
func Intersect(a, b IdentitySet) IdentitySet {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(IdentitySet)
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}
