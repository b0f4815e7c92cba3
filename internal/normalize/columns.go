package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// Column is the outcome of resolving one role: either the located header
// (Found) or a miss.
type Column struct {
	Name  string `json:"name,omitempty"`
	Index int    `json:"index"`
	Found bool   `json:"found"`
}

var missing = Column{Index: -1}

// ContractColumns maps the contract roles onto a table's headers.
// Number is optional; when !Number.Found, records are keyed by date.
type ContractColumns struct {
	Date     Column `json:"date"`
	Identity Column `json:"identity"`
	Number   Column `json:"number"`
}

// ContributionColumns maps the contribution roles onto a table's headers.
// Only Identity and Date are required.
type ContributionColumns struct {
	Identity Column `json:"identity"`
	Date     Column `json:"date"`
	Amount   Column `json:"amount"`
	Party    Column `json:"party"`
	Name     Column `json:"name"`
	Type     Column `json:"type"`
}

// FoldHeader lower-cases s and strips diacritics, so "Cédula Proveedor"
// and "CEDULA PROVEEDOR" compare equal.
func FoldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

// matcher selects a header by its folded form.
type matcher func(folded string) bool

func containsAll(subs ...string) matcher {
	return func(h string) bool {
		for _, s := range subs {
			if !strings.Contains(h, s) {
				return false
			}
		}
		return true
	}
}

func containsAny(subs ...string) matcher {
	return func(h string) bool {
		for _, s := range subs {
			if strings.Contains(h, s) {
				return true
			}
		}
		return false
	}
}

func both(a, b matcher) matcher {
	return func(h string) bool { return a(h) && b(h) }
}

func not(m matcher) matcher {
	return func(h string) bool { return !m(h) }
}

// headerSet is a folded view of a header row that tracks assigned columns.
type headerSet struct {
	raw    []string
	folded []string
	taken  map[int]bool
}

func newHeaderSet(headers []string) *headerSet {
	hs := &headerSet{
		raw:    headers,
		folded: make([]string, len(headers)),
		taken:  make(map[int]bool),
	}
	for i, h := range headers {
		hs.folded[i] = FoldHeader(h)
	}
	return hs
}

// pick returns the first unassigned header satisfying the earliest matcher
// in preference order, and marks it assigned.
func (hs *headerSet) pick(prefs ...matcher) Column {
	for _, m := range prefs {
		for i, h := range hs.folded {
			if hs.taken[i] || h == "" {
				continue
			}
			if m(h) {
				hs.taken[i] = true
				return Column{Name: hs.raw[i], Index: i, Found: true}
			}
		}
	}
	return missing
}

func (hs *headerSet) missingErr(role domain.ColumnRole) *domain.MissingColumnError {
	return &domain.MissingColumnError{Role: role, Columns: hs.raw}
}

// ResolveContractColumns locates the notification date, provider identity
// and (optionally) contract number columns. Matching is substring based
// and insensitive to case and accents. A notification-date column wins over
// other date columns; a column naming both "cedula" and "proveedor" wins
// over partial matches. The returned error is a *domain.MissingColumnError
// with Table left empty for the caller to fill in.
func ResolveContractColumns(headers []string) (ContractColumns, error) {
	hs := newHeaderSet(headers)

	cols := ContractColumns{
		Date:     hs.pick(containsAll("notif"), containsAll("fecha")),
		Identity: hs.pick(containsAll("cedula", "proveedor"), containsAll("cedula"), containsAll("proveedor")),
	}
	if !cols.Date.Found {
		return cols, hs.missingErr(domain.RoleDate)
	}
	if !cols.Identity.Found {
		return cols, hs.missingErr(domain.RoleIdentity)
	}

	numberToken := containsAny("nro", "numero", "num.", "no.")
	notDate := not(containsAny("fecha"))
	cols.Number = hs.pick(
		both(both(numberToken, containsAll("contrato")), notDate),
		both(numberToken, notDate),
		both(containsAll("contrato"), notDate),
	)
	return cols, nil
}

// ResolveContributionColumns locates the contributions roles. Identity and
// Date are required; the rest resolve to a miss when absent.
func ResolveContributionColumns(headers []string) (ContributionColumns, error) {
	hs := newHeaderSet(headers)

	cols := ContributionColumns{
		Identity: hs.pick(containsAll("cedula"), containsAll("identificacion")),
		Date:     hs.pick(containsAll("fecha")),
	}
	if !cols.Identity.Found {
		return cols, hs.missingErr(domain.RoleIdentity)
	}
	if !cols.Date.Found {
		return cols, hs.missingErr(domain.RoleDate)
	}

	cols.Amount = hs.pick(containsAll("monto"), containsAll("importe"))
	cols.Party = hs.pick(containsAll("partido"))
	cols.Name = hs.pick(containsAll("nombre"))
	cols.Type = hs.pick(containsAll("tipo"))
	return cols, nil
}
