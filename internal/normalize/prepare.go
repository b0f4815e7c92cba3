package normalize

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// PrepareContributions resolves the columns of t and normalizes every row.
// Rows with an invalid identity or an unparsable date are dropped and
// counted in the returned stats.
func PrepareContributions(t *domain.Table) (domain.ContributionSet, error) {
	var set domain.ContributionSet

	cols, err := ResolveContributionColumns(t.Columns)
	if err != nil {
		return set, withTable(err, t.Name)
	}

	set.Stats.Total = t.Len()
	set.Records = make([]domain.ContributionRecord, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		id, ok := ContributorIdentity(t.Cell(i, cols.Identity.Index))
		if !ok {
			set.Stats.InvalidIdentity++
			continue
		}
		date, ok := ParseDate(t.Cell(i, cols.Date.Index))
		if !ok {
			set.Stats.InvalidDate++
			continue
		}

		amount, hasAmount := ParseAmount(t.Cell(i, cols.Amount.Index))
		party := t.Cell(i, cols.Party.Index)
		set.Records = append(set.Records, domain.ContributionRecord{
			Identity:  id,
			Date:      date,
			Amount:    amount,
			HasAmount: hasAmount,
			Party:     party,
			Inactive:  IsInactiveParty(party),
			Name:      t.Cell(i, cols.Name.Index),
			Type:      t.Cell(i, cols.Type.Index),
			Row:       i,
		})
	}
	set.Stats.Kept = len(set.Records)
	return set, nil
}

// PrepareContracts normalizes each table on its own and concatenates the
// records. A table whose required columns cannot be found is skipped and
// reported in ContractSet.Errors; the other tables stay usable.
func PrepareContracts(tables []domain.Table) domain.ContractSet {
	var set domain.ContractSet
	for i := range tables {
		t := &tables[i]
		cols, err := ResolveContractColumns(t.Columns)
		if err != nil {
			var mce *domain.MissingColumnError
			if errors.As(withTable(err, t.Name), &mce) {
				set.Errors = append(set.Errors, mce)
			}
			continue
		}
		if !cols.Number.Found {
			set.NumberColumnMissing = true
		}

		stats := prepareContractTable(t, cols, &set.Records)
		set.Stats.Add(stats)
	}
	return set
}

func prepareContractTable(t *domain.Table, cols ContractColumns, out *[]domain.ContractRecord) domain.DropStats {
	stats := domain.DropStats{Total: t.Len()}
	for i := 0; i < t.Len(); i++ {
		id := Identity(t.Cell(i, cols.Identity.Index))
		if id == "" {
			stats.InvalidIdentity++
			continue
		}
		date, ok := ParseDate(t.Cell(i, cols.Date.Index))
		if !ok {
			stats.InvalidDate++
			continue
		}

		rec := domain.ContractRecord{
			Identity: id,
			Date:     date,
			Number:   t.Cell(i, cols.Number.Index),
			Source:   t.Name,
			Row:      i,
			Extra:    extraColumns(t, i, cols),
		}
		*out = append(*out, rec)
		stats.Kept++
	}
	return stats
}

// extraColumns carries the non-empty cells of unresolved columns.
func extraColumns(t *domain.Table, row int, cols ContractColumns) map[string]string {
	var extra map[string]string
	for j, name := range t.Columns {
		if j == cols.Date.Index || j == cols.Identity.Index || j == cols.Number.Index {
			continue
		}
		v := t.Cell(row, j)
		if v == "" || name == "" {
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[name] = v
	}
	return extra
}

func withTable(err error, table string) error {
	var mce *domain.MissingColumnError
	if errors.As(err, &mce) {
		mce.Table = table
	}
	return err
}

// IsInactiveParty reports whether party carries the inactive marker.
func IsInactiveParty(party string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(party)), domain.InactiveSuffix)
}

// ParseAmount reads a monetary cell. Plain and exponent renderings
// ("1500000", "1.5E6") are read as-is. Otherwise currency symbols are
// ignored; whichever of ',' or '.' appears last is taken as the decimal
// separator when both are present, and a lone separator followed by
// exactly three digits groups thousands. Negative or unreadable values
// report false and a zero amount.
func ParseAmount(raw string) (decimal.Decimal, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.ContainsAny(trimmed, "eE") {
		if d, err := decimal.NewFromString(trimmed); err == nil {
			return nonNegative(d)
		}
	}

	var b strings.Builder
	for _, r := range trimmed {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' || r == '-' {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(canonicalDecimal(s))
	if err != nil {
		return decimal.Zero, false
	}
	return nonNegative(d)
}

func nonNegative(d decimal.Decimal) (decimal.Decimal, bool) {
	if d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

func canonicalDecimal(s string) string {
	comma := strings.LastIndexByte(s, ',')
	dot := strings.LastIndexByte(s, '.')

	switch {
	case comma >= 0 && dot >= 0:
		if comma > dot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case comma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-comma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case dot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-dot-1 == 3 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}
