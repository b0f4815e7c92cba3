// Package normalize turns raw contribution and contract tables into
// canonical records: digit-only identity keys, parsed dates, and columns
// located by name heuristics.
package normalize

import (
	"math"
	"strconv"
	"strings"
)

// Contributor identity keys must have between 7 and 9 digits.
const (
	MinContributorIdentityLen = 7
	MaxContributorIdentityLen = 9
)

// Identity reduces a raw identity cell to its digits. Spreadsheet readers
// often hand back numeric cells as floats ("101234567.0", "1.01234567E8"),
// so the float rendering is undone before stripping.
// An empty result means the row has no usable identity.
func Identity(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	if strings.ContainsAny(s, "eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f == math.Trunc(f) {
			s = strconv.FormatFloat(f, 'f', 0, 64)
		}
	}
	s = trimFloatSuffix(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// trimFloatSuffix removes the ".0", ".00", ... that float formatting leaves
// on an integer. Only a plain "<digits>.<zeros>" value qualifies; grouped
// renderings such as "101.234.000" keep every digit.
func trimFloatSuffix(s string) string {
	i := strings.IndexByte(s, '.')
	if i <= 0 || i == len(s)-1 || !isDigits(s[:i]) {
		return s
	}
	if strings.Trim(s[i+1:], "0") != "" {
		return s
	}
	return s[:i]
}

// ValidContributorIdentity reports whether id is acceptable as a
// contributor identity key.
func ValidContributorIdentity(id string) bool {
	n := len(id)
	return n >= MinContributorIdentityLen && n <= MaxContributorIdentityLen
}

// ContributorIdentity normalizes raw and applies the contributor length rule.
func ContributorIdentity(raw string) (string, bool) {
	id := Identity(raw)
	if !ValidContributorIdentity(id) {
		return "", false
	}
	return id, true
}
