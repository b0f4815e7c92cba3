package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// InactiveSuffix marks a party that no longer participates in elections.
const InactiveSuffix = "(INACTIVO)"

// ContributionRecord is one normalized row of the contributions dataset.
type ContributionRecord struct {
	Identity  string          `json:"identity"`
	Date      time.Time       `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	HasAmount bool            `json:"hasAmount"`
	Party     string          `json:"party"`
	Inactive  bool            `json:"inactive"`
	Name      string          `json:"name,omitempty"`
	Type      string          `json:"type,omitempty"`
	Row       int             `json:"row"`
}

// ContractRecord is one normalized row of a contracts table.
type ContractRecord struct {
	Identity string            `json:"identity"`
	Date     time.Time         `json:"date"`
	Number   string            `json:"number,omitempty"`
	Source   string            `json:"source"`
	Row      int               `json:"row"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Key identifies the underlying contract. Repeated filings share a number;
// when no number is available the notification date stands in for it.
func (c ContractRecord) Key() string {
	if c.Number != "" {
		return c.Number
	}
	return "fecha:" + c.Date.Format("2006-01-02")
}

// DropStats counts rows excluded during normalization.
type DropStats struct {
	Total           int `json:"total"`
	Kept            int `json:"kept"`
	InvalidIdentity int `json:"invalidIdentity"`
	InvalidDate     int `json:"invalidDate"`
}

// Dropped returns the number of excluded rows.
func (s DropStats) Dropped() int {
	return s.Total - s.Kept
}

// Add merges another set of counters into s.
func (s *DropStats) Add(o DropStats) {
	s.Total += o.Total
	s.Kept += o.Kept
	s.InvalidIdentity += o.InvalidIdentity
	s.InvalidDate += o.InvalidDate
}

// ContributionSet is the normalized contributions dataset.
type ContributionSet struct {
	Records []ContributionRecord `json:"records"`
	Stats   DropStats            `json:"stats"`
}

// ContractSet is the normalized, concatenated contracts dataset.
type ContractSet struct {
	Records []ContractRecord `json:"records"`
	Stats   DropStats        `json:"stats"`

	// NumberColumnMissing is set when at least one source table had no
	// contract-number column; affected records are keyed by date.
	NumberColumnMissing bool `json:"numberColumnMissing"`

	// Errors lists tables that could not be normalized at all.
	Errors []*MissingColumnError `json:"errors,omitempty"`
}
