package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DaysPerMonth is the average month length used to convert elapsed days
// into months. It is not calendar accurate.
const DaysPerMonth = 30.44

// AlertPair links one contribution to one contract of the same identity
// whose dates fall within the analysis window.
type AlertPair struct {
	Contribution   ContributionRecord `json:"contribution"`
	Contract       ContractRecord     `json:"contract"`
	ElapsedDays    int                `json:"elapsedDays"`
	ElapsedMonths  float64            `json:"elapsedMonths"`
	DonationBefore bool               `json:"donationBefore"`
}

// Alert aggregates every AlertPair sharing an (identity, contract) key.
type Alert struct {
	Identity          string          `json:"identity"`
	ContractKey       string          `json:"contractKey"`
	ContractNumber    string          `json:"contractNumber,omitempty"`
	ContractDate      time.Time       `json:"contractDate"`
	ContractYear      int             `json:"contractYear"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	ContributionCount int             `json:"contributionCount"`
	Parties           []string        `json:"parties"`
	MinElapsedDays    int             `json:"minElapsedDays"`
	FirstContribution time.Time       `json:"firstContribution"`
	LastContribution  time.Time       `json:"lastContribution"`
}

// SuspicionLevel classifies a suspicion score for display.
type SuspicionLevel string

const (
	LevelCritical SuspicionLevel = "CRITICAL"
	LevelHigh     SuspicionLevel = "HIGH"
	LevelMedium   SuspicionLevel = "MEDIUM"
)

// Suspect is an identity ranked by the share of its contracts that are
// alert-linked.
type Suspect struct {
	Identity       string          `json:"identity"`
	AlertContracts int             `json:"alertContracts"`
	TotalContracts int             `json:"totalContracts"`
	Score          float64         `json:"score"`
	Level          SuspicionLevel  `json:"level"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	Parties        []string        `json:"parties"`
	MinElapsedDays int             `json:"minElapsedDays"`
}

// Concentration band labels.
const (
	BandTop10   = "Top 10"
	BandTop1150 = "Top 11-50"
	BandRest    = "Rest"
)

// ConcentrationBand is one rank-based group of contract recipients.
type ConcentrationBand struct {
	Label      string  `json:"label"`
	Identities int     `json:"identities"`
	Contracts  int     `json:"contracts"`
	Percentage float64 `json:"percentage"`
}

// ConcentrationReport describes how contracts are spread across providers.
type ConcentrationReport struct {
	Bands          []ConcentrationBand `json:"bands"`
	TotalContracts int                 `json:"totalContracts"`
	Providers      int                 `json:"providers"`
}

// DuplicationEntry measures redundant filings for one provider.
type DuplicationEntry struct {
	Identity          string  `json:"identity"`
	TotalRows         int     `json:"totalRows"`
	DistinctContracts int     `json:"distinctContracts"`
	DuplicateRows     int     `json:"duplicateRows"`
	DuplicatePct      float64 `json:"duplicatePct"`
}

// DuplicationReport holds per-provider duplication plus table totals.
type DuplicationReport struct {
	Entries           []DuplicationEntry `json:"entries"`
	TotalRows         int                `json:"totalRows"`
	DistinctContracts int                `json:"distinctContracts"`
	DuplicateRows     int                `json:"duplicateRows"`
	DuplicatePct      float64            `json:"duplicatePct"`
}

// AlertSummary condenses the alert pairs of one analysis.
type AlertSummary struct {
	Pairs           int             `json:"pairs"`
	Alerts          int             `json:"alerts"`
	MinElapsedDays  int             `json:"minElapsedDays"`
	MeanElapsedDays float64         `json:"meanElapsedDays"`
	DonationsBefore int             `json:"donationsBefore"`
	UniquePersons   int             `json:"uniquePersons"`
	UniqueContracts int             `json:"uniqueContracts"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
}

// PartyCount is the number of alert pairs attributed to a party.
type PartyCount struct {
	Party string `json:"party"`
	Count int    `json:"count"`
}

// Donor aggregates the contributions of one identity.
type Donor struct {
	Identity    string          `json:"identity"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Count       int             `json:"count"`
}

// DonorStats summarizes the contributions dataset by donor.
type DonorStats struct {
	TotalDonors  int     `json:"totalDonors"`
	RepeatDonors int     `json:"repeatDonors"`
	MaxCount     int     `json:"maxCount"`
	TopByAmount  []Donor `json:"topByAmount"`
}
