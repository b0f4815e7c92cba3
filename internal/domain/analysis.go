package domain

import (
	"strings"
	"time"
)

// PartyAll disables the party filter.
const PartyAll = "Todos"

// Window bounds accepted by the analysis.
const (
	MinWindowMonths = 1
	MaxWindowMonths = 24
)

// AnalysisParams are the caller-supplied knobs of one analysis invocation.
type AnalysisParams struct {
	WindowMonths int    `json:"windowMonths"`
	PartyFilter  string `json:"partyFilter,omitempty"`

	// Filter is an optional CEL expression evaluated against each alert.
	Filter string `json:"filter,omitempty"`

	// TopSuspects limits the ranked suspect list; 0 keeps all.
	TopSuspects int `json:"topSuspects,omitempty"`
}

// Validate checks the window bounds.
func (p AnalysisParams) Validate() error {
	if p.WindowMonths < MinWindowMonths || p.WindowMonths > MaxWindowMonths {
		return ErrInvalidWindow
	}
	return nil
}

// AllParties reports whether the party filter is disabled.
func (p AnalysisParams) AllParties() bool {
	f := strings.TrimSpace(p.PartyFilter)
	return f == "" || strings.EqualFold(f, PartyAll)
}

// Overview carries the identity-set sizes of an analysis.
type Overview struct {
	Contracts              int `json:"contracts"`
	ContractIdentities     int `json:"contractIdentities"`
	ContributionIdentities int `json:"contributionIdentities"`
	SharedIdentities       int `json:"sharedIdentities"`
}

// AnalysisResult is everything presentation needs from one analysis.
type AnalysisResult struct {
	Params        AnalysisParams      `json:"params"`
	Overview      Overview            `json:"overview"`
	Contributions DropStats           `json:"contributions"`
	ContractRows  DropStats           `json:"contractRows"`
	Alerts        []Alert             `json:"alerts"`
	Summary       AlertSummary        `json:"summary"`
	ByParty       []PartyCount        `json:"byParty,omitempty"`
	Suspects      []Suspect           `json:"suspects"`
	Concentration ConcentrationReport `json:"concentration"`
	Duplication   DuplicationReport   `json:"duplication"`
	Donors        DonorStats          `json:"donors"`
	Warnings      []string            `json:"warnings,omitempty"`
	ComputedAt    time.Time           `json:"computedAt"`
}

// AnalysisRun is a persisted record of an analysis invocation.
type AnalysisRun struct {
	ID                    string          `json:"id"`
	WorkspaceID           string          `json:"workspaceId"`
	Params                AnalysisParams  `json:"params"`
	ContributionsChecksum string          `json:"contributionsChecksum"`
	ContractsChecksum     string          `json:"contractsChecksum"`
	AlertCount            int             `json:"alertCount"`
	SharedIdentities      int             `json:"sharedIdentities"`
	CreatedAt             time.Time       `json:"createdAt"`
	Result                *AnalysisResult `json:"result,omitempty"`
}
