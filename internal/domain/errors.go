package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWindow is returned when window_months is outside 1..24.
	ErrInvalidWindow = errors.New("window months must be between 1 and 24")

	// ErrDatasetMissing is returned when an analysis is requested before
	// both datasets have been loaded into a workspace.
	ErrDatasetMissing = errors.New("dataset not loaded")
)

// ColumnRole names the canonical field a source column is mapped to.
type ColumnRole string

const (
	RoleIdentity ColumnRole = "identity"
	RoleDate     ColumnRole = "date"
	RoleNumber   ColumnRole = "number"
	RoleAmount   ColumnRole = "amount"
	RoleParty    ColumnRole = "party"
	RoleName     ColumnRole = "name"
	RoleType     ColumnRole = "type"
)

// MissingColumnError reports that a required column could not be located
// in a source table. The table is skipped; other tables stay usable.
type MissingColumnError struct {
	Table   string     `json:"table"`
	Role    ColumnRole `json:"role"`
	Columns []string   `json:"columns,omitempty"`
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("table %q: no %s column found among %d columns", e.Table, e.Role, len(e.Columns))
}
