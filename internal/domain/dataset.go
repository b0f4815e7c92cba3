package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DatasetKind distinguishes the two inputs of the analysis.
type DatasetKind string

const (
	KindContributions DatasetKind = "contributions"
	KindContracts     DatasetKind = "contracts"
)

// Valid reports whether k is a known kind.
func (k DatasetKind) Valid() bool {
	return k == KindContributions || k == KindContracts
}

// Dataset is an uploaded input. It is replaced wholesale, never mutated.
// Contracts may span several source tables; contributions use exactly one.
type Dataset struct {
	ID          string      `json:"id"`
	WorkspaceID string      `json:"workspaceId"`
	Kind        DatasetKind `json:"kind"`
	Tables      []Table     `json:"tables,omitempty"`
	Checksum    string      `json:"checksum"`
	RowCount    int         `json:"rowCount"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Checksum hashes table names, headers and cells. Two uploads with the same
// content produce the same checksum regardless of upload time.
func Checksum(tables []Table) string {
	h := sha256.New()
	sep := []byte{0}
	for _, t := range tables {
		h.Write([]byte(t.Name))
		h.Write(sep)
		for _, c := range t.Columns {
			h.Write([]byte(c))
			h.Write(sep)
		}
		for _, row := range t.Rows {
			for _, cell := range row {
				h.Write([]byte(cell))
				h.Write(sep)
			}
			h.Write([]byte{'\n'})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CountRows sums the data rows of tables.
func CountRows(tables []Table) int {
	n := 0
	for i := range tables {
		n += tables[i].Len()
	}
	return n
}
