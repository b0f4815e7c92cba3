// Package report renders analysis results for download and display.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-finance/rastreador/internal/domain"
)

const dateLayout = "2006-01-02"

// AlertColumns is the header row of the alerts CSV.
var AlertColumns = []string{
	"identidad",
	"numero_contrato",
	"fecha_contrato",
	"anio_contrato",
	"dias_diferencia",
	"cantidad_aportes",
	"partidos",
	"monto_total",
	"primer_aporte",
	"ultimo_aporte",
}

// CSVOptions controls the alerts CSV.
type CSVOptions struct {
	// MaskIdentities replaces identities with their masked display form.
	MaskIdentities bool
}

// FileName returns the download name for an alerts CSV.
func FileName(windowMonths int) string {
	return fmt.Sprintf("alertas_contratos_%dmeses.csv", windowMonths)
}

// MaskIdentity keeps the first three characters of id followed by "***".
func MaskIdentity(id string) string {
	if len(id) <= 3 {
		return id + "***"
	}
	return id[:3] + "***"
}

// WriteAlertsCSV writes one row per alert with a header row.
func WriteAlertsCSV(w io.Writer, alerts []domain.Alert, opts CSVOptions) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AlertColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i := range alerts {
		a := &alerts[i]
		id := a.Identity
		if opts.MaskIdentities {
			id = MaskIdentity(id)
		}
		record := []string{
			id,
			a.ContractNumber,
			a.ContractDate.Format(dateLayout),
			strconv.Itoa(a.ContractYear),
			strconv.Itoa(a.MinElapsedDays),
			strconv.Itoa(a.ContributionCount),
			strings.Join(a.Parties, "; "),
			a.TotalAmount.StringFixed(2),
			a.FirstContribution.Format(dateLayout),
			a.LastContribution.Format(dateLayout),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write alert %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
