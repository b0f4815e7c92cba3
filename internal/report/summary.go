package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/opensource-finance/rastreador/internal/domain"
)

// WriteSummary prints a plain-text digest of result: identity overview,
// alert statistics, ranked suspects and concentration bands.
func WriteSummary(w io.Writer, result *domain.AnalysisResult, mask bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	o := result.Overview
	fmt.Fprintf(tw, "Window\t%d months\n", result.Params.WindowMonths)
	fmt.Fprintf(tw, "Contracts\t%d\n", o.Contracts)
	fmt.Fprintf(tw, "Providers\t%d\n", o.ContractIdentities)
	fmt.Fprintf(tw, "Donors\t%d\n", o.ContributionIdentities)
	fmt.Fprintf(tw, "Shared identities\t%d\n", o.SharedIdentities)
	fmt.Fprintln(tw)

	s := result.Summary
	fmt.Fprintf(tw, "Alerts\t%d (%d pairs)\n", s.Alerts, s.Pairs)
	if s.Pairs > 0 {
		fmt.Fprintf(tw, "Min elapsed days\t%d\n", s.MinElapsedDays)
		fmt.Fprintf(tw, "Mean elapsed days\t%.1f\n", s.MeanElapsedDays)
		fmt.Fprintf(tw, "Donations before contract\t%d\n", s.DonationsBefore)
		fmt.Fprintf(tw, "Total amount\t%s\n", s.TotalAmount.StringFixed(0))
	}

	if len(result.Suspects) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Suspect\tScore\tLevel\tAlerted/Total\tAmount")
		for _, sp := range result.Suspects {
			id := sp.Identity
			if mask {
				id = MaskIdentity(id)
			}
			fmt.Fprintf(tw, "%s\t%.1f%%\t%s\t%d/%d\t%s\n",
				id, sp.Score, sp.Level, sp.AlertContracts, sp.TotalContracts, sp.TotalAmount.StringFixed(0))
		}
	}

	if result.Concentration.TotalContracts > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Band\tProviders\tContracts\tShare")
		for _, b := range result.Concentration.Bands {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\n", b.Label, b.Identities, b.Contracts, b.Percentage)
		}
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(tw, "warning: %s\n", warn)
	}
	return tw.Flush()
}
