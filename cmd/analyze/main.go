// Batch analysis of a contributions file against a folder of contract
// tables, without running the server.
//
// Usage:
//
//	go run ./cmd/analyze -contributions aportes.xlsx -contracts ./contratos -window 6
//
// This tool:
//  1. Reads the contributions workbook (sheet "BBDD" by default)
//  2. Reads every .xlsx/.csv file in the contracts folder, skipping unreadable ones
//  3. Prints the analysis summary
//  4. Writes alertas_contratos_<window>meses.csv to the output directory
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/rastreador/internal/analysis"
	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/ingest"
	"github.com/opensource-finance/rastreador/internal/report"
	"github.com/opensource-finance/rastreador/internal/rules"
	"github.com/opensource-finance/rastreador/internal/telemetry"
)

// options are the command-line inputs of one batch run.
type options struct {
	ContributionsPath string
	ContractsDir      string
	OutputDir         string
	Params            domain.AnalysisParams
	Analysis          domain.AnalysisConfig
	Unmasked          bool
}

func main() {
	configPath := flag.String("config", os.Getenv("RASTREADOR_CONFIG"), "Path to YAML config file")
	contributions := flag.String("contributions", "", "Path to the contributions file (.xlsx or .csv)")
	contracts := flag.String("contracts", "", "Folder holding the contract tables")
	outDir := flag.String("out", ".", "Directory for the alerts CSV")
	window := flag.Int("window", 0, "Window in months, 1-24 (default from config)")
	party := flag.String("party", domain.PartyAll, "Party filter")
	filter := flag.String("filter", "", "CEL expression evaluated against each alert")
	top := flag.Int("top", 0, "Number of suspects to list (default from config)")
	unmasked := flag.Bool("unmasked", false, "Write full identities to the CSV")
	flag.Parse()

	if *contributions == "" || *contracts == "" {
		fmt.Println("Usage: analyze -contributions aportes.xlsx -contracts ./contratos [-window 6]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := domain.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(telemetry.NewLogger(os.Stderr, cfg.Logging))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := options{
		ContributionsPath: *contributions,
		ContractsDir:      *contracts,
		OutputDir:         *outDir,
		Params: domain.AnalysisParams{
			WindowMonths: *window,
			PartyFilter:  *party,
			Filter:       *filter,
			TopSuspects:  *top,
		},
		Analysis: cfg.Analysis,
		Unmasked: *unmasked,
	}

	path, err := run(ctx, opts, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nAlerts written to %s\n", path)
}

// run loads both inputs, analyzes them, prints the summary to w and writes
// the alerts CSV. It returns the CSV path.
func run(ctx context.Context, opts options, w io.Writer) (string, error) {
	params := opts.Params
	if params.WindowMonths == 0 {
		params.WindowMonths = opts.Analysis.DefaultWindowMonths
	}
	if params.TopSuspects == 0 {
		params.TopSuspects = opts.Analysis.TopSuspects
	}
	if err := params.Validate(); err != nil {
		return "", err
	}

	contributions, err := ingest.LoadFile(opts.ContributionsPath, opts.Analysis.ContributionsSheet)
	if err != nil {
		return "", fmt.Errorf("contributions: %w", err)
	}
	fmt.Fprintf(w, "Loaded %d contribution rows from %s\n", contributions.Len(), opts.ContributionsPath)

	contracts, skipped, err := ingest.LoadFolder(opts.ContractsDir, opts.Analysis.ContractsSheet)
	if err != nil {
		return "", fmt.Errorf("contracts: %w", err)
	}
	for _, fe := range skipped {
		slog.Warn("skipping contracts file", "file", fe.File, "error", fe.Err)
	}
	if len(contracts) == 0 {
		return "", fmt.Errorf("contracts: no readable file in %s", opts.ContractsDir)
	}
	fmt.Fprintf(w, "Loaded %d contract rows from %d files\n\n", domain.CountRows(contracts), len(contracts))

	var engine *rules.Engine
	if params.Filter != "" {
		engine, err = rules.NewEngine(0)
		if err != nil {
			return "", err
		}
		defer engine.Close()
	}

	result, err := analysis.NewAnalyzer(engine, opts.Analysis.TopDonors).RunTables(ctx, &contributions, contracts, params)
	if err != nil {
		return "", err
	}

	mask := opts.Analysis.MaskIdentities && !opts.Unmasked
	if err := report.WriteSummary(w, result, mask); err != nil {
		return "", err
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(opts.OutputDir, report.FileName(params.WindowMonths))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := report.WriteAlertsCSV(f, result.Alerts, report.CSVOptions{MaskIdentities: mask}); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
