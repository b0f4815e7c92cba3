// Package ingest reads spreadsheet and CSV sources into raw tables.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opensource-finance/rastreador/internal/domain"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyTable        = errors.New("table has no header row")

	// ErrUnreadable wraps parse failures of a corrupt or truncated file.
	ErrUnreadable = errors.New("unreadable file")
)

// Format is a supported source file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// FormatOf infers the format from a file name extension.
func FormatOf(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

// Read parses r according to the extension of name. For workbooks, sheet
// selects the worksheet (see ReadXLSX).
func Read(r io.Reader, name, sheet string) (domain.Table, error) {
	format, err := FormatOf(name)
	if err != nil {
		return domain.Table{}, err
	}
	switch format {
	case FormatXLSX:
		return ReadXLSX(r, name, sheet)
	default:
		return ReadCSV(r, name)
	}
}

// LoadFile opens and parses a single file.
func LoadFile(path, sheet string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, err
	}
	defer f.Close()

	t, err := Read(f, filepath.Base(path), sheet)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// FileError records a file that LoadFolder skipped.
type FileError struct {
	File string `json:"file"`
	Err  error  `json:"-"`
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// LoadFolder parses every supported file directly inside dir, in name
// order. Files that fail to parse are skipped and reported; they never
// abort the load. Office lock files ("~$...") are ignored.
func LoadFolder(dir, sheet string) ([]domain.Table, []*FileError, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("read folder %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") {
			continue
		}
		if _, err := FormatOf(e.Name()); err != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var tables []domain.Table
	var skipped []*FileError
	for _, name := range names {
		t, err := LoadFile(filepath.Join(dir, name), sheet)
		if err != nil {
			skipped = append(skipped, &FileError{File: name, Err: err})
			continue
		}
		tables = append(tables, t)
	}
	return tables, skipped, nil
}

// newTable builds a table from raw rows. The first row with any non-empty
// cell is the header; fully empty rows are dropped.
func newTable(name string, rows [][]string) (domain.Table, error) {
	t := domain.Table{Name: name}
	for _, row := range rows {
		if isBlank(row) {
			continue
		}
		if t.Columns == nil {
			t.Columns = trimAll(row)
			continue
		}
		t.Rows = append(t.Rows, row)
	}
	if t.Columns == nil {
		return t, ErrEmptyTable
	}
	return t, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
