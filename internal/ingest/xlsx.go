package ingest

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/rastreador/internal/domain"
	"github.com/opensource-finance/rastreador/internal/normalize"
)

// ReadXLSX parses one worksheet of a workbook. The sheet is matched by name
// ignoring case and accents; when it is empty or absent the first sheet is
// used. Cells are read raw, so dates arrive as serial day numbers and
// identities without display formatting.
func ReadXLSX(r io.Reader, name, sheet string) (domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: open workbook: %w", ErrUnreadable, err)
	}
	defer f.Close()

	target := pickSheet(f.GetSheetList(), sheet)
	if target == "" {
		return domain.Table{}, ErrEmptyTable
	}

	rows, err := f.GetRows(target, excelize.Options{RawCellValue: true})
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: read sheet %q: %w", ErrUnreadable, target, err)
	}
	return newTable(name, rows)
}

func pickSheet(sheets []string, want string) string {
	if len(sheets) == 0 {
		return ""
	}
	if want != "" {
		w := normalize.FoldHeader(want)
		for _, s := range sheets {
			if normalize.FoldHeader(s) == w {
				return s
			}
		}
	}
	return sheets[0]
}
