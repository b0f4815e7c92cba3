package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/opensource-finance/rastreador/internal/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ReadCSV parses a delimited text table. A UTF-8 byte order mark is
// skipped and the delimiter (',' or ';') is chosen from the header line.
func ReadCSV(r io.Reader, name string) (domain.Table, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		br.Discard(len(utf8BOM))
	}

	line, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return domain.Table{}, fmt.Errorf("%w: read csv: %w", ErrUnreadable, err)
	}

	reader := csv.NewReader(br)
	reader.Comma = sniffDelimiter(line)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return domain.Table{}, fmt.Errorf("%w: read csv: %w", ErrUnreadable, err)
	}
	return newTable(name, records)
}

// sniffDelimiter picks ';' when the first line has more semicolons than
// commas.
func sniffDelimiter(sample []byte) rune {
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}
	if bytes.Count(sample, []byte{';'}) > bytes.Count(sample, []byte{','}) {
		return ';'
	}
	return ','
}
