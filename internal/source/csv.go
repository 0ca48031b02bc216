package source

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// ReadEntitiesCSV reads a CSV and returns the values of the named
// column, in row order. The column match is case-insensitive.
//
// Input bytes that are not valid UTF-8 are re-decoded as Latin-1 before
// parsing; exported tables frequently arrive in that encoding.
func ReadEntitiesCSV(r io.Reader, column string) ([]string, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return nil, fmt.Errorf("entity column is required")
	}

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if !utf8.Valid(b) {
		decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(b), charmap.ISO8859_1.NewDecoder()))
		if err != nil {
			return nil, fmt.Errorf("decode latin-1 input: %w", err)
		}
		b = decoded
	}

	cr := csv.NewReader(bytes.NewReader(b))
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	colIdx := -1
	for i, col := range header {
		if strings.EqualFold(strings.TrimSpace(col), column) {
			colIdx = i
			break
		}
	}
	if colIdx < 0 {
		return nil, fmt.Errorf("missing required column %q", column)
	}

	var entities []string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if colIdx >= len(rec) {
			return nil, fmt.Errorf("row has %d columns, want at least %d", len(rec), colIdx+1)
		}
		entities = append(entities, rec[colIdx])
	}
	return entities, nil
}
