package domain

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// DecodeCSV reads a FIRMS CSV body into a RawBatch. The first record is the
// header. A body with no header at all, or malformed CSV, is an ErrDataFetch.
func DecodeCSV(r io.Reader) (RawBatch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return RawBatch{}, fmt.Errorf("%w: no columns to parse", ErrDataFetch)
	}
	if err != nil {
		return RawBatch{}, fmt.Errorf("%w: read csv header: %w", ErrDataFetch, err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return RawBatch{}, fmt.Errorf("%w: read csv row %d: %w", ErrDataFetch, len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	return RawBatch{Columns: columns, Rows: rows}, nil
}
