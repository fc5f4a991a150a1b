package score

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/finishline/internal/model"
)

// Parser reads an expected-results file.
type Parser interface {
	Parse(data []byte) ([]Expected, error)
}

// ParserFor picks a parser by file extension.
func ParserFor(filename string) (Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		return CSVParser{}, nil
	case ".xlsx":
		return XLSXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported expected results file type %q: use .csv or .xlsx", ext)
	}
}

// CSVParser reads expected results from CSV with a header row naming at
// least order, time, and bibno. An epsilon column is optional.
type CSVParser struct{}

// Parse implements Parser.
func (CSVParser) Parse(data []byte) ([]Expected, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		rows = append(rows, rec)
	}
	return expectedFromRows(rows)
}

// XLSXParser reads expected results from the first sheet of a workbook,
// laid out like the CSV form.
type XLSXParser struct{}

// Parse implements Parser.
func (XLSXParser) Parse(data []byte) ([]Expected, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("XLSX file has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return expectedFromRows(rows)
}

func expectedFromRows(rows [][]string) ([]Expected, error) {
	if len(rows) == 0 {
		return nil, errors.New("expected results file is empty")
	}
	cols := map[string]int{}
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"order", "time", "bibno"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing required column %q", required)
		}
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := []Expected{}
	for n, row := range rows[1:] {
		line := n + 2
		if len(strings.TrimSpace(strings.Join(row, ""))) == 0 {
			continue
		}
		order, err := strconv.Atoi(cell(row, "order"))
		if err != nil {
			return nil, fmt.Errorf("line %d: order %q is not a number", line, cell(row, "order"))
		}
		t, err := model.ParseElapsed(cell(row, "time"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bib, err := model.ParseScan(cell(row, "bibno"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var eps float64
		if s := cell(row, "epsilon"); s != "" {
			if eps, err = strconv.ParseFloat(s, 64); err != nil || eps < 0 {
				return nil, fmt.Errorf("line %d: epsilon %q must be a non-negative number", line, s)
			}
		}
		out = append(out, Expected{Order: order, Bib: bib, Time: t, Epsilon: eps})
	}
	return out, nil
}
