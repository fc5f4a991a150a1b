package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/finishline/internal/model"
)

var workbookHeader = []any{"Place", "Position", "Bib", "Elapsed", "Time of day", "Scan", "Confirmed"}

// WriteWorkbook writes an XLSX snapshot of every result in the context,
// confirmed or not, in place order. scans maps scan IDs to bib numbers.
func WriteWorkbook(w io.Writer, c model.Context, results []model.Result, scans map[int64]string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(c.Name)
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, workbookHeader); err != nil {
		return err
	}
	for i, r := range results {
		scan := ""
		switch {
		case r.HasScan():
			scan = scans[r.ScanID]
		case r.IsHole():
			scan = "-"
		}
		row := []any{
			r.Place,
			r.DevicePosition,
			r.BibNumber,
			model.FormatElapsed(r.Time),
			model.FormatTimeOfDay(c.StartOffset + r.Time),
			scan,
			r.Confirmed,
		}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName maps a context name onto the characters and length Excel
// accepts for a worksheet.
func sheetName(name string) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if r := []rune(name); len(r) > 31 {
		name = string(r[:31])
	}
	if name == "" {
		return "Results"
	}
	return name
}

func setRow(f *excelize.File, sheet string, n int, cells []any) error {
	axis, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, axis, &cells); err != nil {
		return fmt.Errorf("set row %d: %w", n, err)
	}
	return nil
}
