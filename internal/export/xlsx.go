package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mtlprog/investdash/internal/valuation"
)

const (
	holdingsSheet = "Holdings"
	totalsSheet   = "By type"
	historySheet  = "History"
)

// Workbook builds an XLSX workbook with holdings, per-type totals and, when
// present, the history series.
func Workbook(d valuation.Dashboard, at time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", holdingsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("renaming sheet: %w", err)
	}
	if err := writeSheet(f, holdingsSheet, holdingRows(d)); err != nil {
		f.Close()
		return nil, err
	}

	if _, err := f.NewSheet(totalsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("creating %s sheet: %w", totalsSheet, err)
	}
	if err := writeSheet(f, totalsSheet, totalRows(d)); err != nil {
		f.Close()
		return nil, err
	}

	if d.History != nil {
		if _, err := f.NewSheet(historySheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("creating %s sheet: %w", historySheet, err)
		}
		if err := writeSheet(f, historySheet, historyRows(*d.History)); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Portfolio " + at.UTC().Format("2006-01-02"),
		Creator: "investdash",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("setting document properties: %w", err)
	}
	return f, nil
}

// WriteXLSX streams the workbook of d to w.
func WriteXLSX(w io.Writer, d valuation.Dashboard, at time.Time) error {
	f, err := Workbook(d, at)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("addressing %s row %d: %w", sheet, i+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	if len(rows) > 0 {
		last, err := excelize.CoordinatesToCellName(max(len(rows[0]), 1), 1)
		if err != nil {
			return fmt.Errorf("addressing %s header: %w", sheet, err)
		}
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return fmt.Errorf("styling %s header: %w", sheet, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freezing %s header: %w", sheet, err)
	}
	return nil
}
