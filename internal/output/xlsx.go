package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ErrNoSheets is returned when a workbook would be empty.
var ErrNoSheets = errors.New("workbook has no sheets")

// Sheet is one worksheet of an exported workbook. Row values keep their Go
// type so numbers stay numeric in the spreadsheet.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// Workbook is implemented by results that can be exported as spreadsheets.
type Workbook interface {
	Sheets() []Sheet
}

// WriteXLSX writes sheets to path. The file is written to a temporary file
// next to path and renamed into place.
func WriteXLSX(path string, sheets []Sheet) error {
	if len(sheets) == 0 {
		return ErrNoSheets
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, sh := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.Name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", sh.Name, err)
			}
		} else if _, err := f.NewSheet(sh.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sh.Name, err)
		}

		if err := writeSheet(f, sh); err != nil {
			return err
		}
	}

	return saveAtomic(f, path)
}

func writeSheet(f *excelize.File, sh Sheet) error {
	row := 1
	if len(sh.Header) > 0 {
		header := make([]any, len(sh.Header))
		for i, h := range sh.Header {
			header[i] = h
		}
		if err := setRow(f, sh.Name, row, header); err != nil {
			return err
		}
		if err := f.SetPanes(sh.Name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header of %s: %w", sh.Name, err)
		}
		row++
	}
	for _, values := range sh.Rows {
		if err := setRow(f, sh.Name, row, values); err != nil {
			return err
		}
		row++
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("invalid row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s!%s: %w", sheet, cell, err)
	}
	return nil
}

// saveAtomic saves the workbook using temp file + rename, so an
// interrupted export never leaves a truncated file behind.
func saveAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tmpPath := filepath.Join(dir, filepath.Base(path)+".tmp")
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file %s: %w", tmpPath, err)
	}

	if err := f.Write(tmpFile); err != nil {
		tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
