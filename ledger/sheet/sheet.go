// Package sheet encodes a ledger to the xlsx table format used for storage,
// export, and backup, and decodes it back.
//
// Layout: sheet "Посты", header row №/Ссылка/Статус/Дата добавления, data
// rows from row 2. Link cells are hyperlinked; timestamps use
// ledger.TimeFormat.
package sheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"postledger/ledger"
)

// Name is the single worksheet holding the ledger table.
const Name = "Посты"

var headers = [4]string{"№", "Ссылка", "Статус", "Дата добавления"}

var columnWidths = map[string]float64{
	"A": 8,
	"B": 60,
	"C": 30,
	"D": 22,
}

func thinBorders() []excelize.Border {
	sides := []string{"left", "right", "top", "bottom"}
	borders := make([]excelize.Border, 0, len(sides))
	for _, s := range sides {
		borders = append(borders, excelize.Border{Type: s, Color: "000000", Style: 1})
	}
	return borders
}

// Encode builds a styled workbook from the records. The caller owns the
// returned file and must Close it.
func Encode(records []ledger.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", Name); err != nil {
		return nil, fmt.Errorf("sheet: rename: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 12},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("sheet: header style: %w", err)
	}
	centerStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("sheet: cell style: %w", err)
	}
	linkStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Color: "0563C1", Underline: "single"},
		Border: thinBorders(),
	})
	if err != nil {
		return nil, fmt.Errorf("sheet: link style: %w", err)
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(Name, cell, h); err != nil {
			return nil, fmt.Errorf("sheet: header: %w", err)
		}
	}
	if err := f.SetCellStyle(Name, "A1", "D1", headerStyle); err != nil {
		return nil, fmt.Errorf("sheet: header style apply: %w", err)
	}
	for col, width := range columnWidths {
		if err := f.SetColWidth(Name, col, col, width); err != nil {
			return nil, fmt.Errorf("sheet: column width: %w", err)
		}
	}

	for i, rec := range records {
		row := i + 2
		if err := f.SetCellValue(Name, fmt.Sprintf("A%d", row), rec.Number); err != nil {
			return nil, fmt.Errorf("sheet: row %d: %w", row, err)
		}
		if err := f.SetCellValue(Name, fmt.Sprintf("B%d", row), rec.Link); err != nil {
			return nil, fmt.Errorf("sheet: row %d: %w", row, err)
		}
		if err := f.SetCellHyperLink(Name, fmt.Sprintf("B%d", row), rec.Link, "External"); err != nil {
			return nil, fmt.Errorf("sheet: row %d hyperlink: %w", row, err)
		}
		if err := f.SetCellValue(Name, fmt.Sprintf("C%d", row), rec.Status); err != nil {
			return nil, fmt.Errorf("sheet: row %d: %w", row, err)
		}
		if err := f.SetCellValue(Name, fmt.Sprintf("D%d", row), rec.AddedAt.Format(ledger.TimeFormat)); err != nil {
			return nil, fmt.Errorf("sheet: row %d: %w", row, err)
		}
		_ = f.SetCellStyle(Name, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), centerStyle)
		_ = f.SetCellStyle(Name, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), linkStyle)
		_ = f.SetCellStyle(Name, fmt.Sprintf("C%d", row), fmt.Sprintf("D%d", row), centerStyle)
	}

	return f, nil
}

// Decode reads a workbook produced by Encode and returns its records in
// table order. Record numbers are taken from the table as-is; stores validate
// contiguity separately.
func Decode(r io.Reader) ([]ledger.Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("sheet: open: %w", err)
	}
	defer f.Close()
	return decodeRows(f)
}

func decodeRows(f *excelize.File) ([]ledger.Record, error) {
	rows, err := f.GetRows(Name)
	if err != nil {
		return nil, fmt.Errorf("sheet: rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	records := make([]ledger.Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, ok, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("sheet: row %d: %w", i+2, err)
		}
		if ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func decodeRow(row []string) (ledger.Record, bool, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	link := cell(1)
	if link == "" {
		// Trailing empty row; skip.
		return ledger.Record{}, false, nil
	}

	num, err := strconv.Atoi(cell(0))
	if err != nil {
		return ledger.Record{}, false, fmt.Errorf("bad sequence number %q", cell(0))
	}

	rec := ledger.Record{
		Number: num,
		Link:   link,
		Status: cell(2),
	}
	if raw := cell(3); raw != "" {
		ts, err := time.ParseInLocation(ledger.TimeFormat, raw, time.Local)
		if err != nil {
			return ledger.Record{}, false, fmt.Errorf("bad timestamp %q", raw)
		}
		rec.AddedAt = ts
	}
	return rec, true, nil
}
