// Package spreadsheet reads import workbooks into typed rows.
package spreadsheet

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/odyssey-import/internal/platform/httpx"
)

// ErrUnreadableFile is returned when the upload is not a readable workbook.
var ErrUnreadableFile = fmt.Errorf("spreadsheet: unreadable workbook: %w", httpx.ErrValidation)

// Column positions of the import layout.
const (
	ColReference = iota
	ColQuantity
	ColUnitPrice
	ColDate
)

// ContentType is the media type of xlsx workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Headers is the header row of the import template.
var Headers = []string{"Reference", "Quantity", "Unit Price", "Date"}

// dateLayouts are accepted for date cells stored as text.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "02/01/2006", "2006/01/02"}

// Row is one data row of the first sheet. Index is the 1-based sheet row.
// A row with ParseError set must not be acted upon.
type Row struct {
	Index      int
	Reference  string
	Quantity   decimal.Decimal
	UnitPrice  *decimal.Decimal
	Date       *time.Time
	ParseError string
}

// Parse reads the first sheet of an xlsx workbook, skipping the header row
// and fully blank rows.
func Parse(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("%w: no sheets", ErrUnreadableFile)
	}
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, err)
	}
	if len(raw) < 2 {
		return []Row{}, nil
	}

	rows := make([]Row, 0, len(raw)-1)
	for i, cells := range raw[1:] {
		if blank(cells) {
			continue
		}
		rows = append(rows, parseRow(i+2, cells))
	}
	return rows, nil
}

func parseRow(index int, cells []string) Row {
	row := Row{Index: index, Reference: strings.TrimSpace(cell(cells, ColReference)), Quantity: decimal.Zero}
	var problems []string

	if v := cell(cells, ColQuantity); v != "" {
		q, err := decimal.NewFromString(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid quantity %q", v))
		} else {
			row.Quantity = q
		}
	}
	if v := cell(cells, ColUnitPrice); v != "" {
		p, err := decimal.NewFromString(v)
		if err != nil {
			problems = append(problems, fmt.Sprintf("invalid unit price %q", v))
		} else {
			row.UnitPrice = &p
		}
	}
	if v := cell(cells, ColDate); v != "" {
		d, err := ParseDate(v)
		if err != nil {
			problems = append(problems, err.Error())
		} else {
			row.Date = &d
		}
	}
	row.ParseError = strings.Join(problems, "; ")
	return row
}

// ParseDate accepts an Excel serial date or one of the supported text layouts.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if serial, err := strconv.ParseFloat(v, 64); err == nil {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", v)
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", v)
}

// Template renders an empty import workbook carrying the given headers.
func Template(headers []string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, h := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, col+"1", h); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheet, col+"1", col+"1", bold); err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, col, col, 18); err != nil {
			return nil, err
		}
	}
	return f.WriteToBuffer()
}

func cell(cells []string, idx int) string {
	if idx >= len(cells) {
		return ""
	}
	return strings.TrimSpace(cells[idx])
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ServeTemplate writes an empty workbook with the given header row as a
// download named filename. Only workbook construction errors are returned;
// once the header is written the response belongs to the client.
func ServeTemplate(w http.ResponseWriter, filename string, headers []string) error {
	buf, err := Template(headers)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	return nil
}
