package spreadsheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/reconcile"
	"receipt-ledger/core/utils"
)

// ErrEmptyWorkbook is returned when the first sheet has no header row.
var ErrEmptyWorkbook = errors.New("workbook has no header row")

// HeaderError lists required headers the sheet lacks.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return "missing required headers: " + strings.Join(e.Missing, ", ")
}

// RequiredHeaders must all be present in the header row.
var RequiredHeaders = []string{
	ledger.FieldReceiptNumber,
	ledger.FieldStudentName,
	ledger.FieldClassName,
	ledger.FieldPaymentMode,
	ledger.FieldDate,
}

var aliases = map[string][]string{
	ledger.FieldReceiptNumber: {"receipt_no", "receiptnumber", "receiptno", "receipt"},
	ledger.FieldStudentName:   {"student", "name", "studentname"},
	ledger.FieldClassName:     {"class", "classname", "grade"},
	ledger.FieldPaymentMode:   {"payment", "paymentmode", "mode"},
	ledger.FieldDate:          {"receipt_date", "receiptdate", "payment_date"},
	ledger.FieldAnnualFee:     {"annual", "annualfee"},
	ledger.FieldTuitionFee:    {"tuition", "tuitionfee"},
	ledger.FieldKitBooksFee:   {"kit_books", "kitbooks", "kitbooksfee"},
	ledger.FieldActivityFee:   {"activity", "activityfee"},
	ledger.FieldUniformFee:    {"uniform", "uniformfee"},
}

var headerIndex = buildHeaderIndex()

func buildHeaderIndex() map[string]string {
	idx := map[string]string{ledger.FieldReceiptNumber: ledger.FieldReceiptNumber}
	for _, d := range ledger.TrackedFields {
		idx[d.Name] = d.Name
	}
	for field, names := range aliases {
		for _, name := range names {
			idx[utils.Snake(name)] = field
		}
	}
	return idx
}

// NormalizeHeader maps a raw header cell to a field name. ok is false for
// columns the ledger does not track.
func NormalizeHeader(raw string) (field string, ok bool) {
	field, ok = headerIndex[utils.Snake(raw)]
	return field, ok
}

// Parse reads the first sheet of an .xlsx workbook.
func Parse(r io.Reader) ([]reconcile.Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyWorkbook
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	defer rows.Close()

	var (
		columns map[int]string
		out     []reconcile.Row
		line    int
	)
	for rows.Next() {
		line++
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		if columns == nil {
			if isBlankRow(cells) {
				continue
			}
			if columns, err = mapHeaders(cells); err != nil {
				return nil, err
			}
			continue
		}
		if isBlankRow(cells) {
			continue
		}
		out = append(out, toRow(line, cells, columns))
	}
	if err := rows.Error(); err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if columns == nil {
		return nil, ErrEmptyWorkbook
	}
	return out, nil
}

func mapHeaders(cells []string) (map[int]string, error) {
	columns := make(map[int]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, cell := range cells {
		field, ok := NormalizeHeader(cell)
		if !ok || seen[field] {
			continue
		}
		columns[i] = field
		seen[field] = true
	}

	var missing []string
	for _, h := range RequiredHeaders {
		if !seen[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}
	return columns, nil
}

func toRow(line int, cells []string, columns map[int]string) reconcile.Row {
	values := make(map[string]any, len(columns))
	for i, field := range columns {
		if i >= len(cells) {
			continue
		}
		cell := strings.TrimSpace(cells[i])
		if cell == "" {
			continue
		}
		if field == ledger.FieldDate {
			if serial, err := strconv.ParseFloat(cell, 64); err == nil && serial > 0 && serial <= reconcile.MaxExcelSerial {
				if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
					values[field] = t
					continue
				}
			}
		}
		values[field] = cell
	}
	return reconcile.Row{Line: line, Values: values}
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
