package reconcile

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"receipt-ledger/core/ledger"
	"receipt-ledger/core/utils"
)

// ValidationError rejects a single record. The batch carries on without it.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Row is one externally parsed input row, already keyed by field name.
// Values may be strings, numbers, time.Time, decimal.Decimal or nil.
type Row struct {
	// Line is the source line (spreadsheet row number), zero when unknown.
	Line   int
	Values map[string]any
}

// Record is the canonical, typed form of a Row.
type Record struct {
	Line       int
	Identifier string
	Fields     ledger.Fields
}

// MaxExcelSerial is the Excel serial number of 9999-12-31.
const MaxExcelSerial = 2958465

// Accepted textual date layouts, tried in order.
var dateLayouts = []string{ledger.DateLayout, "02/01/2006"}

var paymentAliases = map[string]ledger.PaymentMode{
	"check":       ledger.PaymentCheque,
	"bank":        ledger.PaymentBankTransfer,
	"neft":        ledger.PaymentBankTransfer,
	"rtgs":        ledger.PaymentBankTransfer,
	"imps":        ledger.PaymentBankTransfer,
	"gpay":        ledger.PaymentUPI,
	"googlepay":   ledger.PaymentUPI,
	"phonepe":     ledger.PaymentUPI,
	"credit":      ledger.PaymentCard,
	"debit":       ledger.PaymentCard,
	"credit_card": ledger.PaymentCard,
	"debit_card":  ledger.PaymentCard,
	"others":      ledger.PaymentOther,
}

var currencyCleaner = strings.NewReplacer(",", "", "₹", "", "$", "", " ", "")

// Normalize converts a row into a canonical record. It has no side effects.
func Normalize(row Row) (Record, error) {
	rec := Record{Line: row.Line}

	id, err := requiredText(row.Values, ledger.FieldReceiptNumber, ledger.MaxIdentifierLength)
	if err != nil {
		return rec, err
	}
	rec.Identifier = id

	if rec.Fields.StudentName, err = requiredText(row.Values, ledger.FieldStudentName, ledger.MaxStudentNameLength); err != nil {
		return rec, err
	}
	if rec.Fields.ClassName, err = requiredText(row.Values, ledger.FieldClassName, ledger.MaxClassNameLength); err != nil {
		return rec, err
	}

	mode, err := requiredText(row.Values, ledger.FieldPaymentMode, 0)
	if err != nil {
		return rec, err
	}
	if rec.Fields.PaymentMode, err = ParsePaymentMode(mode); err != nil {
		return rec, err
	}

	rawDate, ok := row.Values[ledger.FieldDate]
	if !ok || isBlank(rawDate) {
		return rec, invalid(ledger.FieldDate, "is required")
	}
	if rec.Fields.Date, err = ParseDate(rawDate); err != nil {
		return rec, err
	}

	for _, d := range ledger.TrackedFields {
		if d.Kind != ledger.KindMoney {
			continue
		}
		amount, err := ParseMoney(d.Name, row.Values[d.Name])
		if err != nil {
			return rec, err
		}
		d.SetMoney(&rec.Fields, amount)
	}
	return rec, nil
}

// requiredText returns the trimmed text of a field. maxLen of zero skips the
// length check.
func requiredText(values map[string]any, field string, maxLen int) (string, error) {
	raw, ok := values[field]
	if !ok || isBlank(raw) {
		return "", invalid(field, "is required")
	}
	s := strings.TrimSpace(utils.ToString(raw))
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", invalid(field, "must be at most %d characters", maxLen)
	}
	return s, nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ParsePaymentMode folds spelling variants into the closed set of payment modes.
func ParsePaymentMode(raw string) (ledger.PaymentMode, error) {
	key := utils.Snake(raw)

	if m := ledger.PaymentMode(key); m.IsValid() {
		return m, nil
	}
	if m, ok := paymentAliases[key]; ok {
		return m, nil
	}
	return "", invalid(ledger.FieldPaymentMode, "%q is not one of cash, cheque, bank_transfer, upi, card, other", raw)
}

// ParseDate accepts YYYY-MM-DD, DD/MM/YYYY, a time.Time or an Excel serial number.
func ParseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return ledger.CivilDate(v), nil
	case float64, float32, int, int64, int32:
		serial := float64(utils.ToInt(v))
		if f, ok := v.(float64); ok {
			serial = f
		}
		if serial <= 0 || serial > MaxExcelSerial || math.IsNaN(serial) {
			return time.Time{}, invalid(ledger.FieldDate, "%v is not a valid date", raw)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, invalid(ledger.FieldDate, "%v is not a valid date", raw)
		}
		return ledger.CivilDate(t), nil
	}

	s := strings.TrimSpace(utils.ToString(raw))
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid(ledger.FieldDate, "%q is not a valid date (use YYYY-MM-DD or DD/MM/YYYY)", s)
}

// ParseMoney coerces a fee to a non-negative amount with two decimal places,
// at most ledger.MaxMoney. A missing or blank value is zero.
func ParseMoney(field string, raw any) (decimal.Decimal, error) {
	var amount decimal.Decimal
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		amount = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero, invalid(field, "is not a number")
		}
		amount = decimal.NewFromFloat(v)
	case float32:
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, invalid(field, "is not a number")
		}
		amount = decimal.NewFromFloat32(v)
	case int, int64, int32:
		amount = decimal.NewFromInt(int64(utils.ToInt(v)))
	default:
		s := currencyCleaner.Replace(strings.TrimSpace(utils.ToString(v)))
		if s == "" {
			return decimal.Zero, nil
		}
		parsed, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, invalid(field, "%q is not a number", utils.ToString(v))
		}
		amount = parsed
	}
	if amount.IsNegative() {
		return decimal.Zero, invalid(field, "must not be negative")
	}
	amount = amount.Round(ledger.MoneyPlaces)
	if amount.GreaterThan(ledger.MaxMoney) {
		return decimal.Zero, invalid(field, "must not exceed %s", ledger.FormatMoney(ledger.MaxMoney))
	}
	return amount, nil
}

type normalized struct {
	record Record
	err    error
}

// normalizeAll normalizes rows with a fixed pool of workers. Results keep input order.
func normalizeAll(ctx context.Context, rows []Row, workers int) []normalized {
	out := make([]normalized, len(rows))
	if len(rows) == 0 {
		return out
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	indexCh := make(chan int, len(rows))
	for i := range rows {
		indexCh <- i
	}
	close(indexCh)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range indexCh {
				if ctx.Err() != nil {
					out[i] = normalized{err: ctx.Err()}
					continue
				}
				rec, err := Normalize(rows[i])
				out[i] = normalized{record: rec, err: err}
			}
		}()
	}
	wg.Wait()
	return out
}
