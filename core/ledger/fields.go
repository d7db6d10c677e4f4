package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMode is one of the closed set of accepted payment modes.
type PaymentMode string

const (
	PaymentCash         PaymentMode = "cash"
	PaymentCheque       PaymentMode = "cheque"
	PaymentBankTransfer PaymentMode = "bank_transfer"
	PaymentUPI          PaymentMode = "upi"
	PaymentCard         PaymentMode = "card"
	PaymentOther        PaymentMode = "other"
)

// PaymentModes lists every accepted payment mode.
var PaymentModes = []PaymentMode{
	PaymentCash, PaymentCheque, PaymentBankTransfer, PaymentUPI, PaymentCard, PaymentOther,
}

// IsValid reports whether m belongs to the closed set.
func (m PaymentMode) IsValid() bool {
	for _, candidate := range PaymentModes {
		if m == candidate {
			return true
		}
	}
	return false
}

// Field names as they appear in spreadsheets, audit entries and the API.
const (
	FieldReceiptNumber = "receipt_number"
	FieldStudentName   = "student_name"
	FieldClassName     = "class_name"
	FieldPaymentMode   = "payment_mode"
	FieldDate          = "date"
	FieldAnnualFee     = "annual_fee"
	FieldTuitionFee    = "tuition_fee"
	FieldKitBooksFee   = "kit_books_fee"
	FieldActivityFee   = "activity_fee"
	FieldUniformFee    = "uniform_fee"
)

// DateLayout is the canonical textual form of a receipt date.
const DateLayout = "2006-01-02"

// MoneyPlaces is the fixed precision of every monetary amount.
const MoneyPlaces = 2

// Storage limits of receipt data, in characters and digits. The SQL schema
// declares the same sizes.
const (
	MaxIdentifierLength  = 64
	MaxStudentNameLength = 255
	MaxClassNameLength   = 64
	MaxPaymentModeLength = 32
	MaxActorLength       = 128
	MaxLabelLength       = 255

	// MoneyDigits is the total number of digits of an amount, decimals included.
	MoneyDigits = 12
)

// MaxMoney is the largest amount that fits MoneyDigits at MoneyPlaces.
var MaxMoney = decimal.New(1, MoneyDigits-MoneyPlaces).Sub(decimal.New(1, -MoneyPlaces))

// FieldKind selects the comparison rule of a tracked field.
type FieldKind int

const (
	// KindText compares with exact string equality (no case folding).
	KindText FieldKind = iota
	// KindDate compares calendar dates.
	KindDate
	// KindMoney compares exact numeric values at the stored precision.
	KindMoney
)

// FieldDescriptor describes one tracked field.
type FieldDescriptor struct {
	Name     string
	Kind     FieldKind
	Required bool

	// MaxLength bounds text fields. Zero for other kinds.
	MaxLength int

	text  func(*Fields) *string
	date  func(*Fields) *time.Time
	money func(*Fields) *decimal.Decimal
}

// Equal applies the field's comparison rule to a and b.
func (d FieldDescriptor) Equal(a, b *Fields) bool {
	switch d.Kind {
	case KindDate:
		return SameDate(*d.date(a), *d.date(b))
	case KindMoney:
		return d.money(a).Round(MoneyPlaces).Equal(d.money(b).Round(MoneyPlaces))
	default:
		return *d.text(a) == *d.text(b)
	}
}

// Format renders the field value of f as stored in audit entries.
func (d FieldDescriptor) Format(f *Fields) string {
	switch d.Kind {
	case KindDate:
		return FormatDate(*d.date(f))
	case KindMoney:
		return FormatMoney(*d.money(f))
	default:
		return *d.text(f)
	}
}

// Copy sets the field of dst to the value it has in src.
func (d FieldDescriptor) Copy(dst, src *Fields) {
	switch d.Kind {
	case KindDate:
		*d.date(dst) = *d.date(src)
	case KindMoney:
		*d.money(dst) = *d.money(src)
	default:
		*d.text(dst) = *d.text(src)
	}
}

// SetMoney sets a monetary field of f. It is a no-op for other kinds.
func (d FieldDescriptor) SetMoney(f *Fields, v decimal.Decimal) {
	if d.Kind == KindMoney {
		*d.money(f) = v
	}
}

// TrackedFields is the static, ordered list of versioned fields.
var TrackedFields = []FieldDescriptor{
	{Name: FieldStudentName, Kind: KindText, Required: true, MaxLength: MaxStudentNameLength, text: func(f *Fields) *string { return &f.StudentName }},
	{Name: FieldClassName, Kind: KindText, Required: true, MaxLength: MaxClassNameLength, text: func(f *Fields) *string { return &f.ClassName }},
	{Name: FieldPaymentMode, Kind: KindText, Required: true, MaxLength: MaxPaymentModeLength, text: func(f *Fields) *string { return (*string)(&f.PaymentMode) }},
	{Name: FieldDate, Kind: KindDate, Required: true, date: func(f *Fields) *time.Time { return &f.Date }},
	{Name: FieldAnnualFee, Kind: KindMoney, money: func(f *Fields) *decimal.Decimal { return &f.AnnualFee }},
	{Name: FieldTuitionFee, Kind: KindMoney, money: func(f *Fields) *decimal.Decimal { return &f.TuitionFee }},
	{Name: FieldKitBooksFee, Kind: KindMoney, money: func(f *Fields) *decimal.Decimal { return &f.KitBooksFee }},
	{Name: FieldActivityFee, Kind: KindMoney, money: func(f *Fields) *decimal.Decimal { return &f.ActivityFee }},
	{Name: FieldUniformFee, Kind: KindMoney, money: func(f *Fields) *decimal.Decimal { return &f.UniformFee }},
}

// LookupField returns the descriptor of a tracked field by name.
func LookupField(name string) (FieldDescriptor, bool) {
	for _, d := range TrackedFields {
		if d.Name == name {
			return d, true
		}
	}
	return FieldDescriptor{}, false
}

// SameDate reports whether a and b fall on the same calendar date.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// CivilDate truncates t to midnight UTC of its calendar date.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses the canonical YYYY-MM-DD form.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatMoney renders an amount with the fixed precision.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
