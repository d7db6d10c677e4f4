package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackedFields_Order(t *testing.T) {
	names := make([]string, len(TrackedFields))
	for i, d := range TrackedFields {
		names[i] = d.Name
	}
	assert.Equal(t, []string{
		FieldStudentName, FieldClassName, FieldPaymentMode, FieldDate,
		FieldAnnualFee, FieldTuitionFee, FieldKitBooksFee, FieldActivityFee, FieldUniformFee,
	}, names)
}

func TestFieldDescriptor_Equal(t *testing.T) {
	a := Fields{
		StudentName: "Anil",
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		TuitionFee:  decimal.RequireFromString("5000"),
	}
	b := a
	b.Date = time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)
	b.TuitionFee = decimal.RequireFromString("5000.00")

	date, _ := LookupField(FieldDate)
	fee, _ := LookupField(FieldTuitionFee)
	name, _ := LookupField(FieldStudentName)

	assert.True(t, date.Equal(&a, &b), "same calendar date")
	assert.True(t, fee.Equal(&a, &b), "5000 == 5000.00")
	assert.True(t, name.Equal(&a, &b))

	b.StudentName = "anil"
	assert.False(t, name.Equal(&a, &b), "text comparison is case sensitive")

	b.TuitionFee = decimal.RequireFromString("5000.01")
	assert.False(t, fee.Equal(&a, &b))
}

func TestFieldDescriptor_FormatAndCopy(t *testing.T) {
	src := Fields{
		PaymentMode: PaymentUPI,
		Date:        time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		AnnualFee:   decimal.RequireFromString("1200.5"),
	}

	mode, ok := LookupField(FieldPaymentMode)
	require.True(t, ok)
	assert.Equal(t, "upi", mode.Format(&src))

	date, _ := LookupField(FieldDate)
	assert.Equal(t, "2024-03-05", date.Format(&src))

	fee, _ := LookupField(FieldAnnualFee)
	assert.Equal(t, "1200.50", fee.Format(&src))
	assert.Equal(t, "0.00", fee.Format(&Fields{}))

	var dst Fields
	fee.Copy(&dst, &src)
	date.Copy(&dst, &src)
	assert.True(t, dst.AnnualFee.Equal(src.AnnualFee))
	assert.Equal(t, src.Date, dst.Date)
	assert.Empty(t, dst.PaymentMode)

	_, ok = LookupField("receipt_number")
	assert.False(t, ok, "the identifier is not a versioned field")
}

func TestFields_Total(t *testing.T) {
	f := Fields{
		AnnualFee:   decimal.RequireFromString("100.10"),
		TuitionFee:  decimal.RequireFromString("200"),
		UniformFee:  decimal.RequireFromString("0.90"),
		ActivityFee: decimal.Zero,
	}
	assert.Equal(t, "301.00", FormatMoney(f.Total()))
}

func TestPaymentMode_IsValid(t *testing.T) {
	for _, m := range PaymentModes {
		assert.True(t, m.IsValid(), m)
	}
	assert.False(t, PaymentMode("barter").IsValid())
	assert.False(t, PaymentMode("Cash").IsValid())
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 50, f.PageSize)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, PageSize: 500}.Normalize()
	assert.Equal(t, 200, f.PageSize)
	assert.Equal(t, 400, f.Offset())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("15/01/2024")
	assert.Error(t, err)

	assert.Equal(t, d, CivilDate(time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC)))
	assert.True(t, SameDate(d, time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC)))
}

func TestMaxMoney(t *testing.T) {
	assert.Equal(t, "9999999999.99", FormatMoney(MaxMoney))
	assert.Len(t, MaxMoney.Coefficient().String(), MoneyDigits)

	for _, d := range TrackedFields {
		if d.Kind == KindText {
			assert.Positive(t, d.MaxLength, d.Name)
		} else {
			assert.Zero(t, d.MaxLength, d.Name)
		}
	}
}
