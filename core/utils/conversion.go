package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ToInt converts numeric values and numeric strings to int. Anything else is 0.
func ToInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	case uint:
		return int(v)
	case uint64:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(v))
		return i
	case []byte:
		return ToInt(string(v))
	default:
		return 0
	}
}

// ToString renders val as text. Whole floats print without a fraction or exponent,
// so a numeric receipt number read from a sheet stays "1001".
func ToString(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToBool accepts bools, 1/0 and the strings "1", "true", "yes", "on".
func ToBool(val any) bool {
	switch v := val.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	case []byte:
		return ToBool(string(v))
	case int, int64, int32, uint, uint64, uint32:
		return ToInt(v) == 1
	default:
		return false
	}
}

// Snake lower-cases s, trims it and joins its words with underscores.
// "Receipt No." becomes "receipt_no", "bank-transfer" becomes "bank_transfer".
func Snake(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.' || r == '\t'
	})
	return strings.Join(fields, "_")
}
