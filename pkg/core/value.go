package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ColumnType is the semantic type of a dataset column.
type ColumnType string

// Supported column types.
const (
	TypeString ColumnType = "string"
	TypeNumber ColumnType = "number"
	TypeDate   ColumnType = "date"
	TypeBool   ColumnType = "bool"
)

// DateLayout is the layout used to print and parse dates without a clock part.
const DateLayout = "2006-01-02"

// Value is a single cell. It is always one of nil, string, float64, bool or time.Time.
// Use NormalizeValue when taking values from drivers or decoders.
type Value = any

// NormalizeValue coerces a driver or decoder value into one of the Value kinds.
// Integer kinds widen to float64 and byte slices become strings. Unknown kinds
// fall back to their fmt rendering.
func NormalizeValue(v any) Value {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return float64(x)
	case bool:
		return x
	case time.Time:
		return x
	case *time.Time:
		if x == nil {
			return nil
		}
		return *x
	default:
		return FormatValue(x)
	}
}

// TypeOf reports the column type a non-nil value belongs to.
func TypeOf(v Value) (ColumnType, bool) {
	switch v.(type) {
	case string:
		return TypeString, true
	case float64:
		return TypeNumber, true
	case bool:
		return TypeBool, true
	case time.Time:
		return TypeDate, true
	default:
		return "", false
	}
}

// AsNumber returns the numeric content of a value.
func AsNumber(v Value) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// ValuesEqual compares two cells. Nil equals nil, values of different kinds never match.
func ValuesEqual(a, b Value) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case float64:
		y, ok := b.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(x) && math.IsNaN(y) {
			return true
		}
		return x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	default:
		return false
	}
}

// keySep separates encoded values inside a composite key.
const keySep = "\x1f"

// EncodeKey builds a hashable key for a tuple of values such that two tuples
// encode equally exactly when ValuesEqual holds position by position.
func EncodeKey(values []Value) string {
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteString(keySep)
		}
		switch x := v.(type) {
		case nil:
			b.WriteString("n")
		case string:
			b.WriteString("s")
			b.WriteString(strconv.Quote(x))
		case float64:
			b.WriteString("f")
			if x == 0 {
				x = 0 // folds -0 into 0
			}
			b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
		case bool:
			b.WriteString("b")
			b.WriteString(strconv.FormatBool(x))
		case time.Time:
			b.WriteString("t")
			b.WriteString(x.UTC().Format(time.RFC3339Nano))
		default:
			b.WriteString("?")
			b.WriteString(strconv.Quote(FormatValue(x)))
		}
	}
	return b.String()
}

// FormatValue renders a value for display and for naming pivot columns.
// Nil renders as the empty string.
func FormatValue(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(DateLayout)
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}

// ParseLiteral interprets a textual literal as a value of the given column type.
// It reports false when the literal is not valid for the type.
func ParseLiteral(typ ColumnType, lit string) (Value, bool) {
	switch typ {
	case TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(lit), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case TypeBool:
		b, err := strconv.ParseBool(strings.TrimSpace(lit))
		if err != nil {
			return nil, false
		}
		return b, true
	case TypeDate:
		return ParseDate(lit)
	default:
		return lit, true
	}
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"01-02-06",
}

// ParseDate parses the date and timestamp layouts found in spreadsheet exports.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
