// Package coerce converts raw cell values into typed column values.
//
// Coercion never fails: a value that cannot be interpreted becomes an
// invalid (null) result and the row is still written.
package coerce

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Excel serial day numbers accepted as dates: 1900-01-01 through 9999-12-31.
const (
	minExcelSerial = 1
	maxExcelSerial = 2958465
)

// Date interprets v as a calendar date at midnight UTC.
func Date(v any) (out sql.NullTime) {
	defer func() {
		if recover() != nil {
			out = sql.NullTime{}
		}
	}()

	switch t := v.(type) {
	case nil:
		return sql.NullTime{}
	case time.Time:
		if t.IsZero() {
			return sql.NullTime{}
		}
		return validDate(t)
	case float64:
		return fromSerial(t)
	case float32:
		return fromSerial(float64(t))
	case int:
		return fromSerial(float64(t))
	case int64:
		return fromSerial(float64(t))
	case string:
		return dateFromString(t)
	default:
		return dateFromString(fmt.Sprint(v))
	}
}

func dateFromString(s string) sql.NullTime {
	s = strings.TrimSpace(s)
	if s == "" || isNaN(s) {
		return sql.NullTime{}
	}
	if looksLikeSerial(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return fromSerial(f)
		}
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return sql.NullTime{}
	}
	return validDate(t)
}

// looksLikeSerial matches short plain numbers ("45296", "45296.5"). Longer
// digit runs are left to dateparse, which reads them as yyyymmdd or epochs.
func looksLikeSerial(s string) bool {
	intPart := s
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart = s[:i]
		for _, c := range s[i+1:] {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	if intPart == "" || len(intPart) > 5 {
		return false
	}
	for _, c := range intPart {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func fromSerial(f float64) sql.NullTime {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < minExcelSerial || f > maxExcelSerial {
		return sql.NullTime{}
	}
	t, err := excelize.ExcelDateToTime(f, false)
	if err != nil {
		return sql.NullTime{}
	}
	return validDate(t)
}

func validDate(t time.Time) sql.NullTime {
	return sql.NullTime{
		Time:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Valid: true,
	}
}

// Number interprets v as a decimal amount.
//
// Strings may carry currency symbols and thousands separators ("$1,234.50").
// A trailing percent sign is dropped and the literal kept, so "35%" is 35,
// not 0.35; downstream reports rely on that.
func Number(v any) decimal.NullDecimal {
	switch t := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.NullDecimal{}
		}
		return decimal.NullDecimal{Decimal: decimal.NewFromFloat(t), Valid: true}
	case float32:
		return Number(float64(t))
	case int:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(int64(t)), Valid: true}
	case int64:
		return decimal.NullDecimal{Decimal: decimal.NewFromInt(t), Valid: true}
	case decimal.Decimal:
		return decimal.NullDecimal{Decimal: t, Valid: true}
	case string:
		return numberFromString(t)
	default:
		return decimal.NullDecimal{}
	}
}

func numberFromString(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	if s == "" || isNaN(s) {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Text renders v as trimmed text. Whole floats print without a fractional
// part so numeric identifiers read "1001", not "1001.0".
func Text(v any) sql.NullString {
	var s string
	switch t := v.(type) {
	case nil:
		return sql.NullString{}
	case string:
		s = t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return sql.NullString{}
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Text(float64(t))
	case time.Time:
		if t.IsZero() {
			return sql.NullString{}
		}
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			s = t.Format("2006-01-02")
		} else {
			s = t.Format(time.RFC3339)
		}
	default:
		s = fmt.Sprint(v)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Key returns the business key for v; ok is false when v is blank.
func Key(v any) (string, bool) {
	t := Text(v)
	return t.String, t.Valid
}

func isNaN(s string) bool {
	return strings.EqualFold(s, "nan") || strings.EqualFold(s, "nat")
}
