package tabular

import (
	"math"
	"strconv"
	"strings"
)

var missingMarkers = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
	"-":    true,
	"--":   true,
}

// ParseNumber coerces a cell to a number. Cells that do not parse, including the
// usual missing markers, yield nil rather than an error.
func ParseNumber(s string) *float64 {
	s = strings.TrimSpace(s)
	if IsMissing(s) {
		return nil
	}
	if strings.Contains(s, ",") {
		var ok bool
		if s, ok = stripThousands(s); !ok {
			return nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// stripThousands removes thousands separators from s. Commas must sit between
// groups of exactly three digits before any decimal point, so "1,5" and "12,34"
// are rejected.
func stripThousands(s string) (string, bool) {
	sign := ""
	if s != "" && (s[0] == '-' || s[0] == '+') {
		sign, s = s[:1], s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	if strings.Contains(frac, ",") {
		return "", false
	}
	groups := strings.Split(intPart, ",")
	if len(groups[0]) < 1 || len(groups[0]) > 3 || !allDigits(groups[0]) {
		return "", false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !allDigits(g) {
			return "", false
		}
	}
	return sign + strings.Join(groups, "") + frac, true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsMissing reports whether a cell is blank or one of the missing-value markers.
func IsMissing(s string) bool {
	return missingMarkers[strings.ToLower(strings.TrimSpace(s))]
}

// ParseYear coerces a cell to a calendar year. "2015", "2015.0" and the crop-year
// notation "2015-16" all give 2015.
func ParseYear(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if len(s) > 4 && (s[4] == '-' || s[4] == '/') {
		s = s[:4]
	}
	v := ParseNumber(s)
	if v == nil || *v != math.Trunc(*v) || *v < 0 || *v > 9999 {
		return 0, false
	}
	return int(*v), true
}

// FormatNumber renders a coerced value back into a cell. nil renders as the empty
// string, which ParseNumber maps back to nil.
func FormatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// CoerceColumn applies ParseNumber to every value and reports how many cells
// that were not missing failed to parse.
func CoerceColumn(values []string) ([]*float64, int) {
	out := make([]*float64, len(values))
	failed := 0
	for i, s := range values {
		out[i] = ParseNumber(s)
		if out[i] == nil && !IsMissing(s) {
			failed++
		}
	}
	return out, failed
}
