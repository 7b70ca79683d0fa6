// Package normalize holds the pure lexical and numeric helpers shared by every
// broker adapter: number and price cleaning, broker timestamp parsing,
// option-symbol codecs and side/fee/crypto-pair normalization.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/spf13/cast"
)

// leadingNumber matches the longest numeric prefix, the way lenient float
// parsing in spreadsheets behaves ("12.5abc" -> 12.5).
var leadingNumber = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func parseLeadingFloat(s string) (float64, bool) {
	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ParseNumber is the lenient locale-aware parser. When both '.' and ',' occur
// the right-most one is the decimal separator; a lone ',' is a decimal comma.
// A value wrapped in parentheses is negative. Returns 0 when nothing parses.
func ParseNumber(value string) float64 {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = stripSpace(strings.NewReplacer("$", "", "@", "").Replace(s))

	hasDot := strings.Contains(s, ".")
	hasComma := strings.Contains(s, ",")
	switch {
	case hasDot && hasComma:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case hasComma:
		s = strings.Replace(s, ",", ".", 1)
	}

	v, ok := parseLeadingFloat(s)
	if !ok {
		return 0
	}
	if negative {
		return -math.Abs(v)
	}
	return v
}

// CoerceNumber is the strict sibling of ParseNumber: it reports ok=false for
// empty input, a lone "-", or anything that is not a number after removing
// '@', '$', ',' and whitespace. Scientific notation is accepted.
func CoerceNumber(value string) (float64, bool) {
	s := stripSpace(strings.NewReplacer("@", "", "$", "", ",", "").Replace(value))
	if s == "" || s == "-" {
		return 0, false
	}
	if strings.ContainsAny(s, "xXpP") || strings.EqualFold(s, "nan") || strings.Contains(strings.ToLower(s), "inf") {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CleanPrice strips '@', '$' and ',' and parses what is left. 0 when invalid.
func CleanPrice(value string) float64 {
	s := strings.TrimSpace(strings.NewReplacer("@", "", "$", "", ",", "").Replace(value))
	v, ok := parseLeadingFloat(s)
	if !ok {
		return 0
	}
	return v
}

// ParseMoney parses amounts such as "$1,234.50" or "($1,234.50)" (negative).
func ParseMoney(value string) (float64, bool) {
	s := strings.TrimSpace(value)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	v, ok := CoerceNumber(s)
	if !ok {
		return 0, false
	}
	if negative {
		v = -math.Abs(v)
	}
	return v, true
}

// FormatFloat renders v without trailing zeros, used wherever a number takes
// part in a deterministic key.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
