package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionContract is a decoded option leg.
type OptionContract struct {
	Underlying string  `json:"underlying"`
	Expiry     string  `json:"expiry"` // YYYY-MM-DD
	Right      string  `json:"right"`  // "C" or "P"
	Strike     float64 `json:"strike"`
}

const maxStrike = 10000

var (
	occSymbol    = regexp.MustCompile(`^([A-Z.]+)\s*(\d{6})([CP])(\d{8})$`)
	webullSymbol = regexp.MustCompile(`^([A-Z]+)(\d{6})([CP])(\d{8})$`)

	strikeScale = decimal.NewFromInt(1000)
)

// DecodeOptionSymbol decodes OCC packed symbols such as "AAPL 240920C00185000"
// or "AAPL240920C00185000". The two-digit year always maps into 20YY.
func DecodeOptionSymbol(raw string) (OptionContract, bool) {
	m := occSymbol.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(raw)))
	if m == nil {
		return OptionContract{}, false
	}
	return buildContract(m[1], m[2], m[3], m[4], func(yy int) int { return 2000 + yy })
}

// DecodeWebullOptionSymbol decodes Webull's packed form "TSLA250822C00325000".
// Two-digit years below 50 map into 20YY, the rest into 19YY.
func DecodeWebullOptionSymbol(raw string) (OptionContract, bool) {
	m := webullSymbol.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return OptionContract{}, false
	}
	return buildContract(m[1], m[2], m[3], m[4], func(yy int) int {
		if yy < 50 {
			return 2000 + yy
		}
		return 1900 + yy
	})
}

func buildContract(underlying, yymmdd, right, strikeDigits string, pivot func(int) int) (OptionContract, bool) {
	if len(underlying) < 2 {
		return OptionContract{}, false
	}
	year := pivot(atoi(yymmdd[0:2]))
	month := atoi(yymmdd[2:4])
	day := atoi(yymmdd[4:6])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return OptionContract{}, false
	}
	expiry := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if expiry.Day() != day || int(expiry.Month()) != month {
		return OptionContract{}, false
	}

	raw, err := decimal.NewFromString(strikeDigits)
	if err != nil {
		return OptionContract{}, false
	}
	strike := raw.Div(strikeScale).Round(3)
	if !strike.IsPositive() || strike.GreaterThan(decimal.NewFromInt(maxStrike)) {
		return OptionContract{}, false
	}
	f, _ := strike.Float64()
	return OptionContract{
		Underlying: underlying,
		Expiry:     expiry.Format("2006-01-02"),
		Right:      right,
		Strike:     f,
	}, true
}

// EncodeOCCSymbol packs a contract into the compact OCC form, the inverse of
// DecodeOptionSymbol.
func EncodeOCCSymbol(c OptionContract) (string, error) {
	expiry, err := time.Parse("2006-01-02", c.Expiry)
	if err != nil {
		return "", fmt.Errorf("invalid expiry %q: %w", c.Expiry, err)
	}
	right := strings.ToUpper(c.Right)
	if right != "C" && right != "P" {
		return "", fmt.Errorf("invalid option right %q", c.Right)
	}
	if c.Strike <= 0 || c.Strike > maxStrike {
		return "", fmt.Errorf("strike %v out of range", c.Strike)
	}
	milli := decimal.NewFromFloat(c.Strike).Mul(strikeScale).Round(0).IntPart()
	return fmt.Sprintf("%s%s%s%08d", strings.ToUpper(c.Underlying), expiry.Format("060102"), right, milli), nil
}

// FormatStrike renders a strike with exactly three decimals.
func FormatStrike(strike float64) string {
	return decimal.NewFromFloat(strike).StringFixed(3)
}

// IBKRDisplaySymbol renders the statement style "AAPL20240920 C185.000".
func IBKRDisplaySymbol(c OptionContract) string {
	return fmt.Sprintf("%s%s %s%s", c.Underlying, strings.ReplaceAll(c.Expiry, "-", ""), c.Right, FormatStrike(c.Strike))
}

// WebullDisplaySymbol renders "TSLA 2025-08-22 325C".
func WebullDisplaySymbol(c OptionContract) string {
	return fmt.Sprintf("%s %s %s%s", c.Underlying, c.Expiry, decimal.NewFromFloat(c.Strike).String(), c.Right)
}
