package normalize

import (
	"math"
	"strings"

	"github.com/username/tradejournal/src/models"
)

var cryptoAliases = map[string]string{
	"XBTUSD":  "BTC-USD",
	"BTCUSD":  "BTC-USD",
	"BTC-USD": "BTC-USD",
	"ETHUSD":  "ETH-USD",
}

// NormalizeCryptoSymbol rewrites pair notations ("btc/usd", "XBTUSD",
// "ETH_USD") into the dashed BASE-QUOTE form.
func NormalizeCryptoSymbol(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.NewReplacer("/", "-", "_", "-").Replace(s)
	if alias, ok := cryptoAliases[s]; ok {
		return alias
	}
	if !strings.Contains(s, "-") && len(s) >= 6 {
		return s[:3] + "-" + s[3:]
	}
	return s
}

// NormalizeSideAndQuantity derives the trade side from free text and signs the
// quantity accordingly. Without recognisable text the sign of qty decides.
func NormalizeSideAndQuantity(side string, qty float64) (models.Side, float64) {
	s := strings.ToUpper(strings.TrimSpace(side))
	switch {
	case strings.Contains(s, "BUY") || s == "B":
		return models.SideBuy, math.Abs(qty)
	case strings.Contains(s, "SELL") || s == "S":
		return models.SideSell, -math.Abs(qty)
	case qty >= 0:
		return models.SideBuy, qty
	default:
		return models.SideSell, qty
	}
}

// NormalizeAction maps free-text actions to a side. ok is false when the text
// names no direction at all.
func NormalizeAction(action string) (models.Side, bool) {
	s := strings.ToUpper(strings.TrimSpace(action))
	switch s {
	case "B", "BUY", "BOT", "BOUGHT", "LONG", "BTO", "BTC", "BUY TO OPEN", "BUY TO CLOSE":
		return models.SideBuy, true
	case "S", "SELL", "SLD", "SOLD", "STO", "STC", "SELL TO OPEN", "SELL TO CLOSE":
		return models.SideSell, true
	case "SHORT", "SELL SHORT", "SS":
		return models.SideShort, true
	case "COVER", "BUY TO COVER":
		return models.SideCover, true
	}
	switch {
	case strings.Contains(s, "BUY") || strings.Contains(s, "BOUGHT"):
		return models.SideBuy, true
	case strings.Contains(s, "SELL") || strings.Contains(s, "SOLD"):
		return models.SideSell, true
	}
	return "", false
}

// SumFees adds the absolute values of every non-empty fee column. nil means
// the row carried no fee at all.
func SumFees(values ...string) *float64 {
	total := 0.0
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		total += math.Abs(ParseNumber(v))
	}
	if total == 0 {
		return nil
	}
	return &total
}
