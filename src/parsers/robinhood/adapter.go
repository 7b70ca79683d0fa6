package robinhood

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID       = "robinhood"
	schemaID       = "robinhood-trades"
	activitySchema = "robinhood-activity"

	// sampleScanRows bounds how many sample rows Detect inspects for codes.
	sampleScanRows = 50
)

var (
	tradeCodes    = map[string]bool{"BTO": true, "STO": true, "BTC": true, "STC": true, "BUY": true, "SELL": true}
	nonTradeCodes = map[string]bool{"INT": true, "GOLD": true, "ACH": true, "RTP": true, "DCF": true, "REC": true, "CDIV": true}

	// "AAPL 9/20/2024 Call $185.00"
	optionDescription = regexp.MustCompile(`^([A-Z]{1,6})\s+(\d{1,2}/\d{1,2}/\d{4})\s+(Call|Put)\s+\$([0-9,]+(?:\.\d{2})?)\s*$`)
	leadingTicker     = regexp.MustCompile(`^([A-Z][A-Z.]{0,5})\b`)
)

// Adapter reads the Robinhood account activity report and the older trades
// export.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Robinhood" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)

	if hs.Has("Activity Date", "Process Date", "Settle Date", "Trans Code", "Amount") {
		headerMap := map[string]string{
			"date":      hs.First("Activity Date"),
			"transCode": hs.First("Trans Code"),
			"amount":    hs.First("Amount"),
		}
		for key, header := range map[string]string{
			"instrument":  "Instrument",
			"description": "Description",
			"quantity":    "Quantity",
			"price":       "Price",
		} {
			if h := hs.First(header); h != "" {
				headerMap[key] = h
			}
		}
		confidence := 0.8
		if sawKnownCode(in.SampleRows, headerMap["transCode"]) {
			confidence = 0.98
		}
		return &models.DetectionResult{
			BrokerID:   BrokerID,
			AssetClass: models.AssetStocks,
			SchemaID:   activitySchema,
			Confidence: confidence,
			HeaderMap:  headerMap,
			Warnings:   []string{},
		}, nil
	}

	if !hs.Has("Date", "Symbol", "Side", "Quantity", "Price") {
		return nil, nil
	}
	headerMap := map[string]string{
		"date":     hs.First("Date"),
		"symbol":   hs.First("Symbol"),
		"side":     hs.First("Side"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Price"),
	}
	if h := hs.First("Time"); h != "" {
		headerMap["time"] = h
	}
	if h := hs.First("Fees"); h != "" {
		headerMap["fees"] = h
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetStocks,
		SchemaID:   schemaID,
		Confidence: 0.8,
		HeaderMap:  headerMap,
		Warnings:   []string{},
	}, nil
}

func sawKnownCode(rows []models.Row, header string) bool {
	for i, row := range rows {
		if i >= sampleScanRows {
			break
		}
		code := strings.ToUpper(utils.RowValue(row, header))
		if tradeCodes[code] || nonTradeCodes[code] || code == "OEXP" {
			return true
		}
	}
	return false
}

func (a *Adapter) Parse(ctx context.Context, in common.ParseInput) common.ParseOutput {
	if isActivity(in) {
		return a.parseActivity(ctx, in)
	}
	return a.parseTrades(ctx, in)
}

func isActivity(in common.ParseInput) bool {
	if _, ok := in.HeaderMap["transCode"]; ok {
		return true
	}
	if len(in.Rows) == 0 {
		return false
	}
	for h := range in.Rows[0] {
		if strings.EqualFold(strings.TrimSpace(h), "Trans Code") {
			return true
		}
	}
	return false
}

func (a *Adapter) parseActivity(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	skipped := map[string]int{}

	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			code := strings.ToUpper(f.First("transCode", "Trans Code"))
			if !tradeCodes[code] {
				if code == "" {
					code = "(blank)"
				}
				skipped[code]++
				return
			}

			desc := f.First("description", "Description")
			qty := math.Abs(normalize.ParseNumber(f.First("quantity", "Quantity")))
			if qty == 0 {
				c.Fail(idx, importerrors.ZeroQty, desc, "quantity missing or zero")
				return
			}
			price := normalize.CleanPrice(f.First("price", "Price"))
			if price <= 0 {
				if amount, ok := normalize.ParseMoney(f.First("amount", "Amount")); ok {
					price = math.Abs(amount / qty)
				}
			}

			side := "Buy"
			if code == "STO" || code == "STC" || code == "SELL" {
				side = "Sell"
			}
			isOption := code == "BTO" || code == "STO" || code == "BTC" || code == "STC"

			symbol := f.First("instrument", "Instrument")
			var oc normalize.OptionContract
			if isOption {
				var ok bool
				oc, ok = parseOptionDescription(desc)
				if !ok {
					c.Fail(idx, importerrors.ParseError, desc, fmt.Sprintf("unrecognised option description %q", desc))
					return
				}
				packed, err := normalize.EncodeOCCSymbol(oc)
				if err != nil {
					c.Fail(idx, importerrors.ParseError, desc, err.Error())
					return
				}
				symbol = packed
			} else if symbol == "" {
				if m := leadingTicker.FindStringSubmatch(strings.TrimSpace(desc)); m != nil {
					symbol = m[1]
				}
			}

			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   symbol,
				Side:     side,
				Quantity: normalize.FormatFloat(qty),
				Price:    normalize.FormatFloat(price),
				Time:     f.First("date", "Activity Date"),
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetStocks)
			if isOption {
				fill.AssetClass = models.AssetOptions
				common.ApplyContract(&fill, oc)
				common.ApplyOptionMultiplier(&fill, common.DefaultOptionMultiplier)
				fill.Notes = code + ";" + fill.Notes
			}
			c.Accept(fill)
		})
	}

	if len(skipped) > 0 {
		codes := make([]string, 0, len(skipped))
		total := 0
		for code, n := range skipped {
			codes = append(codes, fmt.Sprintf("%s=%d", code, n))
			total += n
		}
		sort.Strings(codes)
		c.Warn(fmt.Sprintf("skipped %d non-trade rows (%s)", total, strings.Join(codes, ", ")))
	}
	return c.Output()
}

// parseOptionDescription reads "AAPL 9/20/2024 Call $185.00".
func parseOptionDescription(desc string) (normalize.OptionContract, bool) {
	m := optionDescription.FindStringSubmatch(strings.TrimSpace(desc))
	if m == nil {
		return normalize.OptionContract{}, false
	}
	expiry, err := time.Parse("1/2/2006", m[2])
	if err != nil {
		return normalize.OptionContract{}, false
	}
	strike := normalize.CleanPrice(m[4])
	if strike <= 0 {
		return normalize.OptionContract{}, false
	}
	return normalize.OptionContract{
		Underlying: m[1],
		Expiry:     expiry.Format("2006-01-02"),
		Right:      m[3][:1],
		Strike:     strike,
	}, true
}

func (a *Adapter) parseTrades(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			ts := f.First("date", "Date")
			if t := f.First("time", "Time"); t != "" && ts != "" {
				ts += " " + t
			}
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.Get("symbol"),
				Side:     f.Get("side"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     ts,
				Fees:     f.All("fees", "Fees"),
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetStocks)
			c.Accept(fill)
		})
	}
	return c.Output()
}
