// src/parsers/ibkr/adapter.go
package ibkr

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "ibkr"
	schemaID = "ibkr-trades-csv"
)

var (
	occInDescription = regexp.MustCompile(`(?i)[CP]\d{8}`)
	// Flex query dateTime, e.g. 20240603;093000
	flexDateTime = regexp.MustCompile(`^(\d{8});(\d{6})$`)
)

// Adapter reads IBKR activity and Flex trade exports.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Interactive Brokers" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	isTrades := hs.Has("Symbol", "Quantity", "T. Price") ||
		hs.Has("Date/Time", "Symbol", "Quantity") ||
		hs.Has("Trade Date", "Symbol", "Quantity")
	if !isTrades {
		return nil, nil
	}

	assetClass := models.AssetStocks
	if occInDescription.MatchString(common.SampleValue(in.SampleRows, "Description")) {
		assetClass = models.AssetOptions
	}
	category := strings.ToLower(common.SampleValue(in.SampleRows, "Asset Category", "AssetCategory"))
	if strings.Contains(category, "option") {
		assetClass = models.AssetOptions
	}
	if strings.Contains(category, "future") {
		assetClass = models.AssetFutures
	}

	headerMap := map[string]string{}
	for key, candidates := range map[string][]string{
		"symbol":      {"Symbol"},
		"qty":         {"Quantity"},
		"price":       {"T. Price", "TradePrice", "Price"},
		"time":        {"Date/Time", "DateTime", "Trade Date", "TradeDate"},
		"fee":         {"Comm/Fee", "IBCommission", "Commission"},
		"currency":    {"Currency"},
		"description": {"Description"},
		"putcall":     {"Put/Call"},
		"strike":      {"Strike"},
		"expiration":  {"Expiration", "Expiry"},
		"multiplier":  {"Multiplier"},
		"tradeId":     {"Trade ID", "TradeID"},
		"orderId":     {"Order ID", "IBOrderID"},
		"account":     {"AccountId", "Account"},
		"side":        {"Buy/Sell"},
	} {
		if h := hs.First(candidates...); h != "" {
			headerMap[key] = h
		}
	}

	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: assetClass,
		SchemaID:   schemaID,
		Confidence: 0.9,
		HeaderMap:  headerMap,
		Warnings:   []string{},
	}, nil
}

func (a *Adapter) Parse(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	assetClass := common.AssetClassOr(in, models.AssetStocks)

	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			description := f.Get("description")

			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.First("symbol", "Description"),
				Side:     f.Get("side"),
				Quantity: f.Get("qty"),
				Price:    f.Get("price"),
				Time:     flexToISO(f.First("time", "Trade Date", "Date/Time")),
				Fees:     f.All("fee", "Commission", "Regulatory Fees", "Sec Fee", "NFA Fee"),
				Currency: f.Get("currency"),
			})
			if !ok {
				return
			}
			fill.AssetClass = assetClass
			fill.AccountIDExternal = f.Get("account")
			fill.OrderID = f.Get("orderId")
			fill.TradeIDExternal = f.Get("tradeId")

			switch assetClass {
			case models.AssetOptions:
				if oc, ok := optionFromRow(f, description); ok {
					common.ApplyContract(&fill, oc)
					fill.Symbol = normalize.IBKRDisplaySymbol(oc)
				}
				common.ApplyOptionMultiplier(&fill, normalize.ParseNumber(f.Get("multiplier")))
			case models.AssetCrypto:
				fill.Symbol = normalize.NormalizeCryptoSymbol(fill.Symbol)
			}
			c.Accept(fill)
		})
	}
	return c.Output()
}

// optionFromRow prefers the explicit Put/Call, Strike and Expiration columns
// and falls back to an OCC symbol in the symbol or description.
func optionFromRow(f common.Fields, description string) (normalize.OptionContract, bool) {
	right := strings.ToUpper(f.Get("putcall"))
	strike := normalize.ParseNumber(f.Get("strike"))
	expiry := expiryToISO(f.Get("expiration"))
	if right != "" && strike > 0 && expiry != "" {
		under := strings.ToUpper(f.First("Underlying", "UnderlyingSymbol", "Underlying Symbol"))
		if under == "" {
			under = strings.ToUpper(strings.Fields(f.Get("symbol") + " _")[0])
		}
		return normalize.OptionContract{Underlying: under, Expiry: expiry, Right: right[:1], Strike: strike}, true
	}
	for _, candidate := range []string{f.Get("symbol"), description} {
		if oc, ok := normalize.DecodeOptionSymbol(candidate); ok {
			return oc, true
		}
	}
	return normalize.OptionContract{}, false
}

func flexToISO(s string) string {
	if m := flexDateTime.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		d, t := m[1], m[2]
		return d[:4] + "-" + d[4:6] + "-" + d[6:] + " " + t[:2] + ":" + t[2:4] + ":" + t[4:]
	}
	return s
}

func expiryToISO(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "20060102", "01/02/2006", "1/2/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
