package tastytrade

import (
	"context"
	"strings"
	"time"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "tastytrade"
	schemaID = "tastytrade-trades"
)

// Adapter reads tastytrade fills, which are mostly option legs.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Tastytrade" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Fill Time", "Symbol", "Quantity", "Price") && !hs.Has("Fill Time", "Description") {
		return nil, nil
	}
	headerMap := map[string]string{"time": hs.First("Fill Time")}
	for key, header := range map[string]string{
		"symbol":      "Symbol",
		"quantity":    "Quantity",
		"price":       "Price",
		"fees":        "Fees",
		"commission":  "Commission",
		"underlying":  "Underlying",
		"description": "Description",
		"type":        "Type",
		"strike":      "Strike",
		"expiry":      "Expiry",
		"side":        "Side",
	} {
		if h := hs.First(header); h != "" {
			headerMap[key] = h
		}
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetOptions,
		SchemaID:   schemaID,
		Confidence: 0.85,
		HeaderMap:  headerMap,
		Warnings:   []string{},
	}, nil
}

func (a *Adapter) Parse(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			desc := f.Get("description")
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.First("symbol", "underlying"),
				Side:     f.First("side", "Action"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.Get("time"),
				Fees:     f.All("fees", "commission", "Regulatory Fees"),
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetOptions)
			if fill.AssetClass == models.AssetOptions {
				oc := contractFromRow(f, desc, fill.Symbol)
				if oc.Underlying != "" {
					common.ApplyContract(&fill, oc)
				}
				common.ApplyOptionMultiplier(&fill, common.DefaultOptionMultiplier)
			}
			c.Accept(fill)
		})
	}
	return c.Output()
}

// contractFromRow uses the Type/Strike/Expiry columns and fills any gap from
// an OCC symbol in the description or symbol.
func contractFromRow(f common.Fields, desc, symbol string) normalize.OptionContract {
	oc := normalize.OptionContract{
		Underlying: strings.ToUpper(f.Get("underlying")),
		Strike:     normalize.ParseNumber(f.Get("strike")),
		Expiry:     isoDate(f.Get("expiry")),
	}
	switch t := strings.ToUpper(f.First("type", "Put/Call")); {
	case strings.HasPrefix(t, "P"):
		oc.Right = "P"
	case strings.HasPrefix(t, "C"):
		oc.Right = "C"
	}
	if oc.Right == "" || oc.Strike <= 0 || oc.Expiry == "" {
		for _, candidate := range []string{desc, symbol} {
			if occ, ok := normalize.DecodeOptionSymbol(candidate); ok {
				if oc.Right == "" {
					oc.Right = occ.Right
				}
				if oc.Strike <= 0 {
					oc.Strike = occ.Strike
				}
				if oc.Expiry == "" {
					oc.Expiry = occ.Expiry
				}
				if oc.Underlying == "" {
					oc.Underlying = occ.Underlying
				}
				break
			}
		}
	}
	if oc.Underlying == "" && oc.Right != "" {
		oc.Underlying = strings.Fields(symbol + " _")[0]
	}
	return oc
}

func isoDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "1/2/2006", "01/02/2006", "1/2/06", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}
