package binanceus

import (
	"context"
	"strings"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "binanceus"
	schemaID = "binanceus-fills"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "BinanceUS" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Symbol", "Side", "Quantity", "Price") || !hs.HasAny("Timestamp", "Time") {
		return nil, nil
	}
	headerMap := map[string]string{
		"time":     hs.First("Timestamp", "Time"),
		"symbol":   hs.First("Symbol"),
		"side":     hs.First("Side"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Price"),
	}
	for key, header := range map[string]string{"fee": "Fee", "feeccy": "Fee Currency", "total": "Total", "orderId": "Order ID"} {
		if h := hs.First(header); h != "" {
			headerMap[key] = h
		}
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetCrypto,
		SchemaID:   schemaID,
		Confidence: 0.8,
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
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.Get("symbol"),
				Side:     f.Get("side"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.First("time", "Timestamp", "Time"),
				Fees:     []string{f.Get("fee")},
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetCrypto)
			fill.Symbol = normalize.NormalizeCryptoSymbol(fill.Symbol)
			fill.OrderID = f.Get("orderId")
			if ccy := strings.ToUpper(f.Get("feeccy")); ccy != "" {
				fill.Notes = "fee_ccy:" + ccy
			}
			c.Accept(fill)
		})
	}
	return c.Output()
}
