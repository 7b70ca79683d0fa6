package coinbase

import (
	"context"
	"strings"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "coinbase"
	schemaID = "coinbase-fills"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Coinbase" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Timestamp", "Product", "Side", "Price") || !hs.HasAny("Size", "Amount") {
		return nil, nil
	}
	headerMap := map[string]string{
		"time":     hs.First("Timestamp"),
		"symbol":   hs.First("Product"),
		"side":     hs.First("Side"),
		"quantity": hs.First("Size", "Amount"),
		"price":    hs.First("Price"),
	}
	for key, header := range map[string]string{"fee": "Fee", "feeccy": "Fee Currency", "total": "Total", "orderId": "Order ID", "tradeId": "Trade ID"} {
		if h := hs.First(header); h != "" {
			headerMap[key] = h
		}
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetCrypto,
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
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.Get("symbol"),
				Side:     f.Get("side"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.Get("time"),
				Fees:     []string{f.Get("fee")},
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetCrypto)
			fill.Symbol = normalize.NormalizeCryptoSymbol(fill.Symbol)
			fill.OrderID = f.Get("orderId")
			fill.TradeIDExternal = f.Get("tradeId")
			if ccy := strings.ToUpper(f.Get("feeccy")); ccy != "" && ccy != common.Currency(f.Get("currency")) {
				fill.Notes = "fee_ccy:" + ccy
			}
			c.Accept(fill)
		})
	}
	return c.Output()
}
