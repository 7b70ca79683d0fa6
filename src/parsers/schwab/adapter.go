package schwab

import (
	"context"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "schwab"
	schemaID = "schwab-transactions"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Charles Schwab" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Action", "Symbol", "Quantity", "Price") || !hs.HasAny("Trade Date", "Settlement Date") {
		return nil, nil
	}
	headerMap := map[string]string{
		"action":   hs.First("Action"),
		"symbol":   hs.First("Symbol"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Price"),
		"time":     hs.First("Trade Date", "Settlement Date"),
	}
	if h := hs.First("Fees & Comm"); h != "" {
		headerMap["fees"] = h
	}
	if h := hs.First("Order #"); h != "" {
		headerMap["order"] = h
	}
	if h := hs.First("Account Number"); h != "" {
		headerMap["account"] = h
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetStocks,
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
				Side:     f.Get("action"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.First("time", "Trade Date", "Settlement Date"),
				Fees:     f.All("fees", "Fees & Comm", "Commission", "Fees"),
			})
			if !ok {
				return
			}
			fill.AssetClass = common.AssetClassOr(in, models.AssetStocks)
			fill.OrderID = f.Get("order")
			fill.AccountIDExternal = f.Get("account")
			c.Accept(fill)
		})
	}
	return c.Output()
}
