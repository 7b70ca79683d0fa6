package etrade

import (
	"context"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "etrade"
	schemaID = "etrade-transactions"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "E*TRADE" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Transaction Date", "Symbol", "Quantity", "Price") && !hs.Has("Transaction Date", "Symbol", "Description") {
		return nil, nil
	}
	headerMap := map[string]string{
		"time":   hs.First("Transaction Date"),
		"symbol": hs.First("Symbol"),
	}
	for key, header := range map[string]string{
		"quantity":   "Quantity",
		"price":      "Price",
		"commission": "Commission",
		"fees":       "Fees",
		"action":     "Action",
	} {
		if h := hs.First(header); h != "" {
			headerMap[key] = h
		}
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

func (a *Adapter) Parse(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.Get("symbol"),
				Side:     f.First("action", "Transaction Type"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.First("time", "Transaction Date"),
				Fees:     f.All("commission", "fees", "Commission", "Fees"),
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
