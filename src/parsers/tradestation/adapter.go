package tradestation

import (
	"context"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "tradestation"
	schemaID = "tradestation-executions"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "TradeStation" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Execution Date", "Symbol", "Side", "Quantity", "Price") {
		return nil, nil
	}
	headerMap := map[string]string{
		"symbol":   hs.First("Symbol"),
		"side":     hs.First("Side"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Price"),
		"time":     hs.First("Execution Date"),
	}
	for key, header := range map[string]string{"commission": "Commission", "secfee": "Sec Fee", "nfafee": "NFA Fee"} {
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
				Side:     f.Get("side"),
				Quantity: f.Get("quantity"),
				Price:    f.Get("price"),
				Time:     f.First("time", "Execution Date"),
				Fees:     f.All("commission", "secfee", "nfafee", "Commission", "Sec Fee", "NFA Fee"),
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
