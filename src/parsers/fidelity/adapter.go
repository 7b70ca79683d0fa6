package fidelity

import (
	"context"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID = "fidelity"
	schemaID = "fidelity-trades"
)

type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Fidelity" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)
	if !hs.Has("Symbol", "Action", "Quantity", "Price") || !hs.HasAny("Settlement Date", "Trade Date") {
		return nil, nil
	}
	headerMap := map[string]string{
		"symbol":   hs.First("Symbol"),
		"action":   hs.First("Action"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Price"),
		"time":     hs.First("Settlement Date", "Trade Date"),
	}
	if h := hs.First("Commission"); h != "" {
		headerMap["commission"] = h
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
				Time:     f.First("time", "Settlement Date", "Trade Date"),
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
