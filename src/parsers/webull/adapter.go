package webull

import (
	"context"
	"fmt"
	"strings"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
	"github.com/username/tradejournal/src/processors"
	"github.com/username/tradejournal/src/utils"
)

const (
	BrokerID           = "webull"
	schemaID           = "webull-trades"
	orderHistorySchema = "webull-order-history"
)

// Adapter reads both Webull layouts: the plain trades export and the order
// history export that carries a Status column.
type Adapter struct{}

func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) ID() string    { return BrokerID }
func (a *Adapter) Label() string { return "Webull" }

func (a *Adapter) Detect(in common.DetectInput) (*models.DetectionResult, error) {
	hs := utils.NewHeaderSet(in.Headers)

	if hs.HasAny("Status", "Order Status") &&
		hs.HasAny("Filled", "Filled Qty", "FilledQty") &&
		hs.HasAny("Filled Time", "Executed Time", "ExecutedTime", "Placed Time") &&
		hs.HasAny("Symbol", "Ticker", "Name") &&
		hs.HasAny("Side", "Action", "Buy/Sell") {
		fm := processors.BuildFieldMap(in.Headers)
		return &models.DetectionResult{
			BrokerID:   BrokerID,
			AssetClass: assetClass(in.SampleRows, fm),
			SchemaID:   orderHistorySchema,
			Confidence: 0.85,
			HeaderMap:  fm,
			Warnings:   []string{},
		}, nil
	}

	// A bare Price column also appears in other brokers' exports, so it only
	// counts next to a Webull execution-time column.
	if !hs.Has("Symbol", "Side", "Quantity") {
		return nil, nil
	}
	if !hs.HasAny("Avg Price") && !(hs.HasAny("Price") && hs.HasAny("Time Executed", "Filled Time")) {
		return nil, nil
	}
	headerMap := map[string]string{
		"symbol":   hs.First("Symbol"),
		"side":     hs.First("Side"),
		"quantity": hs.First("Quantity"),
		"price":    hs.First("Avg Price", "Price"),
	}
	if h := hs.First("Time Executed", "Filled Time", "Executed Time", "Time"); h != "" {
		headerMap["time"] = h
	}
	if h := hs.First("Commission"); h != "" {
		headerMap["fee1"] = h
	}
	if h := hs.First("Regulatory Fees"); h != "" {
		headerMap["fee2"] = h
	}
	if h := hs.First("Order ID"); h != "" {
		headerMap["order"] = h
	}
	warnings := []string{}
	if headerMap["time"] == "" {
		warnings = append(warnings, "no execution time column found")
	}
	return &models.DetectionResult{
		BrokerID:   BrokerID,
		AssetClass: models.AssetStocks,
		SchemaID:   schemaID,
		Confidence: 0.8,
		HeaderMap:  headerMap,
		Warnings:   warnings,
	}, nil
}

// assetClass reports options when the first sample symbol is a packed
// Webull option. It is a file-level hint; Parse classifies each row.
func assetClass(rows []models.Row, fm processors.FieldMap) models.AssetClass {
	if len(rows) == 0 || !fm.Has(models.FieldSymbol) {
		return models.AssetStocks
	}
	if _, ok := normalize.DecodeWebullOptionSymbol(utils.RowValue(rows[0], fm[models.FieldSymbol])); ok {
		return models.AssetOptions
	}
	return models.AssetStocks
}

// rowClass is the class of a row whose symbol is not an option contract.
func rowClass(in common.ParseInput) models.AssetClass {
	class := common.AssetClassOr(in, models.AssetStocks)
	if class == models.AssetOptions {
		return models.AssetStocks
	}
	return class
}

func (a *Adapter) Parse(ctx context.Context, in common.ParseInput) common.ParseOutput {
	if _, ok := in.HeaderMap[models.FieldStatus]; ok {
		return a.parseOrderHistory(ctx, in)
	}
	return a.parseTrades(ctx, in)
}

// parseOrderHistory runs the row processor, which owns the status filter,
// and converts its trades back into fills.
func (a *Adapter) parseOrderHistory(ctx context.Context, in common.ParseInput) common.ParseOutput {
	res := processors.NewRowProcessor().Process(ctx, in.Rows, processors.FieldMap(in.HeaderMap), processors.ProcessOptions{
		Broker:     BrokerID,
		Timezone:   in.UserTimezone,
		AssetClass: in.AssetClass,
		StartRow:   in.StartRow,
	})

	out := common.ParseOutput{Errors: res.Errors}
	for _, trade := range res.Trades {
		// FillFromTrade promotes decoded option trades itself.
		fill := processors.FillFromTrade(trade, rowClass(in))
		if fill.AssetClass == models.AssetOptions {
			common.ApplyOptionMultiplier(&fill, common.DefaultOptionMultiplier)
		}
		out.Fills = append(out.Fills, fill)
	}
	if skipped := res.Summary.Skipped; skipped.Total() > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"skipped %d rows (cancelled %d, zero quantity %d, zero price %d, bad date %d, other %d)",
			skipped.Total(), skipped.Cancelled, skipped.ZeroQty, skipped.ZeroPrice, skipped.BadDate, skipped.ParseError,
		))
	}
	return out
}

func (a *Adapter) parseTrades(ctx context.Context, in common.ParseInput) common.ParseOutput {
	c := common.NewCollector(ctx, BrokerID)
	for i, row := range in.Rows {
		idx := common.RowNumber(in, i)
		c.Row(idx, func() {
			f := common.Fields{Row: row, HeaderMap: in.HeaderMap}
			fill, ok := c.Build(idx, in, row, common.RowSpec{
				Symbol:   f.Get("symbol"),
				Side:     f.Get("side"),
				Quantity: f.Get("quantity"),
				Price:    f.First("price", "Avg Price", "Price"),
				Time:     f.First("time", "Time Executed", "Filled Time"),
				Fees:     f.All("fee1", "fee2"),
			})
			if !ok {
				return
			}
			fill.AssetClass = rowClass(in)
			fill.OrderID = f.Get("order")
			if oc, ok := normalize.DecodeWebullOptionSymbol(strings.ToUpper(fill.Symbol)); ok {
				fill.AssetClass = models.AssetOptions
				fill.Symbol = normalize.WebullDisplaySymbol(oc)
				common.ApplyContract(&fill, oc)
				common.ApplyOptionMultiplier(&fill, common.DefaultOptionMultiplier)
			}
			c.Accept(fill)
		})
	}
	return c.Output()
}
