package webull

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/parsers/common"
)

var orderHeaders = []string{"Name", "Symbol", "Side", "Status", "Filled", "Total Qty", "Price", "Avg Price", "Time-in-Force", "Placed Time", "Filled Time"}

func TestDetectOrderHistory(t *testing.T) {
	det, err := NewAdapter().Detect(common.DetectInput{
		Headers:    orderHeaders,
		SampleRows: []models.Row{{"Symbol": "TSLA250822C00325000"}},
	})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, orderHistorySchema, det.SchemaID)
	assert.Equal(t, 0.85, det.Confidence)
	assert.Equal(t, models.AssetOptions, det.AssetClass)
	assert.Equal(t, "Symbol", det.HeaderMap[models.FieldSymbol])
	assert.Equal(t, "Status", det.HeaderMap[models.FieldStatus])
	assert.Equal(t, "Filled Time", det.HeaderMap[models.FieldTimestamp])
}

func TestDetectTrades(t *testing.T) {
	det, err := NewAdapter().Detect(common.DetectInput{Headers: []string{"Symbol", "Side", "Quantity", "Avg Price", "Time Executed", "Commission", "Regulatory Fees"}})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, schemaID, det.SchemaID)
	assert.Equal(t, 0.8, det.Confidence)
	assert.Equal(t, "Avg Price", det.HeaderMap["price"])
	assert.Equal(t, "Regulatory Fees", det.HeaderMap["fee2"])
	assert.Empty(t, det.Warnings)

	det, err = NewAdapter().Detect(common.DetectInput{Headers: []string{"Symbol", "Quantity", "Price"}})
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestParseOrderHistory(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: orderHeaders})
	require.NoError(t, err)
	require.NotNil(t, det)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Symbol": "AAPL", "Side": "Buy", "Status": "Filled", "Filled": "10", "Total Qty": "10", "Avg Price": "@150.00", "Filled Time": "01/15/2024 10:30:00 EST"},
			{"Symbol": "AAPL", "Side": "Sell", "Status": "Cancelled", "Filled": "0", "Total Qty": "10", "Price": "@160.00", "Placed Time": "01/16/2024 09:31:00 EST"},
			{"Symbol": "TSLA250822C00325000", "Side": "Sell", "Status": "Filled", "Filled": "2", "Total Qty": "2", "Avg Price": "4.10", "Filled Time": "08/22/2025 14:30:00 EDT"},
		},
		HeaderMap:    det.HeaderMap,
		UserTimezone: normalize.NewYorkZone,
	})

	require.Len(t, out.Fills, 2)
	stock := out.Fills[0]
	assert.Equal(t, "AAPL", stock.Symbol)
	assert.Equal(t, 10.0, stock.Quantity)
	assert.Equal(t, 150.0, stock.Price)
	assert.Equal(t, "2024-01-15T15:30:00.000Z", normalize.ISOString(stock.ExecTime))
	assert.NotEmpty(t, stock.TradeIDExternal)

	option := out.Fills[1]
	assert.Equal(t, models.AssetOptions, option.AssetClass)
	assert.Equal(t, "TSLA 2025-08-22 325C", option.Symbol)
	assert.Equal(t, -200.0, option.Quantity)
	assert.Contains(t, option.Notes, "contracts:-2")

	require.Len(t, out.Errors, 1)
	assert.Equal(t, importerrors.Cancelled, out.Errors[0].Code)
	assert.Equal(t, 2, out.Errors[0].RowIndex)
	require.Len(t, out.Warnings, 1)
	assert.Contains(t, out.Warnings[0], "cancelled 1")
}

func TestParseTrades(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: []string{"Symbol", "Side", "Quantity", "Avg Price", "Time Executed", "Commission", "Regulatory Fees"}})
	require.NoError(t, err)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Symbol": "NVDA", "Side": "SELL", "Quantity": "5", "Avg Price": "900.50", "Time Executed": "2024-03-01 15:59:59", "Commission": "0", "Regulatory Fees": "0.03"},
			{"Symbol": "NVDA", "Side": "BUY", "Quantity": "5", "Avg Price": "900.50", "Time Executed": "yesterday"},
		},
		HeaderMap:    det.HeaderMap,
		UserTimezone: normalize.NewYorkZone,
	})

	require.Len(t, out.Fills, 1)
	assert.Equal(t, -5.0, out.Fills[0].Quantity)
	assert.Equal(t, models.SideSell, out.Fills[0].Side)
	require.NotNil(t, out.Fills[0].Fees)
	assert.InDelta(t, 0.03, *out.Fills[0].Fees, 1e-9)

	require.Len(t, out.Errors, 1)
	assert.Equal(t, importerrors.BadDate, out.Errors[0].Code)
	assert.Equal(t, 2, out.Errors[0].RowIndex)
}

func TestDetectTradesNeedsWebullColumns(t *testing.T) {
	det, err := NewAdapter().Detect(common.DetectInput{Headers: []string{"Execution Date", "Symbol", "Side", "Quantity", "Price"}})
	require.NoError(t, err)
	assert.Nil(t, det)

	det, err = NewAdapter().Detect(common.DetectInput{Headers: []string{"Symbol", "Side", "Quantity", "Price", "Time Executed"}})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, "Price", det.HeaderMap["price"])
}

func TestParseOrderHistoryMixedFile(t *testing.T) {
	a := NewAdapter()
	rows := []models.Row{
		{"Symbol": "TSLA250822C00325000", "Side": "Buy", "Status": "Filled", "Filled": "1", "Total Qty": "1", "Avg Price": "4.10", "Filled Time": "08/22/2025 10:00:00"},
		{"Symbol": "AAPL", "Side": "Buy", "Status": "Filled", "Filled": "10", "Total Qty": "10", "Avg Price": "190", "Filled Time": "08/22/2025 10:05:00"},
	}
	det, err := a.Detect(common.DetectInput{Headers: orderHeaders, SampleRows: rows})
	require.NoError(t, err)
	require.NotNil(t, det)
	require.Equal(t, models.AssetOptions, det.AssetClass)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows:         rows,
		HeaderMap:    det.HeaderMap,
		AssetClass:   det.AssetClass,
		UserTimezone: normalize.NewYorkZone,
	})

	require.Len(t, out.Fills, 2)
	assert.Equal(t, models.AssetOptions, out.Fills[0].AssetClass)
	assert.Equal(t, 100.0, out.Fills[0].Quantity)

	stock := out.Fills[1]
	assert.Equal(t, models.AssetStocks, stock.AssetClass)
	assert.Equal(t, 10.0, stock.Quantity)
	assert.NotContains(t, stock.Notes, "contracts:")
}

func TestParseTradesDeclaredOptionsKeepsEquities(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: []string{"Symbol", "Side", "Quantity", "Avg Price", "Time Executed"}})
	require.NoError(t, err)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows:       []models.Row{{"Symbol": "AAPL", "Side": "BUY", "Quantity": "10", "Avg Price": "190", "Time Executed": "2024-03-01 10:00:00"}},
		HeaderMap:  det.HeaderMap,
		AssetClass: models.AssetOptions,
	})

	require.Len(t, out.Fills, 1)
	assert.Equal(t, models.AssetStocks, out.Fills[0].AssetClass)
	assert.Equal(t, 10.0, out.Fills[0].Quantity)
}
