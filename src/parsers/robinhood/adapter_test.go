package robinhood

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

var activityHeaders = []string{"Activity Date", "Process Date", "Settle Date", "Instrument", "Description", "Trans Code", "Quantity", "Price", "Amount"}

func activityRow(date, instrument, desc, code, qty, price, amount string) models.Row {
	return models.Row{
		"Activity Date": date,
		"Process Date":  date,
		"Settle Date":   date,
		"Instrument":    instrument,
		"Description":   desc,
		"Trans Code":    code,
		"Quantity":      qty,
		"Price":         price,
		"Amount":        amount,
	}
}

func TestDetectActivity(t *testing.T) {
	a := NewAdapter()

	det, err := a.Detect(common.DetectInput{
		Headers:    activityHeaders,
		SampleRows: []models.Row{activityRow("1/2/2024", "", "Interest", "INT", "", "", "$0.12")},
	})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, activitySchema, det.SchemaID)
	assert.Equal(t, 0.98, det.Confidence)
	assert.Equal(t, "Trans Code", det.HeaderMap["transCode"])

	det, err = a.Detect(common.DetectInput{Headers: activityHeaders})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, 0.8, det.Confidence)
}

func TestDetectTrades(t *testing.T) {
	det, err := NewAdapter().Detect(common.DetectInput{Headers: []string{"Date", "Time", "Symbol", "Side", "Quantity", "Price", "Fees"}})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, schemaID, det.SchemaID)
	assert.Equal(t, "Time", det.HeaderMap["time"])

	det, err = NewAdapter().Detect(common.DetectInput{Headers: []string{"Symbol", "Side", "Quantity"}})
	require.NoError(t, err)
	assert.Nil(t, det)
}

func TestParseActivity(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: activityHeaders})
	require.NoError(t, err)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			activityRow("1/16/2024", "AAPL", "Apple\nCUSIP: 037833100", "Buy", "10", "$185.10", "($1,851.00)"),
			activityRow("1/17/2024", "AAPL", "AAPL 9/20/2024 Call $185.00", "BTO", "2", "", "($500.00)"),
			activityRow("1/18/2024", "", "Interest Payment", "INT", "", "", "$0.12"),
			activityRow("1/18/2024", "", "ACH Deposit", "ACH", "", "", "$1,000.00"),
			activityRow("1/19/2024", "SPY", "SPY 1/19/2024 Put $470.00", "OEXP", "1", "", ""),
			activityRow("1/22/2024", "TSLA", "Tesla", "Sell", "3", "$210.00", "$630.00"),
			activityRow("1/23/2024", "AAPL", "not an option", "STC", "1", "$1.00", "$100.00"),
		},
		HeaderMap:    det.HeaderMap,
		UserTimezone: normalize.NewYorkZone,
	})

	require.Len(t, out.Fills, 3)

	buy := out.Fills[0]
	assert.Equal(t, "AAPL", buy.Symbol)
	assert.Equal(t, 10.0, buy.Quantity)
	assert.Equal(t, 185.1, buy.Price)
	assert.Equal(t, "2024-01-16T05:00:00.000Z", normalize.ISOString(buy.ExecTime))

	option := out.Fills[1]
	assert.Equal(t, models.AssetOptions, option.AssetClass)
	assert.Equal(t, "AAPL240920C00185000", option.Symbol)
	assert.Equal(t, "AAPL", option.Underlying)
	assert.Equal(t, "2024-09-20", option.Expiry)
	assert.Equal(t, "C", option.Right)
	assert.Equal(t, 200.0, option.Quantity)
	assert.Equal(t, 250.0, option.Price, "price derived from amount / contracts")
	assert.Equal(t, "BTO;contracts:2", option.Notes)

	sell := out.Fills[2]
	assert.Equal(t, "TSLA", sell.Symbol)
	assert.Equal(t, -3.0, sell.Quantity)
	assert.Equal(t, models.SideSell, sell.Side)

	require.Len(t, out.Errors, 1)
	assert.Equal(t, importerrors.ParseError, out.Errors[0].Code)
	assert.Equal(t, 7, out.Errors[0].RowIndex)

	require.Len(t, out.Warnings, 1)
	assert.Equal(t, "skipped 3 non-trade rows (ACH=1, INT=1, OEXP=1)", out.Warnings[0])
}

func TestParseActivityTickerFromDescription(t *testing.T) {
	a := NewAdapter()
	out := a.Parse(context.Background(), common.ParseInput{
		Rows:         []models.Row{activityRow("2/1/2024", "", "MSFT Microsoft", "Sell", "1", "$400.00", "$400.00")},
		UserTimezone: normalize.NewYorkZone,
	})
	require.Len(t, out.Fills, 1)
	assert.Equal(t, "MSFT", out.Fills[0].Symbol)
}

func TestParseTrades(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: []string{"Date", "Time", "Symbol", "Side", "Quantity", "Price", "Fees"}})
	require.NoError(t, err)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Date": "2024-01-15", "Time": "10:30:00", "Symbol": "amd", "Side": "buy", "Quantity": "4", "Price": "160", "Fees": "0.01"},
			{"Date": "2024-01-15", "Time": "10:31:00", "Symbol": "AMD", "Side": "sell", "Quantity": "0", "Price": "161", "Fees": ""},
		},
		HeaderMap:    det.HeaderMap,
		UserTimezone: normalize.NewYorkZone,
	})

	require.Len(t, out.Fills, 1)
	assert.Equal(t, "AMD", out.Fills[0].Symbol)
	assert.Equal(t, "2024-01-15T15:30:00.000Z", normalize.ISOString(out.Fills[0].ExecTime))
	require.Len(t, out.Errors, 1)
	assert.Equal(t, importerrors.ZeroQty, out.Errors[0].Code)
}

func TestParseOptionDescription(t *testing.T) {
	tests := []struct {
		desc   string
		strike float64
		right  string
	}{
		{desc: "AAPL 9/20/2024 Call $185.00", strike: 185, right: "C"},
		{desc: "SPX 12/20/2024 Put $1,000", strike: 1000, right: "P"},
		{desc: "NVDA 1/17/2025 Call $1,250.50", strike: 1250.5, right: "C"},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			oc, ok := parseOptionDescription(tt.desc)
			require.True(t, ok)
			assert.Equal(t, tt.strike, oc.Strike)
			assert.Equal(t, tt.right, oc.Right)
		})
	}

	_, ok := parseOptionDescription("AAPL 9/20/2024 Call $0")
	assert.False(t, ok)
}
