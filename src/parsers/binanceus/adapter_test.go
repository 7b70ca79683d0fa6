package binanceus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
)

func TestDetectAndParse(t *testing.T) {
	a := NewAdapter()
	det, err := a.Detect(common.DetectInput{Headers: []string{"Time", "Symbol", "Side", "Quantity", "Price", "Fee", "Order ID"}})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, "Time", det.HeaderMap["time"])

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Time": "2024-02-01 12:00:00", "Symbol": "SOLUSDT", "Side": "SELL", "Quantity": "3", "Price": "98.5", "Fee": "0.1", "Order ID": "b-77"},
		},
		HeaderMap:    det.HeaderMap,
		UserTimezone: "UTC",
	})
	require.Empty(t, out.Errors)
	require.Len(t, out.Fills, 1)
	fill := out.Fills[0]
	assert.Equal(t, "SOL-USDT", fill.Symbol)
	assert.Equal(t, -3.0, fill.Quantity)
	assert.Equal(t, "b-77", fill.OrderID)
	assert.Equal(t, 12, fill.ExecTime.Hour())
	assert.Equal(t, models.AssetCrypto, fill.AssetClass)
}
