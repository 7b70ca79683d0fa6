package fidelity

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
	det, err := a.Detect(common.DetectInput{Headers: []string{"Run Date", "Action", "Symbol", "Quantity", "Price", "Commission", "Fees", "Settlement Date"}})
	require.NoError(t, err)
	require.NotNil(t, det)
	assert.Equal(t, 0.8, det.Confidence)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Action": "YOU BOUGHT APPLE INC (AAPL)", "Symbol": "AAPL", "Quantity": "5", "Price": "180", "Commission": "0", "Fees": "0.02", "Settlement Date": "01/17/2024"},
			{"Action": "YOU SOLD APPLE INC (AAPL)", "Symbol": "AAPL", "Quantity": "-5", "Price": "181", "Commission": "", "Fees": "", "Settlement Date": "01/18/2024"},
		},
		HeaderMap: det.HeaderMap,
	})
	require.Empty(t, out.Errors)
	require.Len(t, out.Fills, 2)
	assert.Equal(t, models.SideBuy, out.Fills[0].Side)
	assert.Equal(t, 5.0, out.Fills[0].Quantity)
	assert.Equal(t, models.SideSell, out.Fills[1].Side)
	assert.Equal(t, -5.0, out.Fills[1].Quantity)
}
