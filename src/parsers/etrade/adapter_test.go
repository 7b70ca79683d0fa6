package etrade

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
)

func TestDetect(t *testing.T) {
	a := NewAdapter()
	for _, headers := range [][]string{
		{"Transaction Date", "Symbol", "Quantity", "Price"},
		{"TransactionDate", "Symbol", "Description"},
		{"transaction date", "symbol", "description"},
	} {
		det, err := a.Detect(common.DetectInput{Headers: headers})
		require.NoError(t, err)
		if headers[0] == "TransactionDate" {
			assert.Nil(t, det)
			continue
		}
		require.NotNil(t, det, headers)
		assert.Equal(t, BrokerID, det.BrokerID)
	}
}

func TestParse(t *testing.T) {
	a := NewAdapter()
	headers := []string{"Transaction Date", "Transaction Type", "Symbol", "Quantity", "Price", "Commission"}
	det, err := a.Detect(common.DetectInput{Headers: headers})
	require.NoError(t, err)

	out := a.Parse(context.Background(), common.ParseInput{
		Rows: []models.Row{
			{"Transaction Date": "02/01/2024", "Transaction Type": "Bought", "Symbol": "TSLA", "Quantity": "3", "Price": "187.5", "Commission": "0"},
			{"Transaction Date": "02/02/2024", "Transaction Type": "Sold", "Symbol": "TSLA", "Quantity": "-3", "Price": "190", "Commission": "0"},
		},
		HeaderMap: det.HeaderMap,
	})
	require.Empty(t, out.Errors)
	require.Len(t, out.Fills, 2)
	assert.Equal(t, 3.0, out.Fills[0].Quantity)
	assert.Equal(t, -3.0, out.Fills[1].Quantity)
	assert.Nil(t, out.Fills[0].Fees)
}
