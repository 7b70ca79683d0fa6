package processors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
)

func TestTradeFromFillStock(t *testing.T) {
	fees := -1.25
	fill := models.NormalizedFill{
		SourceBroker: "schwab",
		AssetClass:   models.AssetStocks,
		Symbol:       "AAPL",
		Quantity:     -10,
		Price:        150,
		Fees:         &fees,
		Currency:     "USD",
		Side:         models.SideSell,
		ExecTime:     time.Date(2024, 1, 15, 15, 30, 0, 0, time.UTC),
		OrderID:      "O-1",
	}

	dto := TradeFromFill(fill, 4)
	assert.Equal(t, 10.0, dto.Quantity)
	assert.Equal(t, models.SideSell, dto.Side)
	assert.Equal(t, 1.25, dto.Fees)
	assert.Equal(t, "O-1", dto.ExternalID)
	assert.Equal(t, models.AssetTypeEquity, dto.AssetType)
	assert.Equal(t, models.StatusFilled, dto.Status)
	assert.True(t, dto.IsFilled())
	assert.Equal(t, 4, dto.RowIndex)
}

func TestTradeFromFillOptionUsesContracts(t *testing.T) {
	strike := 185.0
	fill := models.NormalizedFill{
		SourceBroker:    "ibkr",
		AssetClass:      models.AssetOptions,
		Symbol:          "AAPL20240920 C185.000",
		Underlying:      "AAPL",
		Expiry:          "2024-09-20",
		Strike:          &strike,
		Right:           "C",
		Quantity:        -200,
		Price:           2.5,
		Side:            models.SideSell,
		TradeIDExternal: "T-9",
		OrderID:         "O-9",
		Notes:           "closing;contracts:-2",
	}

	dto := TradeFromFill(fill, 1)
	assert.Equal(t, 2.0, dto.Quantity)
	assert.Equal(t, "T-9", dto.ExternalID)
	assert.Equal(t, models.AssetTypeOption, dto.AssetType)
	assert.Equal(t, "C", dto.OptionType)
}

func TestFillFromTradeRoundTrip(t *testing.T) {
	dto := models.TradeDTO{
		Broker:     "webull",
		ExternalID: "W-1",
		Symbol:     "NVDA",
		AssetType:  models.AssetTypeEquity,
		Side:       models.SideSell,
		Quantity:   3,
		Price:      900,
		Commission: 0.5,
		Fees:       0.02,
		RowIndex:   7,
	}
	fill := FillFromTrade(dto, models.AssetStocks)
	assert.Equal(t, -3.0, fill.Quantity)
	assert.Equal(t, "W-1", fill.TradeIDExternal)
	assert.Equal(t, "USD", fill.Currency)
	require.NotNil(t, fill.Fees)
	assert.InDelta(t, 0.52, *fill.Fees, 1e-9)

	back := TradeFromFill(fill, fill.RowIndex)
	assert.Equal(t, dto.Quantity, back.Quantity)
	assert.Equal(t, dto.Side, back.Side)
	assert.Equal(t, dto.ExternalID, back.ExternalID)
}

func TestSummarizeFills(t *testing.T) {
	out := common.ParseOutput{
		Fills: []models.NormalizedFill{
			{SourceBroker: "kraken", Symbol: "BTC-USD", Quantity: 0.5, Price: 60000, Side: models.SideBuy, RowIndex: 1},
		},
		Errors: []importerrors.ImportError{
			importerrors.New(2, importerrors.BadDate, "ETH-USD", "bad"),
			importerrors.New(3, importerrors.ZeroQty, "SOL-USD", ""),
		},
	}

	res := SummarizeFills(context.Background(), out, 3)
	require.Len(t, res.Trades, 1)
	assert.Equal(t, 4, res.Summary.TotalRows)
	assert.Equal(t, 3, res.Summary.ParsedRows)
	assert.Equal(t, 1, res.Summary.ImportedRows)
	assert.Equal(t, SkipCounts{BadDate: 1, ZeroQty: 1}, res.Summary.Skipped)
	assert.Len(t, res.SkippedRows, 2)
	assert.Len(t, res.Errors, 2)
}
