// src/processors/fills.go
package processors

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/parsers/common"
)

// TradeFromFill converts an adapter fill into a candidate trade. Option fills
// carry shares (contracts x multiplier); the trade stores the contract count
// recorded in the fill notes.
func TradeFromFill(fill models.NormalizedFill, rowIndex int) models.TradeDTO {
	qty := math.Abs(fill.Quantity)
	if contracts, ok := contractsFromNotes(fill.Notes); ok {
		qty = contracts
	}

	side := fill.Side
	if side == "" {
		side = models.SideBuy
		if fill.Quantity < 0 {
			side = models.SideSell
		}
	}

	externalID := fill.TradeIDExternal
	if externalID == "" {
		externalID = fill.OrderID
	}

	var fees float64
	if fill.Fees != nil {
		fees = math.Abs(*fill.Fees)
	}

	dto := models.TradeDTO{
		Broker:     fill.SourceBroker,
		ExternalID: externalID,
		SymbolRaw:  fill.Symbol,
		Symbol:     fill.Symbol,
		AssetType:  assetTypeFor(fill.AssetClass),
		Side:       side,
		Quantity:   qty,
		Price:      fill.Price,
		Fees:       fees,
		ExecutedAt: fill.ExecTime.UTC(),
		Status:     models.StatusFilled,
		Currency:   fill.Currency,
		Underlying: fill.Underlying,
		Expiry:     fill.Expiry,
		Strike:     fill.Strike,
		OptionType: fill.Right,
		Notes:      fill.Notes,
		RowIndex:   rowIndex,
		Raw:        fill.Raw,
	}
	if fill.Right != "" {
		dto.AssetType = models.AssetTypeOption
	}
	return dto
}

// FillFromTrade is the inverse used by adapters that validate rows through
// the RowProcessor.
func FillFromTrade(dto models.TradeDTO, class models.AssetClass) models.NormalizedFill {
	qty := math.Abs(dto.Quantity)
	if dto.Side == models.SideSell || dto.Side == models.SideShort {
		qty = -qty
	}
	var fees *float64
	if total := dto.Fees + dto.Commission; total != 0 {
		fees = &total
	}
	if dto.AssetType == models.AssetTypeOption {
		class = models.AssetOptions
	}
	fill := models.NormalizedFill{
		SourceBroker:    dto.Broker,
		AssetClass:      class,
		Symbol:          dto.Symbol,
		Underlying:      dto.Underlying,
		Expiry:          dto.Expiry,
		Strike:          dto.Strike,
		Right:           dto.OptionType,
		Quantity:        qty,
		Price:           dto.Price,
		Fees:            fees,
		Currency:        dto.Currency,
		Side:            dto.Side,
		ExecTime:        dto.ExecutedAt,
		TradeIDExternal: dto.ExternalID,
		Notes:           dto.Notes,
		RowIndex:        dto.RowIndex,
		Raw:             dto.Raw,
	}
	if fill.Currency == "" {
		fill.Currency = "USD"
	}
	return fill
}

// SummarizeFills turns an adapter's output into a ProcessResult so adapter
// imports and mapped imports report the same way.
func SummarizeFills(ctx context.Context, out common.ParseOutput, rowCount int) ProcessResult {
	res := ProcessResult{
		Trades:      make([]models.TradeDTO, 0, len(out.Fills)),
		Errors:      append([]importerrors.ImportError{}, out.Errors...),
		SkippedRows: []SkippedRow{},
		Summary: ImportSummary{
			TotalRows:  rowCount + 1,
			HeaderRows: 1,
			ParsedRows: rowCount,
		},
	}
	for _, fill := range out.Fills {
		if err := ctx.Err(); err != nil {
			break
		}
		res.Trades = append(res.Trades, TradeFromFill(fill, fill.RowIndex))
	}
	res.Summary.FilledRows = len(res.Trades)
	res.Summary.ImportedRows = len(res.Trades)

	for _, e := range out.Errors {
		bucket := importerrors.Bucket(e.Code)
		res.Summary.Skipped.Add(bucket)
		if len(res.SkippedRows) < MaxSkippedRowSamples {
			res.SkippedRows = append(res.SkippedRows, SkippedRow{
				RowIndex:  e.RowIndex,
				Reason:    bucket,
				SymbolRaw: e.SymbolRaw,
			})
		}
	}
	return res
}

func contractsFromNotes(notes string) (float64, bool) {
	for _, part := range strings.Split(notes, ";") {
		part = strings.TrimSpace(part)
		if !strings.HasPrefix(part, "contracts:") {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimPrefix(part, "contracts:"), 64)
		if err == nil && v != 0 {
			return math.Abs(v), true
		}
	}
	return 0, false
}
