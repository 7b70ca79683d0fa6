// src/processors/idempotency.go
package processors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
)

const idempotencyKeyLength = 32

// GenerateIdempotencyKey derives the per-user dedup key of a trade. The broker
// id wins when present; otherwise the key is built from the trade's content.
func GenerateIdempotencyKey(broker, externalID, symbolRaw, execTimeISO, side string, price, qty float64) string {
	keySource := externalID
	if keySource == "" {
		keySource = fmt.Sprintf("%s_%s_%s_%s_%s", symbolRaw, execTimeISO, side, normalize.FormatFloat(price), normalize.FormatFloat(qty))
	}
	hash := sha256.Sum256([]byte(broker + "_" + keySource))
	return hex.EncodeToString(hash[:])[:idempotencyKeyLength]
}

// RecordSide collapses the trade side into the two persisted values.
func RecordSide(side models.Side) string {
	switch models.Side(strings.ToUpper(string(side))) {
	case models.SideSell, models.SideShort:
		return "sell"
	default:
		return "buy"
	}
}

// IdempotencyKeyFor is GenerateIdempotencyKey applied to a validated trade.
func IdempotencyKeyFor(dto models.TradeDTO) string {
	return GenerateIdempotencyKey(
		dto.Broker,
		dto.ExternalID,
		dto.SymbolRaw,
		normalize.ISOString(dto.ExecutedAt),
		RecordSide(dto.Side),
		dto.Price,
		dto.Quantity,
	)
}

// BuildTradeRecord maps a validated trade onto its persisted form.
func BuildTradeRecord(userID string, dto models.TradeDTO, now time.Time) models.TradeRecord {
	qty := dto.Quantity
	if qty < 0 {
		qty = -qty
	}
	executedAt := dto.ExecutedAt.UTC()
	return models.TradeRecord{
		UserID:         userID,
		Broker:         dto.Broker,
		ExternalID:     dto.ExternalID,
		IdempotencyKey: IdempotencyKeyFor(dto),
		AssetType:      dto.AssetType,
		Symbol:         dto.Symbol,
		SymbolRaw:      dto.SymbolRaw,
		Side:           RecordSide(dto.Side),
		Qty:            qty,
		Price:          dto.Price,
		Fees:           dto.Fees,
		Commission:     dto.Commission,
		ExecutedAt:     executedAt,
		GroupKey:       dto.Symbol + "_" + executedAt.Format("2006-01-02"),
		InstrumentType: dto.AssetType,
		OpenedAt:       executedAt,
		QtyOpened:      qty,
		Meta: models.TradeMeta{
			RowIndex:        dto.RowIndex,
			Raw:             dto.Raw,
			Source:          "csv",
			OriginalBroker:  dto.Broker,
			ImportTimestamp: now.UTC(),
			Original: map[string]any{
				"symbol":     dto.SymbolRaw,
				"side":       string(dto.Side),
				"quantity":   dto.Quantity,
				"price":      dto.Price,
				"executedAt": normalize.ISOString(executedAt),
				"underlying": dto.Underlying,
				"expiry":     dto.Expiry,
				"optionType": dto.OptionType,
			},
		},
	}
}
