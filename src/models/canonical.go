package models

import "time"

type AssetClass string

const (
	AssetStocks  AssetClass = "stocks"
	AssetOptions AssetClass = "options"
	AssetFutures AssetClass = "futures"
	AssetCrypto  AssetClass = "crypto"
)

type Side string

const (
	SideBuy   Side = "BUY"
	SideSell  Side = "SELL"
	SideShort Side = "SHORT"
	SideCover Side = "COVER"
)

// Row is one data row of an uploaded file keyed by its header text.
type Row map[string]string

// NormalizedFill is the unified, intermediate representation of an execution.
// Every broker adapter populates it directly from the source file.
type NormalizedFill struct {
	SourceBroker      string     `json:"source_broker"`
	AssetClass        AssetClass `json:"asset_class"`
	AccountIDExternal string     `json:"account_id_external,omitempty"`
	Symbol            string     `json:"symbol"`

	// Option and future legs, empty for plain stock and crypto fills.
	Underlying string   `json:"underlying,omitempty"`
	Expiry     string   `json:"expiry,omitempty"` // YYYY-MM-DD
	Strike     *float64 `json:"strike,omitempty"`
	Right      string   `json:"right,omitempty"` // "C" or "P"

	// Quantity is signed: positive accumulates (buy), negative reduces (sell).
	// Options are expressed in shares (contracts x multiplier).
	Quantity float64   `json:"quantity"`
	Price    float64   `json:"price"`
	Fees     *float64  `json:"fees,omitempty"`
	Currency string    `json:"currency"`
	Side     Side      `json:"side"`
	ExecTime time.Time `json:"exec_time"`

	OrderID         string `json:"order_id,omitempty"`
	TradeIDExternal string `json:"trade_id_external,omitempty"`
	Notes           string `json:"notes,omitempty"`

	// RowIndex is the 1-based data row the fill came from (the header is row 0).
	RowIndex int `json:"row_index"`
	Raw      Row `json:"-"`
}

// DetectionResult is what an adapter reports when it recognises a header set.
type DetectionResult struct {
	BrokerID   string            `json:"broker_id"`
	AssetClass AssetClass        `json:"asset_class"`
	SchemaID   string            `json:"schema_id"`
	Confidence float64           `json:"confidence"`
	HeaderMap  map[string]string `json:"header_map"`
	Warnings   []string          `json:"warnings,omitempty"`
}
