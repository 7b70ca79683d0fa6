package models

import (
	"strings"
	"time"
)

// Asset types as persisted on trade records.
const (
	AssetTypeEquity = "equity"
	AssetTypeOption = "option"
	AssetTypeFuture = "future"
	AssetTypeCrypto = "crypto"
)

const StatusFilled = "filled"

// Canonical field names shared by the mapping engine and the row processor.
const (
	FieldTimestamp      = "timestamp"
	FieldSymbol         = "symbol"
	FieldSide           = "side"
	FieldQuantity       = "quantity"
	FieldPrice          = "price"
	FieldFees           = "fees"
	FieldCurrency       = "currency"
	FieldVenue          = "venue"
	FieldOrderID        = "order_id"
	FieldExecID         = "exec_id"
	FieldInstrumentType = "instrument_type"
	FieldExpiry         = "expiry"
	FieldStrike         = "strike"
	FieldOptionType     = "option_type"
	FieldMultiplier     = "multiplier"
	FieldUnderlying     = "underlying"
	FieldStatus         = "status"

	// Row-processor only fields, used by broker-specific field maps.
	FieldFilled      = "filled"
	FieldFilledQty   = "filled_qty"
	FieldAvgPrice    = "avg_price"
	FieldPlacedTime  = "placed_time"
	FieldCommission  = "commission"
	FieldNotes       = "notes"
	FieldDescription = "description"
)

// TradeDTO is a candidate trade that passed row-level validation.
type TradeDTO struct {
	Broker     string `json:"broker"`
	ExternalID string `json:"external_id,omitempty"`
	SymbolRaw  string `json:"symbol_raw"`
	Symbol     string `json:"symbol"`
	AssetType  string `json:"asset_type"`
	Side       Side   `json:"side"`

	// Quantity is always positive; direction lives in Side.
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Fees       float64   `json:"fees"`
	Commission float64   `json:"commission"`
	ExecutedAt time.Time `json:"executed_at"`
	Status     string    `json:"status"`
	Currency   string    `json:"currency,omitempty"`

	Underlying string   `json:"underlying,omitempty"`
	Expiry     string   `json:"expiry,omitempty"`
	Strike     *float64 `json:"strike,omitempty"`
	OptionType string   `json:"option_type,omitempty"`
	Notes      string   `json:"notes,omitempty"`

	RowIndex int `json:"row_index"`
	Raw      Row `json:"-"`
}

// IsFilled reports whether the trade should be persisted at all.
func (t TradeDTO) IsFilled() bool {
	return t.Status == "" || strings.EqualFold(t.Status, StatusFilled)
}

// TradeRecord is the persisted form of a trade.
type TradeRecord struct {
	ID             string    `json:"id,omitempty"`
	UserID         string    `json:"user_id"`
	Broker         string    `json:"broker"`
	ExternalID     string    `json:"external_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	AssetType      string    `json:"asset_type"`
	Symbol         string    `json:"symbol"`
	SymbolRaw      string    `json:"symbol_raw"`
	Side           string    `json:"side"`
	Qty            float64   `json:"qty"`
	Price          float64   `json:"price"`
	Fees           float64   `json:"fees"`
	Commission     float64   `json:"commission"`
	ExecutedAt     time.Time `json:"executed_at"`
	GroupKey       string    `json:"group_key"`
	InstrumentType string    `json:"instrument_type"`
	OpenedAt       time.Time `json:"opened_at"`
	QtyOpened      float64   `json:"qty_opened"`
	Meta           TradeMeta `json:"meta"`
}

// TradeMeta is the provenance blob stored next to each trade.
type TradeMeta struct {
	RowIndex        int            `json:"rowIndex"`
	Raw             Row            `json:"raw,omitempty"`
	Source          string         `json:"source"`
	OriginalBroker  string         `json:"originalBroker"`
	ImportTimestamp time.Time      `json:"importTimestamp"`
	Original        map[string]any `json:"original,omitempty"`
}

// Import run statuses.
const (
	RunProcessing = "processing"
	RunCompleted  = "completed"
	RunFailed     = "failed"
	RunExpired    = "expired"
)

// ImportRun is the bookkeeping row for one chunked commit.
type ImportRun struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	JobID         string     `json:"job_id"`
	Broker        string     `json:"broker"`
	Filename      string     `json:"filename"`
	FileType      string     `json:"file_type"`
	Status        string     `json:"status"`
	DryRun        bool       `json:"dry_run"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	Added         int        `json:"added"`
	Duplicates    int        `json:"duplicates"`
	Errors        int        `json:"errors"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// MappingPreset is a user-saved column mapping.
type MappingPreset struct {
	ID        int64             `json:"id"`
	UserID    string            `json:"user_id"`
	Name      string            `json:"name"`
	BrokerKey string            `json:"broker_key,omitempty"`
	Mapping   map[string]string `json:"mapping"`
	CreatedAt time.Time         `json:"created_at"`
}
