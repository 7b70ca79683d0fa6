// src/processors/row_processor.go
package processors

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/utils"
)

// MaxSkippedRowSamples caps the skipped-row sample kept per run.
const MaxSkippedRowSamples = 5

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// FieldMap maps row fields (models.Field*) to the header that carries them.
type FieldMap map[string]string

// Has reports whether field is mapped to a header.
func (fm FieldMap) Has(field string) bool {
	return strings.TrimSpace(fm[field]) != ""
}

func (fm FieldMap) value(row models.Row, field string) string {
	if !fm.Has(field) {
		return ""
	}
	return utils.RowValue(row, fm[field])
}

func (fm FieldMap) first(row models.Row, fields ...string) string {
	for _, f := range fields {
		if v := fm.value(row, f); v != "" {
			return v
		}
	}
	return ""
}

var fieldAliases = []struct {
	field   string
	headers []string
}{
	{models.FieldSymbol, []string{"Symbol", "Symbols", "Ticker", "Name"}},
	{models.FieldSide, []string{"Action", "Side", "Buy/Sell"}},
	{models.FieldStatus, []string{"Status", "Order Status"}},
	{models.FieldFilled, []string{"Filled"}},
	{models.FieldFilledQty, []string{"Filled Qty", "FilledQty"}},
	{models.FieldQuantity, []string{"Quantity", "Qty", "Shares", "Total Qty"}},
	{models.FieldPrice, []string{"Price", "Executed Price", "Filled Price"}},
	{models.FieldAvgPrice, []string{"Avg Price", "Average Price"}},
	{models.FieldPlacedTime, []string{"Placed Time", "Created Time"}},
	{models.FieldTimestamp, []string{"Executed Time", "ExecutedTime", "Filled Time", "Trade Time", "Execute Time", "Date", "Time"}},
	{models.FieldOrderID, []string{"Order ID", "OrderID", "Order #"}},
	{models.FieldExecID, []string{"Exec ID", "ExecID", "Execution ID"}},
	{models.FieldCommission, []string{"Commission", "Comm"}},
	{models.FieldFees, []string{"Fees", "Fee"}},
	{models.FieldCurrency, []string{"Currency"}},
	{models.FieldNotes, []string{"Notes"}},
}

// BuildFieldMap matches file headers to row fields after normalising both
// sides, so "Filled Qty", "FILLED_QTY" and "filledqty" all land on filled_qty.
func BuildFieldMap(headers []string) FieldMap {
	byNormalized := make(map[string]string, len(headers))
	for _, h := range headers {
		n := utils.NormalizeHeader(h)
		if _, exists := byNormalized[n]; !exists && n != "" {
			byNormalized[n] = h
		}
	}
	fm := FieldMap{}
	used := map[string]bool{}
	for _, alias := range fieldAliases {
		for _, candidate := range alias.headers {
			h, ok := byNormalized[utils.NormalizeHeader(candidate)]
			if ok && !used[h] {
				fm[alias.field] = h
				used[h] = true
				break
			}
		}
	}
	return fm
}

type ProcessOptions struct {
	Broker     string
	Timezone   string
	AssetClass models.AssetClass
	Currency   string
	// StartRow offsets row numbers when rows are a chunk of a larger file.
	StartRow int
}

// SkipCounts is the per-reason breakdown of rows that were not imported.
type SkipCounts struct {
	Cancelled  int `json:"cancelled"`
	ZeroQty    int `json:"zeroQty"`
	ZeroPrice  int `json:"zeroPrice"`
	BadDate    int `json:"badDate"`
	ParseError int `json:"parseError"`
}

// Add increments the bucket named by importerrors.Bucket.
func (s *SkipCounts) Add(bucket string) {
	switch bucket {
	case importerrors.BucketCancelled:
		s.Cancelled++
	case importerrors.BucketZeroQty:
		s.ZeroQty++
	case importerrors.BucketZeroPrice:
		s.ZeroPrice++
	case importerrors.BucketBadDate:
		s.BadDate++
	default:
		s.ParseError++
	}
}

func (s SkipCounts) Total() int {
	return s.Cancelled + s.ZeroQty + s.ZeroPrice + s.BadDate + s.ParseError
}

func (s *SkipCounts) Merge(o SkipCounts) {
	s.Cancelled += o.Cancelled
	s.ZeroQty += o.ZeroQty
	s.ZeroPrice += o.ZeroPrice
	s.BadDate += o.BadDate
	s.ParseError += o.ParseError
}

type ImportSummary struct {
	TotalRows    int        `json:"totalRows"`
	HeaderRows   int        `json:"headerRows"`
	ParsedRows   int        `json:"parsedRows"`
	FilledRows   int        `json:"filledRows"`
	ImportedRows int        `json:"importedRows"`
	Skipped      SkipCounts `json:"skipped"`
}

type SkippedRow struct {
	RowIndex  int    `json:"rowIndex"`
	Reason    string `json:"reason"`
	SymbolRaw string `json:"symbolRaw"`
	Status    string `json:"status,omitempty"`
	Filled    string `json:"filled,omitempty"`
	Price     string `json:"price,omitempty"`
}

type ProcessResult struct {
	Trades      []models.TradeDTO          `json:"trades"`
	Summary     ImportSummary              `json:"summary"`
	Errors      []importerrors.ImportError `json:"errors"`
	SkippedRows []SkippedRow               `json:"skippedRows"`
}

// ErrorSummary counts Errors per code.
func (r ProcessResult) ErrorSummary() map[importerrors.Code]int {
	return importerrors.Summary(r.Errors)
}

// rowFailure is one rejected row on its way to becoming an ImportError.
type rowFailure struct {
	code    importerrors.Code
	details string
}

func (f *rowFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.code, f.details)
}

func fail(code importerrors.Code, format string, args ...any) *rowFailure {
	return &rowFailure{code: code, details: fmt.Sprintf(format, args...)}
}

type RowProcessor struct{}

func NewRowProcessor() *RowProcessor { return &RowProcessor{} }

// Process validates and classifies every row. Each row either becomes a trade
// or lands in exactly one skip bucket with one ImportError; a bad row never
// stops the run.
func (p *RowProcessor) Process(ctx context.Context, rows []models.Row, fm FieldMap, opts ProcessOptions) ProcessResult {
	res := ProcessResult{
		Trades:      []models.TradeDTO{},
		Errors:      []importerrors.ImportError{},
		SkippedRows: []SkippedRow{},
		Summary: ImportSummary{
			TotalRows:  len(rows) + 1,
			HeaderRows: 1,
		},
	}
	broker := strings.ToLower(strings.TrimSpace(opts.Broker))
	if broker == "" {
		broker = "manual"
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			break
		}
		rowIndex := opts.StartRow + i + 1
		res.Summary.ParsedRows++

		dto, failure := p.processRow(row, fm, broker, rowIndex, opts)
		if failure == nil {
			res.Trades = append(res.Trades, dto)
			res.Summary.FilledRows++
			res.Summary.ImportedRows++
			continue
		}

		symbolRaw := fm.value(row, models.FieldSymbol)
		importErr := importerrors.New(rowIndex, failure.code, symbolRaw, failure.details)
		importerrors.Log(ctx, importErr, map[string]any{"broker": broker, "stage": "row"})
		res.Errors = append(res.Errors, importErr)

		bucket := importerrors.Bucket(failure.code)
		res.Summary.Skipped.Add(bucket)
		if len(res.SkippedRows) < MaxSkippedRowSamples {
			res.SkippedRows = append(res.SkippedRows, SkippedRow{
				RowIndex:  rowIndex,
				Reason:    bucket,
				SymbolRaw: symbolRaw,
				Status:    fm.value(row, models.FieldStatus),
				Filled:    fm.first(row, models.FieldFilled, models.FieldFilledQty, models.FieldQuantity),
				Price:     fm.first(row, models.FieldPrice, models.FieldAvgPrice),
			})
		}
	}
	return res
}

func (p *RowProcessor) processRow(row models.Row, fm FieldMap, broker string, rowIndex int, opts ProcessOptions) (dto models.TradeDTO, failure *rowFailure) {
	defer func() {
		if r := recover(); r != nil {
			failure = fail(importerrors.ParseError, "panic: %v", r)
		}
	}()

	// 1. Extract.
	symbolRaw := fm.value(row, models.FieldSymbol)
	action := fm.value(row, models.FieldSide)

	// 2. Required fields.
	if symbolRaw == "" {
		return dto, fail(importerrors.MissingRequired, "symbol missing (mapped to %q)", fm[models.FieldSymbol])
	}
	side, ok := normalize.NormalizeAction(action)
	if !ok {
		return dto, fail(importerrors.ParseError, "unrecognised action %q", action)
	}

	// 3. Status. A mapped status column admits only filled orders; without one
	// every row counts as filled. Checked ahead of qty and price so a
	// cancelled row always lands in the cancelled bucket.
	status := models.StatusFilled
	if fm.Has(models.FieldStatus) {
		raw := fm.value(row, models.FieldStatus)
		if !strings.EqualFold(raw, models.StatusFilled) {
			return dto, fail(importerrors.Cancelled, "status %q", raw)
		}
	}

	// 4. Quantity, preferring filled over filled_qty over quantity.
	qtyRaw := fm.first(row, models.FieldFilled, models.FieldFilledQty, models.FieldQuantity)
	qty, ok := normalize.CoerceNumber(qtyRaw)
	if !ok || qty <= 0 {
		return dto, fail(importerrors.ZeroQty, "quantity %q", qtyRaw)
	}

	// 5. Price.
	priceRaw := fm.first(row, models.FieldPrice, models.FieldAvgPrice)
	price := normalize.CleanPrice(priceRaw)
	if price <= 0 {
		return dto, fail(importerrors.BadPrice, "price %q", priceRaw)
	}

	// 6. Execution time, falling back to the placed time.
	timeRaw := fm.first(row, models.FieldTimestamp, models.FieldPlacedTime)
	if timeRaw == "" {
		return dto, fail(importerrors.BadDate, "execution time missing")
	}
	executedAt, err := normalize.ParseBrokerLocalToUtc(timeRaw, opts.Timezone, rowIndex)
	if err != nil {
		return dto, fail(importerrors.BadDate, "%v", err)
	}

	dto = models.TradeDTO{
		Broker:     broker,
		SymbolRaw:  symbolRaw,
		Symbol:     strings.ToUpper(symbolRaw),
		AssetType:  rowAssetType(opts.AssetClass),
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Fees:       absNumber(fm.value(row, models.FieldFees)),
		Commission: absNumber(fm.value(row, models.FieldCommission)),
		ExecutedAt: executedAt,
		Status:     status,
		Currency:   currencyFor(fm.value(row, models.FieldCurrency), opts.Currency),
		Notes:      fm.value(row, models.FieldNotes),
		RowIndex:   rowIndex,
		Raw:        row,
	}

	// 7. Asset type.
	classifyInstrument(&dto, row, fm)

	// 8. External id.
	dto.ExternalID = fm.first(row, models.FieldExecID, models.FieldOrderID)
	if dto.ExternalID == "" {
		dto.ExternalID = CompositeExternalID(broker, symbolRaw, timeRaw, strings.ToLower(action), price, qty)
	}
	return dto, nil
}

// classifyInstrument marks options decoded from the symbol or described by
// explicit option columns; everything else keeps the type from rowAssetType.
func classifyInstrument(dto *models.TradeDTO, row models.Row, fm FieldMap) {
	packed := strings.ToUpper(strings.TrimSpace(dto.SymbolRaw))
	oc, ok := normalize.DecodeWebullOptionSymbol(packed)
	if !ok {
		oc, ok = normalize.DecodeOptionSymbol(packed)
	}
	if !ok {
		oc, ok = optionFromColumns(dto, row, fm)
	}
	if ok {
		strike := oc.Strike
		dto.AssetType = models.AssetTypeOption
		dto.Symbol = normalize.WebullDisplaySymbol(oc)
		dto.Underlying = oc.Underlying
		dto.Expiry = oc.Expiry
		dto.Strike = &strike
		dto.OptionType = oc.Right
		return
	}
	if dto.AssetType == models.AssetTypeCrypto {
		dto.Symbol = normalize.NormalizeCryptoSymbol(dto.Symbol)
	}
}

func optionFromColumns(dto *models.TradeDTO, row models.Row, fm FieldMap) (normalize.OptionContract, bool) {
	right := strings.ToUpper(fm.value(row, models.FieldOptionType))
	strike := normalize.ParseNumber(fm.value(row, models.FieldStrike))
	expiry := fm.value(row, models.FieldExpiry)
	if right == "" || strike <= 0 || !normalize.IsValidDateString(expiry) {
		return normalize.OptionContract{}, false
	}
	exp, err := normalize.ParseBrokerLocalToUtc(expiry, "UTC", dto.RowIndex)
	if err != nil {
		return normalize.OptionContract{}, false
	}
	under := strings.ToUpper(fm.value(row, models.FieldUnderlying))
	if under == "" {
		under = dto.Symbol
	}
	return normalize.OptionContract{
		Underlying: under,
		Expiry:     exp.Format("2006-01-02"),
		Right:      right[:1],
		Strike:     strike,
	}, right[0] == 'C' || right[0] == 'P'
}

// CompositeExternalID builds a deterministic id for rows without a broker
// order id.
func CompositeExternalID(broker, symbol, execTime, side string, price, qty float64) string {
	input := fmt.Sprintf("%s_%s_%s_%s_%s", symbol, execTime, side, normalize.FormatFloat(price), normalize.FormatFloat(qty))
	return broker + "_" + nonAlphanumeric.ReplaceAllString(input, "_")
}

func assetTypeFor(class models.AssetClass) string {
	switch class {
	case models.AssetOptions:
		return models.AssetTypeOption
	case models.AssetFutures:
		return models.AssetTypeFuture
	case models.AssetCrypto:
		return models.AssetTypeCrypto
	default:
		return models.AssetTypeEquity
	}
}

// rowAssetType is the starting type for a row. A declared options class is
// only a hint: each row must prove it is an option in classifyInstrument, so
// equity rows in a mixed file stay equities.
func rowAssetType(class models.AssetClass) string {
	if class == models.AssetOptions {
		return models.AssetTypeEquity
	}
	return assetTypeFor(class)
}

func currencyFor(values ...string) string {
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return "USD"
}

func absNumber(s string) float64 {
	v := normalize.ParseNumber(s)
	if v < 0 {
		return -v
	}
	return v
}
