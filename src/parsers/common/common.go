// Package common holds the adapter contract types and the row helpers every
// broker adapter shares.
package common

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/normalize"
	"github.com/username/tradejournal/src/utils"
)

// DefaultOptionMultiplier converts option contracts to share equivalents.
const DefaultOptionMultiplier = 100.0

type DetectInput struct {
	Headers    []string
	SampleRows []models.Row
}

type ParseInput struct {
	Rows []models.Row
	// HeaderMap is logical key -> header, usually the one Detect returned.
	HeaderMap    map[string]string
	UserTimezone string
	AssetClass   models.AssetClass
	// StartRow offsets row numbers when a file is parsed in chunks.
	StartRow int
}

type ParseOutput struct {
	Fills    []models.NormalizedFill
	Warnings []string
	Errors   []importerrors.ImportError
}

// HasAll is the case-insensitive header signature check used by Detect.
func HasAll(headers []string, names ...string) bool {
	return utils.NewHeaderSet(headers).Has(names...)
}

// SampleValue returns the first non-empty value of any candidate column in
// the first sample row.
func SampleValue(rows []models.Row, candidates ...string) string {
	if len(rows) == 0 {
		return ""
	}
	for _, c := range candidates {
		if v := utils.RowValue(rows[0], c); v != "" {
			return v
		}
	}
	return ""
}

// Fields reads logical keys from one row through a header map. A key missing
// from the map is looked up as a literal header.
type Fields struct {
	Row       models.Row
	HeaderMap map[string]string
}

func (f Fields) Get(key string) string {
	if h, ok := f.HeaderMap[key]; ok && h != "" {
		if v := utils.RowValue(f.Row, h); v != "" {
			return v
		}
	}
	return utils.RowValue(f.Row, key)
}

// First returns the first non-empty value among keys.
func (f Fields) First(keys ...string) string {
	for _, k := range keys {
		if v := f.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// All returns the values of keys in order, empty strings included. A column
// reached through more than one key is only read once.
func (f Fields) All(keys ...string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		header := k
		if h, ok := f.HeaderMap[k]; ok && h != "" && utils.RowValue(f.Row, h) != "" {
			header = h
		}
		id := utils.NormalizeHeader(header)
		if seen[id] {
			out = append(out, "")
			continue
		}
		seen[id] = true
		out = append(out, utils.RowValue(f.Row, header))
	}
	return out
}

// Collector accumulates a ParseOutput for one broker.
type Collector struct {
	ctx    context.Context
	broker string
	out    ParseOutput
}

func NewCollector(ctx context.Context, broker string) *Collector {
	return &Collector{ctx: ctx, broker: broker}
}

func (c *Collector) Warn(msg string) {
	c.out.Warnings = append(c.out.Warnings, msg)
}

// Fail records a row error and logs it with its details.
func (c *Collector) Fail(rowIndex int, code importerrors.Code, symbolRaw, details string) {
	e := importerrors.New(rowIndex, code, symbolRaw, details)
	importerrors.Log(c.ctx, e, map[string]any{"broker": c.broker})
	c.out.Errors = append(c.out.Errors, e)
}

// Accept validates a fill and keeps it, or records the first violation.
func (c *Collector) Accept(fill models.NormalizedFill) {
	if code, details := Check(fill); code != "" {
		c.Fail(fill.RowIndex, code, fill.Symbol, details)
		return
	}
	c.out.Fills = append(c.out.Fills, fill)
}

// Row runs fn for one row and turns a panic into a PARSE_ERROR so a single
// malformed row never stops the file.
func (c *Collector) Row(rowIndex int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.Fail(rowIndex, importerrors.ParseError, "", fmt.Sprintf("panic: %v", r))
		}
	}()
	fn()
}

func (c *Collector) Output() ParseOutput {
	return c.out
}

// Check applies the rules every adapter enforces on its fills.
func Check(fill models.NormalizedFill) (importerrors.Code, string) {
	switch {
	case strings.TrimSpace(fill.Symbol) == "":
		return importerrors.MissingRequired, "symbol is empty"
	case fill.ExecTime.IsZero():
		return importerrors.BadDate, "execution time missing"
	case fill.Quantity == 0 || math.IsNaN(fill.Quantity):
		return importerrors.ZeroQty, fmt.Sprintf("quantity %v", fill.Quantity)
	case fill.Price <= 0 || math.IsNaN(fill.Price):
		return importerrors.BadPrice, fmt.Sprintf("price %v", fill.Price)
	}
	return "", ""
}

// RowNumber is the 1-based data row number of the i-th row of a chunk.
func RowNumber(in ParseInput, i int) int {
	return in.StartRow + i + 1
}

// ExecTime parses a broker timestamp in the user's zone.
func ExecTime(raw, userTimezone string, rowIndex int) (time.Time, error) {
	return normalize.ParseBrokerLocalToUtc(raw, userTimezone, rowIndex)
}

// ApplyOptionMultiplier turns a contract count into shares and records the
// original count in Notes.
func ApplyOptionMultiplier(fill *models.NormalizedFill, multiplier float64) {
	if multiplier <= 0 {
		multiplier = DefaultOptionMultiplier
	}
	contracts := fill.Quantity
	fill.Quantity = contracts * multiplier
	note := "contracts:" + normalize.FormatFloat(contracts)
	if fill.Notes != "" {
		note = fill.Notes + ";" + note
	}
	fill.Notes = note
}

// ApplyContract copies decoded option legs onto a fill.
func ApplyContract(fill *models.NormalizedFill, oc normalize.OptionContract) {
	strike := oc.Strike
	fill.Underlying = oc.Underlying
	fill.Expiry = oc.Expiry
	fill.Right = oc.Right
	fill.Strike = &strike
}

// Currency returns v upper-cased, or USD.
func Currency(v string) string {
	if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
		return v
	}
	return "USD"
}

// Symbol upper-cases and trims a ticker cell.
func Symbol(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

// RowSpec is the raw text of the columns most adapters read.
type RowSpec struct {
	Symbol   string
	Side     string
	Quantity string
	Price    string
	Time     string
	Fees     []string
	Currency string
}

// Build turns a RowSpec into a fill with side, signed quantity, fees and UTC
// time resolved. ok is false when the row was rejected and recorded.
func (c *Collector) Build(rowIndex int, in ParseInput, row models.Row, spec RowSpec) (models.NormalizedFill, bool) {
	symbol := Symbol(spec.Symbol)
	if symbol == "" {
		c.Fail(rowIndex, importerrors.MissingRequired, "", "symbol is empty")
		return models.NormalizedFill{}, false
	}
	exec, err := ExecTime(spec.Time, in.UserTimezone, rowIndex)
	if err != nil {
		c.Fail(rowIndex, importerrors.BadDate, symbol, err.Error())
		return models.NormalizedFill{}, false
	}
	side, qty := normalize.NormalizeSideAndQuantity(spec.Side, normalize.ParseNumber(spec.Quantity))

	return models.NormalizedFill{
		SourceBroker: c.broker,
		AssetClass:   in.AssetClass,
		Symbol:       symbol,
		Quantity:     qty,
		Price:        normalize.ParseNumber(spec.Price),
		Fees:         normalize.SumFees(spec.Fees...),
		Currency:     Currency(spec.Currency),
		Side:         side,
		ExecTime:     exec,
		RowIndex:     rowIndex,
		Raw:          row,
	}, true
}

// AssetClassOr returns the requested class, or def when none was given.
func AssetClassOr(in ParseInput, def models.AssetClass) models.AssetClass {
	if in.AssetClass != "" {
		return in.AssetClass
	}
	return def
}
