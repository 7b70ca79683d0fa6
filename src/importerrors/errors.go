// Package importerrors is the closed taxonomy of row-level import failures.
// Messages are static and safe to show to users; Details never leave the
// server.
package importerrors

import (
	"context"

	"github.com/username/tradejournal/src/logger"
)

type Code string

const (
	ParseError      Code = "PARSE_ERROR"
	BadDate         Code = "BAD_DATE"
	BadPrice        Code = "BAD_PRICE"
	ZeroQty         Code = "ZERO_QTY"
	Cancelled       Code = "CANCELLED"
	Duplicate       Code = "DUPLICATE"
	MissingRequired Code = "MISSING_REQUIRED"
)

const unknownMessage = "Unknown error occurred during import."

var messages = map[Code]string{
	ParseError:      "Unable to parse trade data. Please check the row format.",
	BadDate:         "Invalid date format. Please ensure dates are in MM/DD/YYYY or YYYY-MM-DD format.",
	BadPrice:        "Invalid price format. Please ensure prices are positive numbers.",
	ZeroQty:         "Zero quantity detected. Only filled trades with positive quantities are imported.",
	Cancelled:       "Order was cancelled. Only filled trades are imported.",
	Duplicate:       "This trade already exists in your account. Duplicates are automatically skipped.",
	MissingRequired: "Required field is missing. Please check that all necessary columns are present.",
}

// AllCodes lists every code in a stable order.
func AllCodes() []Code {
	return []Code{ParseError, BadDate, BadPrice, ZeroQty, Cancelled, Duplicate, MissingRequired}
}

// Message returns the user-facing text for code.
func Message(code Code) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return unknownMessage
}

// ImportError is one failed row.
type ImportError struct {
	RowIndex  int    `json:"rowIndex"`
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	SymbolRaw string `json:"symbolRaw,omitempty"`
	Details   string `json:"-"`
}

func (e ImportError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// New builds an ImportError whose message comes from the static table.
func New(rowIndex int, code Code, symbolRaw, details string) ImportError {
	return ImportError{
		RowIndex:  rowIndex,
		Code:      code,
		Message:   Message(code),
		SymbolRaw: symbolRaw,
		Details:   details,
	}
}

// Summary counts errors per code. Every known code is present, possibly 0.
func Summary(errs []ImportError) map[Code]int {
	out := make(map[Code]int, len(messages))
	for _, c := range AllCodes() {
		out[c] = 0
	}
	for _, e := range errs {
		out[e.Code]++
	}
	return out
}

// ErrorResponse is the client-facing aggregate of row errors.
type ErrorResponse struct {
	Errors       []ImportError `json:"errors"`
	TotalErrors  int           `json:"totalErrors"`
	ErrorSummary map[Code]int  `json:"errorSummary"`
}

func NewErrorResponse(errs []ImportError) ErrorResponse {
	if errs == nil {
		errs = []ImportError{}
	}
	return ErrorResponse{
		Errors:       errs,
		TotalErrors:  len(errs),
		ErrorSummary: Summary(errs),
	}
}

// Preview returns at most n errors.
func Preview(errs []ImportError, n int) []ImportError {
	if len(errs) <= n {
		return append([]ImportError{}, errs...)
	}
	return append([]ImportError{}, errs[:n]...)
}

// Skip buckets used by import summaries.
const (
	BucketCancelled  = "cancelled"
	BucketZeroQty    = "zeroQty"
	BucketZeroPrice  = "zeroPrice"
	BucketBadDate    = "badDate"
	BucketParseError = "parseError"
)

// Bucket names the single skip bucket a row failing with code is counted in.
func Bucket(code Code) string {
	switch code {
	case Cancelled:
		return BucketCancelled
	case ZeroQty:
		return BucketZeroQty
	case BadPrice:
		return BucketZeroPrice
	case BadDate:
		return BucketBadDate
	default:
		return BucketParseError
	}
}

// Log records an import error server side, including Details. It never
// panics and never blocks the pipeline.
func Log(ctx context.Context, e ImportError, fields map[string]any) {
	defer func() { _ = recover() }()

	args := []any{
		"rowIndex", e.RowIndex,
		"code", string(e.Code),
		"symbolRaw", e.SymbolRaw,
		"details", e.Details,
	}
	for k, v := range fields {
		args = append(args, k, v)
	}
	logger.FromContext(ctx).Warn("Import row error", args...)
}
