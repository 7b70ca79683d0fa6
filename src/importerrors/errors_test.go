package importerrors

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessages(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{ParseError, "Unable to parse trade data. Please check the row format."},
		{BadDate, "Invalid date format. Please ensure dates are in MM/DD/YYYY or YYYY-MM-DD format."},
		{BadPrice, "Invalid price format. Please ensure prices are positive numbers."},
		{ZeroQty, "Zero quantity detected. Only filled trades with positive quantities are imported."},
		{Cancelled, "Order was cancelled. Only filled trades are imported."},
		{Duplicate, "This trade already exists in your account. Duplicates are automatically skipped."},
		{MissingRequired, "Required field is missing. Please check that all necessary columns are present."},
		{Code("SOMETHING_ELSE"), "Unknown error occurred during import."},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, Message(tt.code))
		})
	}
}

func TestNewKeepsDetailsOutOfMessage(t *testing.T) {
	e := New(4, BadPrice, "AAPL", "pq: relation \"trades\" does not exist")
	assert.Equal(t, 4, e.RowIndex)
	assert.Equal(t, "AAPL", e.SymbolRaw)
	assert.Equal(t, Message(BadPrice), e.Message)
	assert.NotContains(t, e.Message, "relation")

	payload, err := json.Marshal(e)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "relation")
	assert.NotContains(t, string(payload), "details")
}

func TestSummarySeedsEveryCode(t *testing.T) {
	summary := Summary([]ImportError{
		New(0, ZeroQty, "", ""),
		New(1, ZeroQty, "", ""),
		New(2, BadDate, "", ""),
	})
	assert.Len(t, summary, len(AllCodes()))
	assert.Equal(t, 2, summary[ZeroQty])
	assert.Equal(t, 1, summary[BadDate])
	assert.Equal(t, 0, summary[Duplicate])
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(nil)
	assert.NotNil(t, resp.Errors)
	assert.Equal(t, 0, resp.TotalErrors)
	assert.Equal(t, 0, resp.ErrorSummary[ParseError])

	resp = NewErrorResponse([]ImportError{New(0, Cancelled, "X", "")})
	assert.Equal(t, 1, resp.TotalErrors)
	assert.Equal(t, 1, resp.ErrorSummary[Cancelled])
}

func TestPreview(t *testing.T) {
	var errs []ImportError
	for i := 0; i < 15; i++ {
		errs = append(errs, New(i, ParseError, "", ""))
	}
	assert.Len(t, Preview(errs, 10), 10)
	assert.Len(t, Preview(errs[:3], 10), 3)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, BucketCancelled, Bucket(Cancelled))
	assert.Equal(t, BucketZeroQty, Bucket(ZeroQty))
	assert.Equal(t, BucketZeroPrice, Bucket(BadPrice))
	assert.Equal(t, BucketBadDate, Bucket(BadDate))
	assert.Equal(t, BucketParseError, Bucket(MissingRequired))
	assert.Equal(t, BucketParseError, Bucket(ParseError))
}

func TestLogNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		Log(context.Background(), New(1, ParseError, "AAPL", "boom"), map[string]any{"broker": "webull"})
		Log(context.TODO(), New(1, ParseError, "AAPL", "boom"), nil)
	})
}
