package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/username/tradejournal/src/database"
	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/processors"
)

// failingStore fails the inserts of the first n rows.
func failingStore(n int) *database.MemoryTradeStore {
	store := database.NewMemoryTradeStore()
	store.InsertErr = func(rec models.TradeRecord) error {
		if rec.Meta.RowIndex <= n {
			return errors.New("disk full")
		}
		return nil
	}
	return store
}

func TestImportTradesThresholds(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		wantSuccess bool
		wantDetails string
	}{
		{name: "all inserted", failures: 0, wantSuccess: true},
		{name: "six ok four failed", failures: 4, wantSuccess: true},
		{name: "exactly half failed", failures: 5, wantSuccess: true},
		{name: "four ok six failed", failures: 6, wantDetails: "Too many failures (6/10). Import aborted to prevent data corruption."},
		{name: "two ok eight failed", failures: 8, wantDetails: "Too many failures (8/10). Import aborted to prevent data corruption."},
		{name: "everything failed", failures: 10, wantDetails: "All 10 trades failed to import. No data was saved."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewImportService(failingStore(tt.failures))
			resp := svc.ImportTrades(context.Background(), testUser, makeTrades(10), ImportContext{
				Broker:  "webull",
				Summary: processors.ImportSummary{TotalRows: 11, HeaderRows: 1, ParsedRows: 10, FilledRows: 10},
			})

			assert.Equal(t, tt.wantSuccess, resp.Success)
			if tt.wantSuccess {
				assert.False(t, resp.RollbackRequired)
				assert.Empty(t, resp.Details)
				assert.Equal(t, "Webull import completed successfully", resp.Message)
				require.NotNil(t, resp.Stats)
				assert.Equal(t, 10-tt.failures, resp.Stats.Inserted)
				assert.Equal(t, tt.failures, resp.Stats.Errors)
				assert.Equal(t, 11, resp.Stats.TotalRows)
				assert.Equal(t, 10-tt.failures, resp.Profiling.ImportedRows)
				return
			}
			assert.True(t, resp.RollbackRequired)
			assert.Equal(t, "Import failed due to a database error", resp.Error)
			assert.Equal(t, "The import was rolled back to prevent partial data. Please try again.", resp.Message)
			assert.Equal(t, tt.wantDetails, resp.Details)
			assert.Equal(t, 0, resp.Profiling.ImportedRows)
			assert.Nil(t, resp.Stats)
			assert.Len(t, resp.Errors, tt.failures)
			assert.Equal(t, tt.failures, resp.ErrorSummary[importerrors.ParseError])
		})
	}
}

func TestImportTradesPreValidation(t *testing.T) {
	bad := makeTrades(3)
	bad[2].Price = 0

	tests := []struct {
		name   string
		userID string
		trades []models.TradeDTO
		store  *database.MemoryTradeStore
	}{
		{name: "missing user", userID: "", trades: makeTrades(1), store: database.NewMemoryTradeStore()},
		{name: "zero price", userID: testUser, trades: bad, store: database.NewMemoryTradeStore()},
		{name: "store down", userID: testUser, trades: makeTrades(1), store: func() *database.MemoryTradeStore {
			s := database.NewMemoryTradeStore()
			s.PingErr = errors.New("connection refused")
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := NewImportService(tt.store).ImportTrades(context.Background(), tt.userID, tt.trades, ImportContext{Broker: "webull"})
			assert.False(t, resp.Success)
			assert.True(t, resp.RollbackRequired)
			assert.Contains(t, resp.Details, "Pre-validation failed: ")
			assert.Empty(t, tt.store.Trades(testUser), "no insert is attempted")
		})
	}
}

func TestImportTradesCapsPreviews(t *testing.T) {
	var rowErrs []importerrors.ImportError
	var skipped []processors.SkippedRow
	for i := 0; i < 25; i++ {
		rowErrs = append(rowErrs, importerrors.New(i+2, importerrors.ZeroQty, "TSLA", ""))
		skipped = append(skipped, processors.SkippedRow{RowIndex: i + 2, Reason: importerrors.BucketZeroQty})
	}
	summary := processors.ImportSummary{TotalRows: 28, Skipped: processors.SkipCounts{ZeroQty: 25}}

	resp := NewImportService(database.NewMemoryTradeStore()).ImportTrades(context.Background(), testUser, makeTrades(2), ImportContext{
		Broker:      "robinhood",
		Summary:     summary,
		Errors:      rowErrs,
		SkippedRows: skipped,
	})
	require.True(t, resp.Success)
	assert.Len(t, resp.Errors, 10)
	assert.Equal(t, 25, resp.TotalErrors)
	assert.Equal(t, 25, resp.ErrorSummary[importerrors.ZeroQty])
	assert.Len(t, resp.SkippedRows, 10)
	assert.Equal(t, 25, resp.Stats.Skipped)
}

func TestImportTradesReplayReportsDuplicates(t *testing.T) {
	svc := NewImportService(database.NewMemoryTradeStore())
	trades := makeTrades(6)

	first := svc.ImportTrades(context.Background(), testUser, trades, ImportContext{Broker: "ibkr"})
	require.True(t, first.Success)
	assert.Equal(t, 6, first.Stats.Inserted)

	second := svc.ImportTrades(context.Background(), testUser, trades, ImportContext{Broker: "ibkr"})
	require.True(t, second.Success)
	assert.Equal(t, 0, second.Stats.Inserted)
	assert.Equal(t, 6, second.Stats.DuplicatesSkipped)
}
