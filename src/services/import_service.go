package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/processors"
)

const (
	errorPreviewLimit   = 10
	skippedPreviewLimit = 10

	rollbackError   = "Import failed due to a database error"
	rollbackMessage = "The import was rolled back to prevent partial data. Please try again."
)

// ImportContext carries what the row parser learned about the file so the
// response can report it next to the upsert counters.
type ImportContext struct {
	Broker      string
	Summary     processors.ImportSummary
	Errors      []importerrors.ImportError
	SkippedRows []processors.SkippedRow
	BatchSize   int
	DryRun      bool
}

// ContextFromResult builds an ImportContext from a row parser result.
func ContextFromResult(broker string, res processors.ProcessResult) ImportContext {
	return ImportContext{
		Broker:      broker,
		Summary:     res.Summary,
		Errors:      res.Errors,
		SkippedRows: res.SkippedRows,
	}
}

type ImportStats struct {
	TotalRows         int `json:"totalRows"`
	Inserted          int `json:"inserted"`
	DuplicatesSkipped int `json:"duplicatesSkipped"`
	Skipped           int `json:"skipped"`
	Errors            int `json:"errors"`
}

// ImportResponse is returned for both outcomes; Stats is only set on success.
type ImportResponse struct {
	Success          bool                       `json:"success"`
	RollbackRequired bool                       `json:"rollbackRequired,omitempty"`
	Error            string                     `json:"error,omitempty"`
	Message          string                     `json:"message"`
	Details          string                     `json:"details,omitempty"`
	Profiling        processors.ImportSummary   `json:"profiling"`
	Stats            *ImportStats               `json:"stats,omitempty"`
	Errors           []importerrors.ImportError `json:"errors"`
	TotalErrors      int                        `json:"totalErrors"`
	ErrorSummary     map[importerrors.Code]int  `json:"errorSummary"`
	SkippedRows      []processors.SkippedRow    `json:"skippedRows"`
}

type ImportService struct {
	store  TradeStore
	upsert *UpsertService
}

func NewImportService(store TradeStore) *ImportService {
	return &ImportService{store: store, upsert: NewUpsertService(store)}
}

// ImportTrades validates the batch, upserts it and decides whether the result
// can be reported as a success. rollbackRequired is advisory: rows inserted
// before an abort stay in the store.
func (s *ImportService) ImportTrades(ctx context.Context, userID string, trades []models.TradeDTO, ic ImportContext) ImportResponse {
	start := time.Now()
	log := logger.FromContext(ctx)
	log.Info("ImportTrades START", "userID", userID, "broker", ic.Broker, "trades", len(trades), "dryRun", ic.DryRun)

	if err := s.preValidate(ctx, userID, trades); err != nil {
		log.Warn("Import pre-validation failed", "userID", userID, "error", err)
		return errorResponse(ic, "Pre-validation failed: "+err.Error(), nil)
	}

	res := s.upsert.BatchUpsertTrades(ctx, userID, trades, ic.BatchSize, UpsertOptions{DryRun: ic.DryRun})
	total := len(trades)

	switch {
	case res.Errors > 0 && res.Inserted == 0:
		log.Error("Import aborted, every trade failed", "userID", userID, "errors", res.Errors)
		return errorResponse(ic, fmt.Sprintf("All %d trades failed to import. No data was saved.", total), res.ErrorDetails)
	case float64(res.Errors) > 0.5*float64(total):
		log.Error("Import aborted, too many failures", "userID", userID, "errors", res.Errors, "total", total)
		return errorResponse(ic, fmt.Sprintf("Too many failures (%d/%d). Import aborted to prevent data corruption.", res.Errors, total), res.ErrorDetails)
	}

	log.Info("ImportTrades END", "userID", userID, "inserted", res.Inserted, "duplicates", res.DuplicatesSkipped,
		"errors", res.Errors, "duration", time.Since(start))
	return successResponse(ic, res)
}

func (s *ImportService) preValidate(ctx context.Context, userID string, trades []models.TradeDTO) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingIdentity
	}
	for i, t := range trades {
		var missing []string
		if t.Symbol == "" {
			missing = append(missing, "symbol")
		}
		if t.Side == "" {
			missing = append(missing, "side")
		}
		if t.ExecutedAt.IsZero() {
			missing = append(missing, "executedAt")
		}
		if !(t.Quantity > 0) {
			missing = append(missing, "quantity")
		}
		if !(t.Price > 0) {
			missing = append(missing, "price")
		}
		if t.Broker == "" {
			missing = append(missing, "broker")
		}
		if t.AssetType == "" {
			missing = append(missing, "assetType")
		}
		if len(missing) > 0 {
			return fmt.Errorf("trade %d (row %d) has invalid %s", i, t.RowIndex, strings.Join(missing, ", "))
		}
	}
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("trade store unavailable: %w", err)
	}
	return nil
}

func errorResponse(ic ImportContext, details string, upsertErrors []importerrors.ImportError) ImportResponse {
	profiling := ic.Summary
	profiling.ImportedRows = 0
	all := append(append([]importerrors.ImportError{}, ic.Errors...), upsertErrors...)
	return ImportResponse{
		Success:          false,
		RollbackRequired: true,
		Error:            rollbackError,
		Message:          rollbackMessage,
		Details:          details,
		Profiling:        profiling,
		Errors:           importerrors.Preview(all, errorPreviewLimit),
		TotalErrors:      len(all),
		ErrorSummary:     importerrors.Summary(all),
		SkippedRows:      skippedPreview(ic.SkippedRows),
	}
}

func successResponse(ic ImportContext, res UpsertResult) ImportResponse {
	profiling := ic.Summary
	profiling.ImportedRows = res.Inserted
	all := append(append([]importerrors.ImportError{}, ic.Errors...), res.ErrorDetails...)
	return ImportResponse{
		Success:   true,
		Message:   brokerLabel(ic.Broker) + " import completed successfully",
		Profiling: profiling,
		Stats: &ImportStats{
			TotalRows:         ic.Summary.TotalRows,
			Inserted:          res.Inserted,
			DuplicatesSkipped: res.DuplicatesSkipped,
			Skipped:           ic.Summary.Skipped.Total(),
			Errors:            res.Errors,
		},
		Errors:       importerrors.Preview(all, errorPreviewLimit),
		TotalErrors:  len(all),
		ErrorSummary: importerrors.Summary(all),
		SkippedRows:  skippedPreview(ic.SkippedRows),
	}
}

func skippedPreview(rows []processors.SkippedRow) []processors.SkippedRow {
	if len(rows) > skippedPreviewLimit {
		rows = rows[:skippedPreviewLimit]
	}
	return append([]processors.SkippedRow{}, rows...)
}

func brokerLabel(broker string) string {
	if broker == "" {
		return "Manual"
	}
	return strings.ToUpper(broker[:1]) + broker[1:]
}
