package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/username/tradejournal/src/database"
	"github.com/username/tradejournal/src/importerrors"
	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/processors"
)

// DefaultBatchSize is the number of trades per upsert batch.
const DefaultBatchSize = 50

// UpsertSummary mirrors the counters under the names the import summary uses.
type UpsertSummary struct {
	TotalProcessed  int `json:"totalProcessed"`
	NewTrades       int `json:"newTrades"`
	DuplicateTrades int `json:"duplicateTrades"`
	ErrorTrades     int `json:"errorTrades"`
}

type UpsertResult struct {
	Inserted          int                        `json:"inserted"`
	DuplicatesSkipped int                        `json:"duplicatesSkipped"`
	Skipped           int                        `json:"skipped"`
	Errors            int                        `json:"errors"`
	ErrorDetails      []importerrors.ImportError `json:"errorDetails"`
	Summary           UpsertSummary              `json:"summary"`
}

func (r *UpsertResult) merge(o UpsertResult) {
	r.Inserted += o.Inserted
	r.DuplicatesSkipped += o.DuplicatesSkipped
	r.Skipped += o.Skipped
	r.Errors += o.Errors
	r.ErrorDetails = append(r.ErrorDetails, o.ErrorDetails...)
	r.Summary.TotalProcessed += o.Summary.TotalProcessed
	r.Summary.NewTrades += o.Summary.NewTrades
	r.Summary.DuplicateTrades += o.Summary.DuplicateTrades
	r.Summary.ErrorTrades += o.Summary.ErrorTrades
}

// SingleUpsert is the outcome of one trade.
type SingleUpsert struct {
	Success   bool
	Duplicate bool
	ID        string
	Error     *importerrors.ImportError
}

type UpsertOptions struct {
	DryRun bool
}

type UpsertService struct {
	store TradeStore
	now   func() time.Time
}

func NewUpsertService(store TradeStore) *UpsertService {
	return &UpsertService{store: store, now: time.Now}
}

// CheckTradeExists reports whether key is stored for userID. A failed query
// counts as "not stored"; the unique constraint still guards the insert.
func (s *UpsertService) CheckTradeExists(ctx context.Context, userID, key string) bool {
	exists, err := s.store.Exists(ctx, userID, key)
	if err != nil {
		logger.FromContext(ctx).Warn("Duplicate check failed, assuming new trade", "userID", userID, "key", key, "error", err)
		return false
	}
	return exists
}

// UpsertSingleTrade inserts rec unless it already exists. In dry-run mode
// everything but the insert happens.
func (s *UpsertService) UpsertSingleTrade(ctx context.Context, userID string, rec models.TradeRecord, dryRun bool) SingleUpsert {
	if s.CheckTradeExists(ctx, userID, rec.IdempotencyKey) {
		return s.duplicate(ctx, rec)
	}
	if dryRun {
		return SingleUpsert{Success: true}
	}
	id, err := s.store.Insert(ctx, rec)
	if errors.Is(err, database.ErrDuplicateKey) {
		return s.duplicate(ctx, rec)
	}
	if err != nil {
		e := importerrors.New(rec.Meta.RowIndex, importerrors.ParseError, rec.SymbolRaw, err.Error())
		importerrors.Log(ctx, e, map[string]any{"stage": "insert", "broker": rec.Broker, "userID": userID})
		return SingleUpsert{Error: &e}
	}
	return SingleUpsert{Success: true, ID: id}
}

func (s *UpsertService) duplicate(ctx context.Context, rec models.TradeRecord) SingleUpsert {
	e := importerrors.New(rec.Meta.RowIndex, importerrors.Duplicate, rec.SymbolRaw, "idempotency key "+rec.IdempotencyKey)
	importerrors.Log(ctx, e, map[string]any{"stage": "dedupe", "broker": rec.Broker})
	return SingleUpsert{Success: true, Duplicate: true}
}

// UpsertTrades persists the filled trades in dtos, in order.
func (s *UpsertService) UpsertTrades(ctx context.Context, userID string, dtos []models.TradeDTO, opts UpsertOptions) UpsertResult {
	res := UpsertResult{ErrorDetails: []importerrors.ImportError{}}
	now := s.now()
	for _, dto := range dtos {
		if !dto.IsFilled() {
			res.Skipped++
			continue
		}
		res.Summary.TotalProcessed++

		out := s.UpsertSingleTrade(ctx, userID, processors.BuildTradeRecord(userID, dto, now), opts.DryRun)
		switch {
		case out.Duplicate:
			res.DuplicatesSkipped++
			res.Summary.DuplicateTrades++
		case out.Success:
			res.Inserted++
			res.Summary.NewTrades++
		default:
			res.Errors++
			res.Summary.ErrorTrades++
			if out.Error != nil {
				res.ErrorDetails = append(res.ErrorDetails, *out.Error)
			}
		}
	}
	return res
}

// BatchUpsertTrades runs UpsertTrades over fixed-size batches. A batch that
// fails as a whole counts every trade in it as an error and is not retried.
func (s *UpsertService) BatchUpsertTrades(ctx context.Context, userID string, dtos []models.TradeDTO, batchSize int, opts UpsertOptions) UpsertResult {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	total := UpsertResult{ErrorDetails: []importerrors.ImportError{}}
	for start := 0; start < len(dtos); start += batchSize {
		end := start + batchSize
		if end > len(dtos) {
			end = len(dtos)
		}
		batch := dtos[start:end]
		res, err := s.runBatch(ctx, userID, batch, opts)
		if err != nil {
			logger.FromContext(ctx).Error("Upsert batch failed", "userID", userID, "batchStart", start, "batchSize", len(batch), "error", err)
			res = UpsertResult{Errors: len(batch)}
			res.Summary.TotalProcessed = len(batch)
			res.Summary.ErrorTrades = len(batch)
			for _, dto := range batch {
				res.ErrorDetails = append(res.ErrorDetails, importerrors.New(dto.RowIndex, importerrors.ParseError, dto.SymbolRaw, err.Error()))
			}
		}
		total.merge(res)
	}
	return total
}

func (s *UpsertService) runBatch(ctx context.Context, userID string, batch []models.TradeDTO, opts UpsertOptions) (res UpsertResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during upsert batch: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return UpsertResult{}, err
	}
	return s.UpsertTrades(ctx, userID, batch, opts), nil
}

// GetExistingTrades returns which keys userID already has. Errors yield an
// empty set.
func (s *UpsertService) GetExistingTrades(ctx context.Context, userID string, keys []string) map[string]struct{} {
	found, err := s.store.ExistingKeys(ctx, userID, keys)
	if err != nil {
		logger.FromContext(ctx).Warn("Existing key lookup failed", "userID", userID, "keys", len(keys), "error", err)
		return map[string]struct{}{}
	}
	return found
}
