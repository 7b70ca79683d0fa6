package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/tradejournal/src/models"
)

var (
	ErrUploadNotFound  = errors.New("upload not found or expired")
	ErrJobNotFound     = errors.New("import job not found or expired")
	ErrInvalidMapping  = errors.New("invalid column mapping")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrUnknownBroker   = errors.New("unknown broker")
	ErrParsingFailed   = errors.New("failed to read uploaded file")
	ErrMissingIdentity = errors.New("user id is required")
)

// TradeStore is the persistence the upsert engine needs. Insert must return
// an error wrapping database.ErrDuplicateKey on a unique-key violation.
type TradeStore interface {
	Exists(ctx context.Context, userID, key string) (bool, error)
	Insert(ctx context.Context, rec models.TradeRecord) (string, error)
	ExistingKeys(ctx context.Context, userID string, keys []string) (map[string]struct{}, error)
	Ping(ctx context.Context) error
}

// ImportRunStore records chunked commits.
type ImportRunStore interface {
	Create(ctx context.Context, run *models.ImportRun) error
	AddProgress(ctx context.Context, id int64, processed, added, duplicates, errs int) error
	Finish(ctx context.Context, id int64, status string, at time.Time) error
	ExpireStale(ctx context.Context, cutoff time.Time) (int64, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ImportRun, error)
}
