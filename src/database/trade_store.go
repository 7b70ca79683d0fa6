package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"

	"github.com/username/tradejournal/src/models"
)

// keyLookupChunk bounds the IN list of ExistingKeys on sqlite.
const keyLookupChunk = 500

// SQLTradeStore persists trades in sqlite or postgres. The
// UNIQUE(user_id, idempotency_key) constraint is the final duplicate guard.
type SQLTradeStore struct {
	db     *sql.DB
	driver string
}

func NewSQLTradeStore(db *sql.DB, driver string) *SQLTradeStore {
	return &SQLTradeStore{db: db, driver: driver}
}

func (s *SQLTradeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLTradeStore) Exists(ctx context.Context, userID, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		rebind(s.driver, `SELECT 1 FROM trades WHERE user_id = ? AND idempotency_key = ? LIMIT 1`),
		userID, key,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return true, nil
}

// Insert stores rec and returns its id. A unique violation is reported as
// ErrDuplicateKey.
func (s *SQLTradeStore) Insert(ctx context.Context, rec models.TradeRecord) (string, error) {
	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode trade meta: %w", err)
	}
	query := `INSERT INTO trades (
		user_id, broker, external_id, idempotency_key, asset_type, symbol, symbol_raw,
		side, qty, price, fees, commission, executed_at, group_key, instrument_type,
		opened_at, qty_opened, meta
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		rec.UserID, rec.Broker, rec.ExternalID, rec.IdempotencyKey, rec.AssetType, rec.Symbol, rec.SymbolRaw,
		rec.Side, rec.Qty, rec.Price, rec.Fees, rec.Commission, rec.ExecutedAt, rec.GroupKey, rec.InstrumentType,
		rec.OpenedAt, rec.QtyOpened, string(meta),
	}

	if s.driver == DriverPostgres {
		var id int64
		err = s.db.QueryRowContext(ctx, rebind(s.driver, query)+" RETURNING id", args...).Scan(&id)
		if err != nil {
			return "", s.insertError(err)
		}
		return strconv.FormatInt(id, 10), nil
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return "", s.insertError(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", fmt.Errorf("failed to read inserted trade id: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *SQLTradeStore) insertError(err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", ErrDuplicateKey, err)
	}
	return fmt.Errorf("failed to insert trade: %w", err)
}

// ExistingKeys returns the subset of keys already stored for userID.
func (s *SQLTradeStore) ExistingKeys(ctx context.Context, userID string, keys []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	if s.driver == DriverPostgres {
		rows, err := s.db.QueryContext(ctx,
			`SELECT idempotency_key FROM trades WHERE user_id = $1 AND idempotency_key = ANY($2)`,
			userID, pq.Array(keys),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing keys: %w", err)
		}
		return found, collectKeys(rows, found)
	}

	for start := 0; start < len(keys); start += keyLookupChunk {
		end := start + keyLookupChunk
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]
		args := make([]any, 0, len(chunk)+1)
		args = append(args, userID)
		for _, k := range chunk {
			args = append(args, k)
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		rows, err := s.db.QueryContext(ctx,
			`SELECT idempotency_key FROM trades WHERE user_id = ? AND idempotency_key IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query existing keys: %w", err)
		}
		if err := collectKeys(rows, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func collectKeys(rows *sql.Rows, into map[string]struct{}) error {
	defer rows.Close()
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return fmt.Errorf("failed to scan idempotency key: %w", err)
		}
		into[k] = struct{}{}
	}
	return rows.Err()
}

// CountByUser returns how many trades userID has stored.
func (s *SQLTradeStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, rebind(s.driver, `SELECT COUNT(*) FROM trades WHERE user_id = ?`), userID).Scan(&n)
	return n, err
}

// MemoryTradeStore is an in-process store for dry runs and tests. It
// enforces the same per-user key uniqueness as the SQL schema.
type MemoryTradeStore struct {
	mu     sync.Mutex
	nextID int
	trades map[string]map[string]models.TradeRecord

	// InsertErr, when set, is consulted before every insert.
	InsertErr func(rec models.TradeRecord) error
	// QueryErr, when set, fails Exists and ExistingKeys.
	QueryErr error
	// PingErr is returned by Ping.
	PingErr error
}

func NewMemoryTradeStore() *MemoryTradeStore {
	return &MemoryTradeStore{trades: map[string]map[string]models.TradeRecord{}}
}

func (m *MemoryTradeStore) Ping(context.Context) error { return m.PingErr }

func (m *MemoryTradeStore) Exists(_ context.Context, userID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return false, m.QueryErr
	}
	_, ok := m.trades[userID][key]
	return ok, nil
}

func (m *MemoryTradeStore) Insert(_ context.Context, rec models.TradeRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		if err := m.InsertErr(rec); err != nil {
			return "", err
		}
	}
	byKey, ok := m.trades[rec.UserID]
	if !ok {
		byKey = map[string]models.TradeRecord{}
		m.trades[rec.UserID] = byKey
	}
	if _, dup := byKey[rec.IdempotencyKey]; dup {
		return "", fmt.Errorf("%w: %s", ErrDuplicateKey, rec.IdempotencyKey)
	}
	m.nextID++
	rec.ID = strconv.Itoa(m.nextID)
	byKey[rec.IdempotencyKey] = rec
	return rec.ID, nil
}

func (m *MemoryTradeStore) ExistingKeys(_ context.Context, userID string, keys []string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	found := map[string]struct{}{}
	for _, k := range keys {
		if _, ok := m.trades[userID][k]; ok {
			found[k] = struct{}{}
		}
	}
	return found, nil
}

// Trades returns a copy of userID's stored trades.
func (m *MemoryTradeStore) Trades(userID string) []models.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.TradeRecord, 0, len(m.trades[userID]))
	for _, rec := range m.trades[userID] {
		out = append(out, rec)
	}
	return out
}
