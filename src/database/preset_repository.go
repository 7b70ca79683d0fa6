package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/username/tradejournal/src/models"
)

// PresetRepository stores user mapping presets. Saving a preset under an
// existing name replaces its mapping.
type PresetRepository struct {
	db     *sql.DB
	driver string
}

func NewPresetRepository(db *sql.DB, driver string) *PresetRepository {
	return &PresetRepository{db: db, driver: driver}
}

func (r *PresetRepository) Save(ctx context.Context, p *models.MappingPreset) error {
	data, err := json.Marshal(p.Mapping)
	if err != nil {
		return fmt.Errorf("failed to encode preset mapping: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO mapping_presets (user_id, name, broker_key, mapping, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET broker_key = excluded.broker_key, mapping = excluded.mapping
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, rebind(r.driver, query), p.UserID, p.Name, p.BrokerKey, string(data), p.CreatedAt).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to save preset %q: %w", p.Name, err)
	}
	return nil
}

func (r *PresetRepository) Get(ctx context.Context, userID string, id int64) (*models.MappingPreset, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, presetSelect+` WHERE user_id = ? AND id = ?`), userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load preset: %w", err)
	}
	presets, err := scanPresets(rows)
	if err != nil {
		return nil, err
	}
	if len(presets) == 0 {
		return nil, ErrNotFound
	}
	return &presets[0], nil
}

func (r *PresetRepository) List(ctx context.Context, userID string) ([]models.MappingPreset, error) {
	rows, err := r.db.QueryContext(ctx, rebind(r.driver, presetSelect+` WHERE user_id = ? ORDER BY name`), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list presets: %w", err)
	}
	return scanPresets(rows)
}

const presetSelect = `SELECT id, user_id, name, broker_key, mapping, created_at FROM mapping_presets`

func scanPresets(rows *sql.Rows) ([]models.MappingPreset, error) {
	defer rows.Close()
	out := []models.MappingPreset{}
	for rows.Next() {
		var p models.MappingPreset
		var brokerKey sql.NullString
		var raw []byte
		var createdAt any
		if err := rows.Scan(&p.ID, &p.UserID, &p.Name, &brokerKey, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan preset: %w", err)
		}
		p.BrokerKey = brokerKey.String
		if err := json.Unmarshal(raw, &p.Mapping); err != nil {
			return nil, fmt.Errorf("failed to decode preset %d: %w", p.ID, err)
		}
		t, err := scanTime(createdAt)
		if err != nil {
			return nil, err
		}
		p.CreatedAt = t
		out = append(out, p)
	}
	return out, rows.Err()
}
