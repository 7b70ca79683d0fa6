// Package mapping turns file headers into the canonical trade fields, from
// adapter detections, broker presets or a user's manual choices.
package mapping

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/username/tradejournal/src/models"
	"github.com/username/tradejournal/src/processors"
	"github.com/username/tradejournal/src/utils"
)

type CanonicalField struct {
	Key      string `json:"key"`
	Label    string `json:"label"`
	Required bool   `json:"required"`
}

// CanonicalFields in display order. The first five are required.
var CanonicalFields = []CanonicalField{
	{Key: models.FieldTimestamp, Label: "Timestamp", Required: true},
	{Key: models.FieldSymbol, Label: "Symbol", Required: true},
	{Key: models.FieldSide, Label: "Side", Required: true},
	{Key: models.FieldQuantity, Label: "Quantity", Required: true},
	{Key: models.FieldPrice, Label: "Price", Required: true},
	{Key: models.FieldFees, Label: "Fees"},
	{Key: models.FieldCurrency, Label: "Currency"},
	{Key: models.FieldVenue, Label: "Venue"},
	{Key: models.FieldOrderID, Label: "Order ID"},
	{Key: models.FieldExecID, Label: "Execution ID"},
	{Key: models.FieldInstrumentType, Label: "Instrument Type"},
	{Key: models.FieldExpiry, Label: "Expiry"},
	{Key: models.FieldStrike, Label: "Strike"},
	{Key: models.FieldOptionType, Label: "Option Type"},
	{Key: models.FieldMultiplier, Label: "Multiplier"},
	{Key: models.FieldUnderlying, Label: "Underlying"},
	{Key: models.FieldStatus, Label: "Status"},
}

var (
	ErrUnknownPreset = errors.New("unknown mapping preset")
	ErrInvalidPreset = errors.New("invalid mapping preset")

	//go:embed presets.yaml
	presetsYAML []byte

	presetOrder = []string{"robinhood", "ibkr", "fidelity", "schwab", "webull", "etrade", "tasty", "test"}
	presets     = mustLoadPresets(presetsYAML)
)

// Mapping is canonical field -> file header.
type Mapping map[string]string

// FieldMap hands the mapping to the row processor.
func (m Mapping) FieldMap() processors.FieldMap {
	fm := make(processors.FieldMap, len(m))
	for k, v := range m {
		fm[k] = v
	}
	return fm
}

type Preset struct {
	Key    string            `yaml:"-" json:"key"`
	Label  string            `yaml:"label" json:"label"`
	Fields map[string]string `yaml:"fields" json:"fields"`
}

func mustLoadPresets(data []byte) map[string]Preset {
	var out map[string]Preset
	if err := yaml.Unmarshal(data, &out); err != nil {
		panic(fmt.Sprintf("mapping: invalid embedded presets: %v", err))
	}
	for k, p := range out {
		p.Key = k
		out[k] = p
	}
	return out
}

// Presets lists the built-in broker presets.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, k := range presetOrder {
		if p, ok := presets[k]; ok {
			out = append(out, p)
		}
	}
	return out
}

func isCanonical(key string) bool {
	for _, f := range CanonicalFields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// sourceKeys lists, per canonical field, the adapter and row-processor keys
// that feed it, in priority order.
var sourceKeys = map[string][]string{
	models.FieldTimestamp:  {models.FieldTimestamp, "time", "date", models.FieldPlacedTime},
	models.FieldSymbol:     {models.FieldSymbol, "instrument"},
	models.FieldSide:       {models.FieldSide, "action"},
	models.FieldQuantity:   {models.FieldFilled, models.FieldFilledQty, models.FieldQuantity, "qty"},
	models.FieldPrice:      {models.FieldPrice, models.FieldAvgPrice},
	models.FieldFees:       {models.FieldFees, "fee", "fee1", models.FieldCommission},
	models.FieldOrderID:    {models.FieldOrderID, "order", "orderId"},
	models.FieldExecID:     {models.FieldExecID, "tradeId"},
	models.FieldOptionType: {models.FieldOptionType, "putcall", "type"},
	models.FieldExpiry:     {models.FieldExpiry, "expiration"},
}

// NewMapping converts a detection header map into a Mapping, dropping empty
// values and keys with no canonical meaning.
func NewMapping(headerMap map[string]string) Mapping {
	m := Mapping{}
	for _, f := range CanonicalFields {
		keys, ok := sourceKeys[f.Key]
		if !ok {
			keys = []string{f.Key}
		}
		for _, k := range keys {
			if h := strings.TrimSpace(headerMap[k]); h != "" {
				m[f.Key] = h
				break
			}
		}
	}
	return m
}

// ApplyPreset keeps the preset entries whose header exists in headers,
// using the file's own spelling of the header.
func ApplyPreset(key string, headers []string) (Mapping, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPreset, key)
	}
	hs := utils.NewHeaderSet(headers)
	m := Mapping{}
	for field, header := range p.Fields {
		if actual, ok := hs.Actual(header); ok {
			m[field] = actual
		}
	}
	return m, nil
}

// Validate reports every missing required field and any header mapped to
// more than one field. An empty result means the mapping is usable.
func Validate(m Mapping) []string {
	var errs []string
	for _, f := range CanonicalFields {
		if f.Required && strings.TrimSpace(m[f.Key]) == "" {
			errs = append(errs, "Missing required field: "+f.Label)
		}
	}
	seen := map[string]bool{}
	for _, h := range m {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			continue
		}
		if seen[h] {
			errs = append(errs, "Duplicate header mappings detected")
			break
		}
		seen[h] = true
	}
	return errs
}

var webullAutoHeaders = []string{"Name", "Filled Time", "Side", "Filled", "Avg Price"}

// SuggestPreset recognises exports the wizard can map without user input.
// Only Webull order exports are recognised today.
func SuggestPreset(headers []string) (Mapping, string, bool) {
	hs := utils.NewHeaderSet(headers)
	if !hs.Has(webullAutoHeaders...) {
		return nil, "", false
	}
	m := Mapping{}
	for field, header := range map[string]string{
		models.FieldTimestamp: "Filled Time",
		models.FieldSymbol:    "Name",
		models.FieldSide:      "Side",
		models.FieldQuantity:  "Filled",
		models.FieldPrice:     "Avg Price",
		models.FieldFees:      "Fees",
		models.FieldOrderID:   "Order ID",
		models.FieldExecID:    "Exec ID",
		models.FieldStatus:    "Status",
	} {
		if actual, ok := hs.Actual(header); ok {
			m[field] = actual
		}
	}
	return m, "webull", true
}

// AutoMap guesses a mapping from header names alone.
func AutoMap(headers []string) Mapping {
	return NewMapping(processors.BuildFieldMap(headers))
}

// Suggest picks the best starting mapping for an upload: the detected
// adapter's header map, then a recognised preset, then header-name guessing.
func Suggest(headers []string, det *models.DetectionResult) (Mapping, string) {
	if det != nil {
		if m := NewMapping(det.HeaderMap); len(Validate(m)) == 0 {
			return m, det.BrokerID
		}
	}
	if m, key, ok := SuggestPreset(headers); ok {
		return m, key
	}
	return AutoMap(headers), ""
}

// Sanitize drops unknown fields and blank headers from a client mapping.
func Sanitize(m map[string]string) Mapping {
	out := Mapping{}
	for k, v := range m {
		k = strings.ToLower(strings.TrimSpace(k))
		if v = strings.TrimSpace(v); v != "" && isCanonical(k) {
			out[k] = v
		}
	}
	return out
}

// Keys returns the mapped fields sorted, for stable logging.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PresetStore persists user-defined presets.
type PresetStore interface {
	Save(ctx context.Context, preset *models.MappingPreset) error
	Get(ctx context.Context, userID string, id int64) (*models.MappingPreset, error)
	List(ctx context.Context, userID string) ([]models.MappingPreset, error)
}

// SavePreset validates and stores a user preset.
func SavePreset(ctx context.Context, store PresetStore, userID, name, brokerKey string, m Mapping) (*models.MappingPreset, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidPreset)
	}
	if errs := Validate(m); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPreset, strings.Join(errs, "; "))
	}
	preset := &models.MappingPreset{UserID: userID, Name: name, BrokerKey: brokerKey, Mapping: m}
	if err := store.Save(ctx, preset); err != nil {
		return nil, fmt.Errorf("failed to save preset: %w", err)
	}
	return preset, nil
}

// LoadPreset fetches a stored preset and applies it to headers like a
// built-in one.
func LoadPreset(ctx context.Context, store PresetStore, userID string, id int64, headers []string) (Mapping, error) {
	preset, err := store.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	hs := utils.NewHeaderSet(headers)
	m := Mapping{}
	for field, header := range preset.Mapping {
		if actual, ok := hs.Actual(header); ok && isCanonical(field) {
			m[field] = actual
		}
	}
	return m, nil
}
