package parsers

import (
	"fmt"

	"github.com/username/tradejournal/src/logger"
	"github.com/username/tradejournal/src/models"
)

// DetectSampleSize is how many data rows callers pass to Detect.
const DetectSampleSize = 50

// Registry holds the adapters in registration order. Build it once at
// startup; it is read-only afterwards.
type Registry struct {
	adapters []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register appends a. Adapters sharing an id are all kept.
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.adapters = append(r.adapters, a)
}

// Adapters returns the registered adapters in order.
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// IDs lists adapter ids in registration order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.adapters))
	for _, a := range r.adapters {
		ids = append(ids, a.ID())
	}
	return ids
}

// Get returns the first adapter registered under id.
func (r *Registry) Get(id string) (Adapter, bool) {
	for _, a := range r.adapters {
		if a.ID() == id {
			return a, true
		}
	}
	return nil, false
}

// Detect asks every adapter and keeps the most confident answer. Ties go to
// the adapter registered first. Adapter errors and panics count as no match.
func (r *Registry) Detect(headers []string, sampleRows []models.Row) *models.DetectionResult {
	in := DetectInput{Headers: headers, SampleRows: sampleRows}
	var best *models.DetectionResult
	for _, a := range r.adapters {
		res, err := safeDetect(a, in)
		if err != nil {
			logger.L.Debug("Adapter detection failed", "adapter", a.ID(), "error", err)
			continue
		}
		if res == nil {
			continue
		}
		if best == nil || res.Confidence > best.Confidence {
			best = res
		}
	}
	return best
}

func safeDetect(a Adapter, in DetectInput) (res *models.DetectionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("panic in detect: %v", r)
		}
	}()
	return a.Detect(in)
}
