package services

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/username/tradejournal/src/logger"
)

// Housekeeper expires import runs left in processing after their upload
// staging has lapsed.
type Housekeeper struct {
	cron *cron.Cron
	runs ImportRunStore
	ttl  time.Duration
	now  func() time.Time
}

func NewHousekeeper(runs ImportRunStore, ttl time.Duration) *Housekeeper {
	return &Housekeeper{
		cron: cron.New(),
		runs: runs,
		ttl:  ttl,
		now:  time.Now,
	}
}

// Schedule registers the expiry job, e.g. "@every 1h".
func (h *Housekeeper) Schedule(spec string) error {
	_, err := h.cron.AddFunc(spec, func() {
		if _, err := h.ExpireStaleRuns(context.Background()); err != nil {
			logger.L.Error("Housekeeping failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	logger.L.Info("Housekeeping job registered", "schedule", spec, "ttl", h.ttl)
	return nil
}

func (h *Housekeeper) Start() {
	h.cron.Start()
}

// Stop waits for a running job to finish.
func (h *Housekeeper) Stop() {
	<-h.cron.Stop().Done()
}

// ExpireStaleRuns marks processing runs older than the ttl as expired.
func (h *Housekeeper) ExpireStaleRuns(ctx context.Context) (int64, error) {
	cutoff := h.now().Add(-h.ttl)
	n, err := h.runs.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.FromContext(ctx).Info("Expired stale import runs", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
