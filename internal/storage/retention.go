package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const DefaultRetentionSchedule = "@hourly"

// Retention prunes history older than MaxAge on a cron schedule.
type Retention struct {
	repo   *Repository
	maxAge time.Duration
	logger *slog.Logger
	now    func() time.Time
	cron   *cron.Cron
}

func NewRetention(repo *Repository, maxAge time.Duration, schedule string, logger *slog.Logger) (*Retention, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	r := &Retention{
		repo:   repo,
		maxAge: maxAge,
		logger: logger,
		now:    time.Now,
		cron:   cron.New(),
	}
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
}

// Stop waits for a running prune to finish.
func (r *Retention) Stop() {
	<-r.cron.Stop().Done()
}

// PruneNow deletes everything older than the retention window.
func (r *Retention) PruneNow(ctx context.Context) (int64, error) {
	if r.maxAge <= 0 {
		return 0, nil
	}
	return r.repo.Prune(ctx, r.now().Add(-r.maxAge))
}

func (r *Retention) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	removed, err := r.PruneNow(ctx)
	if err != nil {
		r.logger.Error("history prune failed", "err", err)
		return
	}
	if removed > 0 {
		r.logger.Info("pruned history", "rows", removed, "max_age", r.maxAge.String())
	}
}
