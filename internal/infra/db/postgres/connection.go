package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"venture-idea-analyzer/internal/infra/metrics"
)

// NewPool connects to Postgres with a bounded dial timeout.
func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pgxpool.Connect(dialCtx, url)
}

// StartPoolStatsReporter exports pool gauges until ctx is cancelled.
func StartPoolStatsReporter(ctx context.Context, pool *pgxpool.Pool, every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s := pool.Stat()
				metrics.SetDBPoolStats(s.TotalConns(), s.IdleConns(), s.AcquiredConns())
			}
		}
	}()
}
