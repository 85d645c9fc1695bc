// Package warmup prepares the store before the service takes traffic:
// seed data is loaded and the application gauges are primed.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/garyellow/visadesk/internal/logger"
	"github.com/garyellow/visadesk/internal/metrics"
	"github.com/garyellow/visadesk/internal/seed"
	"github.com/garyellow/visadesk/internal/storage"
)

// Store is the storage surface warmup needs.
type Store interface {
	seed.Loader
	CountApplicationsByStatus(ctx context.Context) (map[string]int, error)
}

// Options configures Run.
type Options struct {
	Seed    bool
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Stats summarizes a warmup.
type Stats struct {
	Seeded       int
	Applications int
	Duration     time.Duration
}

// Run seeds when requested and records the application gauges.
func Run(ctx context.Context, store Store, opts Options) (*Stats, error) {
	start := time.Now()
	stats := &Stats{}

	if opts.Seed {
		n, err := seed.Load(ctx, store)
		if err != nil {
			return nil, err
		}
		stats.Seeded = n
	}

	total, err := RecordApplicationGauges(ctx, store, opts.Metrics)
	if err != nil {
		return nil, err
	}
	stats.Applications = total
	stats.Duration = time.Since(start)

	if opts.Logger != nil {
		opts.Logger.InfoContext(ctx, "Warmup complete",
			"seeded", stats.Seeded,
			"applications", stats.Applications,
			"duration_ms", stats.Duration.Milliseconds())
	}
	return stats, nil
}

// RecordApplicationGauges sets one gauge per status, zero for statuses with
// no applications, and returns the total.
func RecordApplicationGauges(ctx context.Context, store Store, m *metrics.Metrics) (int, error) {
	counts, err := store.CountApplicationsByStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	total := 0
	for _, status := range storage.Statuses {
		m.SetApplications(status, counts[status])
		total += counts[status]
	}
	return total, nil
}
