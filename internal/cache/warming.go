package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/aeris-dashboard-service/internal/models"
)

// ConditionsLoader is implemented by the service layer; loading populates the cache.
// Declared here to avoid an import cycle with the service package.
type ConditionsLoader interface {
	LoadConditions(ctx context.Context, loc models.Location) (models.Conditions, error)
}

// Warmer prefetches conditions for known locations (users' saved locations) at startup.
type Warmer struct {
	loader      ConditionsLoader
	logger      *zap.Logger
	concurrency int
}

// NewWarmer creates a Warmer running at most concurrency loads at once.
func NewWarmer(loader ConditionsLoader, logger *zap.Logger, concurrency int) *Warmer {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Warmer{loader: loader, logger: logger, concurrency: concurrency}
}

// Warm loads every distinct location. Failures are aggregated; a partial warm still fills
// the cache for the locations that succeeded.
func (w *Warmer) Warm(ctx context.Context, locations []models.Location) error {
	start := time.Now()
	seen := make(map[string]struct{}, len(locations))
	sem := make(chan struct{}, w.concurrency)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loc := range locations {
		k := Key(loc)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		wg.Add(1)
		sem <- struct{}{}
		go func(loc models.Location) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := w.loader.LoadConditions(ctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", Key(loc), err))
				mu.Unlock()
			}
		}(loc)
	}
	wg.Wait()

	w.logger.Info("cache warming complete",
		zap.Int("locations", len(seen)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", time.Since(start)))
	return errors.Join(errs...)
}
