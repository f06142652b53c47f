package svgify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultWarmConcurrency bounds the number of icons Warm loads at once.
const DefaultWarmConcurrency = 4

// Warm loads every named icon into the cache so that later widgets hit it.
// All names are attempted; the failures are returned joined.
func (p *Provider) Warm(ctx context.Context, iconNames []string, concurrency int) error {
	if concurrency <= 0 {
		concurrency = DefaultWarmConcurrency
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(concurrency)
	for _, name := range iconNames {
		g.Go(func() error {
			if _, err := p.Load(ctx, name); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warming %s: %w", name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info().Int("icons", len(iconNames)).Int("failed", len(errs)).Msg("Icon cache warm-up finished.")
	return errors.Join(errs...)
}
