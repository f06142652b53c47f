package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultStaggerDelay is the debounce applied before every dispatch of an icon
// name except its first.
const DefaultStaggerDelay = 5 * time.Millisecond

// CoordinatorConfig holds configuration for the Coordinator.
type CoordinatorConfig struct {
	// StaggerDelay is the debounce window applied before a dispatch once a name
	// has been requested before. Negative values are treated as zero.
	StaggerDelay time.Duration
}

// Coordinator de-duplicates icon fetches. Each icon name goes through two
// phases inside one shared call: a debounce, during which late callers join
// the call, and a single dispatch to the Fetcher. Every caller that joined
// observes the same *Response or error. The call is forgotten once it settles,
// so a later request dispatches again.
type Coordinator struct {
	fetch   Fetcher
	stagger time.Duration
	logger  zerolog.Logger

	group      singleflight.Group
	dispatches atomic.Int64

	mu      sync.Mutex
	touches map[string]int
	waiting map[string]int
}

// NewCoordinator creates a Coordinator dispatching to fetcher. A nil cfg uses
// DefaultStaggerDelay.
func NewCoordinator(cfg *CoordinatorConfig, fetcher Fetcher, logger zerolog.Logger) (*Coordinator, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher cannot be nil")
	}
	stagger := DefaultStaggerDelay
	if cfg != nil {
		stagger = max(cfg.StaggerDelay, 0)
	}
	return &Coordinator{
		fetch:   fetcher,
		stagger: stagger,
		logger:  logger.With().Str("component", "Coordinator").Logger(),
		touches: make(map[string]int),
		waiting: make(map[string]int),
	}, nil
}

// FetchIcon returns the raw markup of iconName, joining any call for the same
// name that is still debouncing or in flight.
//
// The dispatch runs detached from ctx: when ctx ends this caller stops waiting
// and gets ctx.Err(), while the shared call carries on for the other waiters.
func (c *Coordinator) FetchIcon(ctx context.Context, iconName string) (*Response, error) {
	c.enter(iconName)
	defer c.leave(iconName)

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(iconName, func() (interface{}, error) {
		if delay := c.staggerFor(iconName); delay > 0 {
			time.Sleep(delay)
		}
		return c.dispatch(detached, iconName)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Response), nil
	case <-ctx.Done():
		c.logger.Debug().Str("icon", iconName).Msg("Caller stopped waiting for icon fetch.")
		return nil, ctx.Err()
	}
}

// Waiting reports how many callers are currently waiting on iconName.
func (c *Coordinator) Waiting(iconName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting[iconName]
}

// Dispatches reports how many times the Fetcher has been called.
func (c *Coordinator) Dispatches() int64 {
	return c.dispatches.Load()
}

func (c *Coordinator) dispatch(ctx context.Context, iconName string) (*Response, error) {
	c.dispatches.Add(1)
	c.logger.Debug().Str("icon", iconName).Msg("Dispatching icon fetch.")

	resp, err := c.fetch(ctx, iconName)
	if err != nil {
		c.logger.Warn().Err(err).Str("icon", iconName).Msg("Icon fetch failed.")
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: no response for %s", ErrTransportFailure, iconName)
	}
	return resp, nil
}

// staggerFor counts a touch of iconName and returns the debounce to apply.
func (c *Coordinator) staggerFor(iconName string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.touches[iconName]
	c.touches[iconName] = n + 1
	if n == 0 {
		return 0
	}
	return c.stagger
}

func (c *Coordinator) enter(iconName string) {
	c.mu.Lock()
	c.waiting[iconName]++
	c.mu.Unlock()
}

func (c *Coordinator) leave(iconName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiting[iconName] <= 1 {
		delete(c.waiting, iconName)
		return
	}
	c.waiting[iconName]--
}
