package fetch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-svgify/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetcher counts calls and blocks each one until release is closed.
type blockingFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	ctxErr  atomic.Value
}

func newBlockingFetcher() *blockingFetcher {
	return &blockingFetcher{release: make(chan struct{})}
}

func (b *blockingFetcher) Fetch(ctx context.Context, iconName string) (*fetch.Response, error) {
	b.calls.Add(1)
	<-b.release
	if err := ctx.Err(); err != nil {
		b.ctxErr.Store(err)
	}
	return &fetch.Response{Data: "<svg id=\"" + iconName + "\"/>"}, nil
}

func newCoordinator(t *testing.T, stagger time.Duration, fetcher fetch.Fetcher) *fetch.Coordinator {
	t.Helper()
	c, err := fetch.NewCoordinator(&fetch.CoordinatorConfig{StaggerDelay: stagger}, fetcher, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestCoordinator_FanIn(t *testing.T) {
	// Arrange
	const callers = 10
	fetcher := newBlockingFetcher()
	c := newCoordinator(t, time.Millisecond, fetcher.Fetch)

	results := make([]*fetch.Response, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	// Act: all callers ask for the same icon before the fetch resolves.
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.FetchIcon(context.Background(), "gear")
		}(i)
	}
	require.Eventually(t, func() bool {
		return c.Waiting("gear") == callers
	}, 2*time.Second, time.Millisecond, "All callers should join the pending fetch")
	close(fetcher.release)
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), fetcher.calls.Load(), "Exactly one network dispatch is expected")
	assert.Equal(t, int64(1), c.Dispatches())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "Every caller observes the same response")
	}
	assert.Zero(t, c.Waiting("gear"))
}

func TestCoordinator_ClearsOnSettle(t *testing.T) {
	var calls atomic.Int32
	c := newCoordinator(t, 0, func(_ context.Context, _ string) (*fetch.Response, error) {
		calls.Add(1)
		return &fetch.Response{Data: "<svg/>"}, nil
	})

	_, err := c.FetchIcon(context.Background(), "gear")
	require.NoError(t, err)
	_, err = c.FetchIcon(context.Background(), "gear")
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load(), "A settled fetch is not reused by later requests")
}

func TestCoordinator_Stagger(t *testing.T) {
	const stagger = 60 * time.Millisecond
	c := newCoordinator(t, stagger, func(_ context.Context, _ string) (*fetch.Response, error) {
		return &fetch.Response{Data: "<svg/>"}, nil
	})

	t.Run("First request for a name is not delayed", func(t *testing.T) {
		start := time.Now()
		_, err := c.FetchIcon(context.Background(), "gear")
		require.NoError(t, err)
		assert.Less(t, time.Since(start), stagger)
	})

	t.Run("Later requests for the name are delayed", func(t *testing.T) {
		start := time.Now()
		_, err := c.FetchIcon(context.Background(), "gear")
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), stagger)
	})

	t.Run("Other names have their own counter", func(t *testing.T) {
		start := time.Now()
		_, err := c.FetchIcon(context.Background(), "home")
		require.NoError(t, err)
		assert.Less(t, time.Since(start), stagger)
	})
}

func TestCoordinator_ErrorsPropagateUnchanged(t *testing.T) {
	expectedErr := errors.New("connection refused")
	c := newCoordinator(t, 0, func(_ context.Context, _ string) (*fetch.Response, error) {
		return nil, expectedErr
	})

	_, err := c.FetchIcon(context.Background(), "gear")

	require.Error(t, err)
	assert.Same(t, expectedErr, err)
}

func TestCoordinator_NilResponse(t *testing.T) {
	c := newCoordinator(t, 0, func(_ context.Context, _ string) (*fetch.Response, error) {
		return nil, nil
	})

	_, err := c.FetchIcon(context.Background(), "gear")

	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrTransportFailure)
}

func TestCoordinator_CallerCancellation(t *testing.T) {
	// Arrange
	fetcher := newBlockingFetcher()
	c := newCoordinator(t, time.Millisecond, fetcher.Fetch)

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancelledErr := make(chan error, 1)
	go func() {
		_, err := c.FetchIcon(cancelCtx, "gear")
		cancelledErr <- err
	}()

	survivor := make(chan *fetch.Response, 1)
	go func() {
		resp, err := c.FetchIcon(context.Background(), "gear")
		if err == nil {
			survivor <- resp
		}
		close(survivor)
	}()
	require.Eventually(t, func() bool { return c.Waiting("gear") == 2 }, 2*time.Second, time.Millisecond)

	// Act: the first caller goes away before the fetch resolves.
	cancel()
	require.ErrorIs(t, <-cancelledErr, context.Canceled)
	close(fetcher.release)

	// Assert
	resp, ok := <-survivor
	require.True(t, ok, "The remaining waiter must still receive the result")
	assert.Equal(t, `<svg id="gear"/>`, resp.Data)
	assert.Equal(t, int32(1), fetcher.calls.Load())
	assert.Nil(t, fetcher.ctxErr.Load(), "The shared dispatch must not be cancelled with the caller")
}

func TestNewCoordinator_NilFetcher(t *testing.T) {
	_, err := fetch.NewCoordinator(nil, nil, zerolog.Nop())
	require.Error(t, err)
}
