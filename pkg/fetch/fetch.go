// Package fetch retrieves raw icon markup. It provides the Coordinator, which
// collapses concurrent requests for one icon into a single dispatch, and the
// Fetcher implementations it dispatches to.
package fetch

import (
	"context"
	"errors"
)

// ErrTransportFailure wraps network, HTTP status and object storage failures.
var ErrTransportFailure = errors.New("icon transport failure")

// Response is the raw result of fetching an icon.
type Response struct {
	Data string
}

// Fetcher retrieves the raw markup of the named icon.
type Fetcher func(ctx context.Context, iconName string) (*Response, error)
