package fetch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"
	"resty.dev/v3"
)

// HTTPFetcherConfig holds configuration for the HTTPFetcher.
type HTTPFetcherConfig struct {
	// Origin is the scheme and host serving the icons, e.g. "https://cdn.example.com".
	Origin string
	// BasePath is the directory holding <name>.svg files, e.g. "/assets/icons".
	BasePath string
}

// HTTPFetcher performs a GET for <Origin><BasePath>/<name>.svg.
type HTTPFetcher struct {
	client   *resty.Client
	origin   string
	basePath string
	logger   zerolog.Logger
}

// NewHTTPFetcher creates an HTTPFetcher. The resty client is shared and its
// lifecycle is managed by the caller.
func NewHTTPFetcher(client *resty.Client, cfg HTTPFetcherConfig, logger zerolog.Logger) *HTTPFetcher {
	return &HTTPFetcher{
		client:   client,
		origin:   strings.TrimRight(cfg.Origin, "/"),
		basePath: cfg.BasePath,
		logger:   logger.With().Str("component", "HTTPFetcher").Logger(),
	}
}

// Fetch satisfies the Fetcher contract. Transport errors and non-2xx statuses
// are reported as ErrTransportFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context, iconName string) (*Response, error) {
	endpoint := f.IconURL(iconName)
	resp, err := f.client.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransportFailure, endpoint, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrTransportFailure, endpoint, resp.StatusCode())
	}

	f.logger.Debug().Str("url", endpoint).Int("bytes", len(resp.String())).Msg("Fetched icon over HTTP.")
	return &Response{Data: resp.String()}, nil
}

// IconURL returns the address of an icon. Each segment of the name is path
// escaped, so nested names such as "arrows/left" map to sub-directories.
func (f *HTTPFetcher) IconURL(iconName string) string {
	segments := strings.Split(iconName, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return f.origin + f.basePath + "/" + strings.Join(segments, "/") + ".svg"
}
