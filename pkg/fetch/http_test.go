package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/illmade-knight/go-svgify/pkg/fetch"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"resty.dev/v3"
)

func TestHTTPFetcher_Fetch(t *testing.T) {
	// Arrange
	var mu sync.Mutex
	var requested []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requested = append(requested, r.URL.EscapedPath())
		mu.Unlock()
		switch r.URL.Path {
		case "/assets/icons/gear.svg":
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte(`<svg width="10px" height="20px"><path/></svg>`))
		case "/assets/icons/arrows/left arrow.svg":
			_, _ = w.Write([]byte(`<svg/>`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	client := resty.New()
	t.Cleanup(func() { _ = client.Close() })
	f := fetch.NewHTTPFetcher(client, fetch.HTTPFetcherConfig{
		Origin:   server.URL + "/",
		BasePath: "/assets/icons",
	}, zerolog.Nop())

	t.Run("Success", func(t *testing.T) {
		resp, err := f.Fetch(context.Background(), "gear")
		require.NoError(t, err)
		assert.Equal(t, `<svg width="10px" height="20px"><path/></svg>`, resp.Data)
	})

	t.Run("Nested names are escaped per segment", func(t *testing.T) {
		resp, err := f.Fetch(context.Background(), "arrows/left arrow")
		require.NoError(t, err)
		assert.Equal(t, `<svg/>`, resp.Data)
		mu.Lock()
		defer mu.Unlock()
		assert.Contains(t, requested, "/assets/icons/arrows/left%20arrow.svg")
	})

	t.Run("Error status is a transport failure", func(t *testing.T) {
		_, err := f.Fetch(context.Background(), "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, fetch.ErrTransportFailure)
		assert.Contains(t, err.Error(), "404")
	})
}

func TestHTTPFetcher_ConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := resty.New()
	t.Cleanup(func() { _ = client.Close() })
	f := fetch.NewHTTPFetcher(client, fetch.HTTPFetcherConfig{Origin: url, BasePath: ""}, zerolog.Nop())

	_, err := f.Fetch(context.Background(), "gear")

	require.Error(t, err)
	assert.ErrorIs(t, err, fetch.ErrTransportFailure)
}

func TestHTTPFetcher_IconURL(t *testing.T) {
	f := fetch.NewHTTPFetcher(resty.New(), fetch.HTTPFetcherConfig{
		Origin:   "https://cdn.example.com",
		BasePath: "/icons",
	}, zerolog.Nop())

	assert.Equal(t, "https://cdn.example.com/icons/gear.svg", f.IconURL("gear"))
}
