package microservice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-svgify/pkg/svgify"
	"github.com/illmade-knight/go-svgify/pkg/svgrewrite"
	"github.com/illmade-knight/go-svgify/pkg/widget"
	"github.com/rs/zerolog"
)

// IconServerConfig holds configuration for the IconServer.
type IconServerConfig struct {
	HTTPPort string
	// RenderTimeout bounds a single icon request.
	RenderTimeout time.Duration
	// NotFoundElement is rendered inside the wrapper of icons that fail to load.
	NotFoundElement string
}

// IconServer serves icons of a provider scope over HTTP:
//
//	GET /icons/{name}?scale=&weight=&class=  the wrapped widget markup
//	GET /icons/{name}/svg?scale=             the scaled SVG document
type IconServer struct {
	*BaseServer
	provider        *svgify.Provider
	renderTimeout   time.Duration
	notFoundElement string
	logger          zerolog.Logger
}

// NewIconServer creates an IconServer and registers its routes.
func NewIconServer(cfg IconServerConfig, provider *svgify.Provider, logger zerolog.Logger) (*IconServer, error) {
	if provider == nil {
		return nil, errors.New("provider cannot be nil")
	}
	timeout := cfg.RenderTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &IconServer{
		BaseServer:      NewBaseServer(logger, cfg.HTTPPort),
		provider:        provider,
		renderTimeout:   timeout,
		notFoundElement: cfg.NotFoundElement,
		logger:          logger.With().Str("component", "IconServer").Logger(),
	}
	s.Handle("GET /icons/{name}", s.handleWidget)
	s.Handle("GET /icons/{name}/svg", s.handleSVG)
	s.AddReadinessCheck("icon-cache", provider.Ready)
	return s, nil
}

func (s *IconServer) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(r.Context(), s.renderTimeout)
	return svgify.NewContext(ctx, s.provider), cancel
}

func (s *IconServer) handleWidget(w http.ResponseWriter, r *http.Request) {
	props, err := s.parseProps(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	icon, err := widget.NewIcon(ctx, props, widget.WithLogger(s.Logger))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create icon.")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	icon.Mount(ctx)
	defer icon.Unmount()

	state, err := icon.Wait(ctx)
	if err != nil {
		http.Error(w, "timed out loading icon", http.StatusGatewayTimeout)
		return
	}
	body, err := icon.Render()
	if err != nil {
		s.logger.Error().Err(err).Str("icon", props.IconName).Msg("Failed to render icon.")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Icon-Version", strconv.Itoa(s.provider.Settings().Version))
	if state.Phase == widget.NotFound {
		w.WriteHeader(http.StatusNotFound)
	}
	_, _ = w.Write([]byte(body))
}

func (s *IconServer) handleSVG(w http.ResponseWriter, r *http.Request) {
	scale, err := parseScale(r.URL.Query().Get("scale"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx, cancel := s.requestContext(r)
	defer cancel()

	name := r.PathValue("name")
	loaded, err := s.provider.Load(ctx, name)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, "timed out loading icon", http.StatusGatewayTimeout)
			return
		}
		s.logger.Warn().Err(err).Str("icon", name).Msg("Icon could not be loaded.")
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("X-Icon-Version", strconv.Itoa(loaded.Version))
	_, _ = w.Write([]byte(svgrewrite.Rewrite(loaded.Markup, scale)))
}

func (s *IconServer) parseProps(r *http.Request) (widget.Props, error) {
	q := r.URL.Query()
	scale, err := parseScale(q.Get("scale"))
	if err != nil {
		return widget.Props{}, err
	}
	var classes []string
	for _, c := range q["class"] {
		if c = strings.TrimSpace(c); c != "" {
			classes = append(classes, c)
		}
	}
	return widget.Props{
		IconName:        r.PathValue("name"),
		Scale:           scale,
		FontWeight:      widget.FontWeight(q.Get("weight")),
		ClassName:       strings.Join(classes, " "),
		NotFoundElement: s.notFoundElement,
	}, nil
}

func parseScale(raw string) (float64, error) {
	if raw == "" {
		return 1, nil
	}
	scale, err := strconv.ParseFloat(raw, 64)
	if err != nil || scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return 0, fmt.Errorf("invalid scale %q", raw)
	}
	return scale, nil
}
