// Package widget renders SVG icons inline. An Icon runs the provider pipeline
// when it is mounted or its inputs change, and renders a loading placeholder,
// the scaled markup, or a not-found placeholder inside a <span>.
package widget

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-svgify/pkg/svgify"
	"github.com/illmade-knight/go-svgify/pkg/svgrewrite"
	"github.com/rs/zerolog"
)

// Phase is the stage an icon's render state is in.
type Phase int

const (
	Loading Phase = iota
	Ready
	NotFound
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case NotFound:
		return "not_found"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// RenderState is the per-instance render state. Markup is only set when Phase
// is Ready.
type RenderState struct {
	Phase  Phase
	Markup string
}

// Option customizes an Icon.
type Option func(*Icon)

// WithRenderer sets the markup renderer. The default is TrustedRenderer.
func WithRenderer(r MarkupRenderer) Option {
	return func(i *Icon) { i.renderer = r }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Icon) { i.logger = logger }
}

// runKey is the set of inputs whose change triggers a new pipeline run.
type runKey struct {
	iconName           string
	scale              float64
	fontWeight         FontWeight
	version            int
	clearForOldVersion bool
}

// Icon is a single icon widget instance. It is safe for concurrent use.
type Icon struct {
	id       string
	provider *svgify.Provider
	renderer MarkupRenderer
	logger   zerolog.Logger

	mu         sync.Mutex
	props      Props
	state      RenderState
	applied    runKey
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	mounted    bool
	unmounted  bool
}

// NewIcon creates an icon bound to the provider scope of ctx. It fails with
// svgify.ErrNoProvider outside a scope.
func NewIcon(ctx context.Context, props Props, opts ...Option) (*Icon, error) {
	p, err := svgify.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	i := &Icon{
		id:       uuid.NewString(),
		provider: p,
		renderer: TrustedRenderer{},
		logger:   zerolog.Nop(),
		props:    props.withDefaults(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With().Str("component", "Icon").Str("icon_id", i.id).Logger()
	return i, nil
}

// ID returns the instance identifier used in logs.
func (i *Icon) ID() string {
	return i.id
}

// Mount starts the pipeline. Mounting twice, or after Unmount, does nothing.
func (i *Icon) Mount(ctx context.Context) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.mounted || i.unmounted {
		return
	}
	i.mounted = true
	i.startLocked(ctx, i.currentKeyLocked())
}

// Update replaces the props. The pipeline runs again when the icon name,
// scale, font weight or the provider's version settings differ from the last
// run. It reports whether a run was started.
func (i *Icon) Update(ctx context.Context, props Props) bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.props = props.withDefaults()
	if !i.mounted || i.unmounted {
		return false
	}
	key := i.currentKeyLocked()
	if key == i.applied {
		return false
	}
	i.startLocked(ctx, key)
	return true
}

// Refresh re-evaluates the provider settings with the current props.
func (i *Icon) Refresh(ctx context.Context) bool {
	i.mu.Lock()
	props := i.props
	i.mu.Unlock()
	return i.Update(ctx, props)
}

// Unmount tears the instance down. A pipeline run still in progress is
// abandoned and its result discarded; fetches shared with other icons carry on.
func (i *Icon) Unmount() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.unmounted {
		return
	}
	i.unmounted = true
	if i.cancel != nil {
		i.cancel()
	}
	i.logger.Debug().Msg("Icon unmounted.")
}

// State returns the current render state.
func (i *Icon) State() RenderState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Wait blocks until the latest pipeline run has settled, then returns the
// render state. It returns ctx.Err() with the current state if ctx ends first.
func (i *Icon) Wait(ctx context.Context) (RenderState, error) {
	for {
		i.mu.Lock()
		done, state := i.done, i.state
		i.mu.Unlock()

		if done == nil {
			return state, nil
		}
		select {
		case <-done:
			i.mu.Lock()
			latest := i.done == done
			state = i.state
			i.mu.Unlock()
			if latest {
				return state, nil
			}
		case <-ctx.Done():
			return state, ctx.Err()
		}
	}
}

// Render returns the wrapper element with the placeholder or the icon markup
// matching the current state.
func (i *Icon) Render() (string, error) {
	i.mu.Lock()
	props, state := i.props, i.state
	i.mu.Unlock()

	var content string
	switch state.Phase {
	case Ready:
		rendered, err := i.renderer.RenderMarkup(state.Markup)
		if err != nil {
			return "", err
		}
		content = rendered
	case NotFound:
		content = props.NotFoundElement
	default:
		content = props.LoadingElement
	}

	var b strings.Builder
	b.WriteString(`<span class="`)
	b.WriteString(html.EscapeString(props.classAttr()))
	b.WriteString(`"`)
	if style := props.styleAttr(); style != "" {
		b.WriteString(` style="`)
		b.WriteString(html.EscapeString(style))
		b.WriteString(`"`)
	}
	b.WriteString(">")
	b.WriteString(content)
	b.WriteString("</span>")
	return b.String(), nil
}

func (i *Icon) currentKeyLocked() runKey {
	s := i.provider.Settings()
	return runKey{
		iconName:           i.props.IconName,
		scale:              i.props.Scale,
		fontWeight:         i.props.FontWeight,
		version:            s.Version,
		clearForOldVersion: s.ClearForOldVersion,
	}
}

// startLocked abandons any previous run and starts a new one.
func (i *Icon) startLocked(ctx context.Context, key runKey) {
	if i.cancel != nil {
		i.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	i.generation++
	i.cancel = cancel
	i.done = done
	i.applied = key
	i.state = RenderState{Phase: Loading}

	go i.run(runCtx, i.generation, i.props, done)
}

func (i *Icon) run(ctx context.Context, generation uint64, props Props, done chan struct{}) {
	defer close(done)

	next := i.resolve(ctx, props)

	i.mu.Lock()
	defer i.mu.Unlock()
	if i.unmounted || generation != i.generation {
		i.logger.Debug().Str("icon", props.IconName).Msg("Discarding result of an abandoned run.")
		return
	}
	i.state = next
}

func (i *Icon) resolve(ctx context.Context, props Props) RenderState {
	loaded, err := i.provider.Load(ctx, props.IconName)
	if err != nil {
		i.logger.Warn().Err(err).Str("icon", props.IconName).Msg("Icon could not be loaded.")
		return RenderState{Phase: NotFound}
	}
	return RenderState{Phase: Ready, Markup: svgrewrite.Rewrite(loaded.Markup, props.Scale)}
}
