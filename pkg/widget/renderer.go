package widget

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MarkupRenderer turns trusted SVG markup into the HTML placed inside the
// widget wrapper.
type MarkupRenderer interface {
	RenderMarkup(markup string) (string, error)
}

// TrustedRenderer emits the markup verbatim.
type TrustedRenderer struct{}

// RenderMarkup returns markup unchanged.
func (TrustedRenderer) RenderMarkup(markup string) (string, error) {
	return markup, nil
}

// NodeRenderer parses the markup into HTML nodes, as a browser would inside a
// <span>, and renders the resulting nodes. Unbalanced markup comes out closed
// and foreign attributes come out with their canonical SVG case.
type NodeRenderer struct{}

// RenderMarkup parses and re-renders markup.
func (NodeRenderer) RenderMarkup(markup string) (string, error) {
	parent := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return "", fmt.Errorf("parsing icon markup: %w", err)
	}

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", fmt.Errorf("rendering icon markup: %w", err)
		}
	}
	return b.String(), nil
}
