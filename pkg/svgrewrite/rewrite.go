// Package svgrewrite rewrites raw SVG markup so that it can be styled by the
// surrounding page: inline paint attributes are removed and the root element is
// resized in em units while keeping its aspect ratio.
//
// The rewrite is text based. Only the root <svg> tag is resized and only quoted
// fill/stroke attributes are removed; nothing else is interpreted.
package svgrewrite

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// BaseEm is the size, in em, of an icon rendered with a scale of 1.
const BaseEm = 1.5

// ErrMalformedContent reports a body that is not an SVG document, typically an
// HTML error page served in place of the requested icon.
var ErrMalformedContent = errors.New("malformed svg content")

var (
	paintAttr  = regexp.MustCompile(`\s+(?:fill|stroke)="[^"]*"`)
	rootTag    = regexp.MustCompile(`<svg\b[^>]*>`)
	widthAttr  = regexp.MustCompile(`\swidth="([^"]*)"`)
	heightAttr = regexp.MustCompile(`\sheight="([^"]*)"`)
	dimension  = regexp.MustCompile(`^(\d+(?:\.\d+)?)(?:px|em|rem|%)?$`)
)

// CheckContent returns ErrMalformedContent when body cannot be an SVG icon.
func CheckContent(body string) error {
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: empty body", ErrMalformedContent)
	}
	if strings.Contains(body, "<html") {
		return ErrMalformedContent
	}
	return nil
}

// Rewrite strips paint attributes and scales the root element. It is the
// composition of StripPaint and Scale.
func Rewrite(svg string, scale float64) string {
	return Scale(StripPaint(svg), scale)
}

// StripPaint removes every fill="..." and stroke="..." attribute, including the
// whitespace that separated it from the previous token.
func StripPaint(svg string) string {
	return paintAttr.ReplaceAllString(svg, "")
}

// Scale sets the root width to scale*1.5em and the root height to
// scale*1.5*ratio em, where ratio is height/width of the original dimensions.
// A missing dimension counts as 1em, so the ratio falls back to 1.
//
// Markup without an <svg> tag is returned unchanged.
func Scale(svg string, scale float64) string {
	loc := rootTag.FindStringIndex(svg)
	if loc == nil {
		return svg
	}
	tag := svg[loc[0]:loc[1]]

	width, hasWidth := parseDimension(widthAttr, tag)
	height, hasHeight := parseDimension(heightAttr, tag)

	ratio := 1.0
	if hasWidth && hasHeight && width > 0 {
		ratio = height / width
	}

	tag = setAttr(tag, widthAttr, "width", formatEm(scale*BaseEm))
	tag = setAttr(tag, heightAttr, "height", formatEm(scale*BaseEm*ratio))

	return svg[:loc[0]] + tag + svg[loc[1]:]
}

// parseDimension returns the numeric part of the first matching attribute.
func parseDimension(attr *regexp.Regexp, tag string) (float64, bool) {
	m := attr.FindStringSubmatch(tag)
	if m == nil {
		return 0, false
	}
	d := dimension.FindStringSubmatch(strings.TrimSpace(m[1]))
	if d == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(d[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// setAttr replaces the first occurrence of attr in tag, or inserts it right
// after the "<svg" token when the tag has none.
func setAttr(tag string, attr *regexp.Regexp, name, value string) string {
	replacement := " " + name + `="` + value + `"`
	if loc := attr.FindStringIndex(tag); loc != nil {
		return tag[:loc[0]] + replacement + tag[loc[1]:]
	}
	return "<svg" + replacement + tag[len("<svg"):]
}

func formatEm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "em"
}
