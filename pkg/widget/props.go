package widget

import (
	"sort"
	"strings"
)

// FontWeight selects which paint channel the page stylesheet applies to an icon.
type FontWeight string

const (
	FontWeightFill   FontWeight = "fill"
	FontWeightStroke FontWeight = "stroke"
	FontWeightBoth   FontWeight = "both"
)

// DefaultFontWeight is used when Props.FontWeight is empty.
const DefaultFontWeight = FontWeightFill

// ClassName returns the modifier class of the weight. Unknown weights style
// both channels.
func (w FontWeight) ClassName() string {
	switch w {
	case FontWeightFill:
		return "svg_modifier_style_fill"
	case FontWeightStroke:
		return "svg_modifier_style_stroke"
	default:
		return "svg_modifier_style_both"
	}
}

// Props configures an icon widget.
type Props struct {
	// IconName is required.
	IconName string
	// Scale multiplies the base size of 1.5em. Zero or negative means 1.
	Scale      float64
	FontWeight FontWeight
	// ClassName and Style are passed through to the wrapper element.
	ClassName string
	Style     map[string]string
	// LoadingElement and NotFoundElement are trusted markup rendered as
	// placeholders.
	LoadingElement  string
	NotFoundElement string
}

func (p Props) withDefaults() Props {
	if p.Scale <= 0 {
		p.Scale = 1
	}
	if p.FontWeight == "" {
		p.FontWeight = DefaultFontWeight
	}
	return p
}

func (p Props) classAttr() string {
	classes := []string{"svg-font-icon", "svg_modifier_style", p.FontWeight.ClassName()}
	if c := strings.TrimSpace(p.ClassName); c != "" {
		classes = append(classes, c)
	}
	return strings.Join(classes, " ")
}

func (p Props) styleAttr() string {
	if len(p.Style) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p.Style))
	for k := range p.Style {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(p.Style[k])
		b.WriteString(";")
	}
	return b.String()
}
