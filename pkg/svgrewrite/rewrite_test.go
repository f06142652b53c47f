package svgrewrite_test

import (
	"strings"
	"testing"

	"github.com/illmade-knight/go-svgify/pkg/svgrewrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewrite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		scale    float64
		expected string
	}{
		{
			name:     "explicit dimensions keep aspect ratio",
			input:    `<svg width="10px" height="20px" fill="#000"><path/></svg>`,
			scale:    2,
			expected: `<svg width="3em" height="6em"><path/></svg>`,
		},
		{
			name:     "unitless dimensions with fractional scale",
			input:    `<svg xmlns="http://www.w3.org/2000/svg" width="24" height="12"><path d="M0 0"/></svg>`,
			scale:    0.5,
			expected: `<svg xmlns="http://www.w3.org/2000/svg" width="0.75em" height="0.375em"><path d="M0 0"/></svg>`,
		},
		{
			name:     "em and rem units",
			input:    `<svg width="2em" height="1rem"></svg>`,
			scale:    1,
			expected: `<svg width="1.5em" height="0.75em"></svg>`,
		},
		{
			name:     "missing width and height default to a square",
			input:    `<svg viewBox="0 0 24 24"><path d="M0"/></svg>`,
			scale:    1,
			expected: `<svg height="1.5em" width="1.5em" viewBox="0 0 24 24"><path d="M0"/></svg>`,
		},
		{
			name:     "missing height only",
			input:    `<svg width="24"><path/></svg>`,
			scale:    2,
			expected: `<svg height="3em" width="3em"><path/></svg>`,
		},
		{
			name:     "stroke-width is neither stripped nor used as a dimension",
			input:    `<svg viewBox="0 0 2 2"><path stroke-width="2" stroke="red" fill="none"/></svg>`,
			scale:    1,
			expected: `<svg height="1.5em" width="1.5em" viewBox="0 0 2 2"><path stroke-width="2"/></svg>`,
		},
		{
			name:     "child dimensions are left alone",
			input:    `<svg width="10" height="10"><rect width="4" height="8" fill="blue"/></svg>`,
			scale:    1,
			expected: `<svg width="1.5em" height="1.5em"><rect width="4" height="8"/></svg>`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			actual := svgrewrite.Rewrite(tc.input, tc.scale)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestRewrite_Guarantees(t *testing.T) {
	inputs := []string{
		`<svg width="10px" height="20px" fill="#000" stroke="#fff"><g fill="red"><path stroke="blue"/></g></svg>`,
		`<svg><path/></svg>`,
		`<svg height="7%"><path/></svg>`,
	}

	for _, input := range inputs {
		out := svgrewrite.Rewrite(input, 3)
		root := out[:strings.Index(out, ">")+1]

		assert.NotContains(t, out, `fill="`, "fill attributes must be stripped")
		assert.NotContains(t, out, `stroke="`, "stroke attributes must be stripped")
		assert.Equal(t, 1, strings.Count(root, ` width="`), "root must have exactly one width")
		assert.Equal(t, 1, strings.Count(root, ` height="`), "root must have exactly one height")
		assert.Contains(t, root, `width="4.5em"`)
	}
}

func TestStripPaint_IsIdempotent(t *testing.T) {
	input := `<svg fill="none" stroke="currentColor"><path fill="#111"/></svg>`

	once := svgrewrite.StripPaint(input)
	twice := svgrewrite.StripPaint(once)

	assert.Equal(t, `<svg><path/></svg>`, once)
	assert.Equal(t, once, twice)
}

func TestScale_WithoutRootTag(t *testing.T) {
	input := "not an svg"
	assert.Equal(t, input, svgrewrite.Scale(input, 2))
}

func TestCheckContent(t *testing.T) {
	t.Run("valid svg", func(t *testing.T) {
		require.NoError(t, svgrewrite.CheckContent(`<svg><path/></svg>`))
	})

	t.Run("html error page", func(t *testing.T) {
		err := svgrewrite.CheckContent("<!DOCTYPE html><html><body>Not Found</body></html>")
		require.Error(t, err)
		assert.ErrorIs(t, err, svgrewrite.ErrMalformedContent)
	})

	t.Run("empty body", func(t *testing.T) {
		err := svgrewrite.CheckContent("  \n")
		require.Error(t, err)
		assert.ErrorIs(t, err, svgrewrite.ErrMalformedContent)
	})
}
