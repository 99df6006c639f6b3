package object

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_WithContextAndLineNumbers(t *testing.T) {
	lines := []string{
		"package main",
		"",
		"func greet() string {",
		"\treturn \"hi\"",
		"}",
	}
	obj := Object{
		Coords:        Coordinates{Start: Point{Row: 2}, End: Point{Row: 4}},
		ContextBefore: []int{0},
	}

	out := Render(obj, lines, RenderOptions{IncludeContext: true, LineNumbers: true})
	assert.Contains(t, out, "package main")
	assert.Contains(t, out, "func greet")
	assert.Contains(t, out, "}")
}

func TestContentHash_StableAcrossRenderModes(t *testing.T) {
	lines := []string{"hello"}
	obj := Object{Coords: Coordinates{Start: Point{Row: 0}, End: Point{Row: 0}}}

	h1 := ContentHash(obj, lines)
	rendered := Render(obj, lines, CanonicalOptions)
	h2 := sha256.Sum256([]byte(rendered))
	assert.Equal(t, h1, h2)
}

func TestIsText(t *testing.T) {
	assert.True(t, IsText([]byte("package main\n")))
	assert.False(t, IsText([]byte{0x00, 0x01, 0x02, 'a', 'b'}))
}

func TestSplitLines(t *testing.T) {
	lines := SplitLines([]byte("a\nb\nc\n"))
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"a", "b", "c"}, lines)

	lines = SplitLines([]byte("a\nb"))
	require.Len(t, lines, 2)
}
