package object

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParser_UnrecognizedExtensionYieldsOneFileObject(t *testing.T) {
	p := NewParser()
	defer p.Close()

	objs, err := p.Parse(context.Background(), "README.md", []byte("Hello, world!"))
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, KindFile, objs[0].Kind)
	assert.Equal(t, "text", objs[0].Language)
	assert.Equal(t, "README.md", objs[0].Name)
}

func TestParser_GoFileYieldsFunctionObjects(t *testing.T) {
	p := NewParser()
	defer p.Close()

	src := []byte("package main\n\nfunc greet() string {\n\treturn \"Hello, world!\"\n}\n")
	objs, err := p.Parse(context.Background(), "main.go", src)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(objs), 2)
	assert.Equal(t, KindFile, objs[0].Kind)

	var found bool
	for _, o := range objs[1:] {
		if o.Kind == KindFunction && o.Name == "greet" {
			found = true
		}
	}
	assert.True(t, found, "expected a definition.function named greet")
}

func TestParser_PythonFileDetectsFunctionAndClass(t *testing.T) {
	p := NewParser()
	defer p.Close()

	src := []byte("class Greeter:\n    def hello(self):\n        print(\"Hello, world!\")\n\n\ndef standalone():\n    pass\n")
	objs, err := p.Parse(context.Background(), "code.py", src)
	require.NoError(t, err)

	var sawClass, sawMethod, sawFunction bool
	for _, o := range objs[1:] {
		switch {
		case o.Kind == KindClass && o.Name == "Greeter":
			sawClass = true
		case o.Kind == KindMethod && o.Name == "hello":
			sawMethod = true
		case o.Kind == KindFunction && o.Name == "standalone":
			sawFunction = true
		}
	}
	assert.True(t, sawClass)
	assert.True(t, sawMethod)
	assert.True(t, sawFunction)
}

func TestParser_ContextNarrowsAcrossMultipleEnclosingAncestors(t *testing.T) {
	p := NewParser()
	defer p.Close()

	src := []byte("def outer_func():\n" +
		"    class Outer:\n" +
		"        def middle(self):\n" +
		"            def inner():\n" +
		"                return 1\n" +
		"            return inner()\n" +
		"        x = 1\n" +
		"    return Outer\n")
	objs, err := p.Parse(context.Background(), "nested.py", src)
	require.NoError(t, err)

	var inner *Object
	for i := range objs {
		if objs[i].Name == "inner" {
			inner = &objs[i]
		}
	}
	require.NotNil(t, inner, "expected to find the innermost nested function")

	// A method nested in a class two levels up must keep the full
	// outer-to-inner ancestor chain, not collapse to the nearest one.
	require.GreaterOrEqual(t, len(inner.ContextBefore), 2)
	require.GreaterOrEqual(t, len(inner.ContextAfter), 2)

	for i := 1; i < len(inner.ContextBefore); i++ {
		assert.Greater(t, inner.ContextBefore[i], inner.ContextBefore[i-1],
			"context_before rows must narrow monotonically outermost to innermost")
	}
	for i := 1; i < len(inner.ContextAfter); i++ {
		assert.Greater(t, inner.ContextAfter[i], inner.ContextAfter[i-1],
			"context_after rows must widen monotonically innermost to outermost")
	}
}

func TestLanguageForPath(t *testing.T) {
	p := NewParser()
	defer p.Close()
	assert.Equal(t, "go", p.LanguageForPath("internal/foo/bar.go"))
	assert.Equal(t, "python", p.LanguageForPath("a-directory/code.py"))
	assert.Equal(t, "text", p.LanguageForPath("README.md"))
	assert.Equal(t, "text", p.LanguageForPath("Makefile"))
}
