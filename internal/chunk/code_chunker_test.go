package chunk

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestCodeChunker_Rust_ImplMethodsGetParentName(t *testing.T) {
	source := []byte(`struct Point {
    x: i32,
}

impl Point {
    fn new() -> Point {
        Point { x: 0 }
    }

    fn x(&self) -> i32 {
        self.x
    }
}
`)

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "point.rs", Content: source, Language: "rust"})
	require.NoError(t, err)

	var impl, newFn, xFn *Chunk
	for _, ch := range chunks {
		switch {
		case ch.Kind == KindImpl:
			impl = ch
		case ch.Kind == KindFunction && strings.Contains(ch.Text, "fn new"):
			newFn = ch
		case ch.Kind == KindFunction && strings.Contains(ch.Text, "fn x"):
			xFn = ch
		}
	}

	require.NotNil(t, impl)
	require.NotNil(t, newFn)
	require.NotNil(t, xFn)
	assert.Equal(t, "Point", newFn.ParentName)
	assert.Equal(t, "Point", xFn.ParentName)
	assert.Equal(t, "", impl.ParentName)

	// impl starts before its methods, so it gets the lower ordinal.
	assert.Less(t, impl.Ordinal, newFn.Ordinal)
	assert.Less(t, newFn.Ordinal, xFn.Ordinal)
}

func TestCodeChunker_Rust_BareModDeclarationNotChunked(t *testing.T) {
	source := []byte(`mod submodule;

fn main() {}
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "main.rs", Content: source, Language: "rust"})
	require.NoError(t, err)

	for _, ch := range chunks {
		assert.NotEqual(t, KindModule, ch.Kind)
	}
}

func TestCodeChunker_Rust_NonEmptyModIsChunked(t *testing.T) {
	source := []byte(`mod helpers {
    pub fn help() {}
}
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "lib.rs", Content: source, Language: "rust"})
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if ch.Kind == KindModule {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCodeChunker_Python_ClassMethodsNested(t *testing.T) {
	source := []byte(`class Greeter:
    def greet(self, name):
        return f"hello {name}"

    def farewell(self, name):
        return f"bye {name}"


def standalone():
    return 1
`)

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "greet.py", Content: source, Language: "python"})
	require.NoError(t, err)

	var class *Chunk
	methodCount := 0
	var standaloneFn *Chunk
	for _, ch := range chunks {
		switch {
		case ch.Kind == KindClass:
			class = ch
		case ch.Kind == KindFunction && ch.ParentName == "Greeter":
			methodCount++
		case ch.Kind == KindFunction && ch.ParentName == "":
			standaloneFn = ch
		}
	}

	require.NotNil(t, class)
	assert.Equal(t, "", class.ParentName)
	assert.Equal(t, 2, methodCount)
	require.NotNil(t, standaloneFn)
	assert.Contains(t, standaloneFn.Text, "standalone")
}

func TestCodeChunker_Python_DecoratedClassRefinedToClassKind(t *testing.T) {
	source := []byte(`@dataclass
class Point:
    x: int
    y: int
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "point.py", Content: source, Language: "python"})
	require.NoError(t, err)

	// The decorated_definition and the class_definition nested in it are
	// both emitted; the outer one sorts first and carries the refined kind.
	require.Len(t, chunks, 2)
	assert.Equal(t, KindClass, chunks[0].Kind)
}

func TestCodeChunker_Python_DecoratedFunctionStaysFunctionKind(t *testing.T) {
	source := []byte(`@staticmethod
def helper():
    return 1
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "helper.py", Content: source, Language: "python"})
	require.NoError(t, err)

	// The decorated_definition and the nested function_definition are both
	// emitted.
	require.Len(t, chunks, 2)
	assert.Equal(t, KindFunction, chunks[0].Kind)
}

func TestCodeChunker_JavaScript_ArrowFunctionBoundToVariableIsChunked(t *testing.T) {
	source := []byte(`const add = (a, b) => {
    return a + b;
};

let unrelated = 5;
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "math.js", Content: source, Language: "javascript"})
	require.NoError(t, err)

	var found bool
	for _, ch := range chunks {
		if ch.Kind == KindFunction && strings.Contains(ch.Text, "add") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCodeChunker_TypeScript_InterfaceAndTypeAlias(t *testing.T) {
	source := []byte(`interface User {
    name: string;
}

type ID = string | number;

function greet(u: User): string {
    return u.name;
}
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "user.ts", Content: source, Language: "typescript"})
	require.NoError(t, err)

	kinds := map[Kind]int{}
	for _, ch := range chunks {
		kinds[ch.Kind]++
	}
	assert.Equal(t, 1, kinds[KindInterface])
	assert.Equal(t, 1, kinds[KindType])
	assert.Equal(t, 1, kinds[KindFunction])
}

func TestCodeChunker_TopLevelCodeGroupedIntoOneChunk(t *testing.T) {
	source := []byte(`import os
import sys

VALUE = compute_default()
ANOTHER = VALUE + 1


def helper():
    return VALUE
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "mod.py", Content: source, Language: "python"})
	require.NoError(t, err)

	var topLevel *Chunk
	for _, ch := range chunks {
		if ch.Kind == KindTopLevel {
			topLevel = ch
		}
	}
	require.NotNil(t, topLevel)
	assert.Contains(t, topLevel.Text, "import os")
	assert.Contains(t, topLevel.Text, "VALUE = compute_default()")
	assert.NotContains(t, topLevel.Text, "def helper")
}

func TestCodeChunker_SparseTopLevelCodeBelowThresholdIsDropped(t *testing.T) {
	source := []byte(`import os


def helper():
    return 1
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "mod.py", Content: source, Language: "python"})
	require.NoError(t, err)

	for _, ch := range chunks {
		assert.NotEqual(t, KindTopLevel, ch.Kind)
	}
}

func TestCodeChunker_SmallChunkStillEmitted(t *testing.T) {
	source := []byte(`def f():
    pass
`)
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "f.py", Content: source, Language: "python"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, KindFunction, chunks[0].Kind)
}

func TestCodeChunker_OversizeChunkEmittedWithoutSplitting(t *testing.T) {
	var b strings.Builder
	b.WriteString("def big():\n")
	for i := 0; i < 500; i++ {
		b.WriteString("    x = 1\n")
	}
	source := []byte(b.String())

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "big.py", Content: source, Language: "python"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Greater(t, chunks[0].EndLine-chunks[0].StartLine, 400)
}

func TestCodeChunker_OversizeFileSkippedWithoutError(t *testing.T) {
	source := bytes.Repeat([]byte("a"), maxChunkableFileSize+1)

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "huge.py", Content: source, Language: "python"})
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestCodeChunker_NonUTF8FileSkippedWithoutError(t *testing.T) {
	source := []byte{0xff, 0xfe, 0xfd}

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "bin.py", Content: source, Language: "python"})
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestCodeChunker_HashIsStableAndContentSensitive(t *testing.T) {
	source1 := []byte("def f():\n    return 1\n")
	source2 := []byte("def f():\n    return 2\n")

	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks1, err := c.Chunk(context.Background(), &FileInput{Path: "f.py", Content: source1, Language: "python"})
	require.NoError(t, err)
	chunks2, err := c.Chunk(context.Background(), &FileInput{Path: "f.py", Content: source1, Language: "python"})
	require.NoError(t, err)
	chunks3, err := c.Chunk(context.Background(), &FileInput{Path: "f.py", Content: source2, Language: "python"})
	require.NoError(t, err)

	require.Len(t, chunks1, 1)
	require.Len(t, chunks2, 1)
	require.Len(t, chunks3, 1)
	assert.Equal(t, chunks1[0].Hash, chunks2[0].Hash)
	assert.NotEqual(t, chunks1[0].Hash, chunks3[0].Hash)
}

func TestCodeChunker_HashIgnoresTrailingWhitespaceAndLineEndings(t *testing.T) {
	assert.Equal(t, hashText("def f():  \n    return 1\n"), hashText("def f():\r\n    return 1\r\n"))
}

func TestCodeChunker_UnsupportedLanguageSkipped(t *testing.T) {
	c := NewCodeChunker().WithLogger(discardLogger())
	defer c.Close()

	chunks, err := c.Chunk(context.Background(), &FileInput{Path: "main.go", Content: []byte("package main"), Language: "go"})
	require.NoError(t, err)
	assert.Nil(t, chunks)
}

func TestCodeChunker_SupportedExtensions(t *testing.T) {
	c := NewCodeChunker()
	defer c.Close()
	exts := c.SupportedExtensions()
	assert.Contains(t, exts, ".rs")
	assert.Contains(t, exts, ".py")
	assert.Contains(t, exts, ".js")
	assert.Contains(t, exts, ".ts")
	assert.Contains(t, exts, ".tsx")
}
