package chunk

import "context"

// Kind tags a Chunk with the closed set of syntactic categories the
// Chunker recognizes. It is purely informational.
type Kind string

const (
	KindFunction  Kind = "function"
	KindMethod    Kind = "method"
	KindClass     Kind = "class"
	KindImpl      Kind = "impl"
	KindTrait     Kind = "trait"
	KindInterface Kind = "interface"
	KindStruct    Kind = "struct"
	KindEnum      Kind = "enum"
	KindType      Kind = "type"
	KindModule    Kind = "module"
	KindTopLevel  Kind = "top_level"
)

// Chunk is an indexable code span extracted from one SourceFile. It
// excludes the embedding vector, which is attached by the Indexer after
// the Embedder runs.
type Chunk struct {
	FilePath   string
	Ordinal    int
	Kind       Kind
	ParentName string // empty when there is no enclosing construct
	StartLine  int    // 1-based, inclusive
	EndLine    int    // 1-based, inclusive
	Text       string
	Hash       uint64
}

// FileInput is a SourceFile's bytes handed to the Chunker.
type FileInput struct {
	Path     string
	Content  []byte
	Language string // "rust", "python", "javascript", "typescript"
}

// Chunker splits one file into an ordered sequence of Chunks. It fails
// with a ParseError only when the underlying parser crashes; grammars are
// error-recovering, so syntactically invalid input never fails here.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error)
	SupportedExtensions() []string
}

// Tree is a parsed AST, decoupled from the tree-sitter node type so the
// rest of the package doesn't need to import the bindings directly.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is one node of a parsed AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a row/column position in the source.
type Point struct {
	Row    uint32 // 0-indexed
	Column uint32
}

// GetContent returns the source slice a node spans.
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Walk traverses the tree depth-first, calling fn for every node. fn
// returning false stops descent into that node's children (siblings and
// ancestors' remaining children still get visited).
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// LanguageConfig describes one supported language's grammar surface.
type LanguageConfig struct {
	Name       string
	Extensions []string

	// Chunkable maps a tree-sitter node type to the Kind emitted when a
	// node of that type is encountered while walking the tree.
	Chunkable map[string]Kind

	// Container node types whose name should be attached as ParentName to
	// any chunkable node nested beneath them (class/impl/trait/module).
	Containers map[string]bool
}
