package chunk

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"ragrep/internal/errkit"
)

// maxChunkableFileSize is the 1MiB ceiling from spec.md §4.1 past which a
// file is skipped rather than parsed.
const maxChunkableFileSize = 1 << 20

// minTopLevelLines is the non-blank-line floor for synthesizing a
// top_level chunk out of code no chunkable node covers.
const minTopLevelLines = 3

// CodeChunker walks a tree-sitter AST and emits one Chunk per chunkable
// node, plus a synthetic top_level chunk for code no node covers.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
	logger   *slog.Logger
}

// NewCodeChunker builds a CodeChunker against the package's default
// language registry.
func NewCodeChunker() *CodeChunker {
	return &CodeChunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
		logger:   slog.Default(),
	}
}

// WithLogger swaps the logger warnings about skipped files go to.
func (c *CodeChunker) WithLogger(logger *slog.Logger) *CodeChunker {
	c.logger = logger
	return c
}

// Close releases the underlying parser.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// SupportedExtensions returns the closed extension set this chunker
// recognizes.
func (c *CodeChunker) SupportedExtensions() []string {
	return c.registry.SupportedExtensions()
}

// Chunk implements Chunker. Oversize or non-UTF-8 files are skipped
// silently with a logged warning, never an error: a single unreadable file
// must not abort indexing the rest of a project.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*Chunk, error) {
	if len(file.Content) > maxChunkableFileSize {
		c.logger.Warn("skipping oversize file", "path", file.Path, "bytes", len(file.Content))
		return nil, nil
	}
	if !utf8.Valid(file.Content) {
		c.logger.Warn("skipping non-UTF-8 file", "path", file.Path)
		return nil, nil
	}

	config, ok := c.registry.GetByName(file.Language)
	if !ok {
		c.logger.Warn("skipping file with unrecognized language", "path", file.Path, "language", file.Language)
		return nil, nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return nil, errkit.Wrap(errkit.ParseError, err, "parse %s", file.Path)
	}

	lines := strings.Split(string(file.Content), "\n")

	matches := walkForChunks(tree.Root, file.Content, config, file.Language)
	sortMatches(matches)

	covered := make([]bool, len(lines))
	chunks := make([]*Chunk, 0, len(matches)+1)
	for ordinal, m := range matches {
		startLine := int(m.Node.StartPoint.Row)
		endLine := int(m.Node.EndPoint.Row)
		markCovered(covered, startLine, endLine)

		text := joinLines(lines, startLine, endLine)
		chunks = append(chunks, &Chunk{
			FilePath:   file.Path,
			Ordinal:    ordinal,
			Kind:       m.Kind,
			ParentName: m.ParentName,
			StartLine:  startLine + 1,
			EndLine:    endLine + 1,
			Text:       text,
			Hash:       hashText(text),
		})
	}

	if text, startLine, endLine, ok := topLevelChunk(lines, covered); ok {
		chunks = append(chunks, &Chunk{
			FilePath:  file.Path,
			Ordinal:   len(chunks),
			Kind:      KindTopLevel,
			StartLine: startLine,
			EndLine:   endLine,
			Text:      text,
			Hash:      hashText(text),
		})
	}

	return chunks, nil
}

// matchedNode is one chunkable AST node paired with the Kind it should be
// emitted as and the name of its nearest enclosing container, if any.
type matchedNode struct {
	Node       *Node
	Kind       Kind
	ParentName string
}

// walkForChunks traverses the tree depth-first, collecting every chunkable
// node (including nested ones — both an outer class and its inner methods
// are emitted) along with the name of the nearest Containers ancestor.
func walkForChunks(root *Node, source []byte, config *LanguageConfig, language string) []matchedNode {
	var matches []matchedNode

	var recurse func(n *Node, parents []string)
	recurse = func(n *Node, parents []string) {
		kind, ok := config.Chunkable[n.Type]

		if !ok && arrowFunctionDeclarator(n) {
			kind, ok = KindFunction, true
		}

		if ok && n.Type == "mod_item" && !hasDeclarationBody(n) {
			ok = false // `mod foo;` — no body to chunk
		}

		if ok && n.Type == "decorated_definition" {
			for _, child := range n.Children {
				if child.Type == "class_definition" {
					kind = KindClass
				}
			}
		}

		if ok {
			parentName := ""
			if len(parents) > 0 {
				parentName = parents[len(parents)-1]
			}
			matches = append(matches, matchedNode{Node: n, Kind: kind, ParentName: parentName})
		}

		nextParents := parents
		if config.Containers[n.Type] {
			if name := extractName(n, source, language); name != "" {
				nextParents = append(append([]string{}, parents...), name)
			}
		}

		for _, child := range n.Children {
			recurse(child, nextParents)
		}
	}

	recurse(root, nil)
	return matches
}

// hasDeclarationBody reports whether a Rust mod_item has a `{ ... }` body
// rather than being a bare `mod foo;` declaration.
func hasDeclarationBody(n *Node) bool {
	for _, child := range n.Children {
		if child.Type == "declaration_list" {
			return true
		}
	}
	return false
}

// sortMatches orders chunkable nodes by the byte offset of their first
// character, breaking ties by span length descending — an outer node and
// an inner node starting at the same byte place the outer one first.
func sortMatches(matches []matchedNode) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i].Node, matches[j].Node
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return (a.EndByte - a.StartByte) > (b.EndByte - b.StartByte)
	})
}

func markCovered(covered []bool, startLine, endLine int) {
	for i := startLine; i <= endLine && i < len(covered); i++ {
		if i >= 0 {
			covered[i] = true
		}
	}
}

func joinLines(lines []string, startLine, endLine int) string {
	if startLine < 0 {
		startLine = 0
	}
	if endLine >= len(lines) {
		endLine = len(lines) - 1
	}
	if startLine > endLine {
		return ""
	}
	return strings.Join(lines[startLine:endLine+1], "\n")
}

// topLevelChunk gathers every line no chunkable node covers into a single
// chunk, provided at least minTopLevelLines of it are non-blank. The
// reported span is the first-to-last uncovered line; lines covered by
// other chunks within that span are not part of Text.
func topLevelChunk(lines []string, covered []bool) (text string, startLine, endLine int, ok bool) {
	var buf []string
	first, last := -1, -1
	nonBlank := 0
	for i, line := range lines {
		if covered[i] {
			continue
		}
		if first == -1 {
			first = i
		}
		last = i
		buf = append(buf, line)
		if strings.TrimSpace(line) != "" {
			nonBlank++
		}
	}
	if nonBlank < minTopLevelLines {
		return "", 0, 0, false
	}
	return strings.Join(buf, "\n"), first + 1, last + 1, true
}
