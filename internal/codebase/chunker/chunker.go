// Package chunker splits source files into retrievable chunks.
//
// Files with a registered tree-sitter grammar are split along definitions
// (functions, methods, classes, types); everything else, and any file whose
// parse fails, is split into fixed-size line windows. The chunks of one file
// never overlap and cover every non-blank line, so a file can be rebuilt from
// its chunks by byte offset.
package chunker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	errors "github.com/Laisky/errors/v2"
	sitter "github.com/smacker/go-tree-sitter"
)

const (
	DefaultMaxLines = 80
	DefaultMaxBytes = 3000
)

// Strategies reported in Result.
const (
	StrategyAST    = "ast"
	StrategyWindow = "window"
)

// Chunk kinds.
const (
	KindFunction = "function"
	KindMethod   = "method"
	KindClass    = "class"
	KindType     = "type"
	KindModule   = "module"
	KindWindow   = "window"
)

// Chunk is one contiguous region of a file.
type Chunk struct {
	Index     int
	Kind      string
	Name      string
	StartLine int // 1-based, inclusive
	EndLine   int // 1-based, inclusive
	StartByte int
	EndByte   int // exclusive
	Content   string
}

// EmbeddingText prefixes the chunk with its file context before embedding.
func (c Chunk) EmbeddingText(path, language string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\nLanguage: %s\n", path, language)
	if c.Name != "" {
		fmt.Fprintf(&b, "%s: %s\n", c.Kind, c.Name)
	}
	b.WriteString(c.Content)
	return b.String()
}

// Options bounds the size of every chunk.
type Options struct {
	MaxLines int
	MaxBytes int
}

// Result is the outcome of splitting one file.
type Result struct {
	Language string
	Strategy string
	Chunks   []Chunk
	// Warning is set when the language-aware path failed and line windows were used.
	Warning error
}

// CodeChunker splits files using the language registry with a line-window fallback.
type CodeChunker struct {
	registry *Registry
	opts     Options
}

// New creates a chunker. A nil registry disables the language-aware path.
func New(registry *Registry, opts Options) *CodeChunker {
	if opts.MaxLines <= 0 {
		opts.MaxLines = DefaultMaxLines
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	return &CodeChunker{registry: registry, opts: opts}
}

// Split chunks content. Whitespace-only content yields no chunks.
func (c *CodeChunker) Split(ctx context.Context, path, content string) Result {
	res := Result{Language: DetectLanguage(path), Strategy: StrategyWindow}
	if strings.TrimSpace(content) == "" {
		return res
	}

	doc := newDocument(content)
	b := &builder{doc: doc, opts: c.opts}

	if c.registry != nil {
		if spec, lang := c.registry.Lookup(path); spec != nil {
			spans, err := parseSpans(ctx, spec, doc)
			switch {
			case err != nil:
				res.Warning = errors.Wrapf(err, "parse %s as %s", path, lang)
			case len(spans) > 0:
				res.Strategy = StrategyAST
				b.emitRange(0, doc.lineCount()-1, spans, KindModule, "")
				res.Chunks = b.chunks
				return res
			}
		}
	}

	b.emitBounded(0, doc.lineCount()-1, KindWindow, "")
	res.Chunks = b.chunks
	return res
}

// document indexes line offsets of a file. The newline belongs to the line it ends.
type document struct {
	src        string
	lineStarts []int
}

func newDocument(src string) *document {
	starts := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return &document{src: src, lineStarts: starts}
}

func (d *document) lineCount() int { return len(d.lineStarts) }

func (d *document) lineStart(line int) int { return d.lineStarts[line] }

func (d *document) lineEnd(line int) int {
	if line+1 < len(d.lineStarts) {
		return d.lineStarts[line+1]
	}
	return len(d.src)
}

// span is a definition in 0-based inclusive line coordinates.
type span struct {
	start, end int
	kind, name string
	children   []*span
}

func parseSpans(ctx context.Context, spec *LanguageSpec, doc *document) ([]*span, error) {
	src := []byte(doc.src)

	parser := sitter.NewParser()
	parser.SetLanguage(spec.Language)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, errors.Wrap(err, "parse")
	}
	defer tree.Close()

	q, err := spec.compiledQuery()
	if err != nil {
		return nil, err
	}

	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(q, tree.RootNode())

	var spans []*span
	for {
		m, ok := qc.NextMatch()
		if !ok {
			break
		}

		var (
			chunkNode *sitter.Node
			name      string
		)
		for _, capture := range m.Captures {
			switch q.CaptureNameForId(capture.Index) {
			case "chunk":
				chunkNode = capture.Node
			case "name":
				name = capture.Node.Content(src)
			}
		}
		if chunkNode == nil {
			continue
		}

		start := int(chunkNode.StartPoint().Row)
		end := int(chunkNode.EndPoint().Row)
		if chunkNode.EndPoint().Column == 0 && end > start {
			end--
		}
		if end >= doc.lineCount() {
			end = doc.lineCount() - 1
		}

		spans = append(spans, &span{
			start: start,
			end:   end,
			kind:  normalizeKind(chunkNode.Type()),
			name:  name,
		})
	}

	return nest(spans), nil
}

// nest arranges spans into a forest. Spans that partially overlap an
// enclosing span are dropped, as are duplicates covering the same lines.
func nest(spans []*span) []*span {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var roots, stack []*span
	for _, sp := range spans {
		for len(stack) > 0 && stack[len(stack)-1].end < sp.start {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, sp)
			stack = append(stack, sp)
			continue
		}

		top := stack[len(stack)-1]
		if sp.end > top.end || (sp.start == top.start && sp.end == top.end) {
			continue
		}
		top.children = append(top.children, sp)
		stack = append(stack, sp)
	}

	return roots
}

func normalizeKind(nodeType string) string {
	switch {
	case strings.Contains(nodeType, "method"), strings.Contains(nodeType, "constructor"):
		return KindMethod
	case strings.Contains(nodeType, "class"):
		return KindClass
	case strings.Contains(nodeType, "function"),
		strings.Contains(nodeType, "lexical_declaration"),
		strings.Contains(nodeType, "export_statement"):
		return KindFunction
	default:
		// type_declaration, interface, struct, enum, trait, impl, module
		return KindType
	}
}

type builder struct {
	doc    *document
	opts   Options
	chunks []Chunk
}

// emitRange covers lines [lo, hi] with the given spans and fills the gaps
// between them with chunks of gapKind.
func (b *builder) emitRange(lo, hi int, spans []*span, gapKind, gapName string) {
	cursor := lo
	for _, sp := range spans {
		if sp.start > cursor {
			b.emitBounded(cursor, sp.start-1, gapKind, gapName)
		}
		b.emitSpan(sp)
		cursor = sp.end + 1
	}
	if cursor <= hi {
		b.emitBounded(cursor, hi, gapKind, gapName)
	}
}

// emitSpan keeps a definition whole when it fits, otherwise descends into its
// nested definitions before resorting to line windows.
func (b *builder) emitSpan(sp *span) {
	if len(sp.children) == 0 || b.fits(sp.start, sp.end) {
		b.emitBounded(sp.start, sp.end, sp.kind, sp.name)
		return
	}
	b.emitRange(sp.start, sp.end, sp.children, sp.kind, sp.name)
}

func (b *builder) fits(lo, hi int) bool {
	return hi-lo+1 <= b.opts.MaxLines &&
		b.doc.lineEnd(hi)-b.doc.lineStart(lo) <= b.opts.MaxBytes
}

// emitBounded splits lines [lo, hi] into windows within MaxLines and MaxBytes.
func (b *builder) emitBounded(lo, hi int, kind, name string) {
	for winStart := lo; winStart <= hi; {
		if b.doc.lineEnd(winStart)-b.doc.lineStart(winStart) > b.opts.MaxBytes {
			b.emitLongLine(winStart, kind, name)
			winStart++
			continue
		}

		winEnd := winStart
		for winEnd+1 <= hi && winEnd+2-winStart <= b.opts.MaxLines {
			if b.doc.lineEnd(winEnd+1)-b.doc.lineStart(winStart) > b.opts.MaxBytes {
				break
			}
			winEnd++
		}

		b.emit(b.doc.lineStart(winStart), b.doc.lineEnd(winEnd), winStart, winEnd, kind, name)
		winStart = winEnd + 1
	}
}

// emitLongLine cuts a single oversized line at rune boundaries.
func (b *builder) emitLongLine(line int, kind, name string) {
	start, end := b.doc.lineStart(line), b.doc.lineEnd(line)
	for start < end {
		cut := start + b.opts.MaxBytes
		if cut >= end {
			cut = end
		} else {
			for cut > start && !utf8.RuneStart(b.doc.src[cut]) {
				cut--
			}
			if cut == start {
				cut = start + b.opts.MaxBytes
			}
		}
		b.emit(start, cut, line, line, kind, name)
		start = cut
	}
}

func (b *builder) emit(startByte, endByte, startLine, endLine int, kind, name string) {
	content := b.doc.src[startByte:endByte]
	if strings.TrimSpace(content) == "" {
		return
	}

	b.chunks = append(b.chunks, Chunk{
		Index:     len(b.chunks),
		Kind:      kind,
		Name:      name,
		StartLine: startLine + 1,
		EndLine:   endLine + 1,
		StartByte: startByte,
		EndByte:   endByte,
		Content:   content,
	})
}
