package segment

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ErrMalformedDocument is returned when a document yields no extractable
// text. It is local to the offending document; batch ingestion continues
// with the remaining documents.
var ErrMalformedDocument = errors.New("malformed document")

const (
	// DefaultMinChunkRunes merges smaller same-section chunks forward to
	// avoid degenerate single-word chunks.
	DefaultMinChunkRunes = 50
	// DefaultMaxChunkRunes caps chunk size; long sections are split into
	// multiple chunks sharing the same section path.
	DefaultMaxChunkRunes = 900

	untitledSection = "(Untitled)"
)

// Config tunes chunk size constraints. Zero values select the defaults.
type Config struct {
	MinChunkRunes int
	MaxChunkRunes int
}

// Segmenter splits markdown documents into section-path-tagged chunks
// using goldmark AST parsing. Segmentation is deterministic: the same
// document text always produces the same chunk sequence and IDs.
type Segmenter struct {
	parser   goldmark.Markdown
	minRunes int
	maxRunes int
}

// New creates a Segmenter with the given config.
func New(cfg Config) *Segmenter {
	minRunes := cfg.MinChunkRunes
	if minRunes <= 0 {
		minRunes = DefaultMinChunkRunes
	}
	maxRunes := cfg.MaxChunkRunes
	if maxRunes <= 0 {
		maxRunes = DefaultMaxChunkRunes
	}
	return &Segmenter{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
		minRunes: minRunes,
		maxRunes: maxRunes,
	}
}

// Segment splits a document along heading boundaries into chunks. Each
// chunk carries the section path built from the heading hierarchy above
// it; a chunk never spans two top-level sections.
func (s *Segmenter) Segment(doc Document) ([]Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: %s: empty document", ErrMalformedDocument, doc.SourceID)
	}

	content := []byte(normalizeNewlines(doc.Text))
	root := s.parser.Parser().Parse(text.NewReader(content))

	sections := collectSections(root, content)
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: %s: no extractable text", ErrMalformedDocument, doc.SourceID)
	}

	sections = s.mergeSmallSections(sections)

	var chunks []Chunk
	for _, sec := range sections {
		for _, part := range s.splitText(sec.text) {
			chunks = append(chunks, Chunk{
				SourceID:    doc.SourceID,
				SectionPath: sec.path,
				Text:        part,
			})
		}
	}

	for i := range chunks {
		chunks[i].Ordinal = i
		chunks[i].ID = stableID(doc.SourceID, chunks[i].SectionPath, i)
	}
	return chunks, nil
}

// stableID derives a chunk id from its source, section path and ordinal.
func stableID(sourceID, sectionPath string, ordinal int) string {
	raw := strings.Join([]string{sourceID, sectionPath, strconv.Itoa(ordinal)}, "::")
	return fmt.Sprintf("%x", sha1.Sum([]byte(raw)))
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// section is a contiguous run of content under one heading path.
type section struct {
	path string
	text string
}

type headingInfo struct {
	level int
	title string
}

// collectSections walks the AST and groups body text under the heading
// hierarchy in effect at each point. Content before the first heading is
// placed under an untitled section.
func collectSections(root ast.Node, content []byte) []section {
	var sections []section
	var stack []headingInfo
	var body strings.Builder
	currentPath := untitledSection

	flush := func() {
		text := strings.TrimSpace(body.String())
		body.Reset()
		if text == "" {
			return
		}
		sections = append(sections, section{path: currentPath, text: text})
	}

	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			flush()
			for len(stack) > 0 && stack[len(stack)-1].level >= node.Level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, headingInfo{level: node.Level, title: nodeText(node, content)})
			currentPath = headingPath(stack)
			return ast.WalkSkipChildren, nil

		case *ast.Text:
			body.Write(node.Segment.Value(content))
			return ast.WalkContinue, nil

		case *ast.String:
			body.Write(node.Value)
			return ast.WalkContinue, nil

		case *ast.FencedCodeBlock, *ast.CodeBlock:
			ensureNewline(&body)
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				line := lines.At(i)
				body.Write(line.Value(content))
			}
			return ast.WalkSkipChildren, nil

		case *ast.Paragraph, *ast.List, *ast.ListItem:
			ensureNewline(&body)
			return ast.WalkContinue, nil

		default:
			// Table extension nodes are matched by kind name; rows are
			// flattened into pipe-separated lines.
			kind := n.Kind().String()
			if kind == "TableRow" || kind == "TableHeader" {
				ensureNewline(&body)
				body.WriteString(tableRowText(n, content))
				body.WriteString("\n")
				return ast.WalkSkipChildren, nil
			}
			if kind == "Table" {
				ensureNewline(&body)
			}
			return ast.WalkContinue, nil
		}
	})
	flush()

	return sections
}

func ensureNewline(b *strings.Builder) {
	if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
}

// headingPath joins the heading stack titles into a section path.
func headingPath(stack []headingInfo) string {
	if len(stack) == 0 {
		return untitledSection
	}
	parts := make([]string, len(stack))
	for i, h := range stack {
		parts[i] = h.title
	}
	return strings.Join(parts, PathDelimiter)
}

// nodeText extracts the plain text of a node and its children.
func nodeText(n ast.Node, content []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(content))
		case *ast.String:
			b.Write(v.Value)
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// tableRowText flattens a table row into "cell | cell | cell".
func tableRowText(row ast.Node, content []byte) string {
	var b strings.Builder
	cells := 0
	_ = ast.Walk(row, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if node.Kind().String() == "TableCell" {
			if cells > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(nodeText(node, content))
			cells++
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

// mergeSmallSections merges consecutive sections that share a section path,
// and folds undersized sections into the previous same-path section. Merging
// never crosses section paths, so a chunk cannot span two top-level sections.
func (s *Segmenter) mergeSmallSections(sections []section) []section {
	if len(sections) == 0 {
		return sections
	}

	merged := []section{sections[0]}
	for _, sec := range sections[1:] {
		last := &merged[len(merged)-1]
		if sec.path == last.path {
			last.text = last.text + "\n\n" + sec.text
			continue
		}
		merged = append(merged, sec)
	}

	// Undersized sections stay separate unless a same-path neighbor exists;
	// they already carry distinct section paths and must keep them.
	result := make([]section, 0, len(merged))
	for _, sec := range merged {
		if utf8.RuneCountInString(sec.text) >= s.minRunes || len(result) == 0 {
			result = append(result, sec)
			continue
		}
		last := &result[len(result)-1]
		if last.path == sec.path {
			last.text = last.text + "\n\n" + sec.text
		} else {
			result = append(result, sec)
		}
	}
	return result
}

// splitText splits oversized section text into maxRunes-bounded parts,
// preferring paragraph, then line, then sentence boundaries.
func (s *Segmenter) splitText(text string) []string {
	if utf8.RuneCountInString(text) <= s.maxRunes {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	start := 0
	for start < len(runes) {
		end := start + s.maxRunes
		if end >= len(runes) {
			part := strings.TrimSpace(string(runes[start:]))
			if part != "" {
				parts = append(parts, part)
			}
			break
		}

		window := string(runes[start:end])
		split := end
		if i := strings.LastIndex(window, "\n\n"); i != -1 {
			split = start + utf8.RuneCountInString(window[:i+2])
		} else if i := strings.LastIndex(window, "\n"); i != -1 {
			split = start + utf8.RuneCountInString(window[:i+1])
		} else if i := strings.LastIndex(window, ". "); i != -1 {
			split = start + utf8.RuneCountInString(window[:i+2])
		}
		if split <= start {
			split = end
		}

		part := strings.TrimSpace(string(runes[start:split]))
		if part != "" {
			parts = append(parts, part)
		}
		start = split
	}
	return parts
}
