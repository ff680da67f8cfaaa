// Package markdown turns markdown documents into speakable plain text and
// splits long text into request-sized segments on sentence boundaries.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const codeBlockMarker = "Code block omitted."

// Extractor converts markdown to plain text.
type Extractor struct {
	announceCode bool
	md           goldmark.Markdown
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCodeMarker replaces each code block with a short spoken marker
// instead of dropping it silently.
func WithCodeMarker(announce bool) Option {
	return func(e *Extractor) { e.announceCode = announce }
}

// NewExtractor returns an Extractor.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{md: goldmark.New()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PlainText returns the speakable text of a markdown document. Headings,
// paragraphs and list items end with sentence punctuation; links keep
// their text; images are described by their alt text; code blocks and
// HTML are skipped.
func (e *Extractor) PlainText(src string) string {
	source := []byte(src)
	doc := e.md.Parser().Parse(text.NewReader(source))

	var w writer
	e.walk(doc, source, &w)
	return collapseSpace(w.String())
}

// PlainText extracts with default options.
func PlainText(src string) string {
	return NewExtractor().PlainText(src)
}

type writer struct {
	strings.Builder
}

// endSentence terminates the text written so far unless it already ends in
// sentence punctuation.
func (w *writer) endSentence() {
	s := strings.TrimRight(w.String(), " ")
	if s == "" {
		return
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		w.WriteString(" ")
	default:
		w.WriteString(". ")
	}
}

func (e *Extractor) walk(node ast.Node, source []byte, w *writer) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock:
		if e.announceCode {
			w.endSentence()
			w.WriteString(codeBlockMarker + " ")
		}
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Text:
		w.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			w.WriteString(" ")
		}
		return

	case *ast.String:
		w.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				w.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Image:
		if alt := strings.TrimSpace(string(nodeText(n, source))); alt != "" {
			w.WriteString("Image: " + alt)
		}
		return

	case *ast.Heading, *ast.Paragraph, *ast.ListItem, *ast.TextBlock:
		e.walkChildren(n, source, w)
		w.endSentence()
		return

	case *ast.ThematicBreak:
		w.endSentence()
		return
	}

	e.walkChildren(node, source, w)
}

func (e *Extractor) walkChildren(node ast.Node, source []byte, w *writer) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		e.walk(c, source, w)
	}
}

func nodeText(node ast.Node, source []byte) []byte {
	var out []byte
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
			continue
		}
		out = append(out, nodeText(c, source)...)
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
