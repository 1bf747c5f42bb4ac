package textload

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractSpeakable reduces markdown to plain text suitable for speech
// synthesis. Code blocks and raw HTML are dropped, inline code spans
// are kept, and headings, paragraphs, and list items are terminated
// with sentence punctuation so the chunker finds boundaries where the
// document has structure.
func ExtractSpeakable(markdown string) string {
	md := goldmark.New()
	reader := text.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	walk(doc, reader.Source(), &buf)
	return strings.TrimSpace(buf.String())
}

// walk descends the markdown AST collecting speakable text.
func walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
		return

	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.Heading:
		walkChildren(n, source, buf)
		terminate(buf)
		return

	case *ast.Paragraph:
		walkChildren(n, source, buf)
		terminate(buf)
		return

	case *ast.ListItem:
		walkChildren(n, source, buf)
		terminate(buf)
		return

	case *ast.Link, *ast.Emphasis:
		walkChildren(node, source, buf)
		return

	case *ast.Image:
		// The alt text is speakable, the URL is not.
		walkChildren(node, source, buf)
		return

	case *ast.RawHTML:
		return
	}

	walkChildren(node, source, buf)
}

func walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		walk(c, source, buf)
	}
}

// terminate closes the current block with sentence punctuation unless
// it already ends in some, then separates it from the next block.
func terminate(buf *strings.Builder) {
	s := strings.TrimRight(buf.String(), " \t\n")
	if s == "" {
		return
	}
	buf.Reset()
	buf.WriteString(s)
	if !strings.ContainsRune(".?!;:", rune(s[len(s)-1])) {
		buf.WriteByte('.')
	}
	buf.WriteString("\n\n")
}
