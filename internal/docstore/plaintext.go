package docstore

import (
	"bytes"
	"context"
	"path"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"
)

// WithPlainText strips markup from HTML and markdown documents, chosen
// by the source id extension.
func WithPlainText(next Store) Store {
	return &plainTextStore{next: next}
}

type plainTextStore struct {
	next Store
}

func (p *plainTextStore) Read(ctx context.Context, sourceID string) (string, error) {
	raw, err := p.next.Read(ctx, sourceID)
	if err != nil {
		return "", err
	}
	return ExtractText(sourceID, raw), nil
}

func ExtractText(name string, raw string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".html", ".htm":
		return HTMLText(raw)
	case ".md", ".markdown":
		return MarkdownText(raw)
	default:
		return raw
	}
}

// HTMLText returns the visible text of an HTML document, one block per line.
func HTMLText(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return collapseLines(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				skip++
			case "p", "div", "br", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "section", "article":
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skip > 0 {
					skip--
				}
			case "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "tr", "section", "article":
				b.WriteByte('\n')
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}

// MarkdownText flattens a markdown document to its text content.
func MarkdownText(raw string) string {
	source := []byte(raw)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))
	var b bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(node.Value)
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return collapseLines(b.String())
}

func collapseLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
