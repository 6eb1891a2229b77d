package export

import (
	"fmt"
	"html/template"
	"strings"

	"tessera/api/internal/dast"
)

// EntityRenderer resolves embedded references to display HTML. Rendering of
// item references is consumer-controlled; the export service plugs in a
// resolver backed by the item store.
type EntityRenderer interface {
	// RenderInline returns the HTML for an inline item reference.
	RenderInline(itemID string) template.HTML
	// RenderBlock returns the HTML for an embedded block entity.
	RenderBlock(entity dast.Entity) template.HTML
}

// RenderHTML converts a structured text tree to HTML. A nil renderer falls
// back to neutral placeholders for references.
func RenderHTML(root *dast.Root, renderer EntityRenderer) string {
	if renderer == nil {
		renderer = placeholderRenderer{}
	}
	var b strings.Builder
	for _, child := range root.Children {
		renderBlockNode(&b, child, renderer)
	}
	return b.String()
}

func renderBlockNode(b *strings.Builder, n dast.BlockNode, renderer EntityRenderer) {
	switch node := n.(type) {
	case *dast.Paragraph:
		b.WriteString("<p>")
		renderInlineNodes(b, node.Children, renderer)
		b.WriteString("</p>\n")
	case *dast.Heading:
		fmt.Fprintf(b, "<h%d>", node.Level)
		renderInlineNodes(b, node.Children, renderer)
		fmt.Fprintf(b, "</h%d>\n", node.Level)
	case *dast.List:
		tag := "ul"
		if node.Style == dast.ListNumbered {
			tag = "ol"
		}
		fmt.Fprintf(b, "<%s>\n", tag)
		for _, item := range node.Items {
			b.WriteString("<li>")
			for _, child := range item.Children {
				renderBlockNode(b, child, renderer)
			}
			b.WriteString("</li>\n")
		}
		fmt.Fprintf(b, "</%s>\n", tag)
	case *dast.Blockquote:
		b.WriteString("<blockquote>\n")
		for _, paragraph := range node.Children {
			renderBlockNode(b, paragraph, renderer)
		}
		b.WriteString("</blockquote>\n")
	case *dast.Code:
		if node.Language != "" {
			fmt.Fprintf(b, "<pre><code class=%q>", "language-"+node.Language)
		} else {
			b.WriteString("<pre><code>")
		}
		for _, span := range node.Children {
			renderInlineNode(b, span, renderer)
		}
		b.WriteString("</code></pre>\n")
	case *dast.EmbeddedBlock:
		b.WriteString(string(renderer.RenderBlock(node.Item)))
		b.WriteString("\n")
	}
}

func renderInlineNodes(b *strings.Builder, nodes []dast.InlineNode, renderer EntityRenderer) {
	for _, n := range nodes {
		renderInlineNode(b, n, renderer)
	}
}

func renderInlineNode(b *strings.Builder, n dast.InlineNode, renderer EntityRenderer) {
	switch node := n.(type) {
	case *dast.Span:
		opening, closing := markTags(node.Marks)
		b.WriteString(opening)
		b.WriteString(template.HTMLEscapeString(node.Value))
		b.WriteString(closing)
	case *dast.Link:
		fmt.Fprintf(b, "<a href=%q%s>", node.URL, metaAttrs(node.Meta))
		for _, span := range node.Children {
			renderInlineNode(b, span, renderer)
		}
		b.WriteString("</a>")
	case *dast.ItemLink:
		fmt.Fprintf(b, "<a data-item=%q%s>", node.Item, metaAttrs(node.Meta))
		renderInlineNodes(b, node.Children, renderer)
		b.WriteString("</a>")
	case *dast.InlineItem:
		b.WriteString(string(renderer.RenderInline(node.Item)))
	}
}

// markTags returns the opening and closing tag sequences for a mark set.
// Marks are already sorted, so output is deterministic.
func markTags(marks []dast.Mark) (string, string) {
	tags := make([]string, 0, len(marks))
	for _, mark := range marks {
		switch mark {
		case dast.MarkStrong:
			tags = append(tags, "strong")
		case dast.MarkEmphasis:
			tags = append(tags, "em")
		case dast.MarkCode:
			tags = append(tags, "code")
		case dast.MarkUnderline:
			tags = append(tags, "u")
		case dast.MarkStrikethrough:
			tags = append(tags, "s")
		case dast.MarkHighlight:
			tags = append(tags, "mark")
		}
	}
	var opening, closing strings.Builder
	for _, tag := range tags {
		opening.WriteString("<" + tag + ">")
	}
	// Closing tags nest in reverse order.
	for i := len(tags) - 1; i >= 0; i-- {
		closing.WriteString("</" + tags[i] + ">")
	}
	return opening.String(), closing.String()
}

func metaAttrs(meta []dast.MetaEntry) string {
	var b strings.Builder
	for _, entry := range meta {
		switch entry.ID {
		case "rel", "target", "title":
			fmt.Fprintf(&b, " %s=%q", entry.ID, entry.Value)
		}
	}
	return b.String()
}

type placeholderRenderer struct{}

func (placeholderRenderer) RenderInline(itemID string) template.HTML {
	return template.HTML(fmt.Sprintf("<span data-item=%q></span>", itemID))
}

func (placeholderRenderer) RenderBlock(entity dast.Entity) template.HTML {
	switch e := entity.(type) {
	case *dast.ItemRef:
		return template.HTML(fmt.Sprintf("<div data-block=%q></div>", e.ID))
	case *dast.NewItem:
		return template.HTML(fmt.Sprintf("<div data-block-type=%q></div>", e.ItemType))
	default:
		return ""
	}
}
