package dast

import (
	"fmt"
	"strings"
)

// Match pairs a node with its path of child indices from the root.
type Match struct {
	Node Node
	Path []int
}

// FindAll returns every node satisfying pred, in depth-first pre-order. The
// root itself is considered (with an empty path). FindAll is pure: it holds
// no iterator state, so repeated calls on the same tree return the same
// matches in the same order.
func FindAll(root Node, pred func(Node) bool) []Match {
	var matches []Match
	findAll(root, pred, nil, &matches)
	return matches
}

func findAll(n Node, pred func(Node) bool, path []int, matches *[]Match) {
	if pred(n) {
		copied := make([]int, len(path))
		copy(copied, path)
		*matches = append(*matches, Match{Node: n, Path: copied})
	}
	for i, child := range children(n) {
		findAll(child, pred, append(path, i), matches)
	}
}

// Transform rewrites a tree bottom-up: children are rebuilt first, then visit
// is applied to the rebuilt node. Returning nil from visit deletes the node
// from its parent's child list; returning a different node replaces it. The
// input tree is never mutated. Rebuilt nodes pass back through the builder
// constructors, so a rewrite that would break a structural invariant (say,
// deleting every child of a link) fails instead of producing an invalid tree.
// Transform returns nil, nil when visit deletes the root itself.
func Transform(root Node, visit func(Node) Node) (Node, error) {
	return transform(root, visit)
}

func transform(n Node, visit func(Node) Node) (Node, error) {
	kids := children(n)
	newKids := make([]any, 0, len(kids))
	for _, kid := range kids {
		rebuilt, err := transform(kid, visit)
		if err != nil {
			return nil, err
		}
		if rebuilt == nil {
			continue
		}
		newKids = append(newKids, rebuilt)
	}

	rebuilt, err := rebuild(n, newKids)
	if err != nil {
		return nil, err
	}
	return visit(rebuilt), nil
}

func rebuild(n Node, kids []any) (Node, error) {
	switch v := n.(type) {
	case *Root:
		return NewRoot(kids...)
	case *Paragraph:
		return NewParagraph(kids...)
	case *Heading:
		return NewHeading(v.Level, kids...)
	case *List:
		return NewList(v.Style, kids...)
	case *ListItem:
		return NewListItem(kids...)
	case *Blockquote:
		return NewBlockquote(kids...)
	case *Code:
		return NewCode(v.Language, kids...)
	case *Span:
		return NewSpan(v.Value, v.Marks...), nil
	case *Link:
		if v.Meta != nil {
			kids = append(kids, Meta(v.Meta))
		}
		return NewLink(v.URL, kids...)
	case *ItemLink:
		if v.Meta != nil {
			kids = append(kids, Meta(v.Meta))
		}
		return NewItemLink(v.Item, kids...)
	case *InlineItem:
		return NewInlineItem(v.Item), nil
	case *EmbeddedBlock:
		return NewBlock(v.Item)
	default:
		return nil, fmt.Errorf("dast: unknown node variant %T", n)
	}
}

// PlainText flattens a tree to its readable text, one line per block-level
// node. Embedded blocks and inline item references contribute nothing.
func PlainText(n Node) string {
	var b strings.Builder
	writePlainText(&b, n)
	return strings.TrimSpace(b.String())
}

func writePlainText(b *strings.Builder, n Node) {
	if span, ok := n.(*Span); ok {
		b.WriteString(span.Value)
		return
	}
	for _, child := range children(n) {
		writePlainText(b, child)
		if _, ok := child.(BlockNode); ok {
			b.WriteString("\n")
		}
	}
}
