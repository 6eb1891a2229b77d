package dast

import (
	"fmt"
	"sort"
)

// Builder constructors. Every constructor returns a fully-formed node or an
// error; there is no partially-built state to repair afterwards. Child
// arguments are already-built nodes, or bare strings where inline content is
// legal (auto-wrapped as spans). Link constructors additionally accept a
// single Meta argument anywhere in the child list.

var (
	rootKinds       = []Kind{KindParagraph, KindHeading, KindList, KindBlockquote, KindCode, KindBlock}
	listKinds       = []Kind{KindListItem}
	listItemKinds   = []Kind{KindParagraph, KindList}
	blockquoteKinds = []Kind{KindParagraph}
	inlineKinds     = []Kind{KindSpan, KindLink, KindItemLink, KindInlineItem}
	spanOnlyKinds   = []Kind{KindSpan}
)

// NewRoot assembles the document container from block-level children.
func NewRoot(args ...any) (*Root, error) {
	nodes, err := coerce(KindRoot, args)
	if err != nil {
		return nil, err
	}
	children := make([]BlockNode, 0, len(nodes))
	for _, n := range nodes {
		block, ok := n.(BlockNode)
		if !ok {
			return nil, &StructuralError{Parent: KindRoot, Child: n.Kind(), Allowed: rootKinds}
		}
		children = append(children, block)
	}
	return &Root{Children: children}, nil
}

// NewParagraph assembles a paragraph from inline children or strings.
func NewParagraph(args ...any) (*Paragraph, error) {
	children, err := inlineChildren(KindParagraph, args)
	if err != nil {
		return nil, err
	}
	return &Paragraph{Children: children}, nil
}

// NewHeading assembles a heading. Level must be between 1 and 6.
func NewHeading(level int, args ...any) (*Heading, error) {
	if level < 1 || level > 6 {
		return nil, &RangeError{Parent: KindHeading, Attribute: "level", Value: level, Min: 1, Max: 6}
	}
	children, err := inlineChildren(KindHeading, args)
	if err != nil {
		return nil, err
	}
	return &Heading{Level: level, Children: children}, nil
}

// NewList assembles a list from list items.
func NewList(style ListStyle, args ...any) (*List, error) {
	if style != ListBulleted && style != ListNumbered {
		return nil, fmt.Errorf("dast: unknown list style %q", style)
	}
	nodes, err := coerce(KindList, args)
	if err != nil {
		return nil, err
	}
	items := make([]*ListItem, 0, len(nodes))
	for _, n := range nodes {
		item, ok := n.(*ListItem)
		if !ok {
			return nil, &StructuralError{Parent: KindList, Child: n.Kind(), Allowed: listKinds}
		}
		items = append(items, item)
	}
	return &List{Style: style, Items: items}, nil
}

// NewListItem assembles one list entry from paragraphs and nested lists.
func NewListItem(args ...any) (*ListItem, error) {
	nodes, err := coerce(KindListItem, args)
	if err != nil {
		return nil, err
	}
	children := make([]BlockNode, 0, len(nodes))
	for _, n := range nodes {
		switch v := n.(type) {
		case *Paragraph, *List:
			children = append(children, v.(BlockNode))
		default:
			return nil, &StructuralError{Parent: KindListItem, Child: n.Kind(), Allowed: listItemKinds}
		}
	}
	return &ListItem{Children: children}, nil
}

// NewBlockquote assembles a quote from paragraphs.
func NewBlockquote(args ...any) (*Blockquote, error) {
	nodes, err := coerce(KindBlockquote, args)
	if err != nil {
		return nil, err
	}
	children := make([]*Paragraph, 0, len(nodes))
	for _, n := range nodes {
		paragraph, ok := n.(*Paragraph)
		if !ok {
			return nil, &StructuralError{Parent: KindBlockquote, Child: n.Kind(), Allowed: blockquoteKinds}
		}
		children = append(children, paragraph)
	}
	return &Blockquote{Children: children}, nil
}

// NewCode assembles a code block. Children carry the source text and must be
// spans; bare strings are wrapped.
func NewCode(language string, args ...any) (*Code, error) {
	nodes, err := coerce(KindCode, args)
	if err != nil {
		return nil, err
	}
	children := make([]InlineNode, 0, len(nodes))
	for _, n := range nodes {
		span, ok := n.(*Span)
		if !ok {
			return nil, &StructuralError{Parent: KindCode, Child: n.Kind(), Allowed: spanOnlyKinds}
		}
		children = append(children, span)
	}
	return &Code{Language: language, Children: children}, nil
}

// NewSpan builds leaf inline text. Marks are deduplicated and sorted so that
// equal mark sets produce structurally equal spans.
func NewSpan(value string, marks ...Mark) *Span {
	return &Span{Value: value, Marks: normalizeMarks(marks)}
}

// NewLink assembles an external hyperlink. At least one span child is
// required; a Meta argument attaches metadata entries.
func NewLink(url string, args ...any) (*Link, error) {
	nodes, meta, err := coerceWithMeta(KindLink, args)
	if err != nil {
		return nil, err
	}
	children := make([]*Span, 0, len(nodes))
	for _, n := range nodes {
		span, ok := n.(*Span)
		if !ok {
			return nil, &StructuralError{Parent: KindLink, Child: n.Kind(), Allowed: spanOnlyKinds}
		}
		children = append(children, span)
	}
	if len(children) == 0 {
		return nil, &EmptyChildrenError{Parent: KindLink}
	}
	return &Link{URL: url, Meta: meta, Children: children}, nil
}

// NewItemLink assembles an inline link targeting a content item. The author
// supplies the rendered text through the required children; this is what
// distinguishes it from NewInlineItem, which has no child slot at all.
func NewItemLink(item string, args ...any) (*ItemLink, error) {
	nodes, meta, err := coerceWithMeta(KindItemLink, args)
	if err != nil {
		return nil, err
	}
	children := make([]InlineNode, 0, len(nodes))
	for _, n := range nodes {
		inline, ok := n.(InlineNode)
		if !ok {
			return nil, &StructuralError{Parent: KindItemLink, Child: n.Kind(), Allowed: inlineKinds}
		}
		children = append(children, inline)
	}
	if len(children) == 0 {
		return nil, &EmptyChildrenError{Parent: KindItemLink}
	}
	return &ItemLink{Item: item, Meta: meta, Children: children}, nil
}

// NewInlineItem builds an inline reference to a content item. The signature
// deliberately has no children parameter: the reference renders however the
// consumer decides.
func NewInlineItem(item string) *InlineItem {
	return &InlineItem{Item: item}
}

// NewBlock wraps an embedded entity payload as a block-level node.
func NewBlock(entity Entity) (*EmbeddedBlock, error) {
	if entity == nil {
		return nil, fmt.Errorf("dast: block requires an entity payload")
	}
	return &EmbeddedBlock{Item: entity}, nil
}

func inlineChildren(parent Kind, args []any) ([]InlineNode, error) {
	nodes, err := coerce(parent, args)
	if err != nil {
		return nil, err
	}
	children := make([]InlineNode, 0, len(nodes))
	for _, n := range nodes {
		inline, ok := n.(InlineNode)
		if !ok {
			return nil, &StructuralError{Parent: parent, Child: n.Kind(), Allowed: inlineKinds}
		}
		children = append(children, inline)
	}
	return children, nil
}

// coerce turns builder arguments into nodes, wrapping bare strings as spans.
func coerce(parent Kind, args []any) ([]Node, error) {
	nodes := make([]Node, 0, len(args))
	for _, arg := range args {
		switch v := arg.(type) {
		case string:
			nodes = append(nodes, NewSpan(v))
		case Node:
			nodes = append(nodes, v)
		default:
			return nil, fmt.Errorf("dast: %s child must be a node or string, got %T", parent, arg)
		}
	}
	return nodes, nil
}

// coerceWithMeta is coerce plus collection of a single Meta argument.
func coerceWithMeta(parent Kind, args []any) ([]Node, []MetaEntry, error) {
	var meta []MetaEntry
	rest := make([]any, 0, len(args))
	for _, arg := range args {
		if m, ok := arg.(Meta); ok {
			if meta != nil {
				return nil, nil, fmt.Errorf("dast: %s accepts at most one Meta argument", parent)
			}
			meta = []MetaEntry(m)
			continue
		}
		rest = append(rest, arg)
	}
	nodes, err := coerce(parent, rest)
	if err != nil {
		return nil, nil, err
	}
	return nodes, meta, nil
}

func normalizeMarks(marks []Mark) []Mark {
	if len(marks) == 0 {
		return nil
	}
	seen := make(map[Mark]struct{}, len(marks))
	out := make([]Mark, 0, len(marks))
	for _, m := range marks {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
