// Package dast implements the structured text document tree: a typed,
// immutable node model, a builder API, schema validation, traversal and
// transformation utilities, and the JSON wire codec ("dast" documents).
package dast

// Kind discriminates the node variants.
type Kind string

const (
	KindRoot       Kind = "root"
	KindParagraph  Kind = "paragraph"
	KindHeading    Kind = "heading"
	KindList       Kind = "list"
	KindListItem   Kind = "listItem"
	KindBlockquote Kind = "blockquote"
	KindCode       Kind = "code"
	KindSpan       Kind = "span"
	KindLink       Kind = "link"
	KindItemLink   Kind = "itemLink"
	KindInlineItem Kind = "inlineItem"
	KindBlock      Kind = "block"
)

// Mark is a formatting flag on a span. Marks have set semantics: a mark is
// either present or absent, duplicates and order carry no meaning.
type Mark string

const (
	MarkStrong        Mark = "strong"
	MarkEmphasis      Mark = "emphasis"
	MarkCode          Mark = "code"
	MarkStrikethrough Mark = "strikethrough"
	MarkUnderline     Mark = "underline"
	MarkHighlight     Mark = "highlight"
)

// ListStyle selects the rendering of a list container.
type ListStyle string

const (
	ListBulleted ListStyle = "bulleted"
	ListNumbered ListStyle = "numbered"
)

// MetaEntry is one key/value pair of link metadata. Order is preserved.
type MetaEntry struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

// Meta is passed to the link builders alongside child nodes.
type Meta []MetaEntry

// Node is the closed set of tree node variants. Nodes are immutable once
// built: every rewrite produces a new tree.
type Node interface {
	Kind() Kind
	node()
}

// BlockNode is a node that may appear directly under the root.
type BlockNode interface {
	Node
	blockNode()
}

// InlineNode is a node that may appear inside paragraph-like containers.
type InlineNode interface {
	Node
	inlineNode()
}

// Root is the document container. It appears only at the top of a tree.
type Root struct {
	Children []BlockNode
}

// Paragraph holds a run of inline content.
type Paragraph struct {
	Children []InlineNode
}

// Heading is a section title. Level is restricted to 1 through 6.
type Heading struct {
	Level    int
	Children []InlineNode
}

// List is an ordered or unordered list. Its children are list items only.
type List struct {
	Style ListStyle
	Items []*ListItem
}

// ListItem wraps the block content of one list entry. Valid children are
// paragraphs and nested lists.
type ListItem struct {
	Children []BlockNode
}

// Blockquote contains quoted paragraphs.
type Blockquote struct {
	Children []*Paragraph
}

// Code is a code block. Its children are spans carrying the source text.
type Code struct {
	Language string
	Children []InlineNode
}

// Span is leaf inline text with an optional set of marks. Marks are kept
// deduplicated and sorted so trees compare structurally.
type Span struct {
	Value string
	Marks []Mark
}

// Link is an inline hyperlink to an external URL. It always has at least one
// span child supplying the visible text.
type Link struct {
	URL      string
	Meta     []MetaEntry
	Children []*Span
}

// ItemLink is an inline link whose target is a content item. The author
// controls the link text through the required children; only the target is
// resolved at render time.
type ItemLink struct {
	Item     string
	Meta     []MetaEntry
	Children []InlineNode
}

// InlineItem is an inline reference to a content item. It has no children by
// construction: rendering is entirely up to the consumer.
type InlineItem struct {
	Item string
}

// EmbeddedBlock is a block-level leaf carrying an embedded entity payload.
// The same payload shape also appears as an element of a modular content
// field and as the value of a single block field.
type EmbeddedBlock struct {
	Item Entity
}

func (*Root) Kind() Kind          { return KindRoot }
func (*Paragraph) Kind() Kind     { return KindParagraph }
func (*Heading) Kind() Kind       { return KindHeading }
func (*List) Kind() Kind          { return KindList }
func (*ListItem) Kind() Kind      { return KindListItem }
func (*Blockquote) Kind() Kind    { return KindBlockquote }
func (*Code) Kind() Kind          { return KindCode }
func (*Span) Kind() Kind          { return KindSpan }
func (*Link) Kind() Kind          { return KindLink }
func (*ItemLink) Kind() Kind      { return KindItemLink }
func (*InlineItem) Kind() Kind    { return KindInlineItem }
func (*EmbeddedBlock) Kind() Kind { return KindBlock }

func (*Root) node()          {}
func (*Paragraph) node()     {}
func (*Heading) node()       {}
func (*List) node()          {}
func (*ListItem) node()      {}
func (*Blockquote) node()    {}
func (*Code) node()          {}
func (*Span) node()          {}
func (*Link) node()          {}
func (*ItemLink) node()      {}
func (*InlineItem) node()    {}
func (*EmbeddedBlock) node() {}

func (*Paragraph) blockNode()     {}
func (*Heading) blockNode()       {}
func (*List) blockNode()          {}
func (*Blockquote) blockNode()    {}
func (*Code) blockNode()          {}
func (*EmbeddedBlock) blockNode() {}

func (*Span) inlineNode()       {}
func (*Link) inlineNode()       {}
func (*ItemLink) inlineNode()   {}
func (*InlineItem) inlineNode() {}

// children returns the ordered child nodes of n. Leaves return nil.
func children(n Node) []Node {
	switch v := n.(type) {
	case *Root:
		out := make([]Node, len(v.Children))
		for i, c := range v.Children {
			out[i] = c
		}
		return out
	case *Paragraph:
		return inlineNodes(v.Children)
	case *Heading:
		return inlineNodes(v.Children)
	case *List:
		out := make([]Node, len(v.Items))
		for i, c := range v.Items {
			out[i] = c
		}
		return out
	case *ListItem:
		out := make([]Node, len(v.Children))
		for i, c := range v.Children {
			out[i] = c
		}
		return out
	case *Blockquote:
		out := make([]Node, len(v.Children))
		for i, c := range v.Children {
			out[i] = c
		}
		return out
	case *Code:
		return inlineNodes(v.Children)
	case *Link:
		out := make([]Node, len(v.Children))
		for i, c := range v.Children {
			out[i] = c
		}
		return out
	case *ItemLink:
		return inlineNodes(v.Children)
	default:
		return nil
	}
}

func inlineNodes(in []InlineNode) []Node {
	out := make([]Node, len(in))
	for i, c := range in {
		out[i] = c
	}
	return out
}
