package dast

import "bytes"

// ChangeKind classifies one entry of a tree diff.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeChanged ChangeKind = "changed"
)

// Change is one difference between two trees. Before and After are the nodes
// occupying the path in the respective tree (nil for added/removed).
type Change struct {
	Path   []int
	Kind   ChangeKind
	Before Node
	After  Node
}

// Diff compares two trees position by position. Nodes are aligned by index
// within their shared parent: there is no move detection or fuzzy matching,
// so inserting a node in the middle of a child list reports every following
// sibling as changed. Entries come out in traversal order (a node before its
// children, siblings left to right), which makes the result deterministic
// for a given pair of trees.
func Diff(a, b Node) []Change {
	var changes []Change
	diffNodes(a, b, nil, &changes)
	return changes
}

func diffNodes(a, b Node, path []int, changes *[]Change) {
	switch {
	case a == nil && b == nil:
		return
	case a == nil:
		*changes = append(*changes, Change{Path: copyPath(path), Kind: ChangeAdded, After: b})
		return
	case b == nil:
		*changes = append(*changes, Change{Path: copyPath(path), Kind: ChangeRemoved, Before: a})
		return
	}

	if a.Kind() != b.Kind() {
		// Different variants are incomparable; subtrees are not descended.
		*changes = append(*changes, Change{Path: copyPath(path), Kind: ChangeChanged, Before: a, After: b})
		return
	}
	if !attrsEqual(a, b) {
		*changes = append(*changes, Change{Path: copyPath(path), Kind: ChangeChanged, Before: a, After: b})
	}

	kidsA := children(a)
	kidsB := children(b)
	n := len(kidsA)
	if len(kidsB) > n {
		n = len(kidsB)
	}
	for i := 0; i < n; i++ {
		var childA, childB Node
		if i < len(kidsA) {
			childA = kidsA[i]
		}
		if i < len(kidsB) {
			childB = kidsB[i]
		}
		diffNodes(childA, childB, append(path, i), changes)
	}
}

// attrsEqual compares the non-child attributes of two nodes of the same kind.
func attrsEqual(a, b Node) bool {
	switch av := a.(type) {
	case *Heading:
		return av.Level == b.(*Heading).Level
	case *List:
		return av.Style == b.(*List).Style
	case *Code:
		return av.Language == b.(*Code).Language
	case *Span:
		bv := b.(*Span)
		return av.Value == bv.Value && marksEqual(av.Marks, bv.Marks)
	case *Link:
		bv := b.(*Link)
		return av.URL == bv.URL && metaEqual(av.Meta, bv.Meta)
	case *ItemLink:
		bv := b.(*ItemLink)
		return av.Item == bv.Item && metaEqual(av.Meta, bv.Meta)
	case *InlineItem:
		return av.Item == b.(*InlineItem).Item
	case *EmbeddedBlock:
		return entityEqual(av.Item, b.(*EmbeddedBlock).Item)
	default:
		return true
	}
}

func marksEqual(a, b []Mark) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func metaEqual(a, b []MetaEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func entityEqual(a, b Entity) bool {
	encodedA, errA := encodeEntity(a)
	encodedB, errB := encodeEntity(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(encodedA, encodedB)
}

func copyPath(path []int) []int {
	copied := make([]int, len(path))
	copy(copied, path)
	return copied
}
