package dast

import "fmt"

// TypeResolver looks up the item type of a persisted item. The validator
// consults it for existing-item references; lookups are read-only and are
// memoized for the duration of one validation call.
type TypeResolver interface {
	ItemTypeOf(id string) (itemType string, ok bool)
}

// Schema is the rule set a tree is validated against. An empty allow list is
// valid input: it simply permits nothing, so every candidate fails.
type Schema struct {
	// BlockTypes are the item types permitted for embedded blocks in this
	// containment context. Contexts are independent: a field may allow
	// different types at the top of a modular content array than inside a
	// structured text body.
	BlockTypes []string
	// LinkTargetTypes are the item types an itemLink may point at. Inline
	// item references are not constrained here; their rendering is fully
	// consumer-controlled, so there is nothing to type-check.
	LinkTargetTypes []string
	// MaxSize bounds the encoded document size in bytes. Zero means
	// unbounded. A violation is reported once per run, after the walk.
	MaxSize int
}

// IssueKind classifies a validation finding.
type IssueKind string

const (
	IssueBlockTypeNotAllowed  IssueKind = "block_type_not_allowed"
	IssueLinkTargetNotAllowed IssueKind = "link_target_not_allowed"
	IssueTargetNotFound       IssueKind = "target_not_found"
	IssueSizeExceeded         IssueKind = "size_exceeded"
)

// Issue is one validation finding. Issues are data, never thrown: a run
// reports every problem it finds, in traversal order (root to leaf, left to
// right), so two runs over the same tree and schema produce identical
// sequences.
type Issue struct {
	Path   []int     `json:"path"`
	Kind   IssueKind `json:"kind"`
	Detail string    `json:"detail"`
}

// Validate walks a tree depth-first and reports every schema violation. It
// never fails: malformed schemas and unresolvable references surface as
// issues, not errors. A nil resolver resolves nothing.
func Validate(root *Root, schema Schema, resolver TypeResolver) []Issue {
	v := &validator{schema: schema, resolver: resolver, cache: make(map[string]resolved)}
	v.walk(root, nil)

	if schema.MaxSize > 0 {
		if encoded, err := Marshal(root); err == nil && len(encoded) > schema.MaxSize {
			v.issues = append(v.issues, Issue{
				Kind:   IssueSizeExceeded,
				Detail: fmt.Sprintf("encoded document is %d bytes, limit is %d", len(encoded), schema.MaxSize),
			})
		}
	}
	return v.issues
}

// ValidateBlockValues checks the entities of a modular content field against
// the types allowed at the top level of that field. Paths are the array
// indices.
func ValidateBlockValues(entities []Entity, allowed []string, resolver TypeResolver) []Issue {
	v := &validator{schema: Schema{BlockTypes: allowed}, resolver: resolver, cache: make(map[string]resolved)}
	for i, entity := range entities {
		v.checkEntity(entity, []int{i})
	}
	return v.issues
}

// ValidateBlockValue checks the entity of a single block field.
func ValidateBlockValue(entity Entity, allowed []string, resolver TypeResolver) []Issue {
	v := &validator{schema: Schema{BlockTypes: allowed}, resolver: resolver, cache: make(map[string]resolved)}
	v.checkEntity(entity, nil)
	return v.issues
}

type resolved struct {
	itemType string
	ok       bool
}

type validator struct {
	schema   Schema
	resolver TypeResolver
	cache    map[string]resolved
	issues   []Issue
}

func (v *validator) walk(n Node, path []int) {
	switch node := n.(type) {
	case *EmbeddedBlock:
		v.checkEntity(node.Item, path)
	case *ItemLink:
		v.checkLinkTarget(node.Item, path)
	}
	for i, child := range children(n) {
		v.walk(child, append(path, i))
	}
}

func (v *validator) checkEntity(entity Entity, path []int) {
	switch e := entity.(type) {
	case *NewItem:
		if !contains(v.schema.BlockTypes, e.ItemType) {
			v.report(path, IssueBlockTypeNotAllowed, fmt.Sprintf("block of item type %q is not allowed here", e.ItemType))
		}
	case *ItemRef:
		itemType, ok := v.resolve(e.ID)
		if !ok {
			v.report(path, IssueTargetNotFound, fmt.Sprintf("block references unknown item %q", e.ID))
			return
		}
		if !contains(v.schema.BlockTypes, itemType) {
			v.report(path, IssueBlockTypeNotAllowed, fmt.Sprintf("block of item type %q is not allowed here", itemType))
		}
	}
}

func (v *validator) checkLinkTarget(id string, path []int) {
	itemType, ok := v.resolve(id)
	if !ok {
		v.report(path, IssueTargetNotFound, fmt.Sprintf("item link targets unknown item %q", id))
		return
	}
	if !contains(v.schema.LinkTargetTypes, itemType) {
		v.report(path, IssueLinkTargetNotAllowed, fmt.Sprintf("item link target of type %q is not allowed", itemType))
	}
}

func (v *validator) resolve(id string) (string, bool) {
	if cached, ok := v.cache[id]; ok {
		return cached.itemType, cached.ok
	}
	var result resolved
	if v.resolver != nil {
		result.itemType, result.ok = v.resolver.ItemTypeOf(id)
	}
	v.cache[id] = result
	return result.itemType, result.ok
}

func (v *validator) report(path []int, kind IssueKind, detail string) {
	v.issues = append(v.issues, Issue{Path: copyPath(path), Kind: kind, Detail: detail})
}

func contains(list []string, value string) bool {
	for _, candidate := range list {
		if candidate == value {
			return true
		}
	}
	return false
}
