package dast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SchemaTag identifies the wire format. Every encoded document carries it.
const SchemaTag = "dast"

type wireDocument struct {
	Schema   string          `json:"schema"`
	Document json.RawMessage `json:"document"`
}

type wireNode struct {
	Type     Kind            `json:"type"`
	Value    string          `json:"value,omitempty"`
	Marks    []Mark          `json:"marks,omitempty"`
	Level    int             `json:"level,omitempty"`
	Style    ListStyle       `json:"style,omitempty"`
	Language string          `json:"language,omitempty"`
	URL      string          `json:"url,omitempty"`
	Item     json.RawMessage `json:"item,omitempty"`
	Meta     []MetaEntry     `json:"meta,omitempty"`
	Children []wireNode      `json:"children,omitempty"`
}

// Marshal encodes a tree as a wire document: {"schema":"dast","document":...}.
func Marshal(root *Root) ([]byte, error) {
	if root == nil {
		return nil, fmt.Errorf("dast: cannot marshal a nil root")
	}
	node, err := encodeNode(root)
	if err != nil {
		return nil, err
	}
	document, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireDocument{Schema: SchemaTag, Document: document})
}

// Unmarshal decodes a wire document back into a tree. Decoded trees pass
// through the builder constructors, so structural invariants hold for remote
// content exactly as they do for authored content. All failures are reported
// as *DecodeError.
func Unmarshal(data []byte) (*Root, error) {
	var wire wireDocument
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &DecodeError{Reason: "not a JSON document: " + err.Error()}
	}
	if wire.Schema != SchemaTag {
		return nil, &DecodeError{Reason: fmt.Sprintf("unsupported schema %q", wire.Schema)}
	}
	if len(wire.Document) == 0 {
		return nil, &DecodeError{Reason: "missing document"}
	}
	node, err := decodeNode(wire.Document, "document")
	if err != nil {
		return nil, err
	}
	root, ok := node.(*Root)
	if !ok {
		return nil, &DecodeError{Path: "document", Reason: fmt.Sprintf("top-level node must be root, got %s", node.Kind())}
	}
	return root, nil
}

// Equal reports structural equality of two trees. It compares canonical
// encodings, so entity field maps compare by value regardless of how the
// trees were produced.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	wa, err := encodeNode(a)
	if err != nil {
		return false
	}
	wb, err := encodeNode(b)
	if err != nil {
		return false
	}
	ja, err := json.Marshal(wa)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(wb)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

func encodeNode(n Node) (wireNode, error) {
	out := wireNode{Type: n.Kind()}
	switch v := n.(type) {
	case *Root, *Paragraph, *ListItem, *Blockquote:
	case *Heading:
		out.Level = v.Level
	case *List:
		out.Style = v.Style
	case *Code:
		out.Language = v.Language
	case *Span:
		out.Value = v.Value
		out.Marks = v.Marks
		return out, nil
	case *Link:
		out.URL = v.URL
		out.Meta = v.Meta
	case *ItemLink:
		item, err := json.Marshal(v.Item)
		if err != nil {
			return wireNode{}, err
		}
		out.Item = item
		out.Meta = v.Meta
	case *InlineItem:
		item, err := json.Marshal(v.Item)
		if err != nil {
			return wireNode{}, err
		}
		out.Item = item
		return out, nil
	case *EmbeddedBlock:
		item, err := encodeEntity(v.Item)
		if err != nil {
			return wireNode{}, err
		}
		out.Item = item
		return out, nil
	default:
		return wireNode{}, fmt.Errorf("dast: unknown node variant %T", n)
	}

	kids := children(n)
	if len(kids) > 0 {
		out.Children = make([]wireNode, len(kids))
		for i, kid := range kids {
			encoded, err := encodeNode(kid)
			if err != nil {
				return wireNode{}, err
			}
			out.Children[i] = encoded
		}
	}
	return out, nil
}

func decodeNode(raw json.RawMessage, path string) (Node, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Path: path, Reason: "node must be a JSON object"}
	}
	kind, err := decodeString(fields, "type", path)
	if err != nil {
		return nil, err
	}

	switch Kind(kind) {
	case KindRoot:
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewRoot(kids...) })
	case KindParagraph:
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewParagraph(kids...) })
	case KindHeading:
		level, err := decodeInt(fields, "level", path)
		if err != nil {
			return nil, err
		}
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewHeading(level, kids...) })
	case KindList:
		style, err := decodeString(fields, "style", path)
		if err != nil {
			return nil, err
		}
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewList(ListStyle(style), kids...) })
	case KindListItem:
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewListItem(kids...) })
	case KindBlockquote:
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewBlockquote(kids...) })
	case KindCode:
		language := decodeOptionalString(fields, "language")
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewCode(language, kids...) })
	case KindSpan:
		value := decodeOptionalString(fields, "value")
		var marks []Mark
		if raw, ok := fields["marks"]; ok {
			if err := json.Unmarshal(raw, &marks); err != nil {
				return nil, &DecodeError{Path: path, Reason: "marks must be an array of strings"}
			}
		}
		return NewSpan(value, marks...), nil
	case KindLink:
		url := decodeOptionalString(fields, "url")
		meta, err := decodeMeta(fields, path)
		if err != nil {
			return nil, err
		}
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			kids = append(kids, Meta(meta))
		}
		return buildNode(path, func() (Node, error) { return NewLink(url, kids...) })
	case KindItemLink:
		item, err := decodeString(fields, "item", path)
		if err != nil {
			return nil, err
		}
		meta, err := decodeMeta(fields, path)
		if err != nil {
			return nil, err
		}
		kids, err := decodeChildren(fields, path)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			kids = append(kids, Meta(meta))
		}
		return buildNode(path, func() (Node, error) { return NewItemLink(item, kids...) })
	case KindInlineItem:
		if _, ok := fields["children"]; ok {
			return nil, &DecodeError{Path: path, Reason: "inlineItem must not carry children"}
		}
		item, err := decodeString(fields, "item", path)
		if err != nil {
			return nil, err
		}
		return NewInlineItem(item), nil
	case KindBlock:
		raw, ok := fields["item"]
		if !ok {
			return nil, &DecodeError{Path: path, Reason: "block missing item"}
		}
		entity, err := DecodeEntity(raw)
		if err != nil {
			if decodeErr, ok := err.(*DecodeError); ok && decodeErr.Path == "" {
				decodeErr.Path = path
			}
			return nil, err
		}
		return buildNode(path, func() (Node, error) { return NewBlock(entity) })
	default:
		return nil, &DecodeError{Path: path, Reason: fmt.Sprintf("unknown node type %q", kind)}
	}
}

// buildNode funnels builder failures on untrusted input into DecodeError.
func buildNode(path string, build func() (Node, error)) (Node, error) {
	node, err := build()
	if err != nil {
		return nil, &DecodeError{Path: path, Reason: err.Error()}
	}
	return node, nil
}

func decodeChildren(fields map[string]json.RawMessage, path string) ([]any, error) {
	raw, ok := fields["children"]
	if !ok {
		return nil, nil
	}
	var rawChildren []json.RawMessage
	if err := json.Unmarshal(raw, &rawChildren); err != nil {
		return nil, &DecodeError{Path: path, Reason: "children must be an array"}
	}
	out := make([]any, len(rawChildren))
	for i, rawChild := range rawChildren {
		child, err := decodeNode(rawChild, fmt.Sprintf("%s.children[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = child
	}
	return out, nil
}

func decodeMeta(fields map[string]json.RawMessage, path string) ([]MetaEntry, error) {
	raw, ok := fields["meta"]
	if !ok {
		return nil, nil
	}
	var meta []MetaEntry
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, &DecodeError{Path: path, Reason: "meta must be an array of {id, value}"}
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func decodeString(fields map[string]json.RawMessage, key, path string) (string, error) {
	raw, ok := fields[key]
	if !ok {
		return "", &DecodeError{Path: path, Reason: fmt.Sprintf("missing %q", key)}
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", &DecodeError{Path: path, Reason: fmt.Sprintf("%q must be a string", key)}
	}
	return value, nil
}

func decodeOptionalString(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func decodeInt(fields map[string]json.RawMessage, key, path string) (int, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, &DecodeError{Path: path, Reason: fmt.Sprintf("missing %q", key)}
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, &DecodeError{Path: path, Reason: fmt.Sprintf("%q must be an integer", key)}
	}
	return value, nil
}
