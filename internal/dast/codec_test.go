package dast

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// fullTree builds a document exercising every node variant.
func fullTree(t *testing.T) *Root {
	t.Helper()
	return must(NewRoot(
		must(NewHeading(2, "Release notes")),
		must(NewParagraph(
			"Plain, ",
			NewSpan("strong", MarkStrong),
			" and ",
			must(NewLink("https://example.com", "a link", Meta{{ID: "rel", Value: "nofollow"}})),
			must(NewItemLink("item-9", "a reference", Meta{{ID: "target", Value: "_blank"}})),
			NewInlineItem("author-1"),
		)),
		must(NewList(ListNumbered,
			must(NewListItem(must(NewParagraph("first")))),
			must(NewListItem(must(NewParagraph("second")))),
		)),
		must(NewBlockquote(must(NewParagraph("quoted")))),
		must(NewCode("go", "fmt.Println()")),
		must(NewBlock(must(EmbedNew("quote_block", map[string]any{"text": "hi", "weight": 3})))),
		must(NewBlock(EmbedExisting("blk-1"))),
	))
}

func TestRoundTrip(t *testing.T) {
	root := fullTree(t)

	encoded, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(root, decoded) {
		t.Errorf("round trip lost information")
	}

	reencoded, err := Marshal(decoded)
	if err != nil {
		t.Fatalf("second Marshal: %v", err)
	}
	if string(encoded) != string(reencoded) {
		t.Errorf("encoding is not stable:\n%s\n%s", encoded, reencoded)
	}
}

func TestBuildEncodeDecodeInspect(t *testing.T) {
	root := must(NewRoot(
		must(NewHeading(1, "Title")),
		must(NewParagraph("before ", NewInlineItem("author-1"), " after")),
	))

	encoded, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := Unmarshal(encoded)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	paragraph, ok := decoded.Children[1].(*Paragraph)
	if !ok {
		t.Fatalf("second child = %#v, want paragraph", decoded.Children[1])
	}
	ref, ok := paragraph.Children[1].(*InlineItem)
	if !ok {
		t.Fatalf("middle inline = %#v, want inlineItem", paragraph.Children[1])
	}
	if ref.Item != "author-1" {
		t.Errorf("item = %q, want author-1", ref.Item)
	}
}

func TestWireShape(t *testing.T) {
	root := fullTree(t)
	encoded, err := Marshal(root)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var wire struct {
		Schema   string `json:"schema"`
		Document struct {
			Type     string            `json:"type"`
			Children []json.RawMessage `json:"children"`
		} `json:"document"`
	}
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("unmarshal wire: %v", err)
	}
	if wire.Schema != "dast" {
		t.Errorf("schema = %q, want dast", wire.Schema)
	}
	if wire.Document.Type != "root" {
		t.Errorf("document type = %q, want root", wire.Document.Type)
	}

	var paragraph struct {
		Children []map[string]json.RawMessage `json:"children"`
	}
	if err := json.Unmarshal(wire.Document.Children[1], &paragraph); err != nil {
		t.Fatalf("unmarshal paragraph: %v", err)
	}
	inline := paragraph.Children[len(paragraph.Children)-1]
	if _, ok := inline["children"]; ok {
		t.Errorf("inlineItem carries a children key on the wire: %v", inline)
	}
	var itemID string
	if err := json.Unmarshal(inline["item"], &itemID); err != nil || itemID != "author-1" {
		t.Errorf("inlineItem item = %s, want \"author-1\"", inline["item"])
	}

	// New-item blocks inline the fields next to the discriminator; existing
	// references are bare id strings.
	raw := wire.Document.Children
	var newBlock struct {
		Item map[string]json.RawMessage `json:"item"`
	}
	if err := json.Unmarshal(raw[len(raw)-2], &newBlock); err != nil {
		t.Fatalf("unmarshal new-item block: %v", err)
	}
	var itemType string
	if err := json.Unmarshal(newBlock.Item["item_type"], &itemType); err != nil || itemType != "quote_block" {
		t.Errorf("item_type = %s, want \"quote_block\"", newBlock.Item["item_type"])
	}
	if _, ok := newBlock.Item["text"]; !ok {
		t.Errorf("fields are not flattened next to item_type: %v", newBlock.Item)
	}

	var existing struct {
		Item string `json:"item"`
	}
	if err := json.Unmarshal(raw[len(raw)-1], &existing); err != nil {
		t.Fatalf("unmarshal existing-ref block: %v", err)
	}
	if existing.Item != "blk-1" {
		t.Errorf("existing ref item = %q, want blk-1", existing.Item)
	}
}

func TestUnmarshalErrors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reason string
	}{
		{"not json", `{{`, "not a JSON document"},
		{"wrong schema tag", `{"schema":"prosemirror","document":{"type":"root"}}`, "unsupported schema"},
		{"missing document", `{"schema":"dast"}`, "missing document"},
		{"document not an object", `{"schema":"dast","document":[1]}`, "must be a JSON object"},
		{"top-level not root", `{"schema":"dast","document":{"type":"paragraph"}}`, "must be root"},
		{"missing type", `{"schema":"dast","document":{"children":[]}}`, `missing "type"`},
		{"unknown type", `{"schema":"dast","document":{"type":"root","children":[{"type":"sidebar"}]}}`, "unknown node type"},
		{"heading without level", `{"schema":"dast","document":{"type":"root","children":[{"type":"heading","children":[{"type":"span","value":"x"}]}]}}`, `missing "level"`},
		{"heading level out of range", `{"schema":"dast","document":{"type":"root","children":[{"type":"heading","level":9,"children":[{"type":"span","value":"x"}]}]}}`, "between 1 and 6"},
		{"span under root", `{"schema":"dast","document":{"type":"root","children":[{"type":"span","value":"x"}]}}`, "root"},
		{"inlineItem with children", `{"schema":"dast","document":{"type":"root","children":[{"type":"paragraph","children":[{"type":"inlineItem","item":"a","children":[]}]}]}}`, "must not carry children"},
		{"link without children", `{"schema":"dast","document":{"type":"root","children":[{"type":"paragraph","children":[{"type":"link","url":"https://x"}]}]}}`, "at least one child"},
		{"block without item", `{"schema":"dast","document":{"type":"root","children":[{"type":"block"}]}}`, "block missing item"},
		{"block item without discriminator", `{"schema":"dast","document":{"type":"root","children":[{"type":"block","item":{"text":"x"}}]}}`, "item_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.input))
			var decodeErr *DecodeError
			if !errors.As(err, &decodeErr) {
				t.Fatalf("error = %v, want DecodeError", err)
			}
			if !strings.Contains(decodeErr.Reason, tt.reason) {
				t.Errorf("reason = %q, want substring %q", decodeErr.Reason, tt.reason)
			}
		})
	}
}

func TestDecodeErrorPaths(t *testing.T) {
	input := `{"schema":"dast","document":{"type":"root","children":[` +
		`{"type":"paragraph","children":[{"type":"span","value":"ok"}]},` +
		`{"type":"paragraph","children":[{"type":"mystery"}]}]}}`
	_, err := Unmarshal([]byte(input))
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want DecodeError", err)
	}
	if decodeErr.Path != "document.children[1].children[0]" {
		t.Errorf("path = %q, want document.children[1].children[0]", decodeErr.Path)
	}
}

func TestMarshalNilRoot(t *testing.T) {
	if _, err := Marshal(nil); err == nil {
		t.Fatal("expected error for nil root")
	}
}

func TestEqual(t *testing.T) {
	a := fullTree(t)
	b := fullTree(t)
	if !Equal(a, b) {
		t.Errorf("independently built identical trees compare unequal")
	}
	c := must(NewRoot(must(NewParagraph("different"))))
	if Equal(a, c) {
		t.Errorf("different trees compare equal")
	}
	if Equal(a, nil) || !Equal(nil, nil) {
		t.Errorf("nil handling is wrong")
	}
}
