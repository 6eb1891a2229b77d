package dast

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ReservedTypeKey is the discriminator key that carries the item type in the
// flattened block wire object. Field maps must not use it.
const ReservedTypeKey = "item_type"

// Entity is the payload of an embedded block: either a new item created at
// submission time or a reference to an already-persisted one.
type Entity interface {
	entity()
}

// NewItem describes an item to be created when the enclosing document is
// submitted. ItemType and Fields stay separate in memory; they are merged
// into the flat wire object only at encode time, so the reserved key
// collision is checked once, at construction.
type NewItem struct {
	ItemType string
	Fields   map[string]any
}

// ItemRef points at an already-persisted item by id.
type ItemRef struct {
	ID string
}

func (*NewItem) entity() {}
func (*ItemRef) entity() {}

// EmbedNew builds the new-item variant from a type reference and a flat
// field map. The map is copied. Field values must not themselves be
// unpersisted item payloads: circular new-item graphs are rejected here
// rather than failing obscurely at submission.
func EmbedNew(itemType string, fields map[string]any) (*NewItem, error) {
	if itemType == "" {
		return nil, fmt.Errorf("dast: embedded item requires an item type")
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		if key == ReservedTypeKey {
			return nil, &AmbiguousFieldError{Key: key}
		}
		if _, ok := value.(*NewItem); ok {
			return nil, fmt.Errorf("dast: field %q holds an unpersisted item payload; nested new items are not supported", key)
		}
		copied[key] = value
	}
	return &NewItem{ItemType: itemType, Fields: copied}, nil
}

// EmbedExisting wraps the id of a persisted item. No validation is applied;
// whether the id resolves is the validator's concern.
func EmbedExisting(id string) *ItemRef {
	return &ItemRef{ID: id}
}

// DecodeEntity reconstructs an entity from its wire slot. The two variants
// share one slot and are told apart by JSON kind: a string is a reference, an
// object is a new item carrying the reserved type key plus flattened fields.
func DecodeEntity(raw json.RawMessage) (Entity, error) {
	// null would unmarshal into an empty string and masquerade as a reference.
	if string(bytes.TrimSpace(raw)) == "null" {
		return nil, &DecodeError{Reason: "block item must be a string id or an object"}
	}

	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return &ItemRef{ID: id}, nil
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, &DecodeError{Reason: "block item must be a string id or an object"}
	}
	typeValue, ok := flat[ReservedTypeKey]
	if !ok {
		return nil, &DecodeError{Reason: fmt.Sprintf("block item object missing %q", ReservedTypeKey)}
	}
	itemType, ok := typeValue.(string)
	if !ok || itemType == "" {
		return nil, &DecodeError{Reason: fmt.Sprintf("block item %q must be a non-empty string", ReservedTypeKey)}
	}
	fields := make(map[string]any, len(flat)-1)
	for key, value := range flat {
		if key == ReservedTypeKey {
			continue
		}
		fields[key] = value
	}
	return &NewItem{ItemType: itemType, Fields: fields}, nil
}

// encodeEntity flattens an entity into its wire slot.
func encodeEntity(e Entity) (json.RawMessage, error) {
	switch v := e.(type) {
	case *ItemRef:
		return json.Marshal(v.ID)
	case *NewItem:
		flat := make(map[string]any, len(v.Fields)+1)
		for key, value := range v.Fields {
			flat[key] = value
		}
		flat[ReservedTypeKey] = v.ItemType
		return json.Marshal(flat)
	default:
		return nil, fmt.Errorf("dast: unknown entity variant %T", e)
	}
}
