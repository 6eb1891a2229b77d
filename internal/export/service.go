package export

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"

	"tessera/api/internal/dast"
	"tessera/api/internal/store"
	"tessera/api/internal/versions"
)

// DataStore defines the data access the export service needs
type DataStore interface {
	GetItem(ctx context.Context, itemID string) (store.Item, error)
	GetItemType(ctx context.Context, itemTypeID string) (store.ItemType, error)
	ListFields(ctx context.Context, itemTypeID string) ([]store.Field, error)
}

// SnapshotStore loads historical item snapshots. Optional; without it only
// the latest version can be exported.
type SnapshotStore interface {
	GetByHash(itemID, hash string) (versions.Snapshot, error)
}

// Service renders items for export
type Service struct {
	store     DataStore
	snapshots SnapshotStore
}

// NewService creates a new export service. snapshots may be nil.
func NewService(store DataStore, snapshots SnapshotStore) *Service {
	return &Service{store: store, snapshots: snapshots}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	item, err := s.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if req.Version != "" && req.Version != "latest" {
		if s.snapshots == nil {
			return nil, fmt.Errorf("%w: no version history configured", ErrContentUnavailable)
		}
		snapshot, err := s.snapshots.GetByHash(req.ItemID, req.Version)
		if err != nil {
			return nil, fmt.Errorf("%w: version %s: %v", ErrContentUnavailable, req.Version, err)
		}
		item.Fields = snapshot.Fields
		item.Status = snapshot.Status
	}
	itemType, err := s.store.GetItemType(ctx, item.ItemTypeID)
	if err != nil {
		return nil, fmt.Errorf("get item type: %w", err)
	}
	fields, err := s.store.ListFields(ctx, item.ItemTypeID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}

	title := itemTitle(item, fields)
	contentHTML, err := s.renderStructuredText(ctx, item, fields)
	if err != nil {
		return nil, err
	}

	html, err := RenderDocumentHTML(TemplateData{
		Title:        title,
		ItemTypeName: itemType.Name,
		ContentHTML:  template.HTML(contentHTML),
		Author:       item.UpdatedBy,
		UpdatedAt:    item.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

// renderStructuredText renders every structured text field of the item, in
// field order.
func (s *Service) renderStructuredText(ctx context.Context, item store.Item, fields []store.Field) (string, error) {
	renderer := &storeEntityRenderer{ctx: ctx, store: s.store}

	var out string
	for _, field := range fields {
		if field.FieldType != store.FieldTypeStructuredText {
			continue
		}
		value, ok := item.Fields[field.APIKey]
		if !ok || value == nil {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("%w: field %s", ErrContentUnavailable, field.APIKey)
		}
		root, err := dast.Unmarshal(raw)
		if err != nil {
			return "", fmt.Errorf("%w: field %s: %v", ErrContentUnavailable, field.APIKey, err)
		}
		out += RenderHTML(root, renderer)
	}
	return out, nil
}

// itemTitle picks the first string field value as the display title.
func itemTitle(item store.Item, fields []store.Field) string {
	for _, field := range fields {
		if field.FieldType != store.FieldTypeString {
			continue
		}
		if value, ok := item.Fields[field.APIKey].(string); ok && value != "" {
			return value
		}
	}
	return item.ID
}

// storeEntityRenderer resolves item references against the store.
type storeEntityRenderer struct {
	ctx   context.Context
	store DataStore
}

func (r *storeEntityRenderer) RenderInline(itemID string) template.HTML {
	item, err := r.store.GetItem(r.ctx, itemID)
	if err != nil {
		return template.HTML(fmt.Sprintf("<span data-item=%q></span>", itemID))
	}
	fields, _ := r.store.ListFields(r.ctx, item.ItemTypeID)
	title := itemTitle(item, fields)
	return template.HTML(fmt.Sprintf("<span data-item=%q>%s</span>", itemID, template.HTMLEscapeString(title)))
}

func (r *storeEntityRenderer) RenderBlock(entity dast.Entity) template.HTML {
	switch e := entity.(type) {
	case *dast.ItemRef:
		return template.HTML(fmt.Sprintf("<div data-block=%q></div>", e.ID))
	case *dast.NewItem:
		// Unpersisted payloads render as an opaque block of their type.
		return template.HTML(fmt.Sprintf("<div data-block-type=%q></div>", e.ItemType))
	default:
		return ""
	}
}
