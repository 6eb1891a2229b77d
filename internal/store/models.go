package store

import "time"

type Account struct {
	ID            string
	Email         string
	Name          string
	PasswordHash  string
	Role          string
	DeactivatedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// APIToken is a long-lived bearer credential for machine clients. Only the
// SHA-256 hash of the token value is persisted.
type APIToken struct {
	ID         string
	Name       string
	TokenHash  string
	Role       string
	CreatedBy  string
	LastUsedAt *time.Time
	CreatedAt  time.Time
	RevokedAt  *time.Time
}

// ItemType is a content model: a named collection of fields items conform to.
type ItemType struct {
	ID         string
	Name       string
	APIKey     string
	Modular    bool
	Singleton  bool
	SortOrder  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Field types understood by the item validator.
const (
	FieldTypeString         = "string"
	FieldTypeText           = "text"
	FieldTypeBoolean        = "boolean"
	FieldTypeInteger        = "integer"
	FieldTypeFloat          = "float"
	FieldTypeJSON           = "json"
	FieldTypeLink           = "link"
	FieldTypeUpload         = "upload"
	FieldTypeStructuredText = "structured_text"
	FieldTypeModularContent = "modular_content"
	FieldTypeSingleBlock    = "single_block"
)

// FieldConfig carries the per-type validation rules of a field. Which members
// apply depends on FieldType; unused members stay zero.
type FieldConfig struct {
	Required bool `json:"required,omitempty"`
	// Structured text, modular content and single block: item types allowed
	// as embedded blocks.
	BlockTypes []string `json:"block_types,omitempty"`
	// Structured text: item types an inline item link may target.
	LinkTargetTypes []string `json:"link_target_types,omitempty"`
	// Structured text: upper bound on the encoded document size in bytes.
	MaxSize int `json:"max_size,omitempty"`
	// Link: item types the reference may point at.
	ItemTypes []string `json:"item_types,omitempty"`
}

type Field struct {
	ID         string
	ItemTypeID string
	Label      string
	APIKey     string
	FieldType  string
	Config     FieldConfig
	SortOrder  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is one content record. Fields holds the raw field values keyed by the
// field api key; structured text values are stored in their wire form.
type Item struct {
	ID         string
	ItemTypeID string
	Fields     map[string]any
	Status     string
	CreatedBy  string
	UpdatedBy  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item lifecycle states.
const (
	ItemStatusDraft     = "draft"
	ItemStatusPublished = "published"
)

type Upload struct {
	ID          string
	Filename    string
	ContentType string
	Size        int64
	StorageKey  string
	CreatedBy   string
	CreatedAt   time.Time
}

// CommitInfo describes one entry of an item's version history.
type CommitInfo struct {
	Hash      string
	Message   string
	Author    string
	CreatedAt time.Time
	Added     int
	Removed   int
}

// Page bounds a list query.
type Page struct {
	Offset int
	Limit  int
}
