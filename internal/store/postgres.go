package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// --- accounts ---

func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Email, account.Name, account.PasswordHash, account.Role)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at, updated_at
		FROM accounts
		WHERE email=$1 AND deactivated_at IS NULL
	`, email).Scan(&account.ID, &account.Email, &account.Name, &account.PasswordHash, &account.Role, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) GetAccountByID(ctx context.Context, accountID string) (Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name, password_hash, role, created_at, updated_at
		FROM accounts
		WHERE id=$1 AND deactivated_at IS NULL
	`, accountID).Scan(&account.ID, &account.Email, &account.Name, &account.PasswordHash, &account.Role, &account.CreatedAt, &account.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash=$2, updated_at=NOW() WHERE id=$1
	`, accountID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- api tokens ---

func (s *PostgresStore) CreateAPIToken(ctx context.Context, token APIToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, token_hash, role, created_by)
		VALUES ($1, $2, $3, $4, $5)
	`, token.ID, token.Name, token.TokenHash, token.Role, token.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert api token: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAPITokenByHash(ctx context.Context, tokenHash string) (APIToken, error) {
	var token APIToken
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, token_hash, role, created_by, last_used_at, created_at
		FROM api_tokens
		WHERE token_hash=$1 AND revoked_at IS NULL
	`, tokenHash).Scan(&token.ID, &token.Name, &token.TokenHash, &token.Role, &token.CreatedBy, &token.LastUsedAt, &token.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return APIToken{}, ErrNotFound
	}
	if err != nil {
		return APIToken{}, fmt.Errorf("lookup api token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) TouchAPIToken(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at=NOW() WHERE id=$1`, tokenID)
	if err != nil {
		return fmt.Errorf("touch api token: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPITokens(ctx context.Context) ([]APIToken, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, created_by, last_used_at, created_at
		FROM api_tokens
		WHERE revoked_at IS NULL
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list api tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]APIToken, 0)
	for rows.Next() {
		var token APIToken
		if err := rows.Scan(&token.ID, &token.Name, &token.Role, &token.CreatedBy, &token.LastUsedAt, &token.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate api tokens: %w", err)
	}
	return tokens, nil
}

func (s *PostgresStore) RevokeAPIToken(ctx context.Context, tokenID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at=NOW() WHERE id=$1 AND revoked_at IS NULL
	`, tokenID)
	if err != nil {
		return fmt.Errorf("revoke api token: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- item types ---

func (s *PostgresStore) InsertItemType(ctx context.Context, itemType ItemType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_types (id, name, api_key, modular, singleton, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, itemType.ID, itemType.Name, itemType.APIKey, itemType.Modular, itemType.Singleton, itemType.SortOrder)
	if err != nil {
		return fmt.Errorf("insert item type: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItemType(ctx context.Context, itemType ItemType) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE item_types SET name=$2, api_key=$3, modular=$4, singleton=$5, sort_order=$6, updated_at=NOW()
		WHERE id=$1
	`, itemType.ID, itemType.Name, itemType.APIKey, itemType.Modular, itemType.Singleton, itemType.SortOrder)
	if err != nil {
		return fmt.Errorf("update item type: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetItemType(ctx context.Context, itemTypeID string) (ItemType, error) {
	var itemType ItemType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, modular, singleton, sort_order, created_at, updated_at
		FROM item_types
		WHERE id=$1
	`, itemTypeID).Scan(&itemType.ID, &itemType.Name, &itemType.APIKey, &itemType.Modular, &itemType.Singleton, &itemType.SortOrder, &itemType.CreatedAt, &itemType.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemType{}, ErrNotFound
	}
	if err != nil {
		return ItemType{}, fmt.Errorf("lookup item type: %w", err)
	}
	return itemType, nil
}

func (s *PostgresStore) GetItemTypeByAPIKey(ctx context.Context, apiKey string) (ItemType, error) {
	var itemType ItemType
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, modular, singleton, sort_order, created_at, updated_at
		FROM item_types
		WHERE api_key=$1
	`, apiKey).Scan(&itemType.ID, &itemType.Name, &itemType.APIKey, &itemType.Modular, &itemType.Singleton, &itemType.SortOrder, &itemType.CreatedAt, &itemType.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ItemType{}, ErrNotFound
	}
	if err != nil {
		return ItemType{}, fmt.Errorf("lookup item type: %w", err)
	}
	return itemType, nil
}

func (s *PostgresStore) ListItemTypes(ctx context.Context) ([]ItemType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_key, modular, singleton, sort_order, created_at, updated_at
		FROM item_types
		ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list item types: %w", err)
	}
	defer rows.Close()

	itemTypes := make([]ItemType, 0)
	for rows.Next() {
		var itemType ItemType
		if err := rows.Scan(&itemType.ID, &itemType.Name, &itemType.APIKey, &itemType.Modular, &itemType.Singleton, &itemType.SortOrder, &itemType.CreatedAt, &itemType.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan item type: %w", err)
		}
		itemTypes = append(itemTypes, itemType)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate item types: %w", err)
	}
	return itemTypes, nil
}

func (s *PostgresStore) DeleteItemType(ctx context.Context, itemTypeID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM item_types WHERE id=$1`, itemTypeID)
	if err != nil {
		return fmt.Errorf("delete item type: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- fields ---

func (s *PostgresStore) InsertField(ctx context.Context, field Field) error {
	config, err := json.Marshal(field.Config)
	if err != nil {
		return fmt.Errorf("marshal field config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fields (id, item_type_id, label, api_key, field_type, config, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, field.ID, field.ItemTypeID, field.Label, field.APIKey, field.FieldType, config, field.SortOrder)
	if err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateField(ctx context.Context, field Field) error {
	config, err := json.Marshal(field.Config)
	if err != nil {
		return fmt.Errorf("marshal field config: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE fields SET label=$2, api_key=$3, field_type=$4, config=$5, sort_order=$6, updated_at=NOW()
		WHERE id=$1
	`, field.ID, field.Label, field.APIKey, field.FieldType, config, field.SortOrder)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetField(ctx context.Context, fieldID string) (Field, error) {
	var field Field
	var config []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, item_type_id, label, api_key, field_type, config, sort_order, created_at, updated_at
		FROM fields
		WHERE id=$1
	`, fieldID).Scan(&field.ID, &field.ItemTypeID, &field.Label, &field.APIKey, &field.FieldType, &config, &field.SortOrder, &field.CreatedAt, &field.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Field{}, ErrNotFound
	}
	if err != nil {
		return Field{}, fmt.Errorf("lookup field: %w", err)
	}
	if err := json.Unmarshal(config, &field.Config); err != nil {
		return Field{}, fmt.Errorf("unmarshal field config: %w", err)
	}
	return field, nil
}

func (s *PostgresStore) ListFields(ctx context.Context, itemTypeID string) ([]Field, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_type_id, label, api_key, field_type, config, sort_order, created_at, updated_at
		FROM fields
		WHERE item_type_id=$1
		ORDER BY sort_order, api_key
	`, itemTypeID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	fields := make([]Field, 0)
	for rows.Next() {
		var field Field
		var config []byte
		if err := rows.Scan(&field.ID, &field.ItemTypeID, &field.Label, &field.APIKey, &field.FieldType, &config, &field.SortOrder, &field.CreatedAt, &field.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		if err := json.Unmarshal(config, &field.Config); err != nil {
			return nil, fmt.Errorf("unmarshal field config: %w", err)
		}
		fields = append(fields, field)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

func (s *PostgresStore) DeleteField(ctx context.Context, fieldID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM fields WHERE id=$1`, fieldID)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- items ---

func (s *PostgresStore) InsertItem(ctx context.Context, item Item) error {
	fields, err := json.Marshal(item.Fields)
	if err != nil {
		return fmt.Errorf("marshal item fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (id, item_type_id, fields, status, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.ItemTypeID, fields, item.Status, item.CreatedBy, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItem(ctx context.Context, item Item) error {
	fields, err := json.Marshal(item.Fields)
	if err != nil {
		return fmt.Errorf("marshal item fields: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET fields=$2, status=$3, updated_by=$4, updated_at=NOW()
		WHERE id=$1
	`, item.ID, fields, item.Status, item.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (Item, error) {
	var item Item
	var fields []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, item_type_id, fields, status, created_by, updated_by, created_at, updated_at
		FROM items
		WHERE id=$1
	`, itemID).Scan(&item.ID, &item.ItemTypeID, &fields, &item.Status, &item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("lookup item: %w", err)
	}
	if err := json.Unmarshal(fields, &item.Fields); err != nil {
		return Item{}, fmt.Errorf("unmarshal item fields: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) ListItems(ctx context.Context, itemTypeID string, page Page) ([]Item, int, error) {
	limit := page.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE item_type_id=$1`, itemTypeID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_type_id, fields, status, created_by, updated_by, created_at, updated_at
		FROM items
		WHERE item_type_id=$1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3
	`, itemTypeID, limit, page.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var item Item
		var fields []byte
		if err := rows.Scan(&item.ID, &item.ItemTypeID, &fields, &item.Status, &item.CreatedBy, &item.UpdatedBy, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan item: %w", err)
		}
		if err := json.Unmarshal(fields, &item.Fields); err != nil {
			return nil, 0, fmt.Errorf("unmarshal item fields: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate items: %w", err)
	}
	return items, total, nil
}

func (s *PostgresStore) DeleteItem(ctx context.Context, itemID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ItemTypeOf reports the item type api key of a persisted item. It backs the
// structured text validator's reference checks.
func (s *PostgresStore) ItemTypeOf(ctx context.Context, itemID string) (string, bool, error) {
	var apiKey string
	err := s.db.QueryRowContext(ctx, `
		SELECT it.api_key
		FROM items i
		JOIN item_types it ON it.id = i.item_type_id
		WHERE i.id=$1
	`, itemID).Scan(&apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve item type: %w", err)
	}
	return apiKey, true, nil
}

// --- uploads ---

func (s *PostgresStore) InsertUpload(ctx context.Context, upload Upload) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO uploads (id, filename, content_type, size, storage_key, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, upload.ID, upload.Filename, upload.ContentType, upload.Size, upload.StorageKey, upload.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUpload(ctx context.Context, uploadID string) (Upload, error) {
	var upload Upload
	err := s.db.QueryRowContext(ctx, `
		SELECT id, filename, content_type, size, storage_key, created_by, created_at
		FROM uploads
		WHERE id=$1
	`, uploadID).Scan(&upload.ID, &upload.Filename, &upload.ContentType, &upload.Size, &upload.StorageKey, &upload.CreatedBy, &upload.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Upload{}, ErrNotFound
	}
	if err != nil {
		return Upload{}, fmt.Errorf("lookup upload: %w", err)
	}
	return upload, nil
}

func (s *PostgresStore) ListUploads(ctx context.Context, page Page) ([]Upload, error) {
	limit := page.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, filename, content_type, size, storage_key, created_by, created_at
		FROM uploads
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	uploads := make([]Upload, 0)
	for rows.Next() {
		var upload Upload
		if err := rows.Scan(&upload.ID, &upload.Filename, &upload.ContentType, &upload.Size, &upload.StorageKey, &upload.CreatedBy, &upload.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		uploads = append(uploads, upload)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploads: %w", err)
	}
	return uploads, nil
}

func (s *PostgresStore) DeleteUpload(ctx context.Context, uploadID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM uploads WHERE id=$1`, uploadID)
	if err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}
