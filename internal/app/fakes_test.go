package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tessera/api/internal/search"
	"tessera/api/internal/session"
	"tessera/api/internal/store"
	"tessera/api/internal/versions"
)

type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]store.Account
	tokens    map[string]store.APIToken
	itemTypes map[string]store.ItemType
	fields    map[string]store.Field
	items     map[string]store.Item
	uploads   map[string]store.Upload
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:  make(map[string]store.Account),
		tokens:    make(map[string]store.APIToken),
		itemTypes: make(map[string]store.ItemType),
		fields:    make(map[string]store.Field),
		items:     make(map[string]store.Item),
		uploads:   make(map[string]store.Upload),
	}
}

func (f *fakeStore) CreateAccount(ctx context.Context, account store.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[account.ID] = account
	return nil
}

func (f *fakeStore) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return store.Account{}, store.ErrNotFound
}

func (f *fakeStore) GetAccountByID(ctx context.Context, accountID string) (store.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return store.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = passwordHash
	f.accounts[accountID] = account
	return nil
}

func (f *fakeStore) CreateAPIToken(ctx context.Context, token store.APIToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.ID] = token
	return nil
}

func (f *fakeStore) GetAPITokenByHash(ctx context.Context, tokenHash string) (store.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens {
		if token.TokenHash == tokenHash && token.RevokedAt == nil {
			return token, nil
		}
	}
	return store.APIToken{}, store.ErrNotFound
}

func (f *fakeStore) TouchAPIToken(ctx context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	token.LastUsedAt = &now
	f.tokens[tokenID] = token
	return nil
}

func (f *fakeStore) ListAPITokens(ctx context.Context) ([]store.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.APIToken, 0, len(f.tokens))
	for _, token := range f.tokens {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) RevokeAPIToken(ctx context.Context, tokenID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	token, ok := f.tokens[tokenID]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	token.RevokedAt = &now
	f.tokens[tokenID] = token
	return nil
}

func (f *fakeStore) InsertItemType(ctx context.Context, itemType store.ItemType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemTypes[itemType.ID] = itemType
	return nil
}

func (f *fakeStore) UpdateItemType(ctx context.Context, itemType store.ItemType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.itemTypes[itemType.ID]; !ok {
		return store.ErrNotFound
	}
	f.itemTypes[itemType.ID] = itemType
	return nil
}

func (f *fakeStore) GetItemType(ctx context.Context, itemTypeID string) (store.ItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	itemType, ok := f.itemTypes[itemTypeID]
	if !ok {
		return store.ItemType{}, store.ErrNotFound
	}
	return itemType, nil
}

func (f *fakeStore) GetItemTypeByAPIKey(ctx context.Context, apiKey string) (store.ItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, itemType := range f.itemTypes {
		if itemType.APIKey == apiKey {
			return itemType, nil
		}
	}
	return store.ItemType{}, store.ErrNotFound
}

func (f *fakeStore) ListItemTypes(ctx context.Context) ([]store.ItemType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.ItemType, 0, len(f.itemTypes))
	for _, itemType := range f.itemTypes {
		out = append(out, itemType)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) DeleteItemType(ctx context.Context, itemTypeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.itemTypes[itemTypeID]; !ok {
		return store.ErrNotFound
	}
	delete(f.itemTypes, itemTypeID)
	return nil
}

func (f *fakeStore) InsertField(ctx context.Context, field store.Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields[field.ID] = field
	return nil
}

func (f *fakeStore) UpdateField(ctx context.Context, field store.Field) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.fields[field.ID]; !ok {
		return store.ErrNotFound
	}
	f.fields[field.ID] = field
	return nil
}

func (f *fakeStore) GetField(ctx context.Context, fieldID string) (store.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, ok := f.fields[fieldID]
	if !ok {
		return store.Field{}, store.ErrNotFound
	}
	return field, nil
}

func (f *fakeStore) ListFields(ctx context.Context, itemTypeID string) ([]store.Field, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Field, 0)
	for _, field := range f.fields {
		if field.ItemTypeID == itemTypeID {
			out = append(out, field)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (f *fakeStore) DeleteField(ctx context.Context, fieldID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.fields[fieldID]; !ok {
		return store.ErrNotFound
	}
	delete(f.fields, fieldID)
	return nil
}

func (f *fakeStore) InsertItem(ctx context.Context, item store.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[item.ID] = item
	return nil
}

func (f *fakeStore) UpdateItem(ctx context.Context, item store.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[item.ID]; !ok {
		return store.ErrNotFound
	}
	f.items[item.ID] = item
	return nil
}

func (f *fakeStore) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return store.Item{}, store.ErrNotFound
	}
	return item, nil
}

func (f *fakeStore) ListItems(ctx context.Context, itemTypeID string, page store.Page) ([]store.Item, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := make([]store.Item, 0)
	for _, item := range f.items {
		if item.ItemTypeID == itemTypeID {
			all = append(all, item)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := len(all)
	if page.Offset >= len(all) {
		return nil, total, nil
	}
	all = all[page.Offset:]
	limit := page.Limit
	if limit == 0 {
		limit = 100
	}
	if limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeStore) DeleteItem(ctx context.Context, itemID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[itemID]; !ok {
		return store.ErrNotFound
	}
	delete(f.items, itemID)
	return nil
}

func (f *fakeStore) ItemTypeOf(ctx context.Context, itemID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[itemID]
	if !ok {
		return "", false, nil
	}
	itemType, ok := f.itemTypes[item.ItemTypeID]
	if !ok {
		return "", false, nil
	}
	return itemType.APIKey, true, nil
}

func (f *fakeStore) GetUpload(ctx context.Context, uploadID string) (store.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	upload, ok := f.uploads[uploadID]
	if !ok {
		return store.Upload{}, store.ErrNotFound
	}
	return upload, nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]session.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]session.Session)}
}

func (f *fakeSessions) Save(ctx context.Context, tokenHash string, sess session.Session, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[tokenHash] = sess
	return nil
}

func (f *fakeSessions) Lookup(ctx context.Context, tokenHash string) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[tokenHash]
	if !ok {
		return session.Session{}, fmt.Errorf("session not found")
	}
	return sess, nil
}

func (f *fakeSessions) Revoke(ctx context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, tokenHash)
	return nil
}

type fakeSearch struct {
	mu      sync.Mutex
	records map[string]search.ItemRecord
}

func newFakeSearch() *fakeSearch {
	return &fakeSearch{records: make(map[string]search.ItemRecord)}
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	var results []search.Result
	for _, record := range f.records {
		if !strings.Contains(strings.ToLower(record.Title+" "+record.Body), strings.ToLower(q.Text)) {
			continue
		}
		results = append(results, search.Result{
			ID:          record.ID,
			ItemTypeID:  record.ItemTypeID,
			ItemTypeKey: record.ItemTypeKey,
			Title:       record.Title,
			Status:      record.Status,
		})
	}
	return search.Response{Results: results, Total: len(results), Query: q.Text}
}

func (f *fakeSearch) IndexItem(record search.ItemRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.ID] = record
}

func (f *fakeSearch) DeleteItem(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
}

type fakeVersions struct {
	mu        sync.Mutex
	snapshots map[string]map[string]versions.Snapshot
	history   map[string][]store.CommitInfo
	counter   int
}

func newFakeVersions() *fakeVersions {
	return &fakeVersions{
		snapshots: make(map[string]map[string]versions.Snapshot),
		history:   make(map[string][]store.CommitInfo),
	}
}

func (f *fakeVersions) commit(itemID string, snapshot versions.Snapshot, author, message string) store.CommitInfo {
	f.counter++
	hash := fmt.Sprintf("%07d", f.counter)
	if f.snapshots[itemID] == nil {
		f.snapshots[itemID] = make(map[string]versions.Snapshot)
	}
	f.snapshots[itemID][hash] = snapshot
	info := store.CommitInfo{Hash: hash, Message: message, Author: author, CreatedAt: time.Now()}
	f.history[itemID] = append([]store.CommitInfo{info}, f.history[itemID]...)
	return info
}

func (f *fakeVersions) EnsureItemRepo(itemID string, initial versions.Snapshot, author string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.history[itemID]; ok {
		return nil
	}
	f.commit(itemID, initial, author, "Import item baseline")
	return nil
}

func (f *fakeVersions) CommitItem(itemID string, snapshot versions.Snapshot, author, message string) (store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commit(itemID, snapshot, author, message), nil
}

func (f *fakeVersions) GetByHash(itemID, hash string) (versions.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.snapshots[itemID][hash]
	if !ok {
		return versions.Snapshot{}, fmt.Errorf("unknown version %s", hash)
	}
	return snapshot, nil
}

func (f *fakeVersions) History(itemID string, limit int) ([]store.CommitInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	history, ok := f.history[itemID]
	if !ok {
		return nil, fmt.Errorf("no history for %s", itemID)
	}
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	return history, nil
}
