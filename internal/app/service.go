package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"tessera/api/internal/accounts"
	"tessera/api/internal/auth"
	"tessera/api/internal/config"
	"tessera/api/internal/dast"
	"tessera/api/internal/export"
	"tessera/api/internal/rbac"
	"tessera/api/internal/search"
	"tessera/api/internal/session"
	"tessera/api/internal/store"
	"tessera/api/internal/util"
	"tessera/api/internal/versions"
)

type Session struct {
	Token        string
	RefreshToken string
	AccountID    string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type SignUpInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

type ItemTypeInput struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	Modular   bool   `json:"modular"`
	Singleton bool   `json:"singleton"`
	SortOrder int    `json:"sort_order"`
}

type FieldInput struct {
	Label     string            `json:"label"`
	APIKey    string            `json:"api_key"`
	FieldType string            `json:"field_type"`
	Config    store.FieldConfig `json:"config"`
	SortOrder int               `json:"sort_order"`
}

type ItemInput struct {
	Fields map[string]any `json:"fields"`
	Status string         `json:"status"`
}

type APITokenInput struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// IssuedAPIToken carries the plaintext secret exactly once, at creation.
type IssuedAPIToken struct {
	store.APIToken
	Token string
}

// FieldIssue is one validation finding on an item payload, addressed by the
// field api key. Structured text findings carry the in-document issues.
type FieldIssue struct {
	Field  string       `json:"field"`
	Detail string       `json:"detail"`
	Issues []dast.Issue `json:"issues,omitempty"`
}

type dataStore interface {
	GetAccountByID(ctx context.Context, accountID string) (store.Account, error)

	CreateAPIToken(ctx context.Context, token store.APIToken) error
	GetAPITokenByHash(ctx context.Context, tokenHash string) (store.APIToken, error)
	TouchAPIToken(ctx context.Context, tokenID string) error
	ListAPITokens(ctx context.Context) ([]store.APIToken, error)
	RevokeAPIToken(ctx context.Context, tokenID string) error

	InsertItemType(ctx context.Context, itemType store.ItemType) error
	UpdateItemType(ctx context.Context, itemType store.ItemType) error
	GetItemType(ctx context.Context, itemTypeID string) (store.ItemType, error)
	GetItemTypeByAPIKey(ctx context.Context, apiKey string) (store.ItemType, error)
	ListItemTypes(ctx context.Context) ([]store.ItemType, error)
	DeleteItemType(ctx context.Context, itemTypeID string) error

	InsertField(ctx context.Context, field store.Field) error
	UpdateField(ctx context.Context, field store.Field) error
	GetField(ctx context.Context, fieldID string) (store.Field, error)
	ListFields(ctx context.Context, itemTypeID string) ([]store.Field, error)
	DeleteField(ctx context.Context, fieldID string) error

	InsertItem(ctx context.Context, item store.Item) error
	UpdateItem(ctx context.Context, item store.Item) error
	GetItem(ctx context.Context, itemID string) (store.Item, error)
	ListItems(ctx context.Context, itemTypeID string, page store.Page) ([]store.Item, int, error)
	DeleteItem(ctx context.Context, itemID string) error
	ItemTypeOf(ctx context.Context, itemID string) (string, bool, error)

	GetUpload(ctx context.Context, uploadID string) (store.Upload, error)
}

type accountService interface {
	SignUp(ctx context.Context, req accounts.SignUpRequest) (store.Account, error)
	SignIn(ctx context.Context, email, password string) (store.Account, error)
	ChangePassword(ctx context.Context, accountID, current, next string) error
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, sess session.Session, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Session, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type versionStore interface {
	EnsureItemRepo(itemID string, initial versions.Snapshot, author string) error
	CommitItem(itemID string, snapshot versions.Snapshot, author, message string) (store.CommitInfo, error)
	GetByHash(itemID, hash string) (versions.Snapshot, error)
	History(itemID string, limit int) ([]store.CommitInfo, error)
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexItem(record search.ItemRecord)
	DeleteItem(id string)
}

type uploadService interface {
	Create(ctx context.Context, filename, contentType string, size int64, body io.Reader, createdBy string) (store.Upload, error)
	Get(ctx context.Context, uploadID string) (store.Upload, error)
	List(ctx context.Context, page store.Page) ([]store.Upload, error)
	PresignedURL(ctx context.Context, uploadID string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, uploadID string) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

// Deps bundles the collaborators a Service needs. Search, Versions, Uploads
// and Exporter may be nil; the corresponding operations degrade or refuse.
type Deps struct {
	Store    dataStore
	Accounts accountService
	Sessions sessionStore
	Versions versionStore
	Search   searchIndex
	Uploads  uploadService
	Exporter exporter
	DBPing   func(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	accounts accountService
	sessions sessionStore
	versions versionStore
	search   searchIndex
	uploads  uploadService
	exporter exporter
	dbPing   func(ctx context.Context) error
}

func NewService(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		accounts: deps.Accounts,
		sessions: deps.Sessions,
		versions: deps.Versions,
		search:   deps.Search,
		uploads:  deps.Uploads,
		exporter: deps.Exporter,
		dbPing:   deps.DBPing,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.dbPing == nil {
		return nil
	}
	return s.dbPing(ctx)
}

// --- auth and sessions ---

func (s *Service) SignUp(ctx context.Context, input SignUpInput) (Session, error) {
	account, err := s.accounts.SignUp(ctx, accounts.SignUpRequest{
		ID:       util.NewID("acc"),
		Email:    strings.ToLower(strings.TrimSpace(input.Email)),
		Password: input.Password,
		Name:     strings.TrimSpace(input.Name),
		Role:     input.Role,
	})
	if err != nil {
		return Session{}, err
	}
	return s.createSession(ctx, account)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	account, err := s.accounts.SignIn(ctx, strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return Session{}, err
	}
	return s.createSession(ctx, account)
}

func (s *Service) createSession(ctx context.Context, account store.Account) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("")
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:   account.ID,
		Email: account.Email,
		Role:  account.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := util.NewID("")
	err = s.sessions.Save(ctx, auth.HashToken(refreshToken), session.Session{
		AccountID: account.ID,
		Email:     account.Email,
		Role:      account.Role,
		CreatedAt: now,
	}, now.Add(s.cfg.SessionTTL))
	if err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		AccountID:    account.ID,
		Email:        account.Email,
		Role:         account.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	sess, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token", nil)
	}
	account, err := s.store.GetAccountByID(ctx, sess.AccountID)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token", nil)
	}
	// Rotate: the old refresh token is dead once a new pair is issued.
	if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
		return Session{}, fmt.Errorf("revoke refresh session: %w", err)
	}
	return s.createSession(ctx, account)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

// SessionFromToken authenticates a bearer credential: either a signed access
// token or a long-lived API token.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	if strings.Contains(token, ".") {
		claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
		if err != nil {
			return Session{}, err
		}
		return Session{
			Token:     token,
			AccountID: claims.Sub,
			Email:     claims.Email,
			Role:      string(rbac.Normalize(claims.Role)),
			JTI:       claims.JTI,
			ExpiresAt: time.Unix(claims.Exp, 0),
		}, nil
	}

	apiToken, err := s.store.GetAPITokenByHash(ctx, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, fmt.Errorf("lookup api token: %w", err)
	}
	_ = s.store.TouchAPIToken(ctx, apiToken.ID)
	return Session{
		Token:     token,
		AccountID: apiToken.ID,
		Email:     apiToken.Name,
		Role:      string(rbac.Normalize(apiToken.Role)),
	}, nil
}

func (s *Service) ChangePassword(ctx context.Context, sess Session, current, next string) error {
	return s.accounts.ChangePassword(ctx, sess.AccountID, current, next)
}

// --- API tokens ---

func (s *Service) CreateAPIToken(ctx context.Context, sess Session, input APITokenInput) (IssuedAPIToken, error) {
	if strings.TrimSpace(input.Name) == "" {
		return IssuedAPIToken{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Token name is required", nil)
	}
	if !roleKnown(input.Role) {
		return IssuedAPIToken{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown role: "+input.Role, nil)
	}
	secret := util.NewID("tsk")
	token := store.APIToken{
		ID:        util.NewID("tok"),
		Name:      strings.TrimSpace(input.Name),
		TokenHash: auth.HashToken(secret),
		Role:      input.Role,
		CreatedBy: sess.AccountID,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateAPIToken(ctx, token); err != nil {
		return IssuedAPIToken{}, fmt.Errorf("create api token: %w", err)
	}
	return IssuedAPIToken{APIToken: token, Token: secret}, nil
}

func (s *Service) ListAPITokens(ctx context.Context) ([]store.APIToken, error) {
	return s.store.ListAPITokens(ctx)
}

func (s *Service) RevokeAPIToken(ctx context.Context, tokenID string) error {
	return s.store.RevokeAPIToken(ctx, tokenID)
}

func roleKnown(role string) bool {
	switch rbac.Role(role) {
	case rbac.RoleViewer, rbac.RoleEditor, rbac.RoleDeveloper, rbac.RoleAdmin:
		return true
	default:
		return false
	}
}

// --- item types ---

var apiKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (s *Service) CreateItemType(ctx context.Context, input ItemTypeInput) (store.ItemType, error) {
	if err := validateItemTypeInput(input); err != nil {
		return store.ItemType{}, err
	}
	if _, err := s.store.GetItemTypeByAPIKey(ctx, input.APIKey); err == nil {
		return store.ItemType{}, domainError(http.StatusConflict, "API_KEY_EXISTS", "An item type with this api key already exists", nil)
	} else if !errors.Is(err, store.ErrNotFound) {
		return store.ItemType{}, fmt.Errorf("check item type api key: %w", err)
	}

	now := time.Now()
	itemType := store.ItemType{
		ID:        util.NewID("it"),
		Name:      strings.TrimSpace(input.Name),
		APIKey:    input.APIKey,
		Modular:   input.Modular,
		Singleton: input.Singleton,
		SortOrder: input.SortOrder,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertItemType(ctx, itemType); err != nil {
		return store.ItemType{}, fmt.Errorf("insert item type: %w", err)
	}
	return itemType, nil
}

func (s *Service) GetItemType(ctx context.Context, itemTypeID string) (store.ItemType, error) {
	return s.store.GetItemType(ctx, itemTypeID)
}

func (s *Service) ListItemTypes(ctx context.Context) ([]store.ItemType, error) {
	return s.store.ListItemTypes(ctx)
}

func (s *Service) UpdateItemType(ctx context.Context, itemTypeID string, input ItemTypeInput) (store.ItemType, error) {
	if err := validateItemTypeInput(input); err != nil {
		return store.ItemType{}, err
	}
	existing, err := s.store.GetItemType(ctx, itemTypeID)
	if err != nil {
		return store.ItemType{}, err
	}
	if input.APIKey != existing.APIKey {
		if other, err := s.store.GetItemTypeByAPIKey(ctx, input.APIKey); err == nil && other.ID != itemTypeID {
			return store.ItemType{}, domainError(http.StatusConflict, "API_KEY_EXISTS", "An item type with this api key already exists", nil)
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return store.ItemType{}, fmt.Errorf("check item type api key: %w", err)
		}
	}

	existing.Name = strings.TrimSpace(input.Name)
	existing.APIKey = input.APIKey
	existing.Modular = input.Modular
	existing.Singleton = input.Singleton
	existing.SortOrder = input.SortOrder
	existing.UpdatedAt = time.Now()
	if err := s.store.UpdateItemType(ctx, existing); err != nil {
		return store.ItemType{}, fmt.Errorf("update item type: %w", err)
	}
	return existing, nil
}

func (s *Service) DeleteItemType(ctx context.Context, itemTypeID string) error {
	if _, err := s.store.GetItemType(ctx, itemTypeID); err != nil {
		return err
	}
	_, total, err := s.store.ListItems(ctx, itemTypeID, store.Page{Limit: 1})
	if err != nil {
		return fmt.Errorf("count items: %w", err)
	}
	if total > 0 {
		return domainError(http.StatusConflict, "ITEM_TYPE_IN_USE", fmt.Sprintf("Item type has %d items", total), nil)
	}
	return s.store.DeleteItemType(ctx, itemTypeID)
}

func validateItemTypeInput(input ItemTypeInput) error {
	if strings.TrimSpace(input.Name) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Item type name is required", nil)
	}
	if !apiKeyPattern.MatchString(input.APIKey) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Api key must match ^[a-z][a-z0-9_]*$", nil)
	}
	return nil
}

// --- fields ---

var validFieldTypes = map[string]struct{}{
	store.FieldTypeString:         {},
	store.FieldTypeText:           {},
	store.FieldTypeBoolean:        {},
	store.FieldTypeInteger:        {},
	store.FieldTypeFloat:          {},
	store.FieldTypeJSON:           {},
	store.FieldTypeLink:           {},
	store.FieldTypeUpload:         {},
	store.FieldTypeStructuredText: {},
	store.FieldTypeModularContent: {},
	store.FieldTypeSingleBlock:    {},
}

func (s *Service) CreateField(ctx context.Context, itemTypeID string, input FieldInput) (store.Field, error) {
	if _, err := s.store.GetItemType(ctx, itemTypeID); err != nil {
		return store.Field{}, err
	}
	if err := s.validateFieldInput(ctx, input); err != nil {
		return store.Field{}, err
	}
	existingFields, err := s.store.ListFields(ctx, itemTypeID)
	if err != nil {
		return store.Field{}, fmt.Errorf("list fields: %w", err)
	}
	for _, existing := range existingFields {
		if existing.APIKey == input.APIKey {
			return store.Field{}, domainError(http.StatusConflict, "API_KEY_EXISTS", "A field with this api key already exists", nil)
		}
	}

	now := time.Now()
	field := store.Field{
		ID:         util.NewID("fld"),
		ItemTypeID: itemTypeID,
		Label:      strings.TrimSpace(input.Label),
		APIKey:     input.APIKey,
		FieldType:  input.FieldType,
		Config:     input.Config,
		SortOrder:  input.SortOrder,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertField(ctx, field); err != nil {
		return store.Field{}, fmt.Errorf("insert field: %w", err)
	}
	return field, nil
}

func (s *Service) ListFields(ctx context.Context, itemTypeID string) ([]store.Field, error) {
	if _, err := s.store.GetItemType(ctx, itemTypeID); err != nil {
		return nil, err
	}
	return s.store.ListFields(ctx, itemTypeID)
}

func (s *Service) UpdateField(ctx context.Context, fieldID string, input FieldInput) (store.Field, error) {
	existing, err := s.store.GetField(ctx, fieldID)
	if err != nil {
		return store.Field{}, err
	}
	if err := s.validateFieldInput(ctx, input); err != nil {
		return store.Field{}, err
	}
	if input.APIKey != existing.APIKey {
		siblings, err := s.store.ListFields(ctx, existing.ItemTypeID)
		if err != nil {
			return store.Field{}, fmt.Errorf("list fields: %w", err)
		}
		for _, other := range siblings {
			if other.APIKey == input.APIKey && other.ID != fieldID {
				return store.Field{}, domainError(http.StatusConflict, "API_KEY_EXISTS", "A field with this api key already exists", nil)
			}
		}
	}

	existing.Label = strings.TrimSpace(input.Label)
	existing.APIKey = input.APIKey
	existing.FieldType = input.FieldType
	existing.Config = input.Config
	existing.SortOrder = input.SortOrder
	existing.UpdatedAt = time.Now()
	if err := s.store.UpdateField(ctx, existing); err != nil {
		return store.Field{}, fmt.Errorf("update field: %w", err)
	}
	return existing, nil
}

func (s *Service) DeleteField(ctx context.Context, fieldID string) error {
	return s.store.DeleteField(ctx, fieldID)
}

func (s *Service) validateFieldInput(ctx context.Context, input FieldInput) error {
	if strings.TrimSpace(input.Label) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Field label is required", nil)
	}
	if !apiKeyPattern.MatchString(input.APIKey) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Api key must match ^[a-z][a-z0-9_]*$", nil)
	}
	if _, ok := validFieldTypes[input.FieldType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown field type: "+input.FieldType, nil)
	}
	if input.Config.MaxSize < 0 {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "max_size must not be negative", nil)
	}
	for _, group := range [][]string{input.Config.BlockTypes, input.Config.LinkTargetTypes, input.Config.ItemTypes} {
		for _, apiKey := range group {
			if _, err := s.store.GetItemTypeByAPIKey(ctx, apiKey); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown item type in field config: "+apiKey, nil)
				}
				return fmt.Errorf("check field config item type: %w", err)
			}
		}
	}
	return nil
}

// --- items ---

func (s *Service) CreateItem(ctx context.Context, sess Session, itemTypeID string, input ItemInput) (store.Item, error) {
	itemType, err := s.store.GetItemType(ctx, itemTypeID)
	if err != nil {
		return store.Item{}, err
	}
	fields, err := s.store.ListFields(ctx, itemTypeID)
	if err != nil {
		return store.Item{}, fmt.Errorf("list fields: %w", err)
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return store.Item{}, err
	}
	values := input.Fields
	if values == nil {
		values = map[string]any{}
	}
	if issues := s.validateItemFields(ctx, fields, values); len(issues) > 0 {
		return store.Item{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Item fields failed validation", issues)
	}

	now := time.Now()
	item := store.Item{
		ID:         util.NewID("item"),
		ItemTypeID: itemTypeID,
		Fields:     values,
		Status:     status,
		CreatedBy:  sess.AccountID,
		UpdatedBy:  sess.AccountID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return store.Item{}, fmt.Errorf("insert item: %w", err)
	}

	if s.versions != nil {
		if err := s.versions.EnsureItemRepo(item.ID, snapshotOf(item), sess.Email); err != nil {
			return store.Item{}, fmt.Errorf("init item history: %w", err)
		}
	}
	if s.search != nil {
		s.search.IndexItem(s.searchRecord(item, itemType, fields))
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, itemID string) (store.Item, error) {
	return s.store.GetItem(ctx, itemID)
}

func (s *Service) ListItems(ctx context.Context, itemTypeID string, page store.Page) ([]store.Item, int, error) {
	if _, err := s.store.GetItemType(ctx, itemTypeID); err != nil {
		return nil, 0, err
	}
	return s.store.ListItems(ctx, itemTypeID, page)
}

func (s *Service) UpdateItem(ctx context.Context, sess Session, itemID string, input ItemInput) (store.Item, error) {
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return store.Item{}, err
	}
	itemType, err := s.store.GetItemType(ctx, item.ItemTypeID)
	if err != nil {
		return store.Item{}, fmt.Errorf("get item type: %w", err)
	}
	fields, err := s.store.ListFields(ctx, item.ItemTypeID)
	if err != nil {
		return store.Item{}, fmt.Errorf("list fields: %w", err)
	}
	status, err := normalizeStatus(input.Status)
	if err != nil {
		return store.Item{}, err
	}
	values := input.Fields
	if values == nil {
		values = map[string]any{}
	}
	if issues := s.validateItemFields(ctx, fields, values); len(issues) > 0 {
		return store.Item{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Item fields failed validation", issues)
	}

	item.Fields = values
	item.Status = status
	item.UpdatedBy = sess.AccountID
	item.UpdatedAt = time.Now()
	if err := s.store.UpdateItem(ctx, item); err != nil {
		return store.Item{}, fmt.Errorf("update item: %w", err)
	}

	if s.versions != nil {
		if err := s.versions.EnsureItemRepo(item.ID, snapshotOf(item), sess.Email); err != nil {
			return store.Item{}, fmt.Errorf("init item history: %w", err)
		}
		if _, err := s.versions.CommitItem(item.ID, snapshotOf(item), sess.Email, "Update item"); err != nil {
			return store.Item{}, fmt.Errorf("commit item history: %w", err)
		}
	}
	if s.search != nil {
		s.search.IndexItem(s.searchRecord(item, itemType, fields))
	}
	return item, nil
}

func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteItem(itemID)
	}
	return nil
}

func normalizeStatus(status string) (string, error) {
	switch status {
	case "":
		return store.ItemStatusDraft, nil
	case store.ItemStatusDraft, store.ItemStatusPublished:
		return status, nil
	default:
		return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown status: "+status, nil)
	}
}

func snapshotOf(item store.Item) versions.Snapshot {
	return versions.Snapshot{
		ItemTypeID: item.ItemTypeID,
		Status:     item.Status,
		Fields:     item.Fields,
	}
}

// validateItemFields checks an item payload against the field definitions of
// its type. It never stops early: every finding is collected so the client
// can fix the whole payload in one round trip.
func (s *Service) validateItemFields(ctx context.Context, fields []store.Field, values map[string]any) []FieldIssue {
	var issues []FieldIssue
	resolver := &storeResolver{ctx: ctx, store: s.store}
	known := make(map[string]struct{}, len(fields))

	for _, field := range fields {
		known[field.APIKey] = struct{}{}
		value, present := values[field.APIKey]
		if !present || value == nil {
			if field.Config.Required {
				issues = append(issues, FieldIssue{Field: field.APIKey, Detail: "is required"})
			}
			continue
		}

		switch field.FieldType {
		case store.FieldTypeString, store.FieldTypeText:
			if _, ok := value.(string); !ok {
				issues = append(issues, FieldIssue{Field: field.APIKey, Detail: "must be a string"})
			}
		case store.FieldTypeBoolean:
			if _, ok := value.(bool); !ok {
				issues = append(issues, FieldIssue{Field: field.APIKey, Detail: "must be a boolean"})
			}
		case store.FieldTypeInteger:
			if n, ok := value.(float64); !ok || n != math.Trunc(n) {
				issues = append(issues, FieldIssue{Field: field.APIKey, Detail: "must be an integer"})
			}
		case store.FieldTypeFloat:
			if _, ok := value.(float64); !ok {
				issues = append(issues, FieldIssue{Field: field.APIKey, Detail: "must be a number"})
			}
		case store.FieldTypeJSON:
			// Any JSON value is acceptable.
		case store.FieldTypeLink:
			issues = append(issues, s.checkLinkValue(ctx, field, value)...)
		case store.FieldTypeUpload:
			issues = append(issues, s.checkUploadValue(ctx, field, value)...)
		case store.FieldTypeStructuredText:
			issues = append(issues, s.checkStructuredTextValue(field, value, resolver)...)
		case store.FieldTypeModularContent:
			issues = append(issues, checkModularContentValue(field, value, resolver)...)
		case store.FieldTypeSingleBlock:
			issues = append(issues, checkSingleBlockValue(field, value, resolver)...)
		}
	}

	for key := range values {
		if _, ok := known[key]; !ok {
			issues = append(issues, FieldIssue{Field: key, Detail: "unknown field"})
		}
	}
	return issues
}

func (s *Service) checkLinkValue(ctx context.Context, field store.Field, value any) []FieldIssue {
	id, ok := value.(string)
	if !ok || id == "" {
		return []FieldIssue{{Field: field.APIKey, Detail: "must be an item id"}}
	}
	typeKey, found, err := s.store.ItemTypeOf(ctx, id)
	if err != nil || !found {
		return []FieldIssue{{Field: field.APIKey, Detail: "references a missing item: " + id}}
	}
	if len(field.Config.ItemTypes) > 0 && !containsString(field.Config.ItemTypes, typeKey) {
		return []FieldIssue{{Field: field.APIKey, Detail: fmt.Sprintf("item type %q is not allowed here", typeKey)}}
	}
	return nil
}

func (s *Service) checkUploadValue(ctx context.Context, field store.Field, value any) []FieldIssue {
	id, ok := value.(string)
	if !ok || id == "" {
		return []FieldIssue{{Field: field.APIKey, Detail: "must be an upload id"}}
	}
	if _, err := s.store.GetUpload(ctx, id); err != nil {
		return []FieldIssue{{Field: field.APIKey, Detail: "references a missing upload: " + id}}
	}
	return nil
}

func (s *Service) checkStructuredTextValue(field store.Field, value any, resolver dast.TypeResolver) []FieldIssue {
	raw, err := json.Marshal(value)
	if err != nil {
		return []FieldIssue{{Field: field.APIKey, Detail: "is not encodable"}}
	}
	root, err := dast.Unmarshal(raw)
	if err != nil {
		return []FieldIssue{{Field: field.APIKey, Detail: "invalid structured text: " + err.Error()}}
	}
	maxSize := field.Config.MaxSize
	if maxSize == 0 {
		maxSize = s.cfg.MaxDocumentBytes
	}
	found := dast.Validate(root, dast.Schema{
		BlockTypes:      field.Config.BlockTypes,
		LinkTargetTypes: field.Config.LinkTargetTypes,
		MaxSize:         maxSize,
	}, resolver)
	if len(found) == 0 {
		return nil
	}
	return []FieldIssue{{Field: field.APIKey, Detail: "structured text failed validation", Issues: found}}
}

func checkModularContentValue(field store.Field, value any, resolver dast.TypeResolver) []FieldIssue {
	list, ok := value.([]any)
	if !ok {
		return []FieldIssue{{Field: field.APIKey, Detail: "must be an array of blocks"}}
	}
	entities := make([]dast.Entity, 0, len(list))
	for i, element := range list {
		entity, err := decodeEntityValue(element)
		if err != nil {
			return []FieldIssue{{Field: field.APIKey, Detail: fmt.Sprintf("block %d: %v", i, err)}}
		}
		entities = append(entities, entity)
	}
	if found := dast.ValidateBlockValues(entities, field.Config.BlockTypes, resolver); len(found) > 0 {
		return []FieldIssue{{Field: field.APIKey, Detail: "blocks failed validation", Issues: found}}
	}
	return nil
}

func checkSingleBlockValue(field store.Field, value any, resolver dast.TypeResolver) []FieldIssue {
	entity, err := decodeEntityValue(value)
	if err != nil {
		return []FieldIssue{{Field: field.APIKey, Detail: err.Error()}}
	}
	if found := dast.ValidateBlockValue(entity, field.Config.BlockTypes, resolver); len(found) > 0 {
		return []FieldIssue{{Field: field.APIKey, Detail: "block failed validation", Issues: found}}
	}
	return nil
}

func decodeEntityValue(value any) (dast.Entity, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.New("is not encodable")
	}
	return dast.DecodeEntity(raw)
}

func containsString(list []string, value string) bool {
	for _, candidate := range list {
		if candidate == value {
			return true
		}
	}
	return false
}

// storeResolver adapts the item store to the validator's resolver contract.
type storeResolver struct {
	ctx   context.Context
	store dataStore
}

func (r *storeResolver) ItemTypeOf(id string) (string, bool) {
	typeKey, ok, err := r.store.ItemTypeOf(r.ctx, id)
	if err != nil || !ok {
		return "", false
	}
	return typeKey, true
}

// searchRecord flattens an item into the indexed form: first string field as
// title, all textual content as body.
func (s *Service) searchRecord(item store.Item, itemType store.ItemType, fields []store.Field) search.ItemRecord {
	var title string
	var body strings.Builder
	for _, field := range fields {
		value, ok := item.Fields[field.APIKey]
		if !ok || value == nil {
			continue
		}
		switch field.FieldType {
		case store.FieldTypeString:
			if text, ok := value.(string); ok {
				if title == "" {
					title = text
				}
				body.WriteString(text)
				body.WriteString("\n")
			}
		case store.FieldTypeText:
			if text, ok := value.(string); ok {
				body.WriteString(text)
				body.WriteString("\n")
			}
		case store.FieldTypeStructuredText:
			if raw, err := json.Marshal(value); err == nil {
				if root, err := dast.Unmarshal(raw); err == nil {
					body.WriteString(dast.PlainText(root))
					body.WriteString("\n")
				}
			}
		}
	}
	if title == "" {
		title = item.ID
	}
	return search.ItemRecord{
		ID:          item.ID,
		ItemTypeID:  item.ItemTypeID,
		ItemTypeKey: itemType.APIKey,
		Title:       title,
		Body:        body.String(),
		Status:      item.Status,
	}
}

// --- versions ---

func (s *Service) ItemVersions(ctx context.Context, sess Session, itemID string, limit int) ([]store.CommitInfo, error) {
	if s.versions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "Version history is not configured", nil)
	}
	item, err := s.store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.versions.EnsureItemRepo(item.ID, snapshotOf(item), sess.Email); err != nil {
		return nil, fmt.Errorf("init item history: %w", err)
	}
	history, err := s.versions.History(itemID, limit)
	if err != nil {
		return nil, fmt.Errorf("read item history: %w", err)
	}
	return history, nil
}

func (s *Service) ItemVersion(ctx context.Context, itemID, hash string) (versions.Snapshot, error) {
	if s.versions == nil {
		return versions.Snapshot{}, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "Version history is not configured", nil)
	}
	if _, err := s.store.GetItem(ctx, itemID); err != nil {
		return versions.Snapshot{}, err
	}
	snapshot, err := s.versions.GetByHash(itemID, hash)
	if err != nil {
		return versions.Snapshot{}, domainError(http.StatusNotFound, "NOT_FOUND", "Version not found", nil)
	}
	return snapshot, nil
}

// --- search ---

func (s *Service) SearchItems(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Query text is required", nil)
	}
	return s.search.Search(q), nil
}

// --- uploads ---

func (s *Service) CreateUpload(ctx context.Context, sess Session, filename, contentType string, size int64, body io.Reader) (store.Upload, error) {
	if s.uploads == nil {
		return store.Upload{}, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage is not configured", nil)
	}
	if filename == "" {
		return store.Upload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Filename is required", nil)
	}
	upload, err := s.uploads.Create(ctx, filename, contentType, size, body, sess.AccountID)
	if err != nil {
		return store.Upload{}, fmt.Errorf("create upload: %w", err)
	}
	return upload, nil
}

func (s *Service) GetUploadWithURL(ctx context.Context, uploadID string) (store.Upload, string, error) {
	if s.uploads == nil {
		return store.Upload{}, "", domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage is not configured", nil)
	}
	upload, err := s.uploads.Get(ctx, uploadID)
	if err != nil {
		return store.Upload{}, "", err
	}
	url, err := s.uploads.PresignedURL(ctx, uploadID, 0)
	if err != nil {
		return store.Upload{}, "", fmt.Errorf("presign upload url: %w", err)
	}
	return upload, url, nil
}

func (s *Service) ListUploads(ctx context.Context, page store.Page) ([]store.Upload, error) {
	if s.uploads == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage is not configured", nil)
	}
	return s.uploads.List(ctx, page)
}

func (s *Service) DeleteUpload(ctx context.Context, uploadID string) error {
	if s.uploads == nil {
		return domainError(http.StatusServiceUnavailable, "UPLOADS_UNAVAILABLE", "Upload storage is not configured", nil)
	}
	return s.uploads.Delete(ctx, uploadID)
}

// --- export ---

func (s *Service) ExportItem(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	switch req.Format {
	case export.FormatHTML, export.FormatPDF, export.FormatDOCX:
	default:
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown export format: "+string(req.Format), nil)
	}
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, err
		case errors.Is(err, export.ErrContentUnavailable):
			return nil, domainError(http.StatusUnprocessableEntity, "EXPORT_FAILED", err.Error(), nil)
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export backend is unavailable", nil)
		default:
			return nil, fmt.Errorf("export item: %w", err)
		}
	}
	return result, nil
}
