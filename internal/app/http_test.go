package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T) (*HTTPServer, *Service, *fakeStore) {
	t.Helper()
	svc, fs, _, _ := newTestService(t)
	return NewHTTPServer(svc, "*"), svc, fs
}

func signUpToken(t *testing.T, svc *Service, email, role string) string {
	t.Helper()
	created, err := svc.SignUp(context.Background(), SignUpInput{
		Email:    email,
		Password: "correct-horse",
		Name:     "Test User",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("sign up %s: %v", email, err)
	}
	return created.Token
}

func doJSON(t *testing.T, server *HTTPServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["ok"] != true {
		t.Errorf("payload = %v", payload)
	}
}

func TestProtectedRouteWithoutBearer(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/api/item-types", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["code"] != "UNAUTHORIZED" {
		t.Errorf("payload = %v", payload)
	}
}

func TestProtectedRouteWithGarbageBearer(t *testing.T) {
	server, _, _ := newTestServer(t)
	rr := doJSON(t, server, http.MethodGet, "/api/item-types", "not.a-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestViewerCannotManageSchema(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpToken(t, svc, "viewer@example.com", "viewer")

	rr := doJSON(t, server, http.MethodPost, "/api/item-types", token, ItemTypeInput{Name: "Article", APIKey: "article"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}

	// Reads are still allowed.
	rr = doJSON(t, server, http.MethodGet, "/api/item-types", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("viewer read status = %d", rr.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	server, svc, _ := newTestServer(t)

	rr := doJSON(t, server, http.MethodGet, "/api/session", "", nil)
	if payload := decodeResponse(t, rr); payload["authenticated"] != false {
		t.Errorf("anonymous payload = %v", payload)
	}

	token := signUpToken(t, svc, "avery@example.com", "")
	rr = doJSON(t, server, http.MethodGet, "/api/session", token, nil)
	payload := decodeResponse(t, rr)
	if payload["authenticated"] != true || payload["email"] != "avery@example.com" {
		t.Errorf("payload = %v", payload)
	}
}

func TestSignUpConflictOverHTTP(t *testing.T) {
	server, svc, _ := newTestServer(t)
	signUpToken(t, svc, "avery@example.com", "")

	rr := doJSON(t, server, http.MethodPost, "/api/auth/signup", "", SignUpInput{
		Email: "avery@example.com", Password: "correct-horse", Name: "Avery",
	})
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	if payload := decodeResponse(t, rr); payload["code"] != "EMAIL_EXISTS" {
		t.Errorf("payload = %v", payload)
	}
}

func TestItemLifecycleOverHTTP(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpToken(t, svc, "dev@example.com", "developer")

	rr := doJSON(t, server, http.MethodPost, "/api/item-types", token, ItemTypeInput{Name: "Article", APIKey: "article"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create item type: %d %s", rr.Code, rr.Body.String())
	}
	itemTypeID, _ := decodeResponse(t, rr)["id"].(string)
	if itemTypeID == "" {
		t.Fatal("no item type id returned")
	}

	rr = doJSON(t, server, http.MethodPost, "/api/item-types/"+itemTypeID+"/fields", token, FieldInput{
		Label: "Title", APIKey: "title", FieldType: "string",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create field: %d %s", rr.Code, rr.Body.String())
	}

	// Unknown payload key is a validation error with details.
	rr = doJSON(t, server, http.MethodPost, "/api/item-types/"+itemTypeID+"/items", token, ItemInput{
		Fields: map[string]any{"headline": "wrong key"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid item: %d %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["code"] != "VALIDATION_ERROR" || payload["details"] == nil {
		t.Errorf("payload = %v", payload)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/item-types/"+itemTypeID+"/items", token, ItemInput{
		Fields: map[string]any{"title": "Hello"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create item: %d %s", rr.Code, rr.Body.String())
	}
	itemID, _ := decodeResponse(t, rr)["id"].(string)

	rr = doJSON(t, server, http.MethodGet, "/api/items/"+itemID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get item: %d", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/items/"+itemID+"/versions", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("item versions: %d %s", rr.Code, rr.Body.String())
	}
	versions, _ := decodeResponse(t, rr)["versions"].([]any)
	if len(versions) != 1 {
		t.Fatalf("versions = %d, want 1 baseline entry", len(versions))
	}

	rr = doJSON(t, server, http.MethodDelete, "/api/items/"+itemID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete item: %d", rr.Code)
	}
	rr = doJSON(t, server, http.MethodGet, "/api/items/"+itemID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get deleted item: %d, want 404", rr.Code)
	}
}

func TestEditorCannotPublishWithoutPublishRoleDenied(t *testing.T) {
	// Editors hold the publish action; viewers lack even write.
	server, svc, _ := newTestServer(t)
	dev := signUpToken(t, svc, "dev@example.com", "developer")
	viewer := signUpToken(t, svc, "viewer@example.com", "viewer")

	rr := doJSON(t, server, http.MethodPost, "/api/item-types", dev, ItemTypeInput{Name: "Note", APIKey: "note"})
	itemTypeID, _ := decodeResponse(t, rr)["id"].(string)

	rr = doJSON(t, server, http.MethodPost, "/api/item-types/"+itemTypeID+"/items", viewer, ItemInput{})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("viewer create item: %d, want 403", rr.Code)
	}
}

func TestListItemsPagination(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpToken(t, svc, "dev@example.com", "developer")

	rr := doJSON(t, server, http.MethodPost, "/api/item-types", token, ItemTypeInput{Name: "Note", APIKey: "note"})
	itemTypeID, _ := decodeResponse(t, rr)["id"].(string)
	for i := 0; i < 5; i++ {
		rr = doJSON(t, server, http.MethodPost, "/api/item-types/"+itemTypeID+"/items", token, ItemInput{})
		if rr.Code != http.StatusCreated {
			t.Fatalf("create item %d: %d", i, rr.Code)
		}
	}

	rr = doJSON(t, server, http.MethodGet, fmt.Sprintf("/api/item-types/%s/items?limit=2&offset=4", itemTypeID), token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["total"] != float64(5) {
		t.Errorf("total = %v", payload["total"])
	}
	items, _ := payload["items"].([]any)
	if len(items) != 1 {
		t.Errorf("page size = %d, want 1", len(items))
	}

	rr = doJSON(t, server, http.MethodGet, "/api/item-types/"+itemTypeID+"/items?limit=nope", token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad limit: %d, want 422", rr.Code)
	}
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpToken(t, svc, "dev@example.com", "developer")

	rr := doJSON(t, server, http.MethodGet, "/api/search", token, nil)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}

	rr = doJSON(t, server, http.MethodGet, "/api/search?q=hello", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAPITokensAdminOnly(t *testing.T) {
	server, svc, _ := newTestServer(t)
	admin := signUpToken(t, svc, "admin@example.com", "admin")
	editor := signUpToken(t, svc, "editor@example.com", "editor")

	rr := doJSON(t, server, http.MethodPost, "/api/tokens", editor, APITokenInput{Name: "ci", Role: "viewer"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("editor create token: %d, want 403", rr.Code)
	}

	rr = doJSON(t, server, http.MethodPost, "/api/tokens", admin, APITokenInput{Name: "ci", Role: "viewer"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("admin create token: %d %s", rr.Code, rr.Body.String())
	}
	secret, _ := decodeResponse(t, rr)["token"].(string)
	if secret == "" {
		t.Fatal("no plaintext token returned")
	}

	// The API token itself authenticates requests.
	rr = doJSON(t, server, http.MethodGet, "/api/item-types", secret, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("api token read: %d", rr.Code)
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	server, svc, _ := newTestServer(t)
	token := signUpToken(t, svc, "dev@example.com", "developer")
	rr := doJSON(t, server, http.MethodGet, "/api/nope", token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}
