package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tessera/api/internal/auth"
	"tessera/api/internal/export"
	"tessera/api/internal/rbac"
	"tessera/api/internal/search"
	"tessera/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) forbid(w http.ResponseWriter) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleAuthSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleAuthSignIn(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"accountId":     session.AccountID,
			"email":         session.Email,
			"role":          session.Role,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil || body.RefreshToken == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "refreshToken is required", nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil || body.RefreshToken == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "refreshToken is required", nil)
			return
		}
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Everything below requires a session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	role := rbac.Normalize(session.Role)
	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodPost && r.URL.Path == "/api/account/password" {
		var body struct {
			CurrentPassword string `json:"currentPassword"`
			NewPassword     string `json:"newPassword"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		if err := s.service.ChangePassword(r.Context(), session, body.CurrentPassword, body.NewPassword); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Item types
	if r.URL.Path == "/api/item-types" {
		switch r.Method {
		case http.MethodGet:
			if !rbac.Can(role, rbac.ActionRead) {
				s.forbid(w)
				return
			}
			itemTypes, err := s.service.ListItemTypes(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"itemTypes": itemTypesPayload(itemTypes)})
			return
		case http.MethodPost:
			if !rbac.Can(role, rbac.ActionManageSchema) {
				s.forbid(w)
				return
			}
			var input ItemTypeInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
				return
			}
			itemType, err := s.service.CreateItemType(r.Context(), input)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, itemTypePayload(itemType))
			return
		}
	}

	// /api/item-types/{id}[/fields|/items]
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "item-types" {
		itemTypeID := parts[2]
		switch {
		case len(parts) == 3:
			s.handleItemType(w, r, role, itemTypeID)
			return
		case len(parts) == 4 && parts[3] == "fields":
			s.handleItemTypeFields(w, r, role, itemTypeID)
			return
		case len(parts) == 4 && parts[3] == "items":
			s.handleItemTypeItems(w, r, session, role, itemTypeID)
			return
		}
	}

	// /api/fields/{id}
	if len(parts) == 3 && parts[0] == "api" && parts[1] == "fields" {
		s.handleField(w, r, role, parts[2])
		return
	}

	// /api/items/{id}[/versions[/{hash}]|/export]
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "items" {
		s.handleItem(w, r, session, role, parts[2], parts[3:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		query := r.URL.Query()
		limit, offset := 0, 0
		if raw := query.Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a non-negative integer", nil)
				return
			}
			limit = parsed
		}
		if raw := query.Get("offset"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
				return
			}
			offset = parsed
		}
		response, err := s.service.SearchItems(search.Query{
			Text:           query.Get("q"),
			FilterItemType: query.Get("item_type"),
			FilterStatus:   query.Get("status"),
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	// Uploads
	if r.URL.Path == "/api/uploads" {
		switch r.Method {
		case http.MethodGet:
			if !rbac.Can(role, rbac.ActionRead) {
				s.forbid(w)
				return
			}
			page, ok := parsePage(w, r)
			if !ok {
				return
			}
			uploads, err := s.service.ListUploads(r.Context(), page)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"uploads": uploadsPayload(uploads)})
			return
		case http.MethodPost:
			if !rbac.Can(role, rbac.ActionWrite) {
				s.forbid(w)
				return
			}
			s.handleUploadCreate(w, r, session)
			return
		}
	}

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "uploads" {
		uploadID := parts[2]
		switch r.Method {
		case http.MethodGet:
			if !rbac.Can(role, rbac.ActionRead) {
				s.forbid(w)
				return
			}
			upload, url, err := s.service.GetUploadWithURL(r.Context(), uploadID)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			payload := uploadPayload(upload)
			payload["url"] = url
			writeJSON(w, http.StatusOK, payload)
			return
		case http.MethodDelete:
			if !rbac.Can(role, rbac.ActionWrite) {
				s.forbid(w)
				return
			}
			if err := s.service.DeleteUpload(r.Context(), uploadID); err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	// API tokens (admin only)
	if r.URL.Path == "/api/tokens" {
		if !rbac.Can(role, rbac.ActionAdmin) {
			s.forbid(w)
			return
		}
		switch r.Method {
		case http.MethodGet:
			tokens, err := s.service.ListAPITokens(r.Context())
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tokens": apiTokensPayload(tokens)})
			return
		case http.MethodPost:
			var input APITokenInput
			if err := decodeBody(r, &input); err != nil {
				writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
				return
			}
			issued, err := s.service.CreateAPIToken(r.Context(), session, input)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			payload := apiTokenPayload(issued.APIToken)
			payload["token"] = issued.Token
			writeJSON(w, http.StatusCreated, payload)
			return
		}
	}

	if r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "api" && parts[1] == "tokens" {
		if !rbac.Can(role, rbac.ActionAdmin) {
			s.forbid(w)
			return
		}
		if err := s.service.RevokeAPIToken(r.Context(), parts[2]); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleItemType(w http.ResponseWriter, r *http.Request, role rbac.Role, itemTypeID string) {
	switch r.Method {
	case http.MethodGet:
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		itemType, err := s.service.GetItemType(r.Context(), itemTypeID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemTypePayload(itemType))
	case http.MethodPut:
		if !rbac.Can(role, rbac.ActionManageSchema) {
			s.forbid(w)
			return
		}
		var input ItemTypeInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		itemType, err := s.service.UpdateItemType(r.Context(), itemTypeID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemTypePayload(itemType))
	case http.MethodDelete:
		if !rbac.Can(role, rbac.ActionManageSchema) {
			s.forbid(w)
			return
		}
		if err := s.service.DeleteItemType(r.Context(), itemTypeID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleItemTypeFields(w http.ResponseWriter, r *http.Request, role rbac.Role, itemTypeID string) {
	switch r.Method {
	case http.MethodGet:
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		fields, err := s.service.ListFields(r.Context(), itemTypeID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fieldsPayload(fields)})
	case http.MethodPost:
		if !rbac.Can(role, rbac.ActionManageSchema) {
			s.forbid(w)
			return
		}
		var input FieldInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		field, err := s.service.CreateField(r.Context(), itemTypeID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, fieldPayload(field))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleField(w http.ResponseWriter, r *http.Request, role rbac.Role, fieldID string) {
	switch r.Method {
	case http.MethodPut:
		if !rbac.Can(role, rbac.ActionManageSchema) {
			s.forbid(w)
			return
		}
		var input FieldInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		field, err := s.service.UpdateField(r.Context(), fieldID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, fieldPayload(field))
	case http.MethodDelete:
		if !rbac.Can(role, rbac.ActionManageSchema) {
			s.forbid(w)
			return
		}
		if err := s.service.DeleteField(r.Context(), fieldID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleItemTypeItems(w http.ResponseWriter, r *http.Request, session Session, role rbac.Role, itemTypeID string) {
	switch r.Method {
	case http.MethodGet:
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		page, ok := parsePage(w, r)
		if !ok {
			return
		}
		items, total, err := s.service.ListItems(r.Context(), itemTypeID, page)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items":  itemsPayload(items),
			"total":  total,
			"offset": page.Offset,
		})
	case http.MethodPost:
		if !rbac.Can(role, rbac.ActionWrite) {
			s.forbid(w)
			return
		}
		var input ItemInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		if input.Status == store.ItemStatusPublished && !rbac.Can(role, rbac.ActionPublish) {
			s.forbid(w)
			return
		}
		item, err := s.service.CreateItem(r.Context(), session, itemTypeID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, itemPayload(item))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleItem(w http.ResponseWriter, r *http.Request, session Session, role rbac.Role, itemID string, rest []string) {
	// /api/items/{id}/versions and /api/items/{id}/versions/{hash}
	if len(rest) >= 1 && rest[0] == "versions" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		if len(rest) == 1 {
			limit := 50
			if raw := r.URL.Query().Get("limit"); raw != "" {
				parsed, err := strconv.Atoi(raw)
				if err != nil || parsed < 1 {
					writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
					return
				}
				limit = parsed
			}
			history, err := s.service.ItemVersions(r.Context(), session, itemID, limit)
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"versions": versionsPayload(history)})
			return
		}
		if len(rest) == 2 {
			snapshot, err := s.service.ItemVersion(r.Context(), itemID, rest[1])
			if err != nil {
				writeMappedError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"itemTypeId": snapshot.ItemTypeID,
				"status":     snapshot.Status,
				"fields":     snapshot.Fields,
			})
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// /api/items/{id}/export?format=&version=
	if len(rest) == 1 && rest[0] == "export" {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		format := r.URL.Query().Get("format")
		if format == "" {
			format = string(export.FormatHTML)
		}
		result, err := s.service.ExportItem(r.Context(), export.Request{
			ItemID:  itemID,
			Version: r.URL.Query().Get("version"),
			Format:  export.Format(format),
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(rest) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !rbac.Can(role, rbac.ActionRead) {
			s.forbid(w)
			return
		}
		item, err := s.service.GetItem(r.Context(), itemID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemPayload(item))
	case http.MethodPut:
		if !rbac.Can(role, rbac.ActionWrite) {
			s.forbid(w)
			return
		}
		var input ItemInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		if input.Status == store.ItemStatusPublished && !rbac.Can(role, rbac.ActionPublish) {
			s.forbid(w)
			return
		}
		item, err := s.service.UpdateItem(r.Context(), session, itemID, input)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, itemPayload(item))
	case http.MethodDelete:
		if !rbac.Can(role, rbac.ActionWrite) {
			s.forbid(w)
			return
		}
		if err := s.service.DeleteItem(r.Context(), itemID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUploadCreate(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "A file part is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	upload, err := s.service.CreateUpload(r.Context(), session, header.Filename, contentType, header.Size, file)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploadPayload(upload))
}

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var input SignUpInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), input)
	if err != nil {
		if err.Error() == "email already registered" {
			writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
			return
		}
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			writeMappedError(w, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, sessionPayload(session))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	header.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parsePage(w http.ResponseWriter, r *http.Request) (store.Page, bool) {
	page := store.Page{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer", nil)
			return store.Page{}, false
		}
		page.Limit = parsed
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer", nil)
			return store.Page{}, false
		}
		page.Offset = parsed
	}
	return page, true
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"accountId":    session.AccountID,
		"email":        session.Email,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func itemTypePayload(itemType store.ItemType) map[string]any {
	return map[string]any{
		"id":         itemType.ID,
		"name":       itemType.Name,
		"api_key":    itemType.APIKey,
		"modular":    itemType.Modular,
		"singleton":  itemType.Singleton,
		"sort_order": itemType.SortOrder,
		"created_at": itemType.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at": itemType.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func itemTypesPayload(itemTypes []store.ItemType) []map[string]any {
	out := make([]map[string]any, 0, len(itemTypes))
	for _, itemType := range itemTypes {
		out = append(out, itemTypePayload(itemType))
	}
	return out
}

func fieldPayload(field store.Field) map[string]any {
	return map[string]any{
		"id":           field.ID,
		"item_type_id": field.ItemTypeID,
		"label":        field.Label,
		"api_key":      field.APIKey,
		"field_type":   field.FieldType,
		"config":       field.Config,
		"sort_order":   field.SortOrder,
	}
}

func fieldsPayload(fields []store.Field) []map[string]any {
	out := make([]map[string]any, 0, len(fields))
	for _, field := range fields {
		out = append(out, fieldPayload(field))
	}
	return out
}

func itemPayload(item store.Item) map[string]any {
	return map[string]any{
		"id":           item.ID,
		"item_type_id": item.ItemTypeID,
		"fields":       item.Fields,
		"status":       item.Status,
		"created_by":   item.CreatedBy,
		"updated_by":   item.UpdatedBy,
		"created_at":   item.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":   item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func itemsPayload(items []store.Item) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, itemPayload(item))
	}
	return out
}

func uploadPayload(upload store.Upload) map[string]any {
	return map[string]any{
		"id":           upload.ID,
		"filename":     upload.Filename,
		"content_type": upload.ContentType,
		"size":         upload.Size,
		"created_by":   upload.CreatedBy,
		"created_at":   upload.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func uploadsPayload(uploads []store.Upload) []map[string]any {
	out := make([]map[string]any, 0, len(uploads))
	for _, upload := range uploads {
		out = append(out, uploadPayload(upload))
	}
	return out
}

func apiTokenPayload(token store.APIToken) map[string]any {
	payload := map[string]any{
		"id":         token.ID,
		"name":       token.Name,
		"role":       token.Role,
		"created_by": token.CreatedBy,
		"created_at": token.CreatedAt.UTC().Format(time.RFC3339),
	}
	if token.LastUsedAt != nil {
		payload["last_used_at"] = token.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func apiTokensPayload(tokens []store.APIToken) []map[string]any {
	out := make([]map[string]any, 0, len(tokens))
	for _, token := range tokens {
		out = append(out, apiTokenPayload(token))
	}
	return out
}

func versionsPayload(history []store.CommitInfo) []map[string]any {
	out := make([]map[string]any, 0, len(history))
	for _, commit := range history {
		out = append(out, map[string]any{
			"hash":       commit.Hash,
			"message":    commit.Message,
			"author":     commit.Author,
			"created_at": commit.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
