package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestSaveAndLookup(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	err := store.Save(ctx, "test-token-hash", Session{
		AccountID: "acct-123",
		Email:     "editor@example.com",
		Role:      "editor",
	}, expiresAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	sess, err := store.Lookup(ctx, "test-token-hash")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if sess.AccountID != "acct-123" {
		t.Errorf("expected account acct-123, got %s", sess.AccountID)
	}
	if sess.Role != "editor" {
		t.Errorf("expected role editor, got %s", sess.Role)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	// Save with very short TTL
	expiresAt := time.Now().Add(1 * time.Millisecond)
	err := store.Save(ctx, "expired-token", Session{AccountID: "acct-456"}, expiresAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Fast-forward time in miniredis
	s.FastForward(2 * time.Millisecond)

	_, err = store.Lookup(ctx, "expired-token")
	if err == nil {
		t.Error("expected error for expired session, got nil")
	}
}

func TestLookupNonExistentSession(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Lookup(context.Background(), "non-existent-token")
	if err == nil {
		t.Error("expected error for non-existent session, got nil")
	}
}

func TestDefaultRoleFallback(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	err := store.Save(ctx, "roleless", Session{AccountID: "acct-1"}, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	sess, err := store.Lookup(ctx, "roleless")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if sess.Role != "viewer" {
		t.Errorf("expected viewer fallback, got %s", sess.Role)
	}
}

func TestRevoke(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	err := store.Save(ctx, "token-to-revoke", Session{AccountID: "acct-789"}, expiresAt)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err = store.Lookup(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Lookup before revoke failed: %v", err)
	}

	if err = store.Revoke(ctx, "token-to-revoke"); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err = store.Lookup(ctx, "token-to-revoke"); err == nil {
		t.Error("expected error for revoked session, got nil")
	}

	// Revoking a non-existent token should not error
	if err = store.Revoke(ctx, "non-existent-token"); err != nil {
		t.Errorf("Revoke for non-existent token failed: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := store.Save(ctx, "token-1", Session{AccountID: "acct-1"}, expiresAt); err != nil {
		t.Fatalf("Save 1 failed: %v", err)
	}
	if err := store.Save(ctx, "token-2", Session{AccountID: "acct-2"}, expiresAt); err != nil {
		t.Fatalf("Save 2 failed: %v", err)
	}

	if err := store.Revoke(ctx, "token-1"); err != nil {
		t.Fatalf("Revoke token-1 failed: %v", err)
	}

	if _, err := store.Lookup(ctx, "token-1"); err == nil {
		t.Error("expected error for revoked token-1, got nil")
	}

	sess, err := store.Lookup(ctx, "token-2")
	if err != nil {
		t.Fatalf("Lookup token-2 after revoke failed: %v", err)
	}
	if sess.AccountID != "acct-2" {
		t.Errorf("expected acct-2 after revoke, got %s", sess.AccountID)
	}
}
