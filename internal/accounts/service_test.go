package accounts

import (
	"context"
	"errors"
	"testing"

	"tessera/api/internal/store"
)

// mockAccountStore is a mock implementation of AccountStore for testing
type mockAccountStore struct {
	accounts   map[string]store.Account
	emailIndex map[string]string // email -> accountID
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{
		accounts:   make(map[string]store.Account),
		emailIndex: make(map[string]string),
	}
}

func (m *mockAccountStore) GetAccountByEmail(ctx context.Context, email string) (store.Account, error) {
	if id, ok := m.emailIndex[email]; ok {
		return m.accounts[id], nil
	}
	return store.Account{}, errors.New("account not found")
}

func (m *mockAccountStore) GetAccountByID(ctx context.Context, id string) (store.Account, error) {
	if account, ok := m.accounts[id]; ok {
		return account, nil
	}
	return store.Account{}, errors.New("account not found")
}

func (m *mockAccountStore) CreateAccount(ctx context.Context, account store.Account) error {
	m.accounts[account.ID] = account
	m.emailIndex[account.Email] = account.ID
	return nil
}

func (m *mockAccountStore) UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error {
	if account, ok := m.accounts[accountID]; ok {
		account.PasswordHash = passwordHash
		m.accounts[accountID] = account
		return nil
	}
	return errors.New("account not found")
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		account, err := svc.SignUp(ctx, SignUpRequest{
			ID:       "acct-1",
			Email:    "test@example.com",
			Password: "password123",
			Name:     "Test User",
		})
		if err != nil {
			t.Fatalf("SignUp() error = %v", err)
		}
		if account.Role != "editor" {
			t.Errorf("default role = %q, want editor", account.Role)
		}
		if account.PasswordHash == "password123" {
			t.Error("password stored in plain text")
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			ID:       "acct-2",
			Email:    "test@example.com",
			Password: "password123",
			Name:     "Other User",
		})
		if err == nil {
			t.Fatal("expected error for duplicate email")
		}
	})

	t.Run("short password", func(t *testing.T) {
		_, err := svc.SignUp(ctx, SignUpRequest{
			ID:       "acct-3",
			Email:    "short@example.com",
			Password: "short",
			Name:     "Short",
		})
		if err == nil {
			t.Fatal("expected error for short password")
		}
	})
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	if _, err := svc.SignUp(ctx, SignUpRequest{
		ID:       "acct-1",
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	t.Run("correct password", func(t *testing.T) {
		account, err := svc.SignIn(ctx, "test@example.com", "password123")
		if err != nil {
			t.Fatalf("SignIn() error = %v", err)
		}
		if account.ID != "acct-1" {
			t.Errorf("account = %q, want acct-1", account.ID)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "test@example.com", "wrong-password"); err == nil {
			t.Fatal("expected error for wrong password")
		}
	})

	t.Run("unknown email", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nobody@example.com", "password123"); err == nil {
			t.Fatal("expected error for unknown email")
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockAccountStore()
	svc := NewService(mockStore)

	if _, err := svc.SignUp(ctx, SignUpRequest{
		ID:       "acct-1",
		Email:    "test@example.com",
		Password: "password123",
		Name:     "Test User",
	}); err != nil {
		t.Fatalf("SignUp() error = %v", err)
	}

	if err := svc.ChangePassword(ctx, "acct-1", "wrong", "newpassword1"); err == nil {
		t.Fatal("expected error for wrong current password")
	}
	if err := svc.ChangePassword(ctx, "acct-1", "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "test@example.com", "newpassword1"); err != nil {
		t.Fatalf("SignIn() with new password error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "test@example.com", "password123"); err == nil {
		t.Fatal("old password still accepted")
	}
}
