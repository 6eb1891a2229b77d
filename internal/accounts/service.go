// Package accounts provides email/password account management.
package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"tessera/api/internal/store"
)

// Service provides email/password authentication
type Service struct {
	store AccountStore
}

// AccountStore defines the storage interface for accounts
type AccountStore interface {
	GetAccountByEmail(ctx context.Context, email string) (store.Account, error)
	GetAccountByID(ctx context.Context, id string) (store.Account, error)
	CreateAccount(ctx context.Context, account store.Account) error
	UpdateAccountPassword(ctx context.Context, accountID, passwordHash string) error
}

// NewService creates a new accounts service
func NewService(store AccountStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	ID       string
	Email    string
	Password string
	Name     string
	Role     string
}

// SignUp creates a new account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.Account, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return store.Account{}, errors.New("email, password, and name are required")
	}
	if len(req.Password) < 8 {
		return store.Account{}, errors.New("password must be at least 8 characters")
	}

	// Check if email already exists
	if _, err := s.store.GetAccountByEmail(ctx, req.Email); err == nil {
		return store.Account{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.Account{}, fmt.Errorf("hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = "editor"
	}

	account := store.Account{
		ID:           req.ID,
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return store.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// SignIn authenticates an account by email and password
func (s *Service) SignIn(ctx context.Context, email, password string) (store.Account, error) {
	if email == "" || password == "" {
		return store.Account{}, errors.New("email and password are required")
	}

	account, err := s.store.GetAccountByEmail(ctx, email)
	if err != nil {
		return store.Account{}, errors.New("invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return store.Account{}, errors.New("invalid email or password")
	}
	return account, nil
}

// ChangePassword replaces an account's password after checking the current one
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	if len(next) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		return errors.New("account not found")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(current)); err != nil {
		return errors.New("current password is incorrect")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateAccountPassword(ctx, accountID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
