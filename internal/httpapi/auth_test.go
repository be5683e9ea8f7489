package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"tiendapc/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestRegisterStoresHashedCustomerAccount(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	resp, err := manager.Register(domain.RegisterRequest{
		Username: "comprador",
		Password: "clave123",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if resp.Role != domain.RoleCustomer {
		t.Fatalf("expected customer role, got %s", resp.Role)
	}
	if resp.AccessToken == "" {
		t.Fatalf("expected register to log the account in")
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "comprador" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected account to be saved")
	}
	if found.Password == "clave123" {
		t.Fatalf("expected stored password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}
	if found.Role != domain.RoleCustomer {
		t.Fatalf("expected stored role customer, got %s", found.Role)
	}
}

func TestRegisterRejectsWeakOrDuplicateInput(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Register(domain.RegisterRequest{Username: "ab", Password: "clave123"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.Register(domain.RegisterRequest{Username: "comprador", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.Register(domain.RegisterRequest{Username: "dos palabras", Password: "clave123"}); err == nil {
		t.Fatalf("expected username with spaces to be rejected")
	}

	if _, err := manager.Register(domain.RegisterRequest{Username: "comprador", Password: "clave123"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if _, err := manager.Register(domain.RegisterRequest{Username: "Comprador", Password: "clave456"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	store := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", time.Hour, store)

	resp, err := manager.Register(domain.RegisterRequest{Username: "comprador", Password: "clave123"})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "comprador" || actor.Role != domain.RoleCustomer {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, store)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with a different secret to be rejected")
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"baja": {
				Username:  "baja",
				Password:  "clave123",
				Role:      domain.RoleCustomer,
				Active:    false,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Login(domain.LoginRequest{Username: "baja", Password: "clave123"}); err == nil {
		t.Fatalf("expected inactive account login to fail")
	}
}
