package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"gudangraja/backend/internal/domain"
)

// fakeUserStore is an in-memory UserStore used to exercise the auth manager
// without a full repository.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]domain.UserAccount
}

func newFakeUserStore(users ...domain.UserAccount) *fakeUserStore {
	s := &fakeUserStore{users: make(map[string]domain.UserAccount)}
	for _, u := range users {
		s.users[u.Username] = u
	}
	return s
}

func (s *fakeUserStore) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Username] = user
	return nil
}

func (s *fakeUserStore) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, nil
}

func (s *fakeUserStore) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if ok {
		u.Password = password
		s.users[username] = u
	}
	return nil
}

func TestLoginUpgradesLegacyPlainTextPassword(t *testing.T) {
	userStore := newFakeUserStore(domain.UserAccount{
		Username:  "admin",
		Password:  "plain-secret",
		Role:      domain.RoleAdmin,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	auth := NewAuthManager("test-secret-key", time.Hour, userStore)

	resp, err := auth.Login(domain.LoginRequest{Username: "admin", Password: "plain-secret"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", resp.Role)
	}

	stored := userStore.users["admin"].Password
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected stored password to be upgraded to bcrypt, got %q", stored)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)

	token, err := auth.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	actor, err := auth.ParseToken(token)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsTamperedToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)
	other := NewAuthManager("different-secret", time.Hour, nil)

	token, err := other.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with wrong secret to be rejected")
	}

	if _, err := auth.ParseToken("not.a.token"); err == nil {
		t.Fatalf("expected malformed token to be rejected")
	}
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, nil)

	token, err := auth.sign("admin", domain.RoleAdmin, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := auth.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateStaffValidations(t *testing.T) {
	auth := NewAuthManager("test-secret-key", time.Hour, newFakeUserStore())

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "ab", Password: "longenough"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "kasir01", Password: "abc"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}

	user, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "Kasir01", Password: "rahasia99"})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if user.Username != "kasir01" {
		t.Fatalf("expected lowercased username, got %s", user.Username)
	}
	if user.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %s", user.Role)
	}

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "kasir01", Password: "rahasia99"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestCreateStaffStoresHashedPassword(t *testing.T) {
	userStore := newFakeUserStore()
	auth := NewAuthManager("test-secret-key", time.Hour, userStore)

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "kasir02", Password: "rahasia99"}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}

	stored := userStore.users["kasir02"].Password
	if stored == "rahasia99" || !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt hash in store, got %q", stored)
	}
}

func TestListStaffExcludesAdmins(t *testing.T) {
	userStore := newFakeUserStore(domain.UserAccount{
		Username: "admin", Password: "admin-pass", Role: domain.RoleAdmin, Active: true,
	})
	auth := NewAuthManager("test-secret-key", time.Hour, userStore)

	if _, err := auth.CreateStaff(domain.StaffCreateRequest{Username: "kasir03", Password: "rahasia99"}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}

	staff := auth.ListStaff()
	if len(staff) != 1 || staff[0].Username != "kasir03" {
		t.Fatalf("expected only kasir03 in staff list, got %+v", staff)
	}
}
