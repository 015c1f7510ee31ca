package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"studiobook/backend/internal/domain"
	"studiobook/backend/internal/store"
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
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"owner": {
				Username:  "owner",
				Password:  "owner-plain-pass",
				Role:      domain.RoleOwner,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", "studiobook-test", time.Hour, users, nil)
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "owner", Password: "owner-plain-pass"}); err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored := users.users["owner"].Password
	if stored == "owner-plain-pass" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(stored, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", stored)
	}
	if users.updates == 0 {
		t.Fatalf("expected rehash to be persisted")
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	hash, err := hashPassword("right-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"gone": {Username: "gone", Password: hash, Role: domain.RoleStaff, Active: false},
			"here": {Username: "here", Password: hash, Role: domain.RoleStaff, Active: true},
		},
	}
	manager := NewAuthManager("test-secret", "", time.Hour, users, nil)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "here", Password: "wrong"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "gone", Password: "right-password"}); !errors.Is(err, errInactiveAccount) {
		t.Fatalf("expected inactive account, got %v", err)
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", "", time.Hour, users, nil)

	staff, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "Piercer1",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "piercer1" || staff.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff %+v", staff)
	}

	found, ok := users.users["piercer1"]
	if !ok {
		t.Fatalf("expected staff to be saved")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "piercer1", Password: "pass1234"})
	if err != nil {
		t.Fatalf("login with new staff failed: %v", err)
	}
	if resp.Role != domain.RoleStaff {
		t.Fatalf("expected staff role, got %s", resp.Role)
	}

	if got := manager.ListStaff(context.Background()); len(got) != 1 {
		t.Fatalf("expected 1 staff account, got %d", len(got))
	}
}

func TestCreateStaffValidation(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", "", time.Hour, users, nil)

	cases := []struct {
		name string
		req  domain.StaffCreateRequest
		want error
	}{
		{"short username", domain.StaffCreateRequest{Username: "ab", Password: "pass1234"}, store.ErrInvalidInput},
		{"space in username", domain.StaffCreateRequest{Username: "new staff", Password: "pass1234"}, store.ErrInvalidInput},
		{"short password", domain.StaffCreateRequest{Username: "newstaff", Password: "short"}, store.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := manager.CreateStaff(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "newstaff", Password: "pass1234"}); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "NEWSTAFF", Password: "pass1234"}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}
}

func TestEnsureOwnerCreatesOnlyOnce(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{}}
	manager := NewAuthManager("test-secret", "", time.Hour, users, nil)

	if _, err := manager.EnsureOwner(context.Background(), "owner", "short"); err == nil {
		t.Fatalf("expected short owner password to be refused")
	}

	created, err := manager.EnsureOwner(context.Background(), "Owner", "a-long-owner-password")
	if err != nil || !created {
		t.Fatalf("expected owner to be created, got created=%v err=%v", created, err)
	}
	if users.users["owner"].Role != domain.RoleOwner {
		t.Fatalf("expected owner role to be persisted")
	}

	created, err = manager.EnsureOwner(context.Background(), "second", "another-long-password")
	if err != nil || created {
		t.Fatalf("expected existing owner to be kept, got created=%v err=%v", created, err)
	}
}

func TestParseTokenChecksIssuer(t *testing.T) {
	users := &userStoreStub{users: map[string]domain.UserAccount{}}
	issuer := NewAuthManager("shared-secret", "studio-a", time.Hour, users, nil)
	other := NewAuthManager("shared-secret", "studio-b", time.Hour, users, nil)

	token, err := issuer.sign("owner", domain.RoleOwner, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "owner" || actor.Role != domain.RoleOwner {
		t.Fatalf("unexpected actor %+v", actor)
	}
	if _, err := other.ParseToken(token); err == nil {
		t.Fatalf("expected token from another issuer to be rejected")
	}

	expired, err := issuer.sign("owner", domain.RoleOwner, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.ParseToken(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}

	forged, err := issuer.sign("owner", "superuser", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := issuer.ParseToken(forged); err == nil {
		t.Fatalf("expected unknown role to be rejected")
	}
}
