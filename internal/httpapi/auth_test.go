package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"shelfplan/internal/domain"
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

func adminOnlyStub() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "password123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := adminOnlyStub()

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "password123",
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
	if users[0].Password == "password123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStub())

	if _, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "wrong"}); err == nil {
		t.Fatalf("expected bad password to be rejected")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "ghost", Password: "password123"}); err == nil {
		t.Fatalf("expected unknown user to be rejected")
	}
}

func TestLoginTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStub())

	resp, err := manager.Login(domain.LoginRequest{Username: "admin", Password: "password123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if resp.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role in response, got %s", resp.Role)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != domain.RoleAdmin {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStub())
	other := NewAuthManager("another-secret", time.Hour, adminOnlyStub())

	resp, err := other.Login(domain.LoginRequest{Username: "admin", Password: "password123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	if _, err := manager.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestCreatePlannerStoresPasswordHash(t *testing.T) {
	store := adminOnlyStub()

	manager := NewAuthManager("test-secret", time.Hour, store)
	planner, err := manager.CreatePlanner(domain.PlannerCreateRequest{
		Username: "newplanner",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("create planner failed: %v", err)
	}
	if planner.Username != "newplanner" || planner.Role != domain.RolePlanner {
		t.Fatalf("unexpected planner %+v", planner)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "newplanner" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected planner to be saved")
	}
	if found.Password == "pass1234" {
		t.Fatalf("expected planner password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	_, err = manager.Login(domain.LoginRequest{
		Username: "newplanner",
		Password: "pass1234",
	})
	if err != nil {
		t.Fatalf("login with new planner failed: %v", err)
	}
}

func TestCreatePlannerValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStub())

	if _, err := manager.CreatePlanner(domain.PlannerCreateRequest{Username: "ab", Password: "pass1234"}); err == nil {
		t.Fatalf("expected short username to be rejected")
	}
	if _, err := manager.CreatePlanner(domain.PlannerCreateRequest{Username: "validname", Password: "123"}); err == nil {
		t.Fatalf("expected short password to be rejected")
	}
	if _, err := manager.CreatePlanner(domain.PlannerCreateRequest{Username: "admin", Password: "pass1234"}); err == nil {
		t.Fatalf("expected existing username to be rejected")
	}
}

func TestListPlannersExcludesAdmins(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, adminOnlyStub())

	if _, err := manager.CreatePlanner(domain.PlannerCreateRequest{Username: "planner-b", Password: "pass1234"}); err != nil {
		t.Fatalf("create planner failed: %v", err)
	}
	if _, err := manager.CreatePlanner(domain.PlannerCreateRequest{Username: "planner-a", Password: "pass1234"}); err != nil {
		t.Fatalf("create planner failed: %v", err)
	}

	planners := manager.ListPlanners()
	if len(planners) != 2 {
		t.Fatalf("expected 2 planners, got %d", len(planners))
	}
	if planners[0].Username != "planner-a" || planners[1].Username != "planner-b" {
		t.Fatalf("expected sorted planner list, got %+v", planners)
	}
}
