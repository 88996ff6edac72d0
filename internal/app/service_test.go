package app

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"dindintalk/api/internal/blob"
	"dindintalk/api/internal/config"
	"dindintalk/api/internal/rbac"
	"dindintalk/api/internal/treedb"
)

func newTestService() *Service {
	cfg := config.Config{
		JWTSecret: "test-secret",
		AccessTTL: time.Hour,
	}
	return NewService(cfg, treedb.NewMemory(), blob.NewMemory(), nil)
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

// registerUser creates an account and returns its id.
func registerUser(t *testing.T, svc *Service, username string, role rbac.Role) int64 {
	t.Helper()
	resp, err := svc.Register(context.Background(), RegisterInput{
		Username:    username,
		Displayname: "Display " + username,
		Role:        intPtr(int(role)),
		Password:    "pw-" + username,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return resp.ID
}

func sessionFor(id int64, username string, role rbac.Role) Session {
	return Session{UserID: id, Username: username, Role: role}
}

func assertDomainStatus(t *testing.T, err error, status int) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Code)
	}
}

func TestRegisterAssignsSequentialIDs(t *testing.T) {
	svc := newTestService()
	first := registerUser(t, svc, "alice", rbac.RoleMember)
	second := registerUser(t, svc, "bob", rbac.RoleMember)

	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Password: "pw",
	})
	assertDomainStatus(t, err, http.StatusBadRequest)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc := newTestService()
	registerUser(t, svc, "alice", rbac.RoleMember)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username:    "alice",
		Displayname: "Other Alice",
		Role:        intPtr(0),
		Password:    "different",
	})
	assertDomainStatus(t, err, http.StatusConflict)
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	svc := newTestService()
	_, err := svc.Register(context.Background(), RegisterInput{
		Username:    "alice",
		Displayname: "Alice",
		Role:        intPtr(9),
		Password:    "pw",
	})
	assertDomainStatus(t, err, http.StatusBadRequest)
}

func TestLoginReturnsTokenAndUser(t *testing.T) {
	svc := newTestService()
	id := registerUser(t, svc, "alice", rbac.RoleModerator)

	resp, err := svc.Login(context.Background(), "alice", "pw-alice")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("expected token")
	}
	if resp.User.UserID != id || resp.User.Role != rbac.RoleModerator {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}

	session, err := svc.SessionFromToken(context.Background(), resp.Token)
	if err != nil {
		t.Fatalf("session from token: %v", err)
	}
	if session.UserID != id || session.Username != "alice" || session.Role != rbac.RoleModerator {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newTestService()
	registerUser(t, svc, "alice", rbac.RoleMember)

	_, err := svc.Login(context.Background(), "alice", "wrong")
	assertDomainStatus(t, err, http.StatusUnauthorized)
}

func TestLoginRejectsUnknownUser(t *testing.T) {
	svc := newTestService()
	_, err := svc.Login(context.Background(), "nobody", "pw")
	assertDomainStatus(t, err, http.StatusUnauthorized)
}

func TestListUsersStripsPasswordHashes(t *testing.T) {
	svc := newTestService()
	registerUser(t, svc, "alice", rbac.RoleMember)

	users, err := svc.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	user, ok := users["1"]
	if !ok {
		t.Fatalf("expected user 1 in listing, got %v", users)
	}
	if user.PasswordHash != "" {
		t.Fatalf("password hash leaked in listing")
	}
}

func TestBootstrapSeedsCountersFromExistingTree(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Pre-existing data written by an earlier process.
	if err := svc.db.Set(ctx, "users/7", User{Username: "old"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := svc.db.Set(ctx, "posts/abc", Post{PostID: 12}); err != nil {
		t.Fatalf("seed post: %v", err)
	}
	if err := svc.db.Set(ctx, "events/3", Event{EventID: 3}); err != nil {
		t.Fatalf("seed event: %v", err)
	}

	if err := svc.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	id := registerUser(t, svc, "new", rbac.RoleMember)
	if id != 8 {
		t.Fatalf("expected user id 8 after bootstrap, got %d", id)
	}

	post, err := svc.CreatePost(ctx, sessionFor(id, "new", rbac.RoleMember), CreatePostInput{Text: "hi"})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.PostID != 13 {
		t.Fatalf("expected post id 13 after bootstrap, got %d", post.PostID)
	}
}

func TestUpdateDisplayNameAndProfileImage(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id := registerUser(t, svc, "alice", rbac.RoleMember)

	if err := svc.UpdateDisplayName(ctx, id, "New Name"); err != nil {
		t.Fatalf("update displayname: %v", err)
	}
	if err := svc.UpdateProfileImage(ctx, id, "pic.jpg"); err != nil {
		t.Fatalf("update pfimage: %v", err)
	}

	user, err := svc.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if user.Displayname != "New Name" || user.ProfileImage != "pic.jpg" {
		t.Fatalf("unexpected user after updates: %+v", user)
	}
	if user.Username != "alice" {
		t.Fatalf("partial update clobbered username: %+v", user)
	}
}

func TestUpdateDisplayNameRequiresValue(t *testing.T) {
	svc := newTestService()
	err := svc.UpdateDisplayName(context.Background(), 1, "")
	assertDomainStatus(t, err, http.StatusBadRequest)
}
