package app

import (
	"context"
	"net/http"
	"testing"

	"dindintalk/api/internal/rbac"
)

func TestLikeAndUnlike(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice := registerUser(t, svc, "alice", rbac.RoleMember)
	bob := registerUser(t, svc, "bob", rbac.RoleMember)

	post, err := svc.CreatePost(ctx, sessionFor(alice, "alice", rbac.RoleMember), CreatePostInput{Text: "like me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.SetLike(ctx, sessionFor(bob, "bob", rbac.RoleMember), post.PostID, 1); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := svc.SetLike(ctx, sessionFor(alice, "alice", rbac.RoleMember), post.PostID, 1); err != nil {
		t.Fatalf("like: %v", err)
	}

	likes, err := svc.LikesFor(ctx, bob, post.PostID)
	if err != nil {
		t.Fatalf("likes for: %v", err)
	}
	if likes.Count != 2 || !likes.UserLiked {
		t.Fatalf("expected count 2 and userLiked, got %+v", likes)
	}

	if _, err := svc.SetLike(ctx, sessionFor(bob, "bob", rbac.RoleMember), post.PostID, 0); err != nil {
		t.Fatalf("unlike: %v", err)
	}
	likes, err = svc.LikesFor(ctx, bob, post.PostID)
	if err != nil {
		t.Fatalf("likes for: %v", err)
	}
	if likes.Count != 1 || likes.UserLiked {
		t.Fatalf("expected count 1 and not liked, got %+v", likes)
	}
}

func TestLikeRejectsUnknownAction(t *testing.T) {
	svc := newTestService()
	id := registerUser(t, svc, "alice", rbac.RoleMember)

	_, err := svc.SetLike(context.Background(), sessionFor(id, "alice", rbac.RoleMember), 1, 7)
	assertDomainStatus(t, err, http.StatusBadRequest)
}

func TestBookmarkToggleFlipsStatusInPlace(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id := registerUser(t, svc, "alice", rbac.RoleMember)
	session := sessionFor(id, "alice", rbac.RoleMember)

	post, err := svc.CreatePost(ctx, session, CreatePostInput{Text: "save me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	status, created, err := svc.ToggleBookmark(ctx, session, post.PostID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !created || status != 1 {
		t.Fatalf("first toggle should create with status 1, got created=%v status=%d", created, status)
	}

	status, created, err = svc.ToggleBookmark(ctx, session, post.PostID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if created || status != 0 {
		t.Fatalf("second toggle should flip to 0, got created=%v status=%d", created, status)
	}

	// The record stays around after toggling off.
	bookmarks, err := svc.ListBookmarks(ctx, id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bookmarks) != 1 || bookmarks[0].Status != 0 {
		t.Fatalf("expected one status-0 record, got %+v", bookmarks)
	}

	status, created, err = svc.ToggleBookmark(ctx, session, post.PostID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if created || status != 1 {
		t.Fatalf("third toggle should flip back to 1, got created=%v status=%d", created, status)
	}
}

func TestBookmarkToggleUnknownPost(t *testing.T) {
	svc := newTestService()
	id := registerUser(t, svc, "alice", rbac.RoleMember)

	_, _, err := svc.ToggleBookmark(context.Background(), sessionFor(id, "alice", rbac.RoleMember), 42)
	assertDomainStatus(t, err, http.StatusNotFound)
}

func TestRemoveBookmark(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	id := registerUser(t, svc, "alice", rbac.RoleMember)
	session := sessionFor(id, "alice", rbac.RoleMember)

	post, err := svc.CreatePost(ctx, session, CreatePostInput{Text: "save me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Removing before bookmarking is a 404.
	err = svc.RemoveBookmark(ctx, session, post.PostID)
	assertDomainStatus(t, err, http.StatusNotFound)

	if _, _, err := svc.ToggleBookmark(ctx, session, post.PostID); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if err := svc.RemoveBookmark(ctx, session, post.PostID); err != nil {
		t.Fatalf("remove: %v", err)
	}

	bookmarks, err := svc.ListBookmarks(ctx, id)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bookmarks) != 0 {
		t.Fatalf("expected empty bookmark list, got %+v", bookmarks)
	}
}
