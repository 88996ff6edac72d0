package app

import (
	"context"
	"net/http"
	"testing"

	"dindintalk/api/internal/rbac"
)

func TestReportPostRules(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice := registerUser(t, svc, "alice", rbac.RoleMember)
	bob := registerUser(t, svc, "bob", rbac.RoleMember)
	carol := registerUser(t, svc, "carol", rbac.RoleMember)

	post, err := svc.CreatePost(ctx, sessionFor(alice, "alice", rbac.RoleMember), CreatePostInput{Text: "report me"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Unknown post.
	_, err = svc.ReportPost(ctx, sessionFor(bob, "bob", rbac.RoleMember), 99, ReportInput{})
	assertDomainStatus(t, err, http.StatusNotFound)

	// Own post.
	_, err = svc.ReportPost(ctx, sessionFor(alice, "alice", rbac.RoleMember), post.PostID, ReportInput{})
	assertDomainStatus(t, err, http.StatusForbidden)

	report, err := svc.ReportPost(ctx, sessionFor(bob, "bob", rbac.RoleMember), post.PostID, ReportInput{Reason: "Spam", Details: "links"})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.ReportID == "" || report.Reason != "Spam" || report.ReportedBy != bob {
		t.Fatalf("unexpected report: %+v", report)
	}

	// Duplicate by the same reporter.
	_, err = svc.ReportPost(ctx, sessionFor(bob, "bob", rbac.RoleMember), post.PostID, ReportInput{Reason: "Spam"})
	assertDomainStatus(t, err, http.StatusConflict)

	// A different reporter is fine.
	if _, err := svc.ReportPost(ctx, sessionFor(carol, "carol", rbac.RoleMember), post.PostID, ReportInput{}); err != nil {
		t.Fatalf("second reporter: %v", err)
	}

	reports, err := svc.ListReports(ctx)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
}

func TestReportDefaultsReason(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	alice := registerUser(t, svc, "alice", rbac.RoleMember)
	bob := registerUser(t, svc, "bob", rbac.RoleMember)

	post, err := svc.CreatePost(ctx, sessionFor(alice, "alice", rbac.RoleMember), CreatePostInput{Text: "x"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	report, err := svc.ReportPost(ctx, sessionFor(bob, "bob", rbac.RoleMember), post.PostID, ReportInput{})
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.Reason != "No reason provided" {
		t.Fatalf("expected default reason, got %q", report.Reason)
	}
}

func TestListReportsEmptyIsNotFound(t *testing.T) {
	svc := newTestService()
	_, err := svc.ListReports(context.Background())
	assertDomainStatus(t, err, http.StatusNotFound)
}

func TestEventLifecycleRequiresAdmin(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	member := registerUser(t, svc, "alice", rbac.RoleMember)
	mod := registerUser(t, svc, "mora", rbac.RoleModerator)
	admin := registerUser(t, svc, "adele", rbac.RoleAdmin)

	input := CreateEventInput{
		Title:     "Launch",
		StartDate: "2026-09-01",
		EndDate:   "2026-09-02",
		Location:  "HQ",
	}

	_, err := svc.CreateEvent(ctx, sessionFor(member, "alice", rbac.RoleMember), input)
	assertDomainStatus(t, err, http.StatusForbidden)
	_, err = svc.CreateEvent(ctx, sessionFor(mod, "mora", rbac.RoleModerator), input)
	assertDomainStatus(t, err, http.StatusForbidden)

	event, err := svc.CreateEvent(ctx, sessionFor(admin, "adele", rbac.RoleAdmin), input)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if event.EventID != 1 || event.CreatedBy != admin {
		t.Fatalf("unexpected event: %+v", event)
	}

	_, err = svc.UpdateEvent(ctx, sessionFor(member, "alice", rbac.RoleMember), event.EventID, UpdateEventInput{Title: strPtr("x")})
	assertDomainStatus(t, err, http.StatusForbidden)

	updated, err := svc.UpdateEvent(ctx, sessionFor(admin, "adele", rbac.RoleAdmin), event.EventID, UpdateEventInput{Location: strPtr("Offsite")})
	if err != nil {
		t.Fatalf("update event: %v", err)
	}
	if updated.Location != "Offsite" || updated.Title != "Launch" {
		t.Fatalf("partial update wrong: %+v", updated)
	}
	if updated.UpdatedAt == "" {
		t.Fatalf("expected updatedAt set")
	}

	err = svc.DeleteEvent(ctx, sessionFor(member, "alice", rbac.RoleMember), event.EventID)
	assertDomainStatus(t, err, http.StatusForbidden)

	if err := svc.DeleteEvent(ctx, sessionFor(admin, "adele", rbac.RoleAdmin), event.EventID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
	err = svc.DeleteEvent(ctx, sessionFor(admin, "adele", rbac.RoleAdmin), event.EventID)
	assertDomainStatus(t, err, http.StatusNotFound)
}

func TestCreateEventValidatesRequiredFields(t *testing.T) {
	svc := newTestService()
	admin := registerUser(t, svc, "adele", rbac.RoleAdmin)

	_, err := svc.CreateEvent(context.Background(), sessionFor(admin, "adele", rbac.RoleAdmin), CreateEventInput{Title: "no dates"})
	assertDomainStatus(t, err, http.StatusBadRequest)
}

func TestUpdateEventUnknownIsNotFound(t *testing.T) {
	svc := newTestService()
	admin := registerUser(t, svc, "adele", rbac.RoleAdmin)

	_, err := svc.UpdateEvent(context.Background(), sessionFor(admin, "adele", rbac.RoleAdmin), 42, UpdateEventInput{})
	assertDomainStatus(t, err, http.StatusNotFound)
}
