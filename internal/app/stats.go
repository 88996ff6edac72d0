package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"dindintalk/api/internal/treedb"
)

type StatsResponse struct {
	Range           string         `json:"range"`
	PostsCount      int            `json:"postsCount"`
	CommentsCount   int            `json:"commentsCount"`
	ReportsCount    int            `json:"reportsCount"`
	LikesCount      int            `json:"likesCount"`
	BookmarksCount  int            `json:"bookmarksCount"`
	BarData         [3]int         `json:"barData"`
	ReportBreakdown map[string]int `json:"reportBreakdown"`
}

// reportReasons maps lowercased reasons to their breakdown keys.
var reportReasons = map[string]string{
	"scam":          "scam",
	"bullying":      "bullying",
	"falseinfo":     "falseInfo",
	"spam":          "spam",
	"inappropriate": "inappropriate",
}

// Stats aggregates activity counts. Posts, comments and reports are
// filtered by their creation time; likes and bookmarks are lifetime totals.
func (s *Service) Stats(ctx context.Context, rng string) (StatsResponse, error) {
	now := s.now()
	resp := StatsResponse{
		Range: rng,
		ReportBreakdown: map[string]int{
			"scam":          0,
			"bullying":      0,
			"falseInfo":     0,
			"spam":          0,
			"inappropriate": 0,
		},
	}

	posts, err := s.db.Children(ctx, "posts")
	if err != nil {
		return StatsResponse{}, err
	}
	for _, raw := range posts {
		var post Post
		if raw == nil || json.Unmarshal(raw, &post) != nil {
			continue
		}
		if withinRange(post.Datetime, now, rng) {
			resp.PostsCount++
		}
	}

	comments, err := s.db.Children(ctx, "comments")
	if err != nil {
		return StatsResponse{}, err
	}
	for _, raw := range comments {
		var comment Comment
		if raw == nil || json.Unmarshal(raw, &comment) != nil {
			continue
		}
		if withinRange(comment.CreatedAt, now, rng) {
			resp.CommentsCount++
		}
	}

	reports, err := s.db.Children(ctx, "reports")
	if err != nil {
		return StatsResponse{}, err
	}
	for _, raw := range reports {
		var report Report
		if raw == nil || json.Unmarshal(raw, &report) != nil {
			continue
		}
		if !withinRange(report.Datetime, now, rng) {
			continue
		}
		resp.ReportsCount++
		if key, ok := reportReasons[strings.ToLower(report.Reason)]; ok {
			resp.ReportBreakdown[key]++
		}
	}

	likedPosts, err := s.db.ChildKeys(ctx, "likes")
	if err != nil {
		return StatsResponse{}, err
	}
	for _, postKey := range likedPosts {
		users, err := s.db.ChildKeys(ctx, treedb.Join("likes", postKey))
		if err != nil {
			return StatsResponse{}, err
		}
		resp.LikesCount += len(users)
	}

	bookmarkUsers, err := s.db.ChildKeys(ctx, "bookmarks")
	if err != nil {
		return StatsResponse{}, err
	}
	for _, userKey := range bookmarkUsers {
		records, err := s.db.ChildKeys(ctx, treedb.Join("bookmarks", userKey))
		if err != nil {
			return StatsResponse{}, err
		}
		resp.BookmarksCount += len(records)
	}

	resp.BarData = [3]int{resp.PostsCount, resp.CommentsCount, resp.ReportsCount}
	return resp, nil
}

// withinRange filters a record timestamp against the requested window.
// Records without a timestamp never match; an unrecognized range matches
// everything.
func withinRange(ts string, now time.Time, rng string) bool {
	if ts == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, ts)
	switch rng {
	case "today":
		if err != nil {
			return false
		}
		ty, tm, td := t.UTC().Date()
		ny, nm, nd := now.UTC().Date()
		return ty == ny && tm == nm && td == nd
	case "week":
		if err != nil {
			return false
		}
		weekAgo := now.AddDate(0, 0, -7)
		return !t.Before(weekAgo) && !t.After(now)
	case "month":
		if err != nil {
			return false
		}
		ty, tm, _ := t.UTC().Date()
		ny, nm, _ := now.UTC().Date()
		return ty == ny && tm == nm
	default:
		return true
	}
}
