package app

import (
	"context"
	"encoding/json"
	"sort"

	"dindintalk/api/internal/treedb"
)

// CommentEntry is a comment joined with its tree key, as returned by the
// flat listing.
type CommentEntry struct {
	CommentKey string `json:"commentKey"`
	Comment
}

type CommentsForPostResponse struct {
	Count    int                `json:"count"`
	Comments map[string]Comment `json:"comments"`
}

func (s *Service) CreateComment(ctx context.Context, session Session, postID int64, text string) (Comment, error) {
	if text == "" {
		return Comment{}, errValidation("Missing text")
	}
	if _, _, err := s.findPostByID(ctx, postID); err != nil {
		return Comment{}, err
	}

	key := treedb.NewKey()
	comment := Comment{
		CommentID: key,
		PostID:    postID,
		AuthorID:  session.UserID,
		Text:      text,
		CreatedAt: s.timestamp(),
	}
	if err := s.db.Set(ctx, treedb.Join("comments", key), comment); err != nil {
		return Comment{}, err
	}
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context) ([]CommentEntry, error) {
	children, err := s.db.Children(ctx, "comments")
	if err != nil {
		return nil, err
	}
	entries := make([]CommentEntry, 0, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var comment Comment
		if err := json.Unmarshal(raw, &comment); err != nil {
			continue
		}
		entries = append(entries, CommentEntry{CommentKey: key, Comment: comment})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].CreatedAt < entries[j].CreatedAt })
	return entries, nil
}

func (s *Service) CommentsForPost(ctx context.Context, postID int64) (CommentsForPostResponse, error) {
	children, err := s.db.Children(ctx, "comments")
	if err != nil {
		return CommentsForPostResponse{}, err
	}
	matched := make(map[string]Comment)
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var comment Comment
		if err := json.Unmarshal(raw, &comment); err != nil {
			continue
		}
		if comment.PostID == postID {
			matched[key] = comment
		}
	}
	return CommentsForPostResponse{Count: len(matched), Comments: matched}, nil
}
