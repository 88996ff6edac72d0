package app

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"dindintalk/api/internal/treedb"
)

func bookmarkPath(userID int64, postKey string) string {
	return treedb.Join("bookmarks", formatID(userID), postKey)
}

// ToggleBookmark bookmarks a post on first touch. Later calls flip the
// status flag in place instead of deleting the record.
func (s *Service) ToggleBookmark(ctx context.Context, session Session, postID int64) (status int, created bool, err error) {
	postKey, _, err := s.findPostByID(ctx, postID)
	if err != nil {
		return 0, false, err
	}

	path := bookmarkPath(session.UserID, postKey)
	var existing Bookmark
	err = s.db.Get(ctx, path, &existing)
	switch {
	case err == nil:
		status = 1
		if existing.Status == 1 {
			status = 0
		}
		err = s.db.Update(ctx, path, map[string]any{
			"status":    status,
			"updatedAt": s.timestamp(),
		})
		return status, false, err
	case errors.Is(err, treedb.ErrNotFound):
		bookmark := Bookmark{
			PostID:    postID,
			UserID:    session.UserID,
			Status:    1,
			CreatedAt: s.timestamp(),
		}
		return 1, true, s.db.Set(ctx, path, bookmark)
	default:
		return 0, false, err
	}
}

func (s *Service) RemoveBookmark(ctx context.Context, session Session, postID int64) error {
	postKey, _, err := s.findPostByID(ctx, postID)
	if err != nil {
		return err
	}
	path := bookmarkPath(session.UserID, postKey)
	exists, err := s.db.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return errNotFound("Bookmark not found")
	}
	return s.db.Remove(ctx, path)
}

func (s *Service) ListBookmarks(ctx context.Context, userID int64) ([]Bookmark, error) {
	children, err := s.db.Children(ctx, treedb.Join("bookmarks", formatID(userID)))
	if err != nil {
		return nil, err
	}
	bookmarks := make([]Bookmark, 0, len(children))
	for _, raw := range children {
		if raw == nil {
			continue
		}
		var bookmark Bookmark
		if err := json.Unmarshal(raw, &bookmark); err != nil {
			continue
		}
		bookmarks = append(bookmarks, bookmark)
	}
	sort.Slice(bookmarks, func(i, j int) bool { return bookmarks[i].PostID < bookmarks[j].PostID })
	return bookmarks, nil
}
