package app

import (
	"context"

	"dindintalk/api/internal/treedb"
)

type LikesResponse struct {
	Count     int  `json:"count"`
	UserLiked bool `json:"userLiked"`
}

func likePath(postID, userID int64) string {
	return treedb.Join("likes", formatID(postID), formatID(userID))
}

// SetLike applies a like action: 1 records the like, 0 removes it. Both
// directions are idempotent since presence is all that is stored.
func (s *Service) SetLike(ctx context.Context, session Session, postID int64, action int) (string, error) {
	if postID == 0 {
		return "", errValidation("postID and action are required")
	}
	switch action {
	case 1:
		if err := s.db.Set(ctx, likePath(postID, session.UserID), true); err != nil {
			return "", err
		}
		return "Post liked successfully", nil
	case 0:
		if err := s.db.Remove(ctx, likePath(postID, session.UserID)); err != nil {
			return "", err
		}
		return "Post unliked successfully", nil
	default:
		return "", errValidation("Invalid action value")
	}
}

func (s *Service) LikesFor(ctx context.Context, userID, postID int64) (LikesResponse, error) {
	keys, err := s.db.ChildKeys(ctx, treedb.Join("likes", formatID(postID)))
	if err != nil {
		return LikesResponse{}, err
	}
	resp := LikesResponse{Count: len(keys)}
	me := formatID(userID)
	for _, key := range keys {
		if key == me {
			resp.UserLiked = true
			break
		}
	}
	return resp, nil
}
