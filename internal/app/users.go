package app

import (
	"context"
	"encoding/json"
	"errors"

	"dindintalk/api/internal/treedb"
)

// ListUsers returns all user records keyed by id, credentials stripped.
func (s *Service) ListUsers(ctx context.Context) (map[string]User, error) {
	children, err := s.db.Children(ctx, "users")
	if err != nil {
		return nil, err
	}
	users := make(map[string]User, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			continue
		}
		users[key] = user.Public()
	}
	return users, nil
}

func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	var user User
	if err := s.db.Get(ctx, s.userPath(id), &user); err != nil {
		if errors.Is(err, treedb.ErrNotFound) {
			return User{}, errNotFound("User not found")
		}
		return User{}, err
	}
	return user.Public(), nil
}

func (s *Service) UpdateProfileImage(ctx context.Context, id int64, pfimage string) error {
	if pfimage == "" {
		return errValidation("pfimage is required")
	}
	return s.db.Update(ctx, s.userPath(id), map[string]any{"pfimage": pfimage})
}

func (s *Service) UpdateDisplayName(ctx context.Context, id int64, displayname string) error {
	if displayname == "" {
		return errValidation("displayname is required")
	}
	return s.db.Update(ctx, s.userPath(id), map[string]any{"displayname": displayname})
}

// displayNameFor resolves a peer's display name for the chat list, falling
// back to a generic label when the record is missing.
func (s *Service) displayNameFor(ctx context.Context, id int64) string {
	var user User
	if err := s.db.Get(ctx, s.userPath(id), &user); err != nil || user.Displayname == "" {
		return "User " + formatID(id)
	}
	return user.Displayname
}
