package app

import (
	"context"
	"encoding/json"
	"strconv"

	"dindintalk/api/internal/treedb"
)

// Counter paths. Each holds a plain integer leaf and is bumped atomically
// by the store backend.
const (
	userCounter  = "user_counter"
	postCounter  = "post_counter"
	eventCounter = "event_counter"
)

func (s *Service) nextID(ctx context.Context, counter string) (int64, error) {
	return s.db.Incr(ctx, counter)
}

func (s *Service) userPath(id int64) string {
	return treedb.Join("users", strconv.FormatInt(id, 10))
}

func (s *Service) eventPath(id int64) string {
	return treedb.Join("events", strconv.FormatInt(id, 10))
}

func parseID(key string) int64 {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Bootstrap raises the id counters above anything already stored, so a
// process pointed at an existing tree does not reissue ids. Runs once at
// startup before the listener is up.
func (s *Service) Bootstrap(ctx context.Context) error {
	userKeys, err := s.db.ChildKeys(ctx, "users")
	if err != nil {
		return err
	}
	if max := maxKeyID(userKeys); max > 0 {
		if err := s.db.Seed(ctx, userCounter, max); err != nil {
			return err
		}
	}

	posts, err := s.db.Children(ctx, "posts")
	if err != nil {
		return err
	}
	var maxPost int64
	for _, raw := range posts {
		if raw == nil {
			continue
		}
		var post Post
		if err := json.Unmarshal(raw, &post); err != nil {
			continue
		}
		if post.PostID > maxPost {
			maxPost = post.PostID
		}
	}
	if maxPost > 0 {
		if err := s.db.Seed(ctx, postCounter, maxPost); err != nil {
			return err
		}
	}

	eventKeys, err := s.db.ChildKeys(ctx, "events")
	if err != nil {
		return err
	}
	if max := maxKeyID(eventKeys); max > 0 {
		if err := s.db.Seed(ctx, eventCounter, max); err != nil {
			return err
		}
	}
	return nil
}

func maxKeyID(keys []string) int64 {
	var max int64
	for _, key := range keys {
		if id := parseID(key); id > max {
			max = id
		}
	}
	return max
}
