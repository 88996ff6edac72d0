package app

import (
	"context"
	"encoding/json"
	"sort"

	"dindintalk/api/internal/rbac"
	"dindintalk/api/internal/search"
	"dindintalk/api/internal/treedb"
)

func postPath(key string) string {
	return treedb.Join("posts", key)
}

// findPostByID resolves a public postId to the push key and record behind
// it. Posts are keyed by opaque push keys, so lookups scan the subtree.
func (s *Service) findPostByID(ctx context.Context, postID int64) (string, Post, error) {
	children, err := s.db.Children(ctx, "posts")
	if err != nil {
		return "", Post{}, err
	}
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var post Post
		if err := json.Unmarshal(raw, &post); err != nil {
			continue
		}
		if post.PostID == postID {
			return key, post, nil
		}
	}
	return "", Post{}, errNotFound("Post not found")
}

func (s *Service) ListPosts(ctx context.Context) (map[string]Post, error) {
	children, err := s.db.Children(ctx, "posts")
	if err != nil {
		return nil, err
	}
	posts := make(map[string]Post, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var post Post
		if err := json.Unmarshal(raw, &post); err != nil {
			continue
		}
		posts[key] = post
	}
	return posts, nil
}

func (s *Service) GetPost(ctx context.Context, postID int64) (Post, error) {
	_, post, err := s.findPostByID(ctx, postID)
	return post, err
}

// UserPosts returns the posts authored by userID, newest first.
func (s *Service) UserPosts(ctx context.Context, userID int64) ([]Post, error) {
	all, err := s.ListPosts(ctx)
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0)
	for _, post := range all {
		if post.AuthorID == userID {
			posts = append(posts, post)
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].PostID > posts[j].PostID })
	return posts, nil
}

type CreatePostInput struct {
	Text       string
	CategoryID int
	Image      string
}

func (s *Service) CreatePost(ctx context.Context, session Session, in CreatePostInput) (Post, error) {
	if in.Text == "" && in.Image == "" {
		return Post{}, errValidation("You must provide text or image")
	}
	if in.CategoryID <= 0 {
		in.CategoryID = 1
	}

	postID, err := s.nextID(ctx, postCounter)
	if err != nil {
		return Post{}, err
	}

	post := Post{
		PostID:     postID,
		Text:       in.Text,
		Image:      in.Image,
		AuthorID:   session.UserID,
		CategoryID: in.CategoryID,
		Datetime:   s.timestamp(),
	}
	key := treedb.NewKey()
	if err := s.db.Set(ctx, postPath(key), post); err != nil {
		return Post{}, err
	}
	s.indexPost(key, post)
	return post, nil
}

type UpdatePostInput struct {
	Text       *string
	CategoryID *int
	Image      ImagePatch
}

func (s *Service) UpdatePost(ctx context.Context, session Session, postID int64, in UpdatePostInput) (Post, error) {
	key, post, err := s.findPostByID(ctx, postID)
	if err != nil {
		return Post{}, err
	}
	if post.AuthorID != session.UserID {
		return Post{}, errForbidden("Not allowed to update this post")
	}

	if in.Text != nil {
		post.Text = *in.Text
	}
	if in.CategoryID != nil {
		post.CategoryID = *in.CategoryID
	}
	post.Image = in.Image.apply(post.Image)
	post.UpdatedAt = s.timestamp()

	if err := s.db.Set(ctx, postPath(key), post); err != nil {
		return Post{}, err
	}
	s.indexPost(key, post)
	return post, nil
}

// DeletePost removes a post for its owner or a moderator. Moderator
// deletions are logged to deleted_logs before the record goes away.
func (s *Service) DeletePost(ctx context.Context, session Session, postID int64, reason string) error {
	key, post, err := s.findPostByID(ctx, postID)
	if err != nil {
		return err
	}
	if !rbac.CanDeletePost(session.UserID, session.Role, post.AuthorID) {
		return errForbidden("Not allowed to delete this post")
	}
	if reason == "" {
		reason = "No reason"
	}

	if session.Role == rbac.RoleModerator {
		entry := DeletedLog{
			PostID:    postID,
			DeletedBy: session.UserID,
			DeletedAt: s.timestamp(),
			Reason:    reason,
			OwnerID:   post.AuthorID,
			PostText:  post.Text,
		}
		if _, err := s.db.Push(ctx, "deleted_logs", entry); err != nil {
			return err
		}
	}

	if err := s.db.Remove(ctx, postPath(key)); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeletePost(key)
	}
	return nil
}

func (s *Service) SearchPosts(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.PostRecord{}, Query: q.Text}
	}
	return s.search.Search(q)
}

func (s *Service) indexPost(key string, post Post) {
	if s.search == nil {
		return
	}
	s.search.IndexPost(search.PostRecord{
		Key:        key,
		PostID:     post.PostID,
		Text:       post.Text,
		AuthorID:   post.AuthorID,
		CategoryID: post.CategoryID,
	})
}
