package app

import (
	"context"
	"encoding/json"
	"sort"

	"dindintalk/api/internal/treedb"
)

type NotificationInput struct {
	Type    string `json:"type"`
	PostID  *int64 `json:"postId"`
	EventID *int64 `json:"eventId"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func (s *Service) CreateNotification(ctx context.Context, session Session, receiverID int64, in NotificationInput) (Notification, error) {
	if in.Type == "" || in.Message == "" {
		return Notification{}, errValidation("type and message are required")
	}

	notification := Notification{
		SenderID:  session.UserID,
		Type:      in.Type,
		PostID:    in.PostID,
		EventID:   in.EventID,
		Title:     in.Title,
		Message:   in.Message,
		IsRead:    false,
		Timestamp: s.timestamp(),
	}
	if _, err := s.db.Push(ctx, treedb.Join("notifications", formatID(receiverID)), notification); err != nil {
		return Notification{}, err
	}
	return notification, nil
}

// ListNotifications returns the receiver's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID int64) ([]Notification, error) {
	children, err := s.db.Children(ctx, treedb.Join("notifications", formatID(userID)))
	if err != nil {
		return nil, err
	}
	notifications := make([]Notification, 0, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var notification Notification
		if err := json.Unmarshal(raw, &notification); err != nil {
			continue
		}
		notification.ID = key
		notifications = append(notifications, notification)
	}
	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].Timestamp > notifications[j].Timestamp
	})
	return notifications, nil
}

// MarkPostRead upserts the per-user read marker for a post.
func (s *Service) MarkPostRead(ctx context.Context, session Session, postID int64) error {
	if postID == 0 {
		return errValidation("Missing postId or userId")
	}
	marker := PostReadMarker{
		PostID: postID,
		UserID: session.UserID,
		IsRead: true,
		ReadAt: s.timestamp(),
	}
	return s.db.Set(ctx, treedb.Join("post_notifications", formatID(session.UserID), formatID(postID)), marker)
}

func (s *Service) MarkEventRead(ctx context.Context, session Session, eventID int64) error {
	if eventID == 0 {
		return errValidation("Missing userID or eventId")
	}
	marker := EventReadMarker{
		EventID: eventID,
		UserID:  session.UserID,
		IsRead:  true,
		ReadAt:  s.timestamp(),
	}
	return s.db.Set(ctx, treedb.Join("event_notifications", formatID(session.UserID), formatID(eventID)), marker)
}

func (s *Service) PostReadMarkers(ctx context.Context, userID int64) (map[string]ReadState, error) {
	return s.readMarkers(ctx, treedb.Join("post_notifications", formatID(userID)))
}

func (s *Service) EventReadMarkers(ctx context.Context, userID int64) (map[string]ReadState, error) {
	return s.readMarkers(ctx, treedb.Join("event_notifications", formatID(userID)))
}

func (s *Service) readMarkers(ctx context.Context, path string) (map[string]ReadState, error) {
	children, err := s.db.Children(ctx, path)
	if err != nil {
		return nil, err
	}
	markers := make(map[string]ReadState, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var state struct {
			IsRead bool `json:"isRead"`
		}
		if err := json.Unmarshal(raw, &state); err != nil {
			continue
		}
		markers[key] = ReadState{IsRead: state.IsRead}
	}
	return markers, nil
}
