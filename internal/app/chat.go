package app

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"dindintalk/api/internal/treedb"
)

const chatAvatarPath = "assets/images/profile/pfp01.jpg"

// threadKey builds the shared conversation id for two users. The lower id
// always comes first so both sides resolve the same thread.
func threadKey(a, b int64) string {
	if b < a {
		a, b = b, a
	}
	return formatID(a) + "_" + formatID(b)
}

func threadParticipants(key string) (int64, int64, bool) {
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, b := parseID(parts[0]), parseID(parts[1])
	if a == 0 || b == 0 {
		return 0, 0, false
	}
	return a, b, true
}

func requestPath(receiverID, senderID int64) string {
	return treedb.Join("chat_requests", formatID(receiverID), formatID(senderID))
}

// SendMessage records the message twice: once in the flat messages log and
// once under the per-thread branch the chat list reads from.
func (s *Service) SendMessage(ctx context.Context, session Session, receiverID int64, text string) error {
	if receiverID == 0 || text == "" {
		return errValidation("Missing fields")
	}

	message := Message{
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		Message:    text,
		Timestamp:  s.timestamp(),
	}
	if _, err := s.db.Push(ctx, "messages", message); err != nil {
		return err
	}

	tid := threadKey(session.UserID, receiverID)
	message.Timestamp = s.timestamp()
	_, err := s.db.Push(ctx, treedb.Join("chats", tid, "messages"), message)
	return err
}

// ChatThreads assembles the conversation list for userID: one entry per
// peer, messages in chronological order.
func (s *Service) ChatThreads(ctx context.Context, userID int64) ([]ChatThread, error) {
	threadIDs, err := s.db.ChildKeys(ctx, "chats")
	if err != nil {
		return nil, err
	}

	threads := make([]ChatThread, 0)
	for _, tid := range threadIDs {
		a, b, ok := threadParticipants(tid)
		if !ok || (a != userID && b != userID) {
			continue
		}
		other := a
		if a == userID {
			other = b
		}

		children, err := s.db.Children(ctx, treedb.Join("chats", tid, "messages"))
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			continue
		}

		messages := make([]Message, 0, len(children))
		for _, raw := range children {
			if raw == nil {
				continue
			}
			var message Message
			if err := json.Unmarshal(raw, &message); err != nil {
				continue
			}
			messages = append(messages, message)
		}
		sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp < messages[j].Timestamp })

		threads = append(threads, ChatThread{
			UserID:     other,
			Name:       s.displayNameFor(ctx, other),
			AvatarPath: chatAvatarPath,
			Messages:   messages,
		})
	}
	sort.Slice(threads, func(i, j int) bool { return threads[i].UserID < threads[j].UserID })
	return threads, nil
}

func (s *Service) SendChatRequest(ctx context.Context, session Session, receiverID int64) error {
	if receiverID == 0 {
		return errValidation("receiverId is required")
	}
	if receiverID == session.UserID {
		return errValidation("Cannot send request to yourself")
	}

	path := requestPath(receiverID, session.UserID)
	exists, err := s.db.Exists(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return errConflict("REQUEST_EXISTS", "Request already sent")
	}

	request := ChatRequest{
		SenderID:   session.UserID,
		ReceiverID: receiverID,
		Timestamp:  s.timestamp(),
	}
	return s.db.Set(ctx, path, request)
}

func (s *Service) ListChatRequests(ctx context.Context, userID int64) ([]ChatRequest, error) {
	children, err := s.db.Children(ctx, treedb.Join("chat_requests", formatID(userID)))
	if err != nil {
		return nil, err
	}
	requests := make([]ChatRequest, 0, len(children))
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var request ChatRequest
		if err := json.Unmarshal(raw, &request); err != nil {
			continue
		}
		request.ID = key
		requests = append(requests, request)
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].Timestamp < requests[j].Timestamp })
	return requests, nil
}

// AcceptChatRequest ensures the thread exists and drops the pending
// request. The removal is unconditional: accepting an already-consumed
// request is harmless.
func (s *Service) AcceptChatRequest(ctx context.Context, session Session, senderID int64) (string, error) {
	if senderID == 0 {
		return "", errValidation("senderId required")
	}

	tid := threadKey(session.UserID, senderID)
	exists, err := s.db.Exists(ctx, treedb.Join("chats", tid))
	if err != nil {
		return "", err
	}
	if !exists {
		if err := s.db.Touch(ctx, treedb.Join("chats", tid, "messages")); err != nil {
			return "", err
		}
	}

	if err := s.db.Remove(ctx, requestPath(session.UserID, senderID)); err != nil {
		return "", err
	}
	return tid, nil
}

func (s *Service) RejectChatRequest(ctx context.Context, session Session, senderID int64) error {
	if senderID == 0 {
		return errValidation("senderId is required")
	}
	path := requestPath(session.UserID, senderID)
	exists, err := s.db.Exists(ctx, path)
	if err != nil {
		return err
	}
	if !exists {
		return errNotFound("Request not found")
	}
	return s.db.Remove(ctx, path)
}
