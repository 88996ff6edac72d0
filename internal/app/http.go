package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dindintalk/api/internal/auth"
	"dindintalk/api/internal/blob"
	"dindintalk/api/internal/search"
	"dindintalk/api/internal/treedb"
)

const maxUploadBytes = 10 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	// Public routes first; everything after the requireSession call below
	// needs a valid token.

	if parts[0] == "users" && len(parts) == 1 {
		switch r.Method {
		case http.MethodPost:
			s.handleRegister(w, r)
			return
		case http.MethodGet:
			users, err := s.service.ListUsers(r.Context())
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, users)
			return
		}
	}

	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "login" {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		payload, err := s.service.Login(r.Context(), body.Username, body.Password)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && parts[0] == "posts" {
		if len(parts) == 1 {
			posts, err := s.service.ListPosts(r.Context())
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, posts)
			return
		}
		if len(parts) == 2 && parts[1] == "search" {
			q := search.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
			q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
			q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
			writeJSON(w, http.StatusOK, s.service.SearchPosts(q))
			return
		}
		if len(parts) == 2 {
			postID, ok := pathID(parts[1])
			if !ok {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
				return
			}
			post, err := s.service.GetPost(r.Context(), postID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, post)
			return
		}
	}

	if r.Method == http.MethodGet && parts[0] == "comments" {
		if len(parts) == 1 {
			comments, err := s.service.ListComments(r.Context())
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, comments)
			return
		}
		if len(parts) == 2 {
			postID, ok := pathID(parts[1])
			if !ok {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
				return
			}
			payload, err := s.service.CommentsForPost(r.Context(), postID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, payload)
			return
		}
	}

	if r.Method == http.MethodGet && len(parts) == 3 && parts[0] == "user" && parts[2] == "posts" {
		userID, ok := pathID(parts[1])
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid userId", nil)
			return
		}
		posts, err := s.service.UserPosts(r.Context(), userID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "stats" {
		rng := r.URL.Query().Get("range")
		if rng == "" {
			rng = "today"
		}
		payload, err := s.service.Stats(r.Context(), rng)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "images" {
		s.handleImage(w, r, parts[1])
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "postNotifications" {
		s.handleReadMarkers(w, r, parts[1], s.service.PostReadMarkers)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "eventNotifications" {
		s.handleReadMarkers(w, r, parts[1], s.service.EventReadMarkers)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if parts[0] == "users" && len(parts) >= 2 {
		userID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid user id", nil)
			return
		}
		if r.Method == http.MethodGet && len(parts) == 2 {
			user, err := s.service.GetUser(r.Context(), userID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
			return
		}
		if r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "pfimage" {
			var body struct {
				ProfileImage string `json:"pfimage"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.UpdateProfileImage(r.Context(), userID, body.ProfileImage); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Profile image updated successfully",
				"pfimage": body.ProfileImage,
			})
			return
		}
		if r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "displayname" {
			var body struct {
				Displayname string `json:"displayname"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.UpdateDisplayName(r.Context(), userID, body.Displayname); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message":     "Display name updated successfully",
				"displayname": body.Displayname,
			})
			return
		}
	}

	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "addPost" {
		s.handleAddPost(w, r, session)
		return
	}

	if r.Method == http.MethodPut && len(parts) == 2 && parts[0] == "update" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		s.handleUpdatePost(w, r, session, postID)
		return
	}

	if r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "delete" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		var body struct {
			Reason string `json:"reason"`
		}
		_ = decodeBody(r, &body) // body is optional here
		if err := s.service.DeletePost(r.Context(), session, postID, body.Reason); err != nil {
			s.fail(w, err)
			return
		}
		reason := body.Reason
		if reason == "" {
			reason = "No reason"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"message": "Post deleted successfully",
			"postId":  postID,
			"reason":  reason,
		})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "posts" && parts[2] == "mark-read" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Missing postId or userId", nil)
			return
		}
		if err := s.service.MarkPostRead(r.Context(), session, postID); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Post marked as read"})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "comments" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		comment, err := s.service.CreateComment(r.Context(), session, postID, body.Text)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
		return
	}

	if parts[0] == "events" {
		if r.Method == http.MethodGet && len(parts) == 1 {
			events, err := s.service.ListEvents(r.Context())
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, events)
			return
		}
		if r.Method == http.MethodDelete && len(parts) == 2 {
			eventID, idOK := pathID(parts[1])
			if !idOK {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid eventId", nil)
				return
			}
			if err := s.service.DeleteEvent(r.Context(), session, eventID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Event deleted successfully",
				"eventId": eventID,
			})
			return
		}
		if r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "mark-read" {
			eventID, idOK := pathID(parts[1])
			if !idOK {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Missing userID or eventId", nil)
				return
			}
			if err := s.service.MarkEventRead(r.Context(), session, eventID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Event marked as read"})
			return
		}
	}

	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "addevents" {
		s.handleAddEvent(w, r, session)
		return
	}

	if r.Method == http.MethodPut && len(parts) == 2 && parts[0] == "updateevent" {
		eventID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid eventId", nil)
			return
		}
		s.handleUpdateEvent(w, r, session, eventID)
		return
	}

	if r.Method == http.MethodGet && len(parts) == 1 && parts[0] == "reports" {
		reports, err := s.service.ListReports(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
		return
	}

	if r.Method == http.MethodPost && len(parts) == 2 && parts[0] == "report" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		var body ReportInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		report, err := s.service.ReportPost(r.Context(), session, postID, body)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Post reported successfully",
			"report":  report,
		})
		return
	}

	if parts[0] == "user" && len(parts) == 2 && parts[1] == "bookmarks" && r.Method == http.MethodGet {
		bookmarks, err := s.service.ListBookmarks(r.Context(), session.UserID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"bookmarks": bookmarks})
		return
	}

	if parts[0] == "user" && len(parts) == 3 && parts[1] == "bookmark" {
		postID, idOK := pathID(parts[2])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		switch r.Method {
		case http.MethodPost:
			status, created, err := s.service.ToggleBookmark(r.Context(), session, postID)
			if err != nil {
				s.fail(w, err)
				return
			}
			if created {
				writeJSON(w, http.StatusCreated, map[string]any{
					"message": "Bookmarked successfully",
					"status":  1,
				})
				return
			}
			message := "Unbookmarked"
			if status == 1 {
				message = "Bookmarked"
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": message, "status": status})
			return
		case http.MethodDelete:
			if err := s.service.RemoveBookmark(r.Context(), session, postID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Bookmark removed successfully"})
			return
		}
	}

	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "sendMessage" {
		var body struct {
			ReceiverID int64  `json:"receiverId"`
			Message    string `json:"message"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SendMessage(r.Context(), session, body.ReceiverID, body.Message); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	if parts[0] == "chat" {
		if r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "messages" {
			threads, err := s.service.ChatThreads(r.Context(), session.UserID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, threads)
			return
		}
		if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "request" {
			var body struct {
				ReceiverID int64 `json:"receiverId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SendChatRequest(r.Context(), session, body.ReceiverID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"message": "Chat request sent"})
			return
		}
		if r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "requests" {
			requests, err := s.service.ListChatRequests(r.Context(), session.UserID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, requests)
			return
		}
		if r.Method == http.MethodPost && len(parts) == 2 && parts[1] == "accept" {
			var body struct {
				SenderID int64 `json:"senderId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			chatID, err := s.service.AcceptChatRequest(r.Context(), session, body.SenderID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "chatId": chatID})
			return
		}
		if r.Method == http.MethodPost && len(parts) == 3 && parts[1] == "request" && parts[2] == "reject" {
			var body struct {
				SenderID int64 `json:"senderId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.RejectChatRequest(r.Context(), session, body.SenderID); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"message": "Chat request rejected"})
			return
		}
	}

	if r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "like" {
		var body struct {
			PostID int64 `json:"postID"`
			Action *int  `json:"action"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.PostID == 0 || body.Action == nil {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "postID and action are required", nil)
			return
		}
		message, err := s.service.SetLike(r.Context(), session, body.PostID, *body.Action)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": message})
		return
	}

	if r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "likes" {
		postID, idOK := pathID(parts[1])
		if !idOK {
			writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid postId", nil)
			return
		}
		payload, err := s.service.LikesFor(r.Context(), session.UserID, postID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, payload)
		return
	}

	if parts[0] == "notifications" {
		if r.Method == http.MethodGet && len(parts) == 1 {
			notifications, err := s.service.ListNotifications(r.Context(), session.UserID)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
			return
		}
		if r.Method == http.MethodPost && len(parts) == 2 {
			receiverID, idOK := pathID(parts[1])
			if !idOK {
				writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid receiverId", nil)
				return
			}
			var body NotificationInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			notification, err := s.service.CreateNotification(r.Context(), session, receiverID, body)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"message":      "Notification sent",
				"notification": notification,
			})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body RegisterInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	payload, err := s.service.Register(r.Context(), body)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *HTTPServer) handleAddPost(w http.ResponseWriter, r *http.Request, session Session) {
	var in CreatePostInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
			return
		}
		in.Text = r.FormValue("text")
		in.CategoryID, _ = strconv.Atoi(r.FormValue("Catid"))
		name, err := s.storeUpload(r, "img")
		if err != nil {
			s.fail(w, err)
			return
		}
		in.Image = name
	} else {
		var body struct {
			Text       string `json:"text"`
			CategoryID int    `json:"Catid"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in.Text = body.Text
		in.CategoryID = body.CategoryID
	}

	post, err := s.service.CreatePost(r.Context(), session, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Post added successfully",
		"post":    post,
	})
}

func (s *HTTPServer) handleUpdatePost(w http.ResponseWriter, r *http.Request, session Session, postID int64) {
	var in UpdatePostInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
			return
		}
		values := r.MultipartForm.Value
		if v, present := formValue(values, "text"); present {
			in.Text = &v
		}
		if v, present := formValue(values, "Catid"); present {
			catID, _ := strconv.Atoi(v)
			in.CategoryID = &catID
		}
		if v, present := formValue(values, "img"); present {
			in.Image = imagePatch(v)
		}
		name, err := s.storeUpload(r, "img")
		if err != nil {
			s.fail(w, err)
			return
		}
		if name != "" {
			in.Image = ImagePatch{Op: ImageReplace, Name: name}
		}
	} else {
		var body struct {
			Text       *string         `json:"text"`
			CategoryID *int            `json:"Catid"`
			Image      json.RawMessage `json:"img"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in.Text = body.Text
		in.CategoryID = body.CategoryID
		in.Image = imagePatchJSON(body.Image)
	}

	post, err := s.service.UpdatePost(r.Context(), session, postID, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Post updated successfully",
		"post":    post,
	})
}

func (s *HTTPServer) handleAddEvent(w http.ResponseWriter, r *http.Request, session Session) {
	var in CreateEventInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
			return
		}
		in.Title = r.FormValue("title")
		in.Description = r.FormValue("description")
		in.StartDate = r.FormValue("startDate")
		in.EndDate = r.FormValue("endDate")
		in.Location = r.FormValue("location")
		name, err := s.storeUpload(r, "eventImage")
		if err != nil {
			s.fail(w, err)
			return
		}
		in.Image = name
	} else {
		var body struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			StartDate   string `json:"startDate"`
			EndDate     string `json:"endDate"`
			Location    string `json:"location"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in.Title = body.Title
		in.Description = body.Description
		in.StartDate = body.StartDate
		in.EndDate = body.EndDate
		in.Location = body.Location
	}

	event, err := s.service.CreateEvent(r.Context(), session, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Event created successfully",
		"event":   event,
	})
}

func (s *HTTPServer) handleUpdateEvent(w http.ResponseWriter, r *http.Request, session Session, eventID int64) {
	var in UpdateEventInput
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
			return
		}
		values := r.MultipartForm.Value
		if v, present := formValue(values, "title"); present {
			in.Title = &v
		}
		if v, present := formValue(values, "description"); present {
			in.Description = &v
		}
		if v, present := formValue(values, "startDate"); present {
			in.StartDate = &v
		}
		if v, present := formValue(values, "endDate"); present {
			in.EndDate = &v
		}
		if v, present := formValue(values, "location"); present {
			in.Location = &v
		}
		if v, present := formValue(values, "eventImage"); present {
			in.Image = imagePatch(v)
		}
		name, err := s.storeUpload(r, "eventImage")
		if err != nil {
			s.fail(w, err)
			return
		}
		if name != "" {
			in.Image = ImagePatch{Op: ImageReplace, Name: name}
		}
	} else {
		var body struct {
			Title       *string         `json:"title"`
			Description *string         `json:"description"`
			StartDate   *string         `json:"startDate"`
			EndDate     *string         `json:"endDate"`
			Location    *string         `json:"location"`
			Image       json.RawMessage `json:"eventImage"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		in.Title = body.Title
		in.Description = body.Description
		in.StartDate = body.StartDate
		in.EndDate = body.EndDate
		in.Location = body.Location
		in.Image = imagePatchJSON(body.Image)
	}

	event, err := s.service.UpdateEvent(r.Context(), session, eventID, in)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Event updated successfully",
		"event":   event,
	})
}

func (s *HTTPServer) handleImage(w http.ResponseWriter, r *http.Request, name string) {
	content, contentType, err := s.service.blobs.Get(r.Context(), name)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Image not found", nil)
			return
		}
		s.fail(w, err)
		return
	}
	defer content.Close()

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}

func (s *HTTPServer) handleReadMarkers(w http.ResponseWriter, r *http.Request, userPart string, load func(context.Context, int64) (map[string]ReadState, error)) {
	userID, ok := pathID(userPart)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid userId", nil)
		return
	}
	markers, err := load(r.Context(), userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, markers)
}

// storeUpload saves an uploaded file to the blob store and returns the
// generated object name, or "" when the form carried no file.
func (s *HTTPServer) storeUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", errValidation("invalid upload")
	}
	defer file.Close()

	name := blob.NewObjectName(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if err := s.service.blobs.Put(r.Context(), name, file, header.Size, contentType); err != nil {
		return "", err
	}
	return name, nil
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func pathID(part string) (int64, bool) {
	id, err := strconv.ParseInt(part, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func formValue(values map[string][]string, key string) (string, bool) {
	v, present := values[key]
	if !present || len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// imagePatch interprets a form image field: the literal "null" clears the
// stored image, anything else replaces it.
func imagePatch(value string) ImagePatch {
	if value == "null" {
		return ImagePatch{Op: ImageClear}
	}
	return ImagePatch{Op: ImageReplace, Name: value}
}

// imagePatchJSON does the same for a JSON body, where an explicit null also
// counts as a clear and an absent field keeps the stored image.
func imagePatchJSON(raw json.RawMessage) ImagePatch {
	if raw == nil {
		return ImagePatch{Op: ImageKeep}
	}
	if string(raw) == "null" {
		return ImagePatch{Op: ImageClear}
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ImagePatch{Op: ImageKeep}
	}
	return imagePatch(value)
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, treedb.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
