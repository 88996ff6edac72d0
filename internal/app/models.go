package app

import "dindintalk/api/internal/rbac"

// User is the record stored at users/{id}. The id is the path key, not a
// field. PasswordHash never leaves the service layer; responses go through
// Public.
type User struct {
	Username     string    `json:"username"`
	Displayname  string    `json:"displayname"`
	Role         rbac.Role `json:"role"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	ProfileImage string    `json:"pfimage"`
}

// Public strips the credential material for API responses.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

// Post is the record stored at posts/{key}. The push key is internal; the
// public identity of a post is its sequential postId.
type Post struct {
	PostID     int64  `json:"postId"`
	Text       string `json:"text"`
	Image      string `json:"img"`
	AuthorID   int64  `json:"userID"`
	CategoryID int    `json:"Catid"`
	Datetime   string `json:"datetime"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// Comment embeds its own push key as commentId.
type Comment struct {
	CommentID string `json:"commentId"`
	PostID    int64  `json:"postId"`
	AuthorID  int64  `json:"userID"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
}

type Event struct {
	EventID     int64  `json:"eventId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Location    string `json:"location"`
	Image       string `json:"eventImage"`
	CreatedBy   int64  `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type Report struct {
	ReportID   string `json:"reportID"`
	PostID     int64  `json:"postID"`
	ReportedBy int64  `json:"reportedBy"`
	Reason     string `json:"reason"`
	Details    string `json:"details"`
	Datetime   string `json:"datetime"`
}

// Bookmark lives at bookmarks/{userID}/{postKey}. Status 0 means the user
// toggled it off; the record is kept so the toggle history survives.
type Bookmark struct {
	PostID    int64  `json:"postId"`
	UserID    int64  `json:"userID"`
	Status    int    `json:"status"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type Message struct {
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
}

// ChatThread is one entry of the conversation list, keyed by the peer.
type ChatThread struct {
	UserID     int64     `json:"userId"`
	Name       string    `json:"name"`
	AvatarPath string    `json:"avatarPath"`
	Messages   []Message `json:"messages"`
}

// ChatRequest lives at chat_requests/{receiverId}/{senderId}.
type ChatRequest struct {
	ID         string `json:"id,omitempty"`
	SenderID   int64  `json:"senderId"`
	ReceiverID int64  `json:"receiverId"`
	Timestamp  string `json:"timestamp"`
}

type Notification struct {
	ID        string `json:"id,omitempty"`
	SenderID  int64  `json:"senderId"`
	Type      string `json:"type"`
	PostID    *int64 `json:"postId"`
	EventID   *int64 `json:"eventId"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	IsRead    bool   `json:"isRead"`
	Timestamp string `json:"timestamp"`
}

// DeletedLog is the audit entry written when a moderator removes a post.
type DeletedLog struct {
	PostID    int64  `json:"postId"`
	DeletedBy int64  `json:"deletedBy"`
	DeletedAt string `json:"deletedAt"`
	Reason    string `json:"reason"`
	OwnerID   int64  `json:"ownerId"`
	PostText  string `json:"postText"`
}

type PostReadMarker struct {
	PostID int64  `json:"postId"`
	UserID int64  `json:"userId"`
	IsRead bool   `json:"isRead"`
	ReadAt string `json:"readAt"`
}

type EventReadMarker struct {
	EventID int64  `json:"eventId"`
	UserID  int64  `json:"userID"`
	IsRead  bool   `json:"isRead"`
	ReadAt  string `json:"readAt"`
}

// ReadState is the per-item view returned by the read-marker listings.
type ReadState struct {
	IsRead bool `json:"isRead"`
}

type ImageOp int

const (
	ImageKeep ImageOp = iota
	ImageReplace
	ImageClear
)

// ImagePatch carries the three-way image intent of a partial update:
// leave the stored name alone, replace it, or clear it.
type ImagePatch struct {
	Op   ImageOp
	Name string
}

func (p ImagePatch) apply(current string) string {
	switch p.Op {
	case ImageReplace:
		return p.Name
	case ImageClear:
		return ""
	default:
		return current
	}
}
