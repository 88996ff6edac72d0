// Package app holds the domain services and HTTP surface of the API.
package app

import (
	"context"
	"encoding/json"
	"time"

	"dindintalk/api/internal/auth"
	"dindintalk/api/internal/blob"
	"dindintalk/api/internal/config"
	"dindintalk/api/internal/rbac"
	"dindintalk/api/internal/search"
	"dindintalk/api/internal/treedb"
)

type Service struct {
	cfg    config.Config
	db     treedb.Store
	blobs  blob.Store
	search *search.Service
	now    func() time.Time
}

func NewService(cfg config.Config, db treedb.Store, blobs blob.Store, searcher *search.Service) *Service {
	return &Service{
		cfg:    cfg,
		db:     db,
		blobs:  blobs,
		search: searcher,
		now:    time.Now,
	}
}

// Session is the verified identity attached to an authenticated request.
type Session struct {
	Token    string
	UserID   int64
	Username string
	Role     rbac.Role
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// timestamp renders the current time the way every stored record carries it.
func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:    token,
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     rbac.Role(claims.Role),
	}, nil
}

type RegisterInput struct {
	Username     string `json:"username"`
	Displayname  string `json:"displayname"`
	Role         *int   `json:"role"`
	Password     string `json:"password"`
	ProfileImage string `json:"pfimage"`
}

type RegisterResponse struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Displayname  string    `json:"displayname"`
	Role         rbac.Role `json:"role"`
	ProfileImage string    `json:"pfimage"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (RegisterResponse, error) {
	if in.Username == "" || in.Displayname == "" || in.Role == nil || in.Password == "" {
		return RegisterResponse{}, errValidation("username, displayname, role and password are required")
	}
	role := rbac.Role(*in.Role)
	if !rbac.Valid(role) {
		return RegisterResponse{}, errValidation("invalid role")
	}

	taken, err := s.usernameTaken(ctx, in.Username)
	if err != nil {
		return RegisterResponse{}, err
	}
	if taken {
		return RegisterResponse{}, errConflict("USERNAME_TAKEN", "Username is already taken")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return RegisterResponse{}, err
	}

	id, err := s.nextID(ctx, userCounter)
	if err != nil {
		return RegisterResponse{}, err
	}

	user := User{
		Username:     in.Username,
		Displayname:  in.Displayname,
		Role:         role,
		PasswordHash: hash,
		ProfileImage: in.ProfileImage,
	}
	if err := s.db.Set(ctx, s.userPath(id), user); err != nil {
		return RegisterResponse{}, err
	}

	return RegisterResponse{
		ID:           id,
		Username:     user.Username,
		Displayname:  user.Displayname,
		Role:         user.Role,
		ProfileImage: user.ProfileImage,
	}, nil
}

type LoginResponse struct {
	Message string    `json:"message"`
	Token   string    `json:"token"`
	User    LoginUser `json:"user"`
}

type LoginUser struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	Role     rbac.Role `json:"role"`
}

func (s *Service) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	if username == "" || password == "" {
		return LoginResponse{}, errValidation("username and password are required")
	}

	id, user, err := s.findUserByName(ctx, username)
	if err != nil {
		return LoginResponse{}, err
	}
	if id == 0 || !auth.CheckPassword(password, user.PasswordHash) {
		return LoginResponse{}, errUnauthorized("Invalid username or password")
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), id, user.Username, int(user.Role), s.cfg.AccessTTL)
	if err != nil {
		return LoginResponse{}, err
	}

	return LoginResponse{
		Message: "Login successful",
		Token:   token,
		User:    LoginUser{UserID: id, Username: user.Username, Role: user.Role},
	}, nil
}

func (s *Service) usernameTaken(ctx context.Context, username string) (bool, error) {
	id, _, err := s.findUserByName(ctx, username)
	if err != nil {
		return false, err
	}
	return id != 0, nil
}

// findUserByName scans the user tree. Returns id 0 when no user matches.
func (s *Service) findUserByName(ctx context.Context, username string) (int64, User, error) {
	children, err := s.db.Children(ctx, "users")
	if err != nil {
		return 0, User{}, err
	}
	for key, raw := range children {
		if raw == nil {
			continue
		}
		var user User
		if err := json.Unmarshal(raw, &user); err != nil {
			continue
		}
		if user.Username == username {
			return parseID(key), user, nil
		}
	}
	return 0, User{}, nil
}
