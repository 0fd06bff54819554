package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"taskflow/api/internal/auth"
	"taskflow/api/internal/authpw"
	"taskflow/api/internal/avatars"
	"taskflow/api/internal/config"
	"taskflow/api/internal/email"
	"taskflow/api/internal/realtime"
	"taskflow/api/internal/search"
	"taskflow/api/internal/session"
	"taskflow/api/internal/store"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the storage surface the service uses. PostgresStore satisfies
// it in production, tests plug in a fake.
type dataStore interface {
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	InsertUser(context.Context, store.User) error
	UpdateUserProfile(context.Context, string, string, string) error
	ListUsersByIDs(context.Context, []string) ([]store.User, error)

	InsertBoard(context.Context, store.Board) error
	GetBoard(context.Context, string) (store.Board, error)
	ListBoardsForUser(context.Context, string, string, int, int) ([]store.Board, error)
	CountBoardsForUser(context.Context, string, string) (int, error)
	UpdateBoard(context.Context, string, string, string, string) error
	DeleteBoardCascade(context.Context, string) error
	IsBoardMember(context.Context, string, string) (bool, error)
	ListBoardMembers(context.Context, string) ([]store.User, error)
	AddBoardMember(context.Context, string, string) error
	RemoveBoardMember(context.Context, string, string) error
	RemoveAssigneeFromBoardTasks(context.Context, string, string) error

	InsertList(context.Context, store.List) error
	GetList(context.Context, string) (store.List, error)
	ListLists(context.Context, string) ([]store.List, error)
	NextListPosition(context.Context, string) (int, error)
	UpdateList(context.Context, string, string, int) error
	SetListPosition(context.Context, string, int) error
	DeleteListCascade(context.Context, string) error

	InsertTask(context.Context, store.Task) error
	GetTask(context.Context, string) (store.Task, error)
	ListTasksByBoard(context.Context, string) ([]store.Task, error)
	ListTasksByList(context.Context, string, string, int, int) ([]store.Task, error)
	CountTasksByList(context.Context, string, string) (int, error)
	NextTaskPosition(context.Context, string) (int, error)
	UpdateTask(context.Context, store.Task) error
	MoveTask(context.Context, string, string, int) error
	DeleteTask(context.Context, string) error

	ListTaskAssignees(context.Context, string) ([]string, error)
	ListAssigneesByBoard(context.Context, string) (map[string][]string, error)
	AddTaskAssignee(context.Context, string, string) (bool, error)
	RemoveTaskAssignee(context.Context, string, string) error

	InsertActivity(context.Context, store.Activity) error
	ListActivities(context.Context, string, string, int, int) ([]store.Activity, error)
	CountActivities(context.Context, string, string) (int, error)

	Ping(ctx context.Context) error
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, sess session.Session, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.Session, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

// Publisher delivers realtime events. It is either the in-process
// broadcaster or the Redis bridge when the API runs multi-instance.
type Publisher interface {
	Publish(event realtime.Event)
}

// Deps are the optional side services. Any of them may be nil; the mutation
// pipeline works without search, avatars, email or realtime.
type Deps struct {
	Search   *search.Service
	Avatars  *avatars.Service
	Email    *email.Service
	Realtime Publisher
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	authpw   *authpw.Service
	search   *search.Service
	avatars  *avatars.Service
	email    *email.Service
	realtime Publisher
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authpw.NewService(dataStore),
		search:   deps.Search,
		avatars:  deps.Avatars,
		email:    deps.Email,
		realtime: deps.Realtime,
	}
}

// Ping checks the dependencies the API cannot serve without.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := s.sessions.Ping(ctx); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// publish hands an event to the realtime layer. Fire-and-forget: delivery
// failure never affects the mutation that triggered it.
func (s *Service) publish(event realtime.Event) {
	if s.realtime == nil {
		return
	}
	s.realtime.Publish(event)
}

// logActivity appends to the board's audit log. Errors are logged and
// swallowed, the log is best-effort and never fails a mutation.
func (s *Service) logActivity(ctx context.Context, actor Session, boardID, action, entityType, entityID, entityTitle string, details map[string]any) {
	err := s.store.InsertActivity(ctx, store.Activity{
		ActorID:     actor.UserID,
		ActorName:   actor.UserName,
		BoardID:     boardID,
		Action:      action,
		EntityType:  entityType,
		EntityID:    entityID,
		EntityTitle: entityTitle,
		Details:     details,
	})
	if err != nil {
		log.Printf("activity: record %s on %s: %v", action, boardID, err)
	}
}

// --- views ---

type UserView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Avatar    string `json:"avatar,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func userView(user store.User) UserView {
	view := UserView{
		ID:     user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Avatar: user.Avatar,
	}
	if !user.CreatedAt.IsZero() {
		view.CreatedAt = user.CreatedAt.UTC().Format(time.RFC3339)
	}
	return view
}

// AuthResult is what register, login and refresh hand back to the client.
type AuthResult struct {
	User         UserView `json:"user"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresAt    string   `json:"expiresAt"`
}

// --- auth ---

func (s *Service) Register(ctx context.Context, name, emailAddr, password string) (AuthResult, error) {
	user, err := s.authpw.Register(ctx, authpw.RegisterRequest{Name: name, Email: emailAddr, Password: password})
	if err != nil {
		var verr *authpw.ValidationError
		if errors.As(err, &verr) {
			return AuthResult{}, validationError(verr.Message)
		}
		if errors.Is(err, authpw.ErrEmailTaken) {
			return AuthResult{}, conflictError("Email already registered")
		}
		return AuthResult{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Login(ctx context.Context, emailAddr, password string) (AuthResult, error) {
	user, err := s.authpw.Login(ctx, emailAddr, password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return AuthResult{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		}
		return AuthResult{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (AuthResult, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := randomToken(8)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.Name,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}

	refreshToken := randomToken(32)
	refreshExpiry := now.Add(s.cfg.RefreshTTL)
	err = s.sessions.Save(ctx, auth.HashToken(refreshToken), session.Session{
		UserID:   user.ID,
		UserName: user.Name,
	}, refreshExpiry)
	if err != nil {
		return AuthResult{}, fmt.Errorf("save refresh session: %w", err)
	}

	return AuthResult{
		User:         userView(user),
		Token:        token,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// Refresh rotates a refresh token: the old one is revoked and a fresh pair is
// issued, so a stolen token stops working after its first use.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (AuthResult, error) {
	hash := auth.HashToken(strings.TrimSpace(refreshToken))
	sess, err := s.sessions.Lookup(ctx, hash)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return AuthResult{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
		}
		return AuthResult{}, err
	}
	if err := s.sessions.Revoke(ctx, hash); err != nil {
		return AuthResult{}, err
	}

	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return AuthResult{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// --- users ---

func (s *Service) CurrentUser(ctx context.Context, sess Session) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

type UpdateProfileInput struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
}

func (s *Service) UpdateProfile(ctx context.Context, sess Session, input UpdateProfileInput) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return UserView{}, err
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if len(name) < 2 || len(name) > 50 {
			return UserView{}, validationError("name must be between 2 and 50 characters")
		}
		user.Name = name
	}
	if input.Avatar != nil {
		user.Avatar = strings.TrimSpace(*input.Avatar)
	}
	if err := s.store.UpdateUserProfile(ctx, user.ID, user.Name, user.Avatar); err != nil {
		return UserView{}, err
	}
	return userView(user), nil
}

// UploadAvatar stores the image in object storage and points the profile at
// its public URL.
func (s *Service) UploadAvatar(ctx context.Context, sess Session, data []byte, contentType string) (UserView, error) {
	if s.avatars == nil {
		return UserView{}, domainError(http.StatusServiceUnavailable, "SERVER_ERROR", "Avatar storage not configured", nil)
	}
	url, err := s.avatars.Upload(ctx, sess.UserID, data, contentType)
	if err != nil {
		var typeErr *avatars.ErrUnsupportedType
		if errors.As(err, &typeErr) {
			return UserView{}, validationError("avatar must be a png, jpeg, gif or webp image")
		}
		return UserView{}, err
	}
	avatarURL := url
	return s.UpdateProfile(ctx, sess, UpdateProfileInput{Avatar: &avatarURL})
}

// SearchAll runs a scoped search over the caller's boards and tasks. A
// non-empty boardID narrows the scope to that single board, gated on
// membership.
func (s *Service) SearchAll(ctx context.Context, sess Session, text, filterType, boardID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	var boardIDs []string
	if boardID != "" {
		if _, err := s.requireBoardAccess(ctx, sess, boardID); err != nil {
			return search.Response{}, err
		}
		boardIDs = []string{boardID}
	} else {
		boards, err := s.store.ListBoardsForUser(ctx, sess.UserID, "", 1000, 0)
		if err != nil {
			return search.Response{}, err
		}
		boardIDs = make([]string, len(boards))
		for i, board := range boards {
			boardIDs[i] = board.ID
		}
	}
	return s.search.Search(search.Query{
		Text:       text,
		FilterType: search.ResultType(filterType),
		BoardIDs:   boardIDs,
		Limit:      limit,
		Offset:     offset,
	}), nil
}

func randomToken(bytes int) string {
	buf := make([]byte, bytes)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// SendBoardInvite mails the new member, best-effort.
func (s *Service) sendBoardInvite(member store.User, inviter Session, board store.Board) {
	if s.email == nil || !s.email.IsConfigured() {
		return
	}
	go func() {
		boardURL := fmt.Sprintf("%s/boards/%s", strings.TrimRight(s.cfg.CORSOrigin, "/"), board.ID)
		if err := s.email.SendBoardInviteEmail(member.Email, member.Name, inviter.UserName, board.Title, boardURL); err != nil {
			log.Printf("email: board invite to %s: %v", member.Email, err)
		}
	}()
}
