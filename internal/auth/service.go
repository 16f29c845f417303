package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vovakirdan/mentorwire/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidRole is returned for a role other than student or tutor.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidDisplayName is returned when the display name is too long.
	ErrInvalidDisplayName = errors.New("invalid display name")
)

const maxDisplayNameRunes = 64

// Registration is a sign-up request. Role defaults to student and
// DisplayName to the username.
type Registration struct {
	Username    string
	Password    string
	DisplayName string
	Role        store.Role
}

// Account is a signed-in user together with a fresh access token.
type Account struct {
	Identity
	Token     string
	ExpiresAt time.Time
}

// Service registers marketplace accounts and issues the tokens the realtime
// connection joins with.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, reg Registration) (*Account, error) {
	user, err := reg.normalize()
	if err != nil {
		return nil, err
	}

	user.PasswordHash, err = HashPassword(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	saved, err := s.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return s.signIn(saved)
}

// Login checks the password and signs the account in.
func (s *Service) Login(ctx context.Context, username, password string) (*Account, error) {
	user, err := s.store.GetUserByUsername(ctx, normalizeUsername(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if ComparePassword(user.PasswordHash, password) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.signIn(user)
}

// Profile returns the stored account for userID.
func (s *Service) Profile(ctx context.Context, userID int64) (Identity, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	return identityOf(user), nil
}

// IssueToken mints a token for an existing identity without a password check.
// It backs the operator CLI and tests.
func (s *Service) IssueToken(userID int64, username string) (string, error) {
	return GenerateToken(s.jwtConfig, Identity{UserID: userID, Username: username})
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) signIn(user *store.User) (*Account, error) {
	id := identityOf(user)
	token, err := GenerateToken(s.jwtConfig, id)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Account{Identity: id, Token: token, ExpiresAt: time.Now().Add(s.jwtConfig.TTL)}, nil
}

func identityOf(u *store.User) Identity {
	name := u.DisplayName
	if name == "" {
		name = u.Username
	}
	return Identity{UserID: u.ID, Username: u.Username, DisplayName: name, Role: u.Role}
}

// Usernames are case-insensitive handles.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (r Registration) normalize() (store.User, error) {
	username := normalizeUsername(r.Username)
	if len(username) < 3 || len(username) > 32 || strings.ContainsAny(username, " \t@/") {
		return store.User{}, ErrInvalidUsername
	}
	if len(r.Password) < 6 {
		return store.User{}, ErrInvalidPassword
	}

	role := r.Role
	if role == "" {
		role = store.RoleStudent
	}
	if !role.Valid() {
		return store.User{}, ErrInvalidRole
	}

	display := strings.TrimSpace(r.DisplayName)
	if utf8.RuneCountInString(display) > maxDisplayNameRunes {
		return store.User{}, ErrInvalidDisplayName
	}
	return store.User{Username: username, DisplayName: display, Role: role}, nil
}
