package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/mentorwire/internal/store"
	"github.com/vovakirdan/mentorwire/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(st, jwtConfig)
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	for _, name := range []string{"ab", " ab ", "has space", "a@b.c"} {
		if _, err := svc.Register(ctx, Registration{Username: name, Password: "password123"}); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("%q: expected ErrInvalidUsername, got %v", name, err)
		}
	}
}

func TestRegister_RejectsInvalidPassword(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Username: "abc", Password: "12345"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestRegister_ValidatesProfile(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{Username: "abc", Password: "password123", Role: "admin"}); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	long := strings.Repeat("n", maxDisplayNameRunes+1)
	if _, err := svc.Register(ctx, Registration{Username: "abc", Password: "password123", DisplayName: long}); !errors.Is(err, ErrInvalidDisplayName) {
		t.Fatalf("expected ErrInvalidDisplayName, got %v", err)
	}
}

func TestRegisterLoginAndValidate(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	acct, err := svc.Register(ctx, Registration{Username: " Alice ", Password: "password123", DisplayName: "Alice K.", Role: store.RoleTutor})
	if err != nil {
		t.Fatalf("expected registration success, got %v", err)
	}
	if acct.UserID == 0 || acct.Username != "alice" || acct.Role != store.RoleTutor {
		t.Fatalf("unexpected account: %+v", acct)
	}

	claims, err := svc.ValidateToken(acct.Token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != acct.UserID || claims.Name() != "Alice K." || claims.Role != store.RoleTutor {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	// Usernames are case-insensitive.
	if _, err := svc.Register(ctx, Registration{Username: "ALICE", Password: "password123"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
	login, err := svc.Login(ctx, " alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.UserID != acct.UserID || login.DisplayName != "Alice K." {
		t.Fatalf("login returned another identity: %+v", login)
	}

	profile, err := svc.Profile(ctx, acct.UserID)
	if err != nil || profile.Role != store.RoleTutor {
		t.Fatalf("profile: %+v %v", profile, err)
	}
}

func TestRegister_DefaultsToStudent(t *testing.T) {
	svc := newTestAuthService(t)

	acct, err := svc.Register(context.Background(), Registration{Username: "bob", Password: "password123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if acct.Role != store.RoleStudent || acct.DisplayName != "bob" {
		t.Fatalf("unexpected defaults: %+v", acct)
	}
}

func TestValidateTokenRejectsForeignAudience(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("s"), Issuer: "test", Audience: "other", TTL: time.Minute}
	token, err := GenerateToken(cfg, Identity{UserID: 1, Username: "alice"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cfg.Audience = "test"
	if _, err := ValidateToken(cfg, token); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}
