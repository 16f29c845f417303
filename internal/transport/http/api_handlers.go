package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/mentorwire/internal/auth"
	"github.com/vovakirdan/mentorwire/internal/store"
)

// APIHandlers serves account sign-up, sign-in and the caller's profile.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		authService: authService,
		log:         logger,
	}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=32"`
	Password    string `json:"password" binding:"required,min=6"`
	DisplayName string `json:"displayName" binding:"max=64"`
	Role        string `json:"role" binding:"omitempty,oneof=student tutor"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ProfileResponse is the public part of an account.
type ProfileResponse struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// AuthResponse carries the token together with the user id the client
// passes in join{userId, token}.
type AuthResponse struct {
	ProfileResponse
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Register handles user registration.
// POST /api/register
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid register request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	acct, err := h.authService.Register(c.Request.Context(), auth.Registration{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        store.Role(req.Role),
	})
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrUserExists):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "user already exists"})
		return
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword),
		errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrInvalidDisplayName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	default:
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to register user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Info().Int64("user_id", acct.UserID).Str("role", string(acct.Role)).Msg("account registered")
	c.JSON(http.StatusCreated, authResponse(acct))
}

// Login handles user login.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	acct, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("failed to login user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.log.Debug().Int64("user_id", acct.UserID).Msg("account signed in")
	c.JSON(http.StatusOK, authResponse(acct))
}

// Me returns the caller's stored profile.
// GET /api/me
func (h *APIHandlers) Me(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	id, err := h.authService.Profile(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "account not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", userID).Msg("load profile")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, profileResponse(id))
}

func profileResponse(id auth.Identity) ProfileResponse {
	return ProfileResponse{
		UserID:      id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
		Role:        string(id.Role),
	}
}

func authResponse(acct *auth.Account) AuthResponse {
	return AuthResponse{
		ProfileResponse: profileResponse(acct.Identity),
		Token:           acct.Token,
		ExpiresAt:       acct.ExpiresAt.UnixMilli(),
	}
}
