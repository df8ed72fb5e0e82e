package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pairchat-server/internal/auth"
	"github.com/vovakirdan/pairchat-server/internal/core"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	svc     *core.Service
	authSvc *auth.Service
	log     *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(svc *core.Service, authSvc *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{svc: svc, authSvc: authSvc, log: logger}
}

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	LoginID  string `json:"login_id" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	LoginID  string `json:"login_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse represents the authentication response body.
type AuthResponse struct {
	Token   string `json:"token"`
	LoginID string `json:"login_id,omitempty"`
}

// ChatsResponse reports how many chats the caller participates in.
type ChatsResponse struct {
	Count int `json:"count"`
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

	token, err := h.authSvc.Register(c.Request.Context(), req.LoginID, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserExists):
			c.JSON(http.StatusConflict, ErrorResponse{Error: "login id or email already taken"})
		case errors.Is(err, auth.ErrInvalidLoginID), errors.Is(err, auth.ErrInvalidEmail), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		default:
			h.log.Error().Err(err).Msg("register failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, LoginID: req.LoginID})
}

// Login handles user authentication.
// POST /api/login
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid login request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authSvc.Login(c.Request.Context(), req.LoginID, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
			return
		}
		h.log.Error().Err(err).Msg("login failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, LoginID: req.LoginID})
}

// Guest issues an anonymous identity token.
// POST /api/guest
func (h *APIHandlers) Guest(c *gin.Context) {
	token, loginID, err := h.authSvc.CreateGuest(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("guest token failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token, LoginID: loginID})
}

// MyChats reports the caller's current chat count.
// GET /api/me/chats (authenticated)
func (h *APIHandlers) MyChats(c *gin.Context) {
	derived := c.GetString(ContextKeyDerivedID)
	c.JSON(http.StatusOK, ChatsResponse{Count: h.svc.ChatCountForUser(derived)})
}
