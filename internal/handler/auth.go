package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridez/internal/service"
)

// AuthHandler exchanges credentials for tokens.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// TokenRequest is the HTTP request body for obtaining a token.
type TokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token handles POST /api-auth/token
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if !bindJSON(c, &req) {
		return
	}

	token, expiresAt, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, TokenResponse{Token: token, ExpiresAt: expiresAt})
}
