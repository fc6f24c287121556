package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridez/internal/domain"
	"ridez/internal/service"
)

// UserHandler handles HTTP requests for users.
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// CreateUserRequest is the HTTP request body for creating a user.
type CreateUserRequest struct {
	Username    string      `json:"username" binding:"required,max=150"`
	Password    string      `json:"password"`
	FirstName   string      `json:"first_name" binding:"max=150"`
	LastName    string      `json:"last_name" binding:"max=150"`
	Email       string      `json:"email" binding:"required,email"`
	PhoneNumber string      `json:"phone_number" binding:"required,max=16"`
	Role        domain.Role `json:"role" binding:"omitempty,oneof=rider driver admin"`
}

// UserResponse is the HTTP response for user data.
type UserResponse struct {
	UserSummary
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		UserSummary: *newUserSummary(u),
		Username:    u.Username,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

// Create handles POST /users
func (h *UserHandler) Create(c *gin.Context) {
	var req CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.userService.Create(c.Request.Context(), service.CreateUserInput{
		Username:    req.Username,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		PhoneNumber: req.PhoneNumber,
		Role:        req.Role,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, newUserResponse(user))
}

// List handles GET /users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.userService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]UserResponse, 0, len(users))
	for _, u := range users {
		response = append(response, newUserResponse(u))
	}

	respondJSON(c, http.StatusOK, response)
}

// Get handles GET /users/:id
func (h *UserHandler) Get(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	user, err := h.userService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newUserResponse(user))
}

// Delete handles DELETE /users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	id, err := parseID(c, service.ErrInvalidUserID)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.userService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
