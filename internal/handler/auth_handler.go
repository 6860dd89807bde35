package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kicc/cbt-backend/internal/middleware"
	"github.com/kicc/cbt-backend/internal/model"
	"github.com/kicc/cbt-backend/internal/response"
	"github.com/kicc/cbt-backend/internal/service"
	"github.com/kicc/cbt-backend/internal/validator"
	"github.com/rs/zerolog"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		log:         log.With().Str("component", "auth_handler").Logger(),
	}
}

// Login godoc
// POST /api/v1/auth/login
// Authenticates a teacher or student with username and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	h.log.Info().
		Str("user_id", result.User.ID.String()).
		Str("role", string(result.User.Role)).
		Msg("User logged in")

	response.Success(c, http.StatusOK, result)
}

// Me godoc
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	user, err := h.authService.Me(c.Request.Context(), claims.UserID)
	if err != nil {
		failWithError(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": user})
}
