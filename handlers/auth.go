package handlers

import (
	"net/http"
	"strings"

	"testflow_backend/apperr"
	"testflow_backend/middleware"
	"testflow_backend/models"
	"testflow_backend/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	users        store.Users
	settings     store.Settings
	tokenService *middleware.TokenService
	logger       *zap.Logger
}

func NewAuthHandler(users store.Users, settings store.Settings, jwtSecret []byte, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		users:        users,
		settings:     settings,
		tokenService: middleware.NewTokenService(jwtSecret),
		logger:       logger,
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByUsername(c.Request.Context(), req.Username)
	if apperr.KindOf(err) == apperr.KindNotFound || (err == nil && !middleware.VerifyPassword(user.PasswordHash, req.Password)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	} else if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := h.tokenService.GenerateToken(user)
	if err != nil {
		h.logger.Error("failed to generate token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Token: token, Username: user.Username})
}

func (h *AuthHandler) ChangeCredentials(c *gin.Context) {
	var req models.ChangeCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()

	user, err := h.users.GetUserByID(ctx, c.GetInt("userID"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !middleware.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Current password is incorrect"})
		return
	}

	newUsername := strings.TrimSpace(req.NewUsername)
	if newUsername == user.Username {
		newUsername = ""
	}
	if newUsername != "" {
		taken, err := h.users.UsernameTaken(ctx, newUsername)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		if taken {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username already taken"})
			return
		}
	}

	var passwordHash string
	if req.NewPassword != "" {
		passwordHash, err = middleware.HashPassword(req.NewPassword)
		if err != nil {
			h.logger.Error("failed to hash password", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
			return
		}
	}

	if err := h.users.UpdateCredentials(ctx, user.ID, newUsername, passwordHash); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("admin credentials changed", zap.Int("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"message": "Credentials updated successfully"})
}

func (h *AuthHandler) GetSettings(c *gin.Context) {
	settings, err := h.settings.GetSettings(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *AuthHandler) UpdateSettings(c *gin.Context) {
	var req models.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.settings.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("notification settings updated", zap.String("actor", c.GetString("username")))
	c.JSON(http.StatusOK, settings)
}
