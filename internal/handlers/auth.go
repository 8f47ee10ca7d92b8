package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
	"creator-platform/internal/store"
)

// AccountStore creates and looks up login accounts.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, passwordHash string, creator *models.Creator) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

type AuthHandler struct {
	accounts  AccountStore
	jwtSecret string
	tokenTTL  time.Duration
	logger    *slog.Logger
}

func NewAuthHandler(accounts AccountStore, jwtSecret string, tokenTTL time.Duration, logger *slog.Logger) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = 7 * 24 * time.Hour
	}
	return &AuthHandler{accounts: accounts, jwtSecret: jwtSecret, tokenTTL: tokenTTL, logger: logging.OrDiscard(logger)}
}

// RegisterRequest creates a supporter account, or a creator account when
// Username is set.
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	Username    string `json:"username" binding:"omitempty,min=3,max=32,alphanum"`
	DisplayName string `json:"display_name" binding:"omitempty,max=64"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	// We MUST NOT store the plain-text password
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("password hashing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error, please try again."})
		return
	}

	var creator *models.Creator
	if req.Username != "" {
		displayName := strings.TrimSpace(req.DisplayName)
		if displayName == "" {
			displayName = req.Username
		}
		creator = &models.Creator{
			Username:          strings.ToLower(req.Username),
			DisplayName:       displayName,
			WidgetSecretToken: uuid.NewString(),
		}
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := h.accounts.CreateAccount(c.Request.Context(), email, string(passwordHash), creator)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Email or username may already be in use."})
			return
		}
		h.logger.Error("failed to create account", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	resp := gin.H{
		"message": "User created successfully.",
		"user_id": user.ID,
		"email":   user.Email,
	}
	if creator != nil {
		resp["username"] = creator.Username
	}
	c.JSON(http.StatusCreated, resp)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) createJWT(user models.User) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.jwtSecret))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	user, err := h.accounts.GetUserByEmail(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
			return
		}
		h.logger.Error("database error on login", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	// Compare stored passwordHash with the user entered password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password."})
		return
	}

	tokenString, err := h.createJWT(user)
	if err != nil {
		h.logger.Error("failed to create JWT", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login successful.", "token": tokenString})
}
