package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"creator-platform/internal/logging"
	"creator-platform/internal/middleware"
	"creator-platform/internal/models"
	"creator-platform/internal/store"
)

// CreatorStore is the read surface behind the creator dashboard.
type CreatorStore interface {
	GetCreatorByUserID(ctx context.Context, userID int64) (models.Creator, error)
	GetCreatorByUsername(ctx context.Context, username string) (models.Creator, error)
	GetCreatorByWidgetToken(ctx context.Context, token string) (models.Creator, error)
	ListActiveTiers(ctx context.Context, creatorID int64) ([]models.MembershipTier, error)
	ListCreatorTransactions(ctx context.Context, creatorID int64, status models.TransactionStatus, page store.Page) ([]models.Transaction, error)
	ListCreatorSupporters(ctx context.Context, creatorID int64, page store.Page) ([]models.Supporter, error)
}

type CreatorHandler struct {
	creators CreatorStore
	logger   *slog.Logger
}

func NewCreatorHandler(creators CreatorStore, logger *slog.Logger) *CreatorHandler {
	return &CreatorHandler{creators: creators, logger: logging.OrDiscard(logger)}
}

func (h *CreatorHandler) GetMyProfile(c *gin.Context) {
	profile, ok := h.currentCreator(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, profile)
}

// GetMyTransactions lists the creator's transactions, newest first.
// Optional query: status, limit, offset.
func (h *CreatorHandler) GetMyTransactions(c *gin.Context) {
	creator, ok := h.currentCreator(c)
	if !ok {
		return
	}

	status := models.TransactionStatus(c.Query("status"))
	if status != "" && status != models.StatusPending && !status.Terminal() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status filter"})
		return
	}

	txns, err := h.creators.ListCreatorTransactions(c.Request.Context(), creator.ID, status, pageFrom(c))
	if err != nil {
		h.logger.Error("failed to list transactions", "creator_id", creator.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch transactions"})
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (h *CreatorHandler) GetMySupporters(c *gin.Context) {
	creator, ok := h.currentCreator(c)
	if !ok {
		return
	}

	supporters, err := h.creators.ListCreatorSupporters(c.Request.Context(), creator.ID, pageFrom(c))
	if err != nil {
		h.logger.Error("failed to list supporters", "creator_id", creator.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch supporters"})
		return
	}
	c.JSON(http.StatusOK, supporters)
}

// GetCreatorTiers is public: the membership tiers a supporter can choose from.
func (h *CreatorHandler) GetCreatorTiers(c *gin.Context) {
	creator, err := h.creators.GetCreatorByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Creator not found"})
			return
		}
		h.logger.Error("failed to find creator", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	tiers, err := h.creators.ListActiveTiers(c.Request.Context(), creator.ID)
	if err != nil {
		h.logger.Error("failed to list tiers", "creator_id", creator.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not fetch tiers"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"creator": gin.H{"username": creator.Username, "display_name": creator.DisplayName},
		"tiers":   tiers,
	})
}

func (h *CreatorHandler) currentCreator(c *gin.Context) (models.Creator, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		h.logger.Error("userID not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: UserID not found"})
		return models.Creator{}, false
	}

	profile, err := h.creators.GetCreatorByUserID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Creator profile not found"})
			return models.Creator{}, false
		}
		h.logger.Error("failed to get creator profile", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return models.Creator{}, false
	}
	return profile, true
}

func pageFrom(c *gin.Context) store.Page {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	return store.Page{Limit: limit, Offset: offset}
}
