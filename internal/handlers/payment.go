package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/skip2/go-qrcode"

	"creator-platform/internal/logging"
	"creator-platform/internal/middleware"
	"creator-platform/internal/models"
	"creator-platform/internal/payments"
	"creator-platform/internal/store"
)

// SignatureVerifier authenticates gateway webhook bodies.
type SignatureVerifier interface {
	VerifyNotificationSignature(orderID, statusCode, grossAmount, signature string) bool
}

type PaymentHandler struct {
	creators  CreatorStore
	intents   *payments.IntentService
	verifier  *payments.CallbackVerifier
	resolver  *payments.RedirectResolver
	signature SignatureVerifier
	logger    *slog.Logger
}

func NewPaymentHandler(
	creators CreatorStore,
	intents *payments.IntentService,
	verifier *payments.CallbackVerifier,
	resolver *payments.RedirectResolver,
	signature SignatureVerifier,
	logger *slog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		creators:  creators,
		intents:   intents,
		verifier:  verifier,
		resolver:  resolver,
		signature: signature,
		logger:    logging.OrDiscard(logger),
	}
}

type CreateIntentRequest struct {
	CreatorUsername string                 `json:"creator_username" binding:"required"`
	Kind            models.TransactionKind `json:"kind" binding:"required"`
	AmountMinor     int64                  `json:"amount_minor"`
	TierID          int64                  `json:"tier_id"`
	Message         string                 `json:"message" binding:"max=500"`
	IsPublic        *bool                  `json:"is_public"`
	SupporterName   string                 `json:"supporter_name" binding:"max=100"`
}

func (h *PaymentHandler) CreateIntent(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	creator, err := h.creators.GetCreatorByUsername(c.Request.Context(), req.CreatorUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Creator not found", "code": "creator_not_found"})
			return
		}
		h.logger.Error("failed to find creator", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	intent, err := h.intents.CreateIntent(c.Request.Context(), payments.IntentRequest{
		CreatorID:       creator.ID,
		SupporterUserID: userID,
		Kind:            req.Kind,
		AmountMinor:     req.AmountMinor,
		TierID:          req.TierID,
		Message:         req.Message,
		IsPublic:        isPublic,
		SupporterName:   req.SupporterName,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, intent)
}

func (h *PaymentHandler) CancelIntent(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	txn, err := h.intents.CancelIntent(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// IntentQR renders the checkout URL of a pending intent as a PNG so it can be
// paid from another device.
func (h *PaymentHandler) IntentQR(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	txn, err := h.intents.Transaction(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if txn.Status != models.StatusPending {
		h.writeError(c, payments.ErrNotPending)
		return
	}
	if txn.CheckoutURL == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "No checkout link for this transaction"})
		return
	}

	png, err := qrcode.Encode(txn.CheckoutURL, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("failed to render qr code", "transaction_id", txn.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// Finish is where the gateway sends the payer back. The query string is only
// a hint; the outcome comes from the verified, stored transaction.
func (h *PaymentHandler) Finish(c *gin.Context) {
	res, err := h.verifier.HandleCallback(c.Request.Context(), payments.Callback{
		OrderID:              c.Query("order_id"),
		GatewayTransactionID: c.Query("transaction_id"),
		ClaimedStatus:        c.Query("transaction_status"),
	})
	outcome := h.resolver.Resolve(res, err)
	c.Redirect(http.StatusFound, h.resolver.URL(outcome))
}

// HandlePaymentNotification receives gateway webhooks. Non-2xx responses make
// the gateway retry delivery.
func (h *PaymentHandler) HandlePaymentNotification(c *gin.Context) {
	var notification coreapi.TransactionStatusResponse
	if err := c.ShouldBindJSON(&notification); err != nil {
		h.logger.Info("failed to bind payment notification", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification format"})
		return
	}

	if !h.signature.VerifyNotificationSignature(notification.OrderID, notification.StatusCode, notification.GrossAmount, notification.SignatureKey) {
		h.logger.Error("payment notification signature mismatch", "order_id", notification.OrderID)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	res, err := h.verifier.HandleCallback(c.Request.Context(), payments.Callback{
		OrderID:              notification.OrderID,
		GatewayTransactionID: notification.TransactionID,
		ClaimedStatus:        notification.TransactionStatus,
	})
	if err != nil {
		attrs := []any{"order_id", notification.OrderID, "claimed_status", notification.TransactionStatus, "error", err}
		switch {
		case errors.Is(err, payments.ErrUnknownOrder):
			h.logger.Error("payment notification for unknown order", attrs...)
			c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found"})
		case payments.IsTrustError(err):
			h.logger.Error("payment notification rejected", attrs...)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Notification rejected"})
		case errors.Is(err, payments.ErrGatewayUnavailable):
			h.logger.Warn("payment notification could not be verified yet", attrs...)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment gateway unavailable"})
		default:
			h.logger.Error("payment notification failed", attrs...)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
		}
		return
	}

	status := "ok"
	if res.Duplicate {
		status = "ok (duplicate)"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":             status,
		"transaction_status": res.Status(),
	})
}

func (h *PaymentHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Amount cannot be paid", "code": "invalid_amount"})
	case errors.Is(err, payments.ErrInvalidKind):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown payment kind", "code": "invalid_kind"})
	case errors.Is(err, payments.ErrTierUnavailable):
		c.JSON(http.StatusNotFound, gin.H{"error": "Membership tier is not available", "code": "tier_unavailable"})
	case errors.Is(err, payments.ErrTierFull):
		c.JSON(http.StatusConflict, gin.H{"error": "Membership tier is full", "code": "tier_full"})
	case errors.Is(err, payments.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "Transaction is no longer pending", "code": "not_pending"})
	case errors.Is(err, payments.ErrForbidden), errors.Is(err, payments.ErrUnknownOrder):
		// Other users' transactions are reported as missing.
		c.JSON(http.StatusNotFound, gin.H{"error": "Transaction not found", "code": "not_found"})
	case errors.Is(err, payments.ErrGatewayUnavailable):
		h.logger.Warn("payment gateway unavailable", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Payment gateway unavailable, please try again.", "code": "gateway_unavailable"})
	default:
		h.logger.Error("payment request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error."})
	}
}
