// Package gateway adapts Midtrans to the payment core's GatewayClient.
package gateway

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"

	"creator-platform/internal/config"
	"creator-platform/internal/logging"
	"creator-platform/internal/money"
	"creator-platform/internal/payments"
)

// ChargeScheduler persists the date of a supporter's next membership charge.
type ChargeScheduler interface {
	ScheduleCharge(ctx context.Context, supporterID string, at time.Time) error
}

type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type coreAPI interface {
	CheckTransaction(orderID string) (*coreapi.TransactionStatusResponse, *midtrans.Error)
	ExpireTransaction(orderID string) (*coreapi.ExpireResponse, *midtrans.Error)
}

// Midtrans implements payments.GatewayClient with Snap checkout and the Core
// API status endpoint.
type Midtrans struct {
	snap      snapAPI
	core      coreAPI
	scheduler ChargeScheduler
	serverKey string
	finishURL string
	expiry    time.Duration
	timeout   time.Duration
	retries   int
	baseDelay time.Duration
	logger    *slog.Logger
}

// NewMidtrans builds the adapter. finishURL is where Snap sends the payer
// after checkout.
func NewMidtrans(cfg config.GatewayConfig, finishURL string, scheduler ChargeScheduler, logger *slog.Logger) *Midtrans {
	env := midtrans.Sandbox
	if cfg.Environment == "production" {
		env = midtrans.Production
	}

	var s snap.Client
	s.New(cfg.ServerKey, env)

	var c coreapi.Client
	c.New(cfg.ServerKey, env)

	return newMidtrans(&s, &c, cfg, finishURL, scheduler, logger)
}

func newMidtrans(s snapAPI, c coreAPI, cfg config.GatewayConfig, finishURL string, scheduler ChargeScheduler, logger *slog.Logger) *Midtrans {
	m := &Midtrans{
		snap:      s,
		core:      c,
		scheduler: scheduler,
		serverKey: cfg.ServerKey,
		finishURL: finishURL,
		expiry:    cfg.OrderExpiry,
		timeout:   cfg.Timeout,
		retries:   cfg.MaxRetries,
		baseDelay: cfg.RetryBaseDelay,
		logger:    logging.OrDiscard(logger),
	}
	if m.timeout <= 0 {
		m.timeout = 10 * time.Second
	}
	if m.retries < 1 {
		m.retries = 1
	}
	if m.baseDelay <= 0 {
		m.baseDelay = 200 * time.Millisecond
	}
	return m
}

func (m *Midtrans) CreateOrder(ctx context.Context, order payments.GatewayOrder) (payments.GatewaySession, error) {
	gross, err := money.ToGatewayUnits(order.AmountMinor, order.Currency)
	if err != nil {
		return payments.GatewaySession{}, err
	}

	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.OrderID,
			GrossAmt: gross,
		},
		Items: &[]midtrans.ItemDetails{
			{
				ID:    order.OrderID,
				Name:  order.Description,
				Price: gross,
				Qty:   1,
			},
		},
	}
	if order.CustomerName != "" {
		req.CustomerDetail = &midtrans.CustomerDetails{FName: order.CustomerName}
	}
	if m.finishURL != "" {
		req.Callbacks = &snap.Callbacks{Finish: m.finishURL}
	}
	if minutes := int64(m.expiry / time.Minute); minutes > 0 {
		req.Expiry = &snap.ExpiryDetails{Unit: "minute", Duration: minutes}
	}

	// Not retried: a second Snap request for the same order id is rejected.
	resp, err := withDeadline(ctx, m.timeout, func() (*snap.Response, error) {
		resp, merr := m.snap.CreateTransaction(req)
		if merr != nil {
			return resp, classify(merr)
		}
		return resp, nil
	})
	if err != nil {
		return payments.GatewaySession{}, err
	}
	if resp == nil || resp.RedirectURL == "" {
		return payments.GatewaySession{}, fmt.Errorf("%w: snap returned no redirect url for %s", payments.ErrGatewayUnavailable, order.OrderID)
	}
	return payments.GatewaySession{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// VerifyCallback asks Midtrans for the order's status. Only that answer is
// trusted; the callback's own fields are ignored.
func (m *Midtrans) VerifyCallback(ctx context.Context, orderID, gatewayTransactionID string) (payments.Verification, error) {
	var status *coreapi.TransactionStatusResponse
	err := m.retry(ctx, func() error {
		resp, err := withDeadline(ctx, m.timeout, func() (*coreapi.TransactionStatusResponse, error) {
			resp, merr := m.core.CheckTransaction(orderID)
			if merr != nil {
				return resp, classify(merr)
			}
			return resp, nil
		})
		if err != nil {
			return err
		}
		status = resp
		return nil
	})
	if err != nil {
		return payments.Verification{}, err
	}
	if status == nil {
		return payments.Verification{}, fmt.Errorf("%w: empty status response for %s", payments.ErrGatewayUnavailable, orderID)
	}
	if status.StatusCode == "404" {
		return payments.Verification{}, fmt.Errorf("%w: %s", payments.ErrGatewayOrderNotFound, orderID)
	}

	v := payments.Verification{
		Authentic:            status.OrderID == orderID,
		Status:               normalizeStatus(status.TransactionStatus, status.FraudStatus),
		PaymentMethod:        status.PaymentType,
		GatewayTransactionID: status.TransactionID,
		Currency:             status.Currency,
	}
	if gatewayTransactionID != "" && status.TransactionID != "" && gatewayTransactionID != status.TransactionID {
		m.logger.Warn("callback transaction id differs from gateway record",
			"order_id", orderID, "claimed", gatewayTransactionID, "gateway", status.TransactionID)
		v.Authentic = false
	}
	if status.GrossAmount != "" {
		currency := status.Currency
		if currency == "" {
			currency = "IDR"
		}
		amount, err := money.ParseMajor(status.GrossAmount, currency)
		if err != nil {
			return payments.Verification{}, fmt.Errorf("%w: gross amount for %s: %w", payments.ErrVerification, orderID, err)
		}
		v.AmountMinor = amount
	}
	return v, nil
}

// CancelOrder expires a pending order so it can no longer be paid. Midtrans
// refuses once the order has been paid or closed, and that refusal is
// returned as an error. Not retried: the first attempt may have landed.
func (m *Midtrans) CancelOrder(ctx context.Context, orderID string) error {
	resp, err := withDeadline(ctx, m.timeout, func() (*coreapi.ExpireResponse, error) {
		resp, merr := m.core.ExpireTransaction(orderID)
		if merr != nil {
			return resp, classify(merr)
		}
		return resp, nil
	})
	if err != nil {
		return err
	}
	if resp == nil {
		return fmt.Errorf("%w: empty expire response for %s", payments.ErrGatewayUnavailable, orderID)
	}
	switch {
	case resp.StatusCode == "404":
		return fmt.Errorf("%w: %s", payments.ErrGatewayOrderNotFound, orderID)
	case strings.EqualFold(resp.TransactionStatus, "expire"), strings.EqualFold(resp.TransactionStatus, "cancel"):
		m.logger.Info("midtrans order expired", "order_id", orderID)
		return nil
	}
	return fmt.Errorf("%w: midtrans refused to expire %s: %s %s",
		payments.ErrGatewayUnavailable, orderID, resp.StatusCode, resp.StatusMessage)
}

// ScheduleNextCharge records the renewal date. Midtrans has no pull-based
// subscription for Snap payments, so the next charge is started from our side.
func (m *Midtrans) ScheduleNextCharge(ctx context.Context, supporterID string, at time.Time) error {
	if m.scheduler == nil {
		return errors.New("no charge scheduler configured")
	}
	if err := m.scheduler.ScheduleCharge(ctx, supporterID, at); err != nil {
		return fmt.Errorf("schedule charge for supporter %s: %w", supporterID, err)
	}
	return nil
}

// VerifyNotificationSignature checks a webhook's signature_key:
// SHA512(order_id + status_code + gross_amount + server_key).
func (m *Midtrans) VerifyNotificationSignature(orderID, statusCode, grossAmount, signature string) bool {
	return VerifySignature(m.serverKey, orderID, statusCode, grossAmount, signature)
}

func VerifySignature(serverKey, orderID, statusCode, grossAmount, signature string) bool {
	if serverKey == "" || signature == "" {
		return false
	}
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}

// normalizeStatus maps Midtrans transaction_status and fraud_status onto the
// core vocabulary. Unknown values pass through untouched.
func normalizeStatus(transactionStatus, fraudStatus string) string {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return "completed"
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return "completed"
		case "challenge":
			return "pending"
		case "deny":
			return "failed"
		}
	case "pending":
		return "pending"
	case "deny", "cancel", "expire", "failure":
		return "failed"
	}
	return transactionStatus
}

type transientError struct{ err error }

func (e transientError) Error() string { return e.err.Error() }
func (e transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var t transientError
	return errors.As(err, &t) || errors.Is(err, context.DeadlineExceeded)
}

func classify(merr *midtrans.Error) error {
	code := merr.StatusCode
	switch {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", payments.ErrGatewayOrderNotFound, merr.Message)
	case code == 0 || code == http.StatusTooManyRequests || code >= 500:
		return transientError{fmt.Errorf("%w: %s", payments.ErrGatewayUnavailable, merr.Error())}
	}
	return fmt.Errorf("%w: midtrans status %d: %s", payments.ErrGatewayUnavailable, code, merr.Message)
}

func (m *Midtrans) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < m.retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * m.baseDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("%w: %w", payments.ErrGatewayUnavailable, ctx.Err())
			}
		}
		lastErr = fn()
		if lastErr == nil || !isTransient(lastErr) {
			return lastErr
		}
		m.logger.Warn("midtrans call failed, retrying", "attempt", attempt+1, "error", lastErr)
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", m.retries, lastErr)
}

// withDeadline runs a blocking SDK call under ctx plus timeout. The SDK takes
// no context, so an abandoned call finishes in the background.
func withDeadline[T any](ctx context.Context, timeout time.Duration, call func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, transientError{fmt.Errorf("%w: %w", payments.ErrGatewayUnavailable, ctx.Err())}
	}
}
