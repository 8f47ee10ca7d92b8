package payments

import (
	"errors"
	"log/slog"
	"net/url"
	"strconv"

	"creator-platform/internal/logging"
	"creator-platform/internal/models"
)

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailed  OutcomeKind = "failed"
	OutcomePending OutcomeKind = "pending"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is where the payer is sent after a callback. Amount is only set on
// success and always comes from the stored transaction.
type Outcome struct {
	Kind          OutcomeKind
	TransactionID string
	AmountMinor   int64
	Currency      string
}

// OutcomeFor maps a stored status to an outcome.
func OutcomeFor(txn models.Transaction) Outcome {
	out := Outcome{TransactionID: txn.ID}
	switch txn.Status {
	case models.StatusCompleted:
		out.Kind = OutcomeSuccess
		out.AmountMinor = txn.AmountMinor
		out.Currency = txn.Currency
	case models.StatusFailed:
		out.Kind = OutcomeFailed
	default:
		out.Kind = OutcomePending
	}
	return out
}

// RedirectResolver turns callback results into frontend destinations.
type RedirectResolver struct {
	baseURL string
	logger  *slog.Logger
}

func NewRedirectResolver(frontendBaseURL string, logger *slog.Logger) *RedirectResolver {
	return &RedirectResolver{baseURL: frontendBaseURL, logger: logging.OrDiscard(logger)}
}

// Resolve maps a HandleCallback result to an outcome. Errors are logged here
// and never described to the payer.
func (r *RedirectResolver) Resolve(res VerifiedResult, err error) Outcome {
	if err == nil {
		return OutcomeFor(res.Transaction)
	}

	attrs := []any{"transaction_id", res.Transaction.ID, "order_id", res.Transaction.GatewayOrderID, "error", err}
	switch {
	case IsTrustError(err):
		r.logger.Error("payment callback rejected", attrs...)
		return Outcome{Kind: OutcomeError}
	case errors.Is(err, ErrGatewayUnavailable):
		// The transaction is still pending; the next callback or sweep settles it.
		r.logger.Warn("payment callback could not be verified yet", attrs...)
		return Outcome{Kind: OutcomePending, TransactionID: res.Transaction.ID}
	default:
		r.logger.Error("payment callback failed", attrs...)
		return Outcome{Kind: OutcomeError}
	}
}

// URL renders the frontend destination for o.
func (r *RedirectResolver) URL(o Outcome) string {
	q := url.Values{}
	if o.TransactionID != "" {
		q.Set("transaction_id", o.TransactionID)
	}
	if o.Kind == OutcomeSuccess {
		q.Set("amount_minor", strconv.FormatInt(o.AmountMinor, 10))
		q.Set("currency", o.Currency)
	}
	dest := r.baseURL + "/payment/" + string(o.Kind)
	if len(q) > 0 {
		dest += "?" + q.Encode()
	}
	return dest
}
