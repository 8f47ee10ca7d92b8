package payments

import "errors"

// Input errors: caller mistakes, surfaced immediately and never retried.
var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrTierUnavailable = errors.New("membership tier unavailable")
	ErrTierFull        = errors.New("membership tier is full")
	ErrForbidden       = errors.New("transaction belongs to another user")
	ErrNotPending      = errors.New("transaction is no longer pending")
)

// Trust errors: an attack or a gateway integration bug. Details stay in logs.
var (
	ErrUnknownOrder     = errors.New("unknown order")
	ErrTamperedCallback = errors.New("tampered callback")
	ErrVerification     = errors.New("callback verification failed")
)

// Gateway errors. Neither one moves a transaction out of pending on the
// callback path.
var (
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrGatewayOrderNotFound = errors.New("order not found at payment gateway")
)

// ErrSweepTTLTooShort rejects a sweep that could close orders the gateway
// still accepts payment for.
var ErrSweepTTLTooShort = errors.New("sweep ttl is shorter than the gateway order expiry")

// IsInputError reports whether err is a caller mistake.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrTierUnavailable) ||
		errors.Is(err, ErrTierFull) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotPending)
}

// IsTrustError reports whether err must be treated as a possible attack.
func IsTrustError(err error) bool {
	return errors.Is(err, ErrUnknownOrder) ||
		errors.Is(err, ErrTamperedCallback) ||
		errors.Is(err, ErrVerification)
}
