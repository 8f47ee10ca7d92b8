package payments

const bpsDenominator = 10000

// FeeSplit is the authoritative platform fee and creator payout for an amount.
type FeeSplit struct {
	PlatformFeeMinor int64 `json:"platform_fee_minor"`
	PayoutMinor      int64 `json:"payout_minor"`
}

// Split divides amountMinor into a platform fee of feeBPS basis points,
// rounded down, and the creator payout. fee + payout == amountMinor.
//
// The product is computed as q*bps + r*bps/10000 with amount = q*10000 + r,
// which equals floor(amount*bps/10000) without overflowing int64.
func Split(amountMinor, feeBPS int64) (fee, payout int64) {
	if amountMinor <= 0 {
		return 0, amountMinor
	}
	switch {
	case feeBPS < 0:
		feeBPS = 0
	case feeBPS > bpsDenominator:
		feeBPS = bpsDenominator
	}
	q, r := amountMinor/bpsDenominator, amountMinor%bpsDenominator
	fee = q*feeBPS + r*feeBPS/bpsDenominator
	return fee, amountMinor - fee
}

// SplitOf is Split returning a FeeSplit.
func SplitOf(amountMinor, feeBPS int64) FeeSplit {
	fee, payout := Split(amountMinor, feeBPS)
	return FeeSplit{PlatformFeeMinor: fee, PayoutMinor: payout}
}
