package payments_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"creator-platform/internal/payments"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name        string
		amount, bps int64
		fee, payout int64
	}{
		{"five percent", 10000, 500, 500, 9500},
		{"rounds fee down", 199, 500, 9, 190},
		{"zero fee", 10000, 0, 0, 10000},
		{"whole amount", 10000, 10000, 10000, 0},
		{"negative bps clamps", 10000, -5, 0, 10000},
		{"bps above whole clamps", 10000, 20000, 10000, 0},
		{"zero amount", 0, 500, 0, 0},
		{"one unit", 1, 9999, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fee, payout := payments.Split(tt.amount, tt.bps)
			assert.Equal(t, tt.fee, fee)
			assert.Equal(t, tt.payout, payout)
		})
	}
}

func TestSplitSumsToAmount(t *testing.T) {
	for _, amount := range []int64{1, 7, 999, 10001, 123456789, math.MaxInt64 / 3} {
		for _, bps := range []int64{0, 1, 250, 500, 3333, 9999, 10000} {
			fee, payout := payments.Split(amount, bps)
			assert.Equal(t, amount, fee+payout, "amount=%d bps=%d", amount, bps)
			assert.GreaterOrEqual(t, fee, int64(0))
			assert.GreaterOrEqual(t, payout, int64(0))
		}
	}
}

func TestSplitDoesNotOverflow(t *testing.T) {
	fee, payout := payments.Split(math.MaxInt64, 500)
	// floor(MaxInt64 * 500 / 10000) computed exactly.
	assert.Equal(t, int64(461168601842738790), fee)
	assert.Equal(t, int64(math.MaxInt64)-fee, payout)
}

func TestSplitOf(t *testing.T) {
	assert.Equal(t, payments.FeeSplit{PlatformFeeMinor: 500, PayoutMinor: 9500}, payments.SplitOf(10000, 500))
}
