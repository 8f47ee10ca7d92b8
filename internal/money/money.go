// Package money converts between integer minor units and the decimal strings
// gateways and people read. Amounts never pass through float64.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// exponents lists how many minor-unit digits each currency carries as far as
// the payment gateway is concerned. Rupiah is settled in whole units.
var exponents = map[string]int32{
	"IDR": 0,
	"INR": 2,
	"USD": 2,
	"EUR": 2,
	"SGD": 2,
	"JPY": 0,
}

// Exponent returns the minor-unit exponent for currency, defaulting to 2.
func Exponent(currency string) int32 {
	if exp, ok := exponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMajor renders amountMinor as a fixed-point decimal in major units.
func ToMajor(amountMinor int64, currency string) decimal.Decimal {
	return decimal.New(amountMinor, -Exponent(currency))
}

// Format renders an amount for display, e.g. "100.00 INR".
func Format(amountMinor int64, currency string) string {
	exp := Exponent(currency)
	return ToMajor(amountMinor, currency).StringFixed(exp) + " " + strings.ToUpper(currency)
}

// ParseMajor parses a gateway amount such as "10000.00" into minor units.
// Fractions finer than the currency's minor unit are rejected.
func ParseMajor(s, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	minor := d.Shift(Exponent(currency))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("amount %q has more precision than %s allows", s, currency)
	}
	return minor.IntPart(), nil
}

// ToGatewayUnits converts minor units into the integer major amount gateways
// such as Midtrans expect. It fails when the amount is not a whole major unit.
func ToGatewayUnits(amountMinor int64, currency string) (int64, error) {
	major := ToMajor(amountMinor, currency)
	if !major.IsInteger() {
		return 0, fmt.Errorf("amount %d %s is not a whole %s amount", amountMinor, currency, currency)
	}
	return major.IntPart(), nil
}
