package amount

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"arcpay/apps/arcpay/internal/errs"
)

// Decimals is the fractional precision of the bridged stablecoin
const Decimals = 6

// The bridging service keeps 5 basis points of every cross-chain transfer
const (
	feeRetainedNumerator = 9995
	feeDenominator       = 10000
)

// Parse validates a fixed-point decimal amount string. The amount must be positive and
// carry at most Decimals fractional digits.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errs.Validation("parse amount", "amount is required")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errs.Validation("parse amount", "invalid amount %q", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, errs.Validation("parse amount", "amount must be positive, got %s", s)
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return decimal.Zero, errs.Validation("parse amount", "amount %s has more than %d decimals", s, Decimals)
	}

	return d, nil
}

// ToSubunits converts a token amount into its on-chain integer representation
func ToSubunits(d decimal.Decimal) *big.Int {
	return d.Shift(Decimals).BigInt()
}

// FromSubunits converts an on-chain integer amount into a token amount
func FromSubunits(v *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(v, -Decimals)
}

// Format renders subunits with exactly Decimals fractional digits
func Format(v *big.Int) string {
	return FromSubunits(v).StringFixed(Decimals)
}

// SplitFee returns the amount that reaches the destination chain and the fee withheld.
// Integer division truncates toward zero, so any dust goes to the fee.
func SplitFee(subunits *big.Int) (bridged, fee *big.Int) {
	bridged = new(big.Int).Mul(subunits, big.NewInt(feeRetainedNumerator))
	bridged.Quo(bridged, big.NewInt(feeDenominator))
	fee = new(big.Int).Sub(subunits, bridged)
	return bridged, fee
}
