package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user-entered amount. Daraja only accepts whole
// shillings, so fractional values are rejected along with zero and negatives.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// MaxAmount is the largest single STK push Safaricom accepts, in shillings.
var MaxAmount = decimal.NewFromInt(250000)

// ErrAmountTooLarge wraps ErrInvalidAmount for amounts above MaxAmount.
var ErrAmountTooLarge = fmt.Errorf("%w: must not exceed %s", ErrInvalidAmount, MaxAmount)

func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() || !d.IsInteger() {
		return ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}
