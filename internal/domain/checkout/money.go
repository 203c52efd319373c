package checkout

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	domainErrors "github.com/dancingpatinacao/checkout/internal/domain/errors"
)

const (
	// MaxAmount is the largest amount, in currency units, a booking or item
	// may carry.
	MaxAmount = 1_000_000
	// MaxQuantity bounds LineItem.Quantity.
	MaxQuantity = 1_000

	// maxConvertible keeps amount*100 inside int64.
	maxConvertible = 1e16
)

// ToCents converts an amount in currency units to integer minor units.
//
// Rounding is half away from zero, applied to the shortest decimal
// representation of amount, so 10.005 becomes 1001 even though
// 10.005*100 is 1000.4999... in binary floating point.
func ToCents(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || math.Abs(amount) >= maxConvertible {
		return 0, fmt.Errorf("%w: %v", domainErrors.ErrAmountOutOfRange, amount)
	}
	s := strconv.FormatFloat(amount, 'f', -1, 64)

	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	frac += "000"

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domainErrors.ErrAmountOutOfRange, err)
	}
	c, _ := strconv.ParseInt(frac[:2], 10, 64)
	cents := w*100 + c
	if frac[2] >= '5' {
		cents++
	}
	if neg {
		return -cents, nil
	}
	return cents, nil
}

// MulCents returns cents*quantity, failing instead of wrapping around.
func MulCents(cents int64, quantity int) (int64, error) {
	q := int64(quantity)
	if cents < 0 || q < 0 {
		return 0, fmt.Errorf("%w: negative line", domainErrors.ErrAmountOutOfRange)
	}
	if q != 0 && cents > math.MaxInt64/q {
		return 0, fmt.Errorf("%w: %d x %d", domainErrors.ErrAmountOutOfRange, cents, q)
	}
	return cents * q, nil
}

// TotalCents sums unit price × quantity over lines. A non-positive quantity
// counts as one.
func TotalCents(lines []LineItem) (int64, error) {
	var total int64
	for _, l := range lines {
		q := l.Quantity
		if q <= 0 {
			q = 1
		}
		unit, err := ToCents(l.UnitPrice)
		if err != nil {
			return 0, err
		}
		sub, err := MulCents(unit, q)
		if err != nil {
			return 0, err
		}
		if sub > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: total", domainErrors.ErrAmountOutOfRange)
		}
		total += sub
	}
	return total, nil
}

// FromCents converts minor units back to currency units.
func FromCents(cents int64) float64 {
	return float64(cents) / 100.0
}
