package split

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxPercent is the upper bound for tax and tip fractions.
	MaxPercent = 0.5

	DefaultTaxPct   = 0.13
	DefaultTipPct   = 0.18
	DefaultCurrency = "USD"
)

// ErrPercentOutOfRange is returned for tax or tip fractions outside [0, MaxPercent].
var ErrPercentOutOfRange = errors.New("percentage out of range")

// Percentages holds tax and tip as decimal fractions of the subtotal.
type Percentages struct {
	Tax float64 `json:"tax_pct"`
	Tip float64 `json:"tip_pct"`
}

// DefaultPercentages returns the stock tax and tip fractions.
func DefaultPercentages() Percentages {
	return Percentages{Tax: DefaultTaxPct, Tip: DefaultTipPct}
}

// Validate checks both fractions are within [0, MaxPercent].
func (p Percentages) Validate() error {
	if !ValidPercent(p.Tax) {
		return fmt.Errorf("%w: tax %v", ErrPercentOutOfRange, p.Tax)
	}
	if !ValidPercent(p.Tip) {
		return fmt.Errorf("%w: tip %v", ErrPercentOutOfRange, p.Tip)
	}
	return nil
}

// ValidPercent reports whether v is a usable tax or tip fraction.
func ValidPercent(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= MaxPercent
}
