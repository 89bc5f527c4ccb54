package split

import (
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money is an amount rounded to cents. It marshals as a fixed two-decimal
// string such as "5.90".
type Money struct {
	decimal.Decimal
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(m.StringFixed(2))), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	return m.Decimal.UnmarshalJSON(data)
}

// RoundedShare is a participant's total in whole cents.
type RoundedShare struct {
	Participant string `json:"participant"`
	Total       Money  `json:"total"`
}

// RoundedResult is a Result rounded to cents for display.
type RoundedResult struct {
	Subtotal    Money          `json:"subtotal"`
	Tax         Money          `json:"tax"`
	Tip         Money          `json:"tip"`
	GrandTotal  Money          `json:"grand_total"`
	Unallocated Money          `json:"unallocated"`
	Shares      []RoundedShare `json:"shares"`
}

// Rounded converts the result to cents. Participant totals use the largest
// remainder method: each total is floored to a cent, then the cents lost to
// flooring go one at a time to the largest fractional remainders. The shares
// add up to exactly GrandTotal minus Unallocated as displayed. Ties go to the
// participant listed first.
func (r Result) Rounded() RoundedResult {
	out := RoundedResult{
		Subtotal:    toCents(r.Subtotal),
		Tax:         toCents(r.Tax),
		Tip:         toCents(r.Tip),
		GrandTotal:  toCents(r.GrandTotal),
		Unallocated: toCents(r.Unallocated),
		Shares:      make([]RoundedShare, len(r.Shares)),
	}

	type remainder struct {
		idx  int
		frac decimal.Decimal
	}

	floors := make([]int64, len(r.Shares))
	rems := make([]remainder, len(r.Shares))
	var floored int64
	for i, s := range r.Shares {
		cents := decimal.NewFromFloat(s.Total).Mul(hundred)
		f := cents.Floor()
		floors[i] = f.IntPart()
		floored += floors[i]
		rems[i] = remainder{idx: i, frac: cents.Sub(f)}
	}

	// The target comes from the same rounded amounts that are displayed
	target := out.GrandTotal.Sub(out.Unallocated.Decimal).Mul(hundred).IntPart()
	left := target - floored
	slices.SortStableFunc(rems, func(a, b remainder) int {
		return b.frac.Cmp(a.frac)
	})
	for i := 0; len(rems) > 0 && left > 0; i = (i + 1) % len(rems) {
		floors[rems[i].idx]++
		left--
	}
	// Float noise can leave the floors a cent over; take it back from the
	// smallest remainders.
	for i := len(rems) - 1; len(rems) > 0 && left < 0; i = (i - 1 + len(rems)) % len(rems) {
		floors[rems[i].idx]--
		left++
	}

	for i, s := range r.Shares {
		out.Shares[i] = RoundedShare{
			Participant: s.Participant,
			Total:       Money{decimal.New(floors[i], -2)},
		}
	}
	return out
}

// Sum adds up the rounded participant totals.
func (r RoundedResult) Sum() Money {
	sum := decimal.Zero
	for _, s := range r.Shares {
		sum = sum.Add(s.Total.Decimal)
	}
	return Money{sum}
}

func toCents(v float64) Money {
	return Money{decimal.NewFromFloat(v).Round(2)}
}
