package split

import (
	"math"
	"slices"
)

// ItemShare is one participant's portion of one item.
type ItemShare struct {
	ItemID   string  `json:"item_id"`
	Name     string  `json:"name"`
	Portion  float64 `json:"portion"`
	Amount   float64 `json:"amount"`
	Communal bool    `json:"communal"`
}

// Share is what one participant owes.
type Share struct {
	Participant string      `json:"participant"`
	Subtotal    float64     `json:"subtotal"`
	Tax         float64     `json:"tax"`
	Tip         float64     `json:"tip"`
	Total       float64     `json:"total"`
	Fraction    float64     `json:"fraction"`
	Items       []ItemShare `json:"items"`
}

// Result is the outcome of an allocation. It is derived data and is never
// stored.
type Result struct {
	Subtotal       float64            `json:"subtotal"`
	Tax            float64            `json:"tax"`
	Tip            float64            `json:"tip"`
	GrandTotal     float64            `json:"grand_total"`
	PerParticipant map[string]float64 `json:"per_participant"`
	Shares         []Share            `json:"shares"`

	// Unallocated is item cost that had nobody to pay for it. It is still
	// part of Subtotal and GrandTotal.
	Unallocated        float64  `json:"unallocated"`
	UnallocatedItemIDs []string `json:"unallocated_item_ids"`
}

// Allocate splits items among participants and spreads tax and tip in
// proportion to each participant's item subtotal.
//
// An item is paid by those of its assignees who are participants; when that
// set is empty the item is shared by every participant. Duplicate
// participants are ignored and output order follows first appearance.
func Allocate(items []Item, participants []string, taxPct, tipPct float64) Result {
	people := uniqueNames(participants)

	res := Result{
		PerParticipant:     make(map[string]float64, len(people)),
		Shares:             make([]Share, len(people)),
		UnallocatedItemIDs: []string{},
	}
	index := make(map[string]int, len(people))
	for i, p := range people {
		index[p] = i
		res.Shares[i] = Share{Participant: p, Items: []ItemShare{}}
	}

	for _, item := range items {
		cost := item.Cost()
		res.Subtotal += cost

		payers, communal := beneficiaries(item, people, index)
		if len(payers) == 0 {
			res.Unallocated += cost
			res.UnallocatedItemIDs = append(res.UnallocatedItemIDs, item.ID)
			continue
		}

		portion := 1 / float64(len(payers))
		amount := cost / float64(len(payers))
		for _, p := range payers {
			s := &res.Shares[index[p]]
			s.Subtotal += amount
			s.Items = append(s.Items, ItemShare{
				ItemID:   item.ID,
				Name:     item.Name,
				Portion:  portion,
				Amount:   amount,
				Communal: communal,
			})
		}
	}

	res.Tax = res.Subtotal * taxPct
	res.Tip = res.Subtotal * tipPct
	res.GrandTotal = res.Subtotal + res.Tax + res.Tip

	for i := range res.Shares {
		s := &res.Shares[i]
		if res.Subtotal > 0 {
			ratio := s.Subtotal / res.Subtotal
			s.Tax = ratio * res.Tax
			s.Tip = ratio * res.Tip
			s.Total = s.Subtotal + ratio*(res.Tax+res.Tip)
		} else {
			s.Total = s.Subtotal
		}
		if res.GrandTotal > 0 {
			s.Fraction = s.Total / res.GrandTotal
		}
		res.PerParticipant[s.Participant] = s.Total
	}

	return res
}

func beneficiaries(item Item, people []string, index map[string]int) ([]string, bool) {
	payers := make([]string, 0, len(item.AssignedTo))
	for _, p := range item.AssignedTo {
		if _, ok := index[p]; ok && !slices.Contains(payers, p) {
			payers = append(payers, p)
		}
	}
	if len(payers) == 0 {
		return people, true
	}
	return payers, false
}

// Allocated returns the sum of every participant's total.
func (r Result) Allocated() float64 {
	var sum float64
	for _, s := range r.Shares {
		sum += s.Total
	}
	return sum
}

// Conserved reports whether participant totals add back up to the grand
// total within floating-point tolerance.
func (r Result) Conserved() bool {
	tol := 1e-6 * math.Max(1, math.Abs(r.GrandTotal))
	return math.Abs(r.Allocated()-r.GrandTotal) <= tol
}

// HasUnallocated reports whether some item cost was left without a payer.
func (r Result) HasUnallocated() bool {
	return len(r.UnallocatedItemIDs) > 0
}
