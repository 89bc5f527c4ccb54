package split

import (
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound        = errors.New("item not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidParticipant  = errors.New("participant name is empty")
	ErrDuplicateItem       = errors.New("duplicate item id")
)

// Bill holds everything the allocation needs: the items, who is at the
// table, who had what, and the tax and tip fractions.
type Bill struct {
	Currency     string   `json:"currency"`
	TaxPct       float64  `json:"tax_pct"`
	TipPct       float64  `json:"tip_pct"`
	Participants []string `json:"participants"`
	Items        []Item   `json:"items"`
}

// NewBill creates an empty bill. An empty currency becomes DefaultCurrency.
// Blank participant names are skipped.
func NewBill(currency string, pct Percentages, participants ...string) *Bill {
	b := &Bill{
		Currency:     currency,
		TaxPct:       pct.Tax,
		TipPct:       pct.Tip,
		Participants: []string{},
		Items:        []Item{},
	}
	for _, p := range participants {
		b.AddParticipant(p)
	}
	b.Normalize()
	return b
}

// Normalize repairs a bill that was decoded from storage or a request body.
// Items are re-normalized, ids are filled in, and assignments to people not
// on the bill are dropped.
func (b *Bill) Normalize() {
	b.Currency = strings.ToUpper(strings.TrimSpace(b.Currency))
	if b.Currency == "" {
		b.Currency = DefaultCurrency
	}
	b.Participants = uniqueNames(b.Participants)

	seen := make(map[string]bool, len(b.Items))
	items := make([]Item, 0, len(b.Items))
	for i, item := range b.Items {
		item = item.Normalize(i + 1)
		if item.ID == "" || seen[item.ID] {
			item.ID = uuid.NewString()
		}
		seen[item.ID] = true
		item.AssignedTo = b.knownOnly(item.AssignedTo)
		items = append(items, item)
	}
	b.Items = items
}

// Percentages returns the bill's tax and tip fractions.
func (b *Bill) Percentages() Percentages {
	return Percentages{Tax: b.TaxPct, Tip: b.TipPct}
}

// SetPercentages replaces tax and tip after validating them.
func (b *Bill) SetPercentages(p Percentages) error {
	if err := p.Validate(); err != nil {
		return err
	}
	b.TaxPct = p.Tax
	b.TipPct = p.Tip
	return nil
}

// HasParticipant reports whether name is on the bill.
func (b *Bill) HasParticipant(name string) bool {
	return slices.Contains(b.Participants, name)
}

// AddParticipant adds a trimmed name. It returns false without error when the
// name is already present.
func (b *Bill) AddParticipant(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidParticipant
	}
	if b.HasParticipant(name) {
		return false, nil
	}
	b.Participants = append(b.Participants, name)
	return true, nil
}

// RemoveParticipant drops a participant and every assignment that names them.
func (b *Bill) RemoveParticipant(name string) error {
	idx := slices.Index(b.Participants, name)
	if idx < 0 {
		return ErrParticipantNotFound
	}
	b.Participants = slices.Delete(b.Participants, idx, idx+1)
	for i := range b.Items {
		b.Items[i].AssignedTo = slices.DeleteFunc(b.Items[i].AssignedTo, func(p string) bool {
			return p == name
		})
	}
	return nil
}

// AddItem normalizes the item, gives it an id if it has none, and appends it.
func (b *Bill) AddItem(item Item) (Item, error) {
	item = item.Normalize(len(b.Items) + 1)
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if b.indexOf(item.ID) >= 0 {
		return Item{}, ErrDuplicateItem
	}
	item.AssignedTo = b.knownOnly(item.AssignedTo)
	b.Items = append(b.Items, item)
	return item, nil
}

// ItemPatch lists the fields to change on an item. Nil fields are left alone.
type ItemPatch struct {
	Name      *string  `json:"name,omitempty"`
	Quantity  *int     `json:"quantity,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
}

// UpdateItem applies the patch and re-normalizes the item, so an invalid
// quantity or price falls back to its default.
func (b *Bill) UpdateItem(id string, patch ItemPatch) (Item, error) {
	idx := b.indexOf(id)
	if idx < 0 {
		return Item{}, ErrItemNotFound
	}
	item := b.Items[idx]
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	if patch.UnitPrice != nil {
		item.UnitPrice = *patch.UnitPrice
	}
	b.Items[idx] = item.Normalize(idx + 1)
	return b.Items[idx], nil
}

// RemoveItem deletes an item along with its assignments.
func (b *Bill) RemoveItem(id string) error {
	idx := b.indexOf(id)
	if idx < 0 {
		return ErrItemNotFound
	}
	b.Items = slices.Delete(b.Items, idx, idx+1)
	return nil
}

// Item returns a copy of the item with the given id.
func (b *Bill) Item(id string) (Item, error) {
	idx := b.indexOf(id)
	if idx < 0 {
		return Item{}, ErrItemNotFound
	}
	return b.Items[idx], nil
}

// Assign toggles participant on the item. It returns true when the
// participant is assigned after the call.
func (b *Bill) Assign(itemID, participant string) (bool, error) {
	idx := b.indexOf(itemID)
	if idx < 0 {
		return false, ErrItemNotFound
	}
	if !b.HasParticipant(participant) {
		return false, ErrParticipantNotFound
	}

	item := &b.Items[idx]
	if pos := slices.Index(item.AssignedTo, participant); pos >= 0 {
		item.AssignedTo = slices.Delete(item.AssignedTo, pos, pos+1)
		return false, nil
	}
	item.AssignedTo = append(item.AssignedTo, participant)
	return true, nil
}

// UnassignAll makes the item communal again.
func (b *Bill) UnassignAll(itemID string) error {
	idx := b.indexOf(itemID)
	if idx < 0 {
		return ErrItemNotFound
	}
	b.Items[idx].AssignedTo = []string{}
	return nil
}

// ParticipantsFor returns a copy of the item's assignees. An empty result
// means the item is shared by everyone.
func (b *Bill) ParticipantsFor(itemID string) ([]string, error) {
	idx := b.indexOf(itemID)
	if idx < 0 {
		return nil, ErrItemNotFound
	}
	return slices.Clone(b.Items[idx].AssignedTo), nil
}

// Split runs the allocation over the current state of the bill.
func (b *Bill) Split() Result {
	return Allocate(b.Items, b.Participants, b.TaxPct, b.TipPct)
}

// Clone returns a deep copy.
func (b *Bill) Clone() *Bill {
	out := *b
	out.Participants = slices.Clone(b.Participants)
	out.Items = make([]Item, len(b.Items))
	for i, item := range b.Items {
		item.AssignedTo = slices.Clone(item.AssignedTo)
		out.Items[i] = item
	}
	return &out
}

func (b *Bill) indexOf(id string) int {
	return slices.IndexFunc(b.Items, func(i Item) bool { return i.ID == id })
}

func (b *Bill) knownOnly(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if b.HasParticipant(n) {
			out = append(out, n)
		}
	}
	return out
}
