package split

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
)

// Item is a single receipt line.
type Item struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Quantity   int      `json:"quantity"`
	UnitPrice  float64  `json:"unit_price"`
	AssignedTo []string `json:"assigned_to"`
}

// Cost returns quantity * unit price.
func (i Item) Cost() float64 {
	return float64(i.Quantity) * i.UnitPrice
}

// Communal reports whether the item has no explicit assignees.
func (i Item) Communal() bool {
	return len(i.AssignedTo) == 0
}

// Normalize returns a copy of the item with defaults substituted for invalid
// fields. position is 1-based and only used for the placeholder name.
func (i Item) Normalize(position int) Item {
	out := i
	if strings.TrimSpace(out.Name) == "" {
		out.Name = placeholderName(position)
	}
	if out.Quantity < 1 || out.Quantity > math.MaxInt32 {
		out.Quantity = 1
	}
	if !validPrice(out.UnitPrice) {
		out.UnitPrice = 0
	}
	out.AssignedTo = uniqueNames(i.AssignedTo)
	return out
}

// Record is a loosely-typed line item as decoded from JSON.
type Record map[string]any

var (
	quantityKeys = []string{"qty", "quantity"}
	priceKeys    = []string{"price", "unitPrice", "unit_price"}
)

// Normalize coerces a raw record into a valid Item. It never fails: every
// field that is missing or malformed gets its default. Strings are never
// parsed as numbers.
func Normalize(rec Record, position int) Item {
	item := Item{
		Name:      placeholderName(position),
		Quantity:  1,
		UnitPrice: 0,
	}

	if name, ok := rec["name"].(string); ok && strings.TrimSpace(name) != "" {
		item.Name = name
	}
	if id, ok := rec["id"].(string); ok {
		item.ID = strings.TrimSpace(id)
	}

	for _, key := range quantityKeys {
		if q, ok := quantityValue(rec[key]); ok {
			item.Quantity = q
			break
		}
	}
	for _, key := range priceKeys {
		if p, ok := numberValue(rec[key]); ok && validPrice(p) {
			item.UnitPrice = p
			break
		}
	}

	item.AssignedTo = uniqueNames(stringList(rec["assigned_to"]))
	return item
}

// NormalizeAll normalizes records in order, numbering placeholders from 1.
func NormalizeAll(recs []Record) []Item {
	items := make([]Item, 0, len(recs))
	for i, rec := range recs {
		items = append(items, Normalize(rec, i+1))
	}
	return items
}

func placeholderName(position int) string {
	return fmt.Sprintf("Item %d", position)
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

func quantityValue(v any) (int, bool) {
	f, ok := numberValue(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f <= 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func numberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, e := range list {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// uniqueNames trims names and drops empties and duplicates, keeping first
// occurrence order.
func uniqueNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}
