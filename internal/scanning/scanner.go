package scanning

import (
	"context"
	"errors"

	"github.com/zombor/bill-splitter/internal/split"
)

var (
	// ErrEmptyResponse means the model answered with no usable text.
	ErrEmptyResponse = errors.New("empty response from model")

	// ErrMalformedResponse means the model's text could not be read as a
	// receipt JSON object.
	ErrMalformedResponse = errors.New("malformed receipt JSON")

	// ErrNoItems means the receipt JSON parsed but listed no line items.
	ErrNoItems = errors.New("receipt has no line items")

	// ErrUnreadableImage means the upload could not be converted to PNG.
	ErrUnreadableImage = errors.New("unreadable image")
)

// ReceiptData is what a model read off a receipt, already filtered: items
// are normalized, the date is YYYY-MM-DD or empty, and percentages outside
// the accepted range are dropped.
type ReceiptData struct {
	Merchant string       `json:"merchant,omitempty"`
	Date     string       `json:"date,omitempty"`
	Currency string       `json:"currency"`
	Items    []split.Item `json:"items"`
	TaxPct   *float64     `json:"tax_pct,omitempty"`
	TipPct   *float64     `json:"tip_pct,omitempty"`
}

// Scanner extracts receipt data from an image using one model.
type Scanner interface {
	// Name identifies the provider and model, e.g. "gemini:gemini-2.5-pro".
	Name() string
	// ScanReceipt analyzes a receipt image or PDF
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error)
	// Close releases client resources
	Close() error
}
