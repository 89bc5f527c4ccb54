package receipt

import (
	"time"

	"github.com/zombor/bill-splitter/internal/split"
)

// Source records how a receipt was created
type Source string

const (
	SourceScan   Source = "scan"
	SourceManual Source = "manual"
)

// Receipt is a stored bill plus where it came from
type Receipt struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Merchant    string     `json:"merchant,omitempty"`
	Date        string     `json:"date,omitempty"` // YYYY-MM-DD when known
	Source      Source     `json:"source"`
	ImageKey    string     `json:"image_key,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	ExtractedBy string     `json:"extracted_by,omitempty"` // strategy that read the image
	Bill        split.Bill `json:"bill"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Summary is a receipt with its split computed on read
type Summary struct {
	Receipt          *Receipt            `json:"receipt"`
	Split            split.Result        `json:"split"`
	Rounded          split.RoundedResult `json:"rounded"`
	FundsUnallocated bool                `json:"funds_unallocated"`
}
