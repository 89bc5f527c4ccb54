package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/bill-splitter/internal/scanning"
	"github.com/zombor/bill-splitter/internal/split"
)

var (
	// ErrProtectedParticipant is returned when removing the primary participant
	ErrProtectedParticipant = errors.New("the primary participant cannot be removed")

	// ErrNoImage is returned for receipts entered by hand
	ErrNoImage = errors.New("receipt has no image")

	// ErrInvalidInput wraps request validation failures
	ErrInvalidInput = errors.New("invalid input")
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// Extractor reads receipt data from an image
type Extractor interface {
	Extract(ctx context.Context, imageData []byte, contentType string) (*scanning.Extraction, error)
}

// uuidGenerator generates random UUIDs
type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Settings are the defaults applied to new receipts
type Settings struct {
	PrimaryParticipant string
	DefaultPercentages split.Percentages
	DefaultCurrency    string
}

// DefaultSettings returns the stock defaults
func DefaultSettings() Settings {
	return Settings{
		PrimaryParticipant: "You",
		DefaultPercentages: split.DefaultPercentages(),
		DefaultCurrency:    split.DefaultCurrency,
	}
}

// Validate checks that the settings can seed a usable bill
func (s Settings) Validate() error {
	if strings.TrimSpace(s.PrimaryParticipant) == "" {
		return fmt.Errorf("primary participant: %w", split.ErrInvalidParticipant)
	}
	return s.DefaultPercentages.Validate()
}

// Service handles receipt operations
type Service struct {
	db          DB
	extractor   Extractor
	storage     Storage
	settings    Settings
	metrics     *Metrics
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor Extractor, storage Storage, settings Settings) *Service {
	return NewServiceWithDeps(db, extractor, storage, settings, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor Extractor, storage Storage, settings Settings, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		storage:     storage,
		settings:    settings,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// SetMetrics attaches Prometheus collectors
func (s *Service) SetMetrics(m *Metrics) {
	s.metrics = m
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename cleans up a filename by removing special characters and truncating length
func sanitizeFilename(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = repeatedSpaces.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")

	// Phone cameras produce long names
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "receipt"
	}
	return base + ext
}

func (s *Service) newBill(currency string, pct split.Percentages) *split.Bill {
	if currency == "" {
		currency = s.settings.DefaultCurrency
	}
	return split.NewBill(currency, pct, s.settings.PrimaryParticipant)
}

// ScanReceipt stores an uploaded image, extracts its line items and saves
// the new receipt. The stored image is removed if anything after the upload
// fails.
func (s *Service) ScanReceipt(ctx context.Context, filename string, data []byte, contentType string) (*Receipt, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	key := fmt.Sprintf("receipts/%d-%s-%s", now.UnixMilli(), id, sanitizeFilename(filename))
	obj, err := s.storage.Store(ctx, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("storing image: %w", err)
	}

	extraction, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.discardImage(ctx, key)
		return nil, fmt.Errorf("extracting receipt: %w", err)
	}

	extracted := extraction.Data
	pct := s.settings.DefaultPercentages
	if extracted.TaxPct != nil {
		pct.Tax = *extracted.TaxPct
	}
	if extracted.TipPct != nil {
		pct.Tip = *extracted.TipPct
	}

	bill := s.newBill(extracted.Currency, pct)
	for _, item := range extracted.Items {
		// Model output can repeat ids; the bill hands out its own
		item.ID = ""
		if _, err := bill.AddItem(item); err != nil {
			s.discardImage(ctx, key)
			return nil, fmt.Errorf("adding extracted item: %w", err)
		}
	}

	title := extracted.Merchant
	if title == "" {
		title = strings.TrimSuffix(sanitizeFilename(filename), strings.ToLower(filepath.Ext(filename)))
	}

	receipt := &Receipt{
		ID:          id,
		Title:       title,
		Merchant:    extracted.Merchant,
		Date:        extracted.Date,
		Source:      SourceScan,
		ImageKey:    obj.Key,
		ImageURL:    obj.URL,
		ContentType: obj.ContentType,
		ExtractedBy: extraction.Strategy,
		Bill:        *bill,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.discardImage(ctx, key)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	s.metrics.receiptCreated(SourceScan)
	slog.Info("Receipt scanned",
		"id", id,
		"strategy", extraction.Strategy,
		"items", len(receipt.Bill.Items),
		"attempts", len(extraction.Attempts),
	)
	return receipt, nil
}

func (s *Service) discardImage(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		slog.Warn("Failed to delete image", "key", key, "error", err)
	}
}

// ManualReceipt is a receipt typed in by hand
type ManualReceipt struct {
	Title        string         `json:"title"`
	Merchant     string         `json:"merchant"`
	Date         string         `json:"date"`
	Currency     string         `json:"currency"`
	TaxPct       *float64       `json:"tax_pct"`
	TipPct       *float64       `json:"tip_pct"`
	Participants []string       `json:"participants"`
	Items        []split.Record `json:"items"`
}

func (s *Service) percentages(tax, tip *float64) (split.Percentages, error) {
	pct := s.settings.DefaultPercentages
	if tax != nil {
		pct.Tax = *tax
	}
	if tip != nil {
		pct.Tip = *tip
	}
	if err := pct.Validate(); err != nil {
		return split.Percentages{}, err
	}
	return pct, nil
}

// buildBill assembles a bill from loosely-typed request data. The primary
// participant is only seeded when withPrimary is set.
func (s *Service) buildBill(currency string, tax, tip *float64, participants []string, items []split.Record, withPrimary bool) (*split.Bill, error) {
	pct, err := s.percentages(tax, tip)
	if err != nil {
		return nil, err
	}

	var bill *split.Bill
	if withPrimary {
		bill = s.newBill(currency, pct)
	} else {
		bill = split.NewBill(firstNonBlank(currency, s.settings.DefaultCurrency), pct)
	}
	for _, p := range participants {
		if _, err := bill.AddParticipant(p); err != nil && !errors.Is(err, split.ErrInvalidParticipant) {
			return nil, err
		}
	}
	for _, item := range split.NormalizeAll(items) {
		if _, err := bill.AddItem(item); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	return bill, nil
}

// CreateReceipt saves a receipt entered by hand
func (s *Service) CreateReceipt(req ManualReceipt) (*Receipt, error) {
	bill, err := s.buildBill(req.Currency, req.TaxPct, req.TipPct, req.Participants, req.Items, true)
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSpace(req.Merchant)
	}
	if title == "" {
		title = "Receipt " + now.Format("2006-01-02")
	}

	receipt := &Receipt{
		ID:        s.idGenerator.Generate(),
		Title:     title,
		Merchant:  strings.TrimSpace(req.Merchant),
		Date:      strings.TrimSpace(req.Date),
		Source:    SourceManual,
		Bill:      *bill,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	s.metrics.receiptCreated(SourceManual)
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its image
func (s *Service) DeleteReceipt(ctx context.Context, id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if receipt.ImageKey != "" {
		// Log error but continue with database deletion
		s.discardImage(ctx, receipt.ImageKey)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptImage retrieves the uploaded image for a receipt
func (s *Service) GetReceiptImage(ctx context.Context, id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}
	if receipt.ImageKey == "" {
		return nil, "", ErrNoImage
	}
	return s.FetchImage(ctx, receipt.ImageKey)
}

// FetchImage reads a stored image by key
func (s *Service) FetchImage(ctx context.Context, key string) ([]byte, string, error) {
	data, contentType, err := s.storage.Fetch(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("fetching image: %w", err)
	}
	return data, contentType, nil
}

// summarize computes the split for a receipt
func (s *Service) summarize(receipt *Receipt) *Summary {
	result := receipt.Bill.Split()
	if result.HasUnallocated() {
		slog.Warn("Split has unallocated funds",
			"receipt", receipt.ID,
			"amount", result.Unallocated,
			"items", result.UnallocatedItemIDs,
		)
		s.metrics.unallocatedSplit()
	}
	return &Summary{
		Receipt:          receipt,
		Split:            result,
		Rounded:          result.Rounded(),
		FundsUnallocated: result.HasUnallocated(),
	}
}

// Split computes the current split of a receipt
func (s *Service) Split(id string) (*Summary, error) {
	receipt, err := s.GetReceipt(id)
	if err != nil {
		return nil, err
	}
	return s.summarize(receipt), nil
}

// edit applies fn to a receipt's bill atomically and returns the new split
func (s *Service) edit(id string, fn func(*split.Bill) error) (*Summary, error) {
	receipt, err := s.db.UpdateReceipt(id, func(r *Receipt) error {
		if err := fn(&r.Bill); err != nil {
			return err
		}
		r.UpdatedAt = s.timeSource.Now()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("updating receipt %s: %w", id, err)
	}
	return s.summarize(receipt), nil
}

// AddItem appends a line item
func (s *Service) AddItem(id string, rec split.Record) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		_, err := b.AddItem(split.Normalize(rec, len(b.Items)+1))
		return err
	})
}

// UpdateItem changes an item's name, quantity or price
func (s *Service) UpdateItem(id, itemID string, patch split.ItemPatch) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		_, err := b.UpdateItem(itemID, patch)
		return err
	})
}

// DeleteItem removes an item and its assignments
func (s *Service) DeleteItem(id, itemID string) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		return b.RemoveItem(itemID)
	})
}

// ToggleAssignment assigns or unassigns a participant on an item
func (s *Service) ToggleAssignment(id, itemID, participant string) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		_, err := b.Assign(itemID, participant)
		return err
	})
}

// ClearAssignments makes an item communal
func (s *Service) ClearAssignments(id, itemID string) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		return b.UnassignAll(itemID)
	})
}

// AddParticipant adds someone to the bill. Adding an existing name is a no-op.
func (s *Service) AddParticipant(id, name string) (*Summary, error) {
	return s.edit(id, func(b *split.Bill) error {
		_, err := b.AddParticipant(name)
		return err
	})
}

// RemoveParticipant takes someone off the bill along with their assignments
func (s *Service) RemoveParticipant(id, name string) (*Summary, error) {
	if name == s.settings.PrimaryParticipant {
		return nil, ErrProtectedParticipant
	}
	return s.edit(id, func(b *split.Bill) error {
		return b.RemoveParticipant(name)
	})
}

// SetPercentages replaces the tax and tip fractions
func (s *Service) SetPercentages(id string, pct split.Percentages) (*Summary, error) {
	if err := pct.Validate(); err != nil {
		return nil, err
	}
	return s.edit(id, func(b *split.Bill) error {
		return b.SetPercentages(pct)
	})
}

// Calculation is the response of a stateless split
type Calculation struct {
	Bill             *split.Bill         `json:"bill"`
	Split            split.Result        `json:"split"`
	Rounded          split.RoundedResult `json:"rounded"`
	FundsUnallocated bool                `json:"funds_unallocated"`
}

// CalculateRequest is a bill to split without saving it
type CalculateRequest struct {
	Currency     string         `json:"currency"`
	TaxPct       *float64       `json:"tax_pct"`
	TipPct       *float64       `json:"tip_pct"`
	Participants []string       `json:"participants"`
	Items        []split.Record `json:"items"`
}

// Calculate splits a bill without persisting anything. Item assignees are
// taken from each record's assigned_to list. The primary participant is
// only added when the request names no participants.
func (s *Service) Calculate(req CalculateRequest) (*Calculation, error) {
	// A caller that names the diners gets exactly those diners
	bill, err := s.buildBill(req.Currency, req.TaxPct, req.TipPct, req.Participants, req.Items, !namesAnyone(req.Participants))
	if err != nil {
		return nil, err
	}
	result := bill.Split()
	return &Calculation{
		Bill:             bill,
		Split:            result,
		Rounded:          result.Rounded(),
		FundsUnallocated: result.HasUnallocated(),
	}, nil
}

func namesAnyone(participants []string) bool {
	for _, p := range participants {
		if strings.TrimSpace(p) != "" {
			return true
		}
	}
	return false
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
