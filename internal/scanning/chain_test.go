package scanning

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-splitter/internal/split"
)

// mockScanner is a mock implementation of Scanner
type mockScanner struct {
	name  string
	data  *ReceiptData
	err   error
	calls int
	seen  string
}

func (m *mockScanner) Name() string { return m.name }

func (m *mockScanner) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	m.calls++
	m.seen = contentType
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

func (m *mockScanner) Close() error { return nil }

func receiptWithItems() *ReceiptData {
	return &ReceiptData{
		Currency: "USD",
		Items:    []split.Item{{Name: "Burger", Quantity: 1, UnitPrice: 12.99}},
	}
}

var _ = Describe("Chain", func() {
	var (
		primary   *mockScanner
		secondary *mockScanner
		chain     *Chain
		opts      []ChainOption
		ctx       context.Context
		result    *Extraction
		err       error
	)

	BeforeEach(func() {
		ctx = context.Background()
		primary = &mockScanner{name: "gemini:test", data: receiptWithItems()}
		secondary = &mockScanner{name: "openai:test", data: receiptWithItems()}
		opts = nil
	})

	JustBeforeEach(func() {
		chain = NewChain([]Scanner{primary, secondary}, opts...)
		result, err = chain.Extract(ctx, []byte("png bytes"), "image/png")
	})

	When("the first strategy succeeds", func() {
		It("returns its data", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Strategy).To(Equal("gemini:test"))
			Expect(result.Data.Items).To(HaveLen(1))
		})

		It("does not call the next strategy", func() {
			Expect(secondary.calls).To(BeZero())
		})

		It("records one successful attempt", func() {
			Expect(result.Attempts).To(HaveLen(1))
			Expect(result.Attempts[0].Outcome).To(Equal(OutcomeSuccess))
		})

		It("passes the prepared PNG to the scanner", func() {
			Expect(primary.seen).To(Equal("image/png"))
		})
	})

	When("the first strategy returns malformed JSON", func() {
		BeforeEach(func() {
			primary.err = ErrMalformedResponse
		})

		It("falls back to the next strategy", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Strategy).To(Equal("openai:test"))
		})

		It("tags the failed attempt", func() {
			Expect(result.Attempts).To(HaveLen(2))
			Expect(result.Attempts[0].Outcome).To(Equal(OutcomeParseError))
		})
	})

	When("every strategy fails", func() {
		BeforeEach(func() {
			primary.err = ErrEmptyResponse
			secondary.err = errors.New("connection refused")
		})

		It("returns an ExtractionError with every attempt", func() {
			var extractionErr *ExtractionError
			Expect(errors.As(err, &extractionErr)).To(BeTrue())
			Expect(extractionErr.Attempts).To(HaveLen(2))
			Expect(extractionErr.Attempts[0].Outcome).To(Equal(OutcomeEmptyResponse))
			Expect(extractionErr.Attempts[1].Outcome).To(Equal(OutcomeRequestFailed))
		})

		It("unwraps to the underlying errors", func() {
			Expect(errors.Is(err, ErrEmptyResponse)).To(BeTrue())
		})
	})

	When("a scanner returns no data and no error", func() {
		BeforeEach(func() {
			primary.data = nil
		})

		It("counts it as an empty response", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Attempts[0].Outcome).To(Equal(OutcomeEmptyResponse))
		})
	})

	When("the context is already cancelled", func() {
		BeforeEach(func() {
			cancelled, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = cancelled
		})

		It("stops without calling any strategy", func() {
			Expect(err).To(HaveOccurred())
			Expect(primary.calls).To(BeZero())
		})
	})

	When("an attempt hook is set", func() {
		var seen []Attempt

		BeforeEach(func() {
			seen = nil
			primary.err = ErrNoItems
			opts = []ChainOption{WithAttemptHook(func(a Attempt) { seen = append(seen, a) })}
		})

		It("is called for every attempt", func() {
			Expect(seen).To(HaveLen(2))
			Expect(seen[0].Outcome).To(Equal(OutcomeParseError))
			Expect(seen[1].Outcome).To(Equal(OutcomeSuccess))
		})
	})

	When("there are no strategies", func() {
		It("returns ErrNoStrategies", func() {
			_, err := NewChain(nil).Extract(ctx, []byte("x"), "image/png")
			Expect(err).To(MatchError(ErrNoStrategies))
		})
	})

	Describe("circuit breaking", func() {
		BeforeEach(func() {
			opts = []ChainOption{WithBreaker(2, time.Hour)}
		})

		It("opens after repeated request failures", func() {
			primary.err = errors.New("503 from upstream")
			for i := 0; i < 2; i++ {
				_, _ = chain.Extract(ctx, []byte("png"), "image/png")
			}
			callsBefore := primary.calls

			res, extractErr := chain.Extract(ctx, []byte("png"), "image/png")
			Expect(extractErr).NotTo(HaveOccurred())
			Expect(primary.calls).To(Equal(callsBefore))
			Expect(res.Attempts[0].Outcome).To(Equal(OutcomeUnavailable))
			Expect(res.Strategy).To(Equal("openai:test"))
		})

		It("does not open on parse errors", func() {
			primary.err = ErrMalformedResponse
			for i := 0; i < 5; i++ {
				_, _ = chain.Extract(ctx, []byte("png"), "image/png")
			}
			callsBefore := primary.calls

			res, extractErr := chain.Extract(ctx, []byte("png"), "image/png")
			Expect(extractErr).NotTo(HaveOccurred())
			Expect(primary.calls).To(Equal(callsBefore + 1))
			Expect(res.Attempts[0].Outcome).To(Equal(OutcomeParseError))
		})
	})

	Describe("Names", func() {
		It("lists strategies in priority order", func() {
			Expect(chain.Names()).To(Equal([]string{"gemini:test", "openai:test"}))
		})
	})
})
