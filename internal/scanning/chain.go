package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

// ErrNoStrategies is returned by a Chain with nothing to try.
var ErrNoStrategies = errors.New("no extraction strategies configured")

// Outcome tags the result of one extraction attempt.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeParseError    Outcome = "parse_error"
	OutcomeEmptyResponse Outcome = "empty_response"
	OutcomeRequestFailed Outcome = "request_failed"
	OutcomeUnavailable   Outcome = "unavailable"
)

// Attempt records one strategy's try.
type Attempt struct {
	Strategy string        `json:"strategy"`
	Outcome  Outcome       `json:"outcome"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// Extraction is a successful chain run.
type Extraction struct {
	Data     *ReceiptData
	Strategy string
	Attempts []Attempt
}

// ExtractionError is returned when every strategy failed.
type ExtractionError struct {
	Attempts []Attempt
}

func (e *ExtractionError) Error() string {
	if len(e.Attempts) == 0 {
		return "extraction failed: no strategy was attempted"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Strategy, a.Outcome))
	}
	return "extraction failed (" + strings.Join(parts, ", ") + ")"
}

func (e *ExtractionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

type strategy struct {
	scanner Scanner
	breaker *gobreaker.CircuitBreaker
}

// Chain tries scanners in priority order until one returns a structurally
// valid receipt. Each scanner sits behind its own circuit breaker, which
// trips only on request failures: a model that answers with bad JSON is up,
// just wrong.
type Chain struct {
	strategies  []strategy
	timeout     time.Duration
	maxFailures uint32
	cooldown    time.Duration
	onAttempt   func(Attempt)
}

// ChainOption configures a Chain
type ChainOption func(*Chain)

// WithAttemptTimeout bounds each strategy's call.
func WithAttemptTimeout(d time.Duration) ChainOption {
	return func(c *Chain) { c.timeout = d }
}

// WithBreaker sets how many consecutive request failures open a strategy's
// breaker and how long it stays open.
func WithBreaker(maxFailures uint32, cooldown time.Duration) ChainOption {
	return func(c *Chain) {
		c.maxFailures = maxFailures
		c.cooldown = cooldown
	}
}

// WithAttemptHook is called after every attempt, e.g. to record metrics.
func WithAttemptHook(fn func(Attempt)) ChainOption {
	return func(c *Chain) { c.onAttempt = fn }
}

// NewChain builds a chain over scanners, highest priority first.
func NewChain(scanners []Scanner, opts ...ChainOption) *Chain {
	c := &Chain{
		timeout:     60 * time.Second,
		maxFailures: 3,
		cooldown:    time.Minute,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, s := range scanners {
		c.strategies = append(c.strategies, strategy{
			scanner: s,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        s.Name(),
				MaxRequests: 1,
				Timeout:     c.cooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= c.maxFailures
				},
				IsSuccessful: func(err error) bool {
					return err == nil || !isRequestFailure(err)
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					slog.Warn("Extraction strategy breaker changed state",
						"strategy", name, "from", from.String(), "to", to.String())
				},
			}),
		})
	}
	return c
}

// Names lists the strategies in priority order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.strategies))
	for _, s := range c.strategies {
		names = append(names, s.scanner.Name())
	}
	return names
}

// Extract converts the image once and runs the strategies in order. It
// stops early if ctx is cancelled.
func (c *Chain) Extract(ctx context.Context, imageData []byte, contentType string) (*Extraction, error) {
	if len(c.strategies) == 0 {
		return nil, ErrNoStrategies
	}

	pngData, mimeType, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	attempts := make([]Attempt, 0, len(c.strategies))
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}

		data, attempt := c.try(ctx, s, pngData, mimeType)
		attempts = append(attempts, attempt)
		if c.onAttempt != nil {
			c.onAttempt(attempt)
		}

		if attempt.Outcome == OutcomeSuccess {
			return &Extraction{Data: data, Strategy: attempt.Strategy, Attempts: attempts}, nil
		}
		slog.Warn("Extraction strategy failed",
			"strategy", attempt.Strategy,
			"outcome", attempt.Outcome,
			"error", attempt.Err,
		)
	}

	return nil, &ExtractionError{Attempts: attempts}
}

func (c *Chain) try(ctx context.Context, s strategy, imageData []byte, mimeType string) (*ReceiptData, Attempt) {
	attempt := Attempt{Strategy: s.scanner.Name()}
	start := time.Now()

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.scanner.ScanReceipt(callCtx, imageData, mimeType)
	})
	attempt.Duration = time.Since(start)
	attempt.Outcome = classify(err)
	if err != nil {
		attempt.Err = err
		attempt.Error = err.Error()
		return nil, attempt
	}

	data, _ := result.(*ReceiptData)
	if data == nil {
		attempt.Outcome = OutcomeEmptyResponse
		attempt.Err = ErrEmptyResponse
		attempt.Error = ErrEmptyResponse.Error()
	}
	return data, attempt
}

func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return OutcomeUnavailable
	case errors.Is(err, ErrEmptyResponse):
		return OutcomeEmptyResponse
	case errors.Is(err, ErrMalformedResponse), errors.Is(err, ErrNoItems):
		return OutcomeParseError
	default:
		return OutcomeRequestFailed
	}
}

func isRequestFailure(err error) bool {
	return classify(err) == OutcomeRequestFailed && !errors.Is(err, context.Canceled)
}
