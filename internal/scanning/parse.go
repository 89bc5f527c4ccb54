package scanning

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/zombor/bill-splitter/internal/split"
)

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// dateFormats are tried in order when the model ignores the YYYY-MM-DD rule.
var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

type rawReceipt struct {
	Merchant json.RawMessage   `json:"merchant"`
	Date     json.RawMessage   `json:"date"`
	Currency json.RawMessage   `json:"currency"`
	Items    []json.RawMessage `json:"items"`
	TaxPct   json.RawMessage   `json:"taxPct"`
	TipPct   json.RawMessage   `json:"tipPct"`
}

// stripFences removes a surrounding markdown code block
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON reads a model response into ReceiptData. It tolerates
// code fences, chatter around the object and trailing commas.
func parseReceiptJSON(text string) (*ReceiptData, error) {
	text = stripFences(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("%w: no JSON object found in response", ErrMalformedResponse)
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx < startIdx {
		return nil, fmt.Errorf("%w: unterminated JSON object in response", ErrMalformedResponse)
	}
	text = text[startIdx : endIdx+1]

	var raw rawReceipt
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		repaired := trailingComma.ReplaceAllString(text, "$1")
		if err2 := json.Unmarshal([]byte(repaired), &raw); err2 != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		}
	}

	if len(raw.Items) == 0 {
		return nil, ErrNoItems
	}

	data := &ReceiptData{
		Merchant: strings.TrimSpace(stringField(raw.Merchant)),
		Date:     normalizeDate(stringField(raw.Date)),
		Currency: normalizeCurrency(stringField(raw.Currency)),
		Items:    make([]split.Item, 0, len(raw.Items)),
		TaxPct:   percentField(raw.TaxPct),
		TipPct:   percentField(raw.TipPct),
	}
	for i, msg := range raw.Items {
		item := split.Normalize(recordField(msg), i+1)
		item.ID = ""
		data.Items = append(data.Items, item)
	}

	return data, nil
}

func stringField(msg json.RawMessage) string {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return ""
	}
	return s
}

func recordField(msg json.RawMessage) split.Record {
	dec := json.NewDecoder(bytes.NewReader(msg))
	dec.UseNumber()
	var rec split.Record
	if err := dec.Decode(&rec); err != nil || rec == nil {
		return split.Record{}
	}
	return rec
}

func percentField(msg json.RawMessage) *float64 {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 || bytes.Equal(msg, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil
	}
	if !split.ValidPercent(v) {
		return nil
	}
	return &v
}

// normalizeDate returns the date as YYYY-MM-DD, or empty if it is unknown.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	for _, format := range dateFormats {
		if d, err := time.Parse(format, s); err == nil {
			return d.Format("2006-01-02")
		}
	}
	return ""
}

func normalizeCurrency(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 {
		return split.DefaultCurrency
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return split.DefaultCurrency
		}
	}
	return s
}
