package scanning

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

const ollamaSystemPrompt = "You read receipts for people splitting a bill. Report exactly what is printed, one entry per line item."

// Ollama reads receipts with a vision model served by a local Ollama
type Ollama struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllama creates an Ollama strategy. The model must be vision-capable,
// e.g. llava or qwen2-vl.
func NewOllama(baseURL string, modelName string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llava"
	}

	return &Ollama{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		// Local vision models are slow; the chain's attempt timeout still applies
		client: &http.Client{Timeout: 180 * time.Second},
	}, nil
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *Ollama) Name() string {
	return "ollama:" + o.model
}

// ScanReceipt sends the receipt image to /api/chat in JSON mode
func (o *Ollama) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	pngData, _, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	req := ollamaChatRequest{
		Model:   o.model,
		Format:  "json",
		Options: map[string]any{"temperature": 0},
		Messages: []ollamaMessage{
			{Role: "system", Content: ollamaSystemPrompt},
			{
				Role:    "user",
				Content: receiptScanPrompt,
				Images:  []string{base64.StdEncoding.EncodeToString(pngData)},
			},
		},
	}

	var resp ollamaChatResponse
	if err := postJSON(ctx, o.client, "ollama", o.baseURL+"/api/chat", nil, req, &resp); err != nil {
		return nil, err
	}
	return parseReceiptJSON(resp.Message.Content)
}

// Close is a no-op for the HTTP client
func (o *Ollama) Close() error {
	return nil
}
