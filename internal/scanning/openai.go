package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// OpenAI implements the Scanner interface against any OpenAI-compatible
// chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewOpenAI creates a new OpenAI Scanner instance
func NewOpenAI(baseURL, apiKey, modelName string) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o"
	}

	return &OpenAI{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		client:  &http.Client{Timeout: 90 * time.Second},
	}, nil
}

type openAIChatRequest struct {
	Model          string               `json:"model"`
	Messages       []openAIMessage      `json:"messages"`
	ResponseFormat openAIResponseFormat `json:"response_format"`
}

type openAIResponseFormat struct {
	Type string `json:"type"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAI) Name() string {
	return "openai:" + o.model
}

// ScanReceipt analyzes a receipt and extracts its line items
func (o *OpenAI) ScanReceipt(ctx context.Context, imageData []byte, contentType string) (*ReceiptData, error) {
	finalImageData, mimeType, err := PrepareImage(imageData, contentType)
	if err != nil {
		return nil, err
	}

	reqBody := openAIChatRequest{
		Model: o.model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContentPart{
				{Type: "text", Text: receiptScanPrompt},
				{Type: "image_url", ImageURL: &openAIImageURL{
					URL: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(finalImageData),
				}},
			},
		}},
		ResponseFormat: openAIResponseFormat{Type: "json_object"},
	}

	var chatResp openAIChatResponse
	header := http.Header{"Authorization": {"Bearer " + o.apiKey}}
	if err := postJSON(ctx, o.client, "openai", o.baseURL+"/chat/completions", header, reqBody, &chatResp); err != nil {
		return nil, err
	}
	if len(chatResp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	return parseReceiptJSON(chatResp.Choices[0].Message.Content)
}

// Close is a no-op for the HTTP client
func (o *OpenAI) Close() error {
	return nil
}
