package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

const modelReply = `{"merchant": "Diner", "items": [{"name": "Burger", "qty": 1, "price": 12.99}], "taxPct": 0.13}`

var _ = Describe("Ollama", func() {
	var (
		server  *ghttp.Server
		scanner *Ollama
		data    *ReceiptData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		server.SetAllowUnhandledRequests(true)
		var newErr error
		scanner, newErr = NewOllama(server.URL()+"/", "llava")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanReceipt(context.Background(), []byte("png"), "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(decodeJSON(r, &req)).To(Succeed())
					Expect(req.Model).To(Equal("llava"))
					Expect(req.Format).To(Equal("json"))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: modelReply},
					Done:    true,
				}),
			))
		})

		It("parses the receipt", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Merchant).To(Equal("Diner"))
			Expect(data.Items).To(HaveLen(1))
			Expect(data.TaxPct).To(HaveValue(Equal(0.13)))
		})
	})

	When("the server errors", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns a request error", func() {
			Expect(err).To(MatchError(ContainSubstring("status 500")))
			Expect(classify(err)).To(Equal(OutcomeRequestFailed))

			var apiErr *APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusInternalServerError))
			Expect(apiErr.Body).To(Equal("model not loaded"))
		})
	})

	It("names itself after the model", func() {
		Expect(scanner.Name()).To(Equal("ollama:llava"))
	})
})

var _ = Describe("OpenAI", func() {
	var (
		server  *ghttp.Server
		scanner *OpenAI
		data    *ReceiptData
		err     error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		server.SetAllowUnhandledRequests(true)
		var newErr error
		scanner, newErr = NewOpenAI(server.URL(), "sk-test", "gpt-4o-mini")
		Expect(newErr).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanReceipt(context.Background(), []byte("png"), "image/png")
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/chat/completions"),
				ghttp.VerifyHeaderKV("Authorization", "Bearer sk-test"),
				func(w http.ResponseWriter, r *http.Request) {
					var req openAIChatRequest
					Expect(decodeJSON(r, &req)).To(Succeed())
					Expect(req.Model).To(Equal("gpt-4o-mini"))
					Expect(req.ResponseFormat.Type).To(Equal("json_object"))
					Expect(req.Messages[0].Content[1].ImageURL.URL).To(HavePrefix("data:image/png;base64,"))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
					"choices": []any{map[string]any{
						"message": map[string]any{
							"content": "```json\n{\"items\": [{\"name\": \"Tea\", \"price\": 2}]}\n```",
						},
					}},
				}),
			))
		})

		It("parses the fenced reply", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Items).To(HaveLen(1))
			Expect(data.Items[0].Name).To(Equal("Tea"))
		})
	})

	When("there are no choices", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusOK, `{"choices": []}`))
		})

		It("returns ErrEmptyResponse", func() {
			Expect(err).To(MatchError(ErrEmptyResponse))
		})
	})

	When("the key is rejected", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusUnauthorized, `{"error": "bad key"}`))
		})

		It("returns a request error", func() {
			Expect(classify(err)).To(Equal(OutcomeRequestFailed))
		})
	})

	It("requires an API key", func() {
		_, newErr := NewOpenAI("", "", "")
		Expect(newErr).To(HaveOccurred())
	})
})

var _ = Describe("geminiText", func() {
	It("joins the text parts of the first candidate", func() {
		resp := &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"items": `), genai.Text(`[]}`)}},
			}},
		}
		Expect(geminiText(resp)).To(Equal(`{"items": []}`))
	})

	It("is empty without candidates", func() {
		Expect(geminiText(&genai.GenerateContentResponse{})).To(BeEmpty())
		Expect(geminiText(nil)).To(BeEmpty())
	})
})
