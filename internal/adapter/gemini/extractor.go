// Package gemini implements shipping-document extraction using the Gemini
// generateContent API with a constrained JSON response schema.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
)

const systemPrompt = `You are an AI assistant that extracts logistics orders information from PDFs.
Extract all pairs of load and unload addresses.
Do not confuse and be extra careful with 'Sender' with 'Loading point' and 'Receiver' with 'Unloading point'.
Only extract 'Loading point' and 'Unloading point'.
Be thorough and accurate in your extraction.`

const mainPrompt = "Please extract the order(s) information from the attached PDF document."

// Extractor implements domain.OrderExtractor.
type Extractor struct {
	apiKey     string
	model      string
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewExtractor creates a document extractor for the given Gemini model.
func NewExtractor(apiKey, model string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Extractor {
	return &Extractor{
		apiKey: apiKey,
		model:  model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://generativelanguage.googleapis.com/v1beta",
		logger:  logger,
		metrics: metrics,
	}
}

// Extract pulls load/unload pairs out of a PDF. The model is forced onto a
// JSON schema, so the reply parses directly; at least one order is required.
func (e *Extractor) Extract(ctx context.Context, document []byte) ([]domain.ExtractedOrder, error) {
	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: systemPrompt},
				{InlineData: &inlineData{
					MIMEType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(document),
				}},
				{Text: mainPrompt},
			},
		}},
		GenerationConfig: generationConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   ordersSchema,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.ExtractionError{Err: fmt.Errorf("encode request: %w", err)}
	}

	u := fmt.Sprintf("%s/models/%s:generateContent?key=%s", e.baseURL, e.model, e.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, &domain.ExtractionError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("generate request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(resp.Body)
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("gemini API error: status %d: %s", resp.StatusCode, errBody)}
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("empty model response")}
	}

	var parsed ordersPayload
	if err := json.Unmarshal([]byte(gr.Candidates[0].Content.Parts[0].Text), &parsed); err != nil {
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("parse model output: %w", err)}
	}
	if len(parsed.Orders) == 0 {
		e.metrics.ExtractionRequests.WithLabelValues("error").Inc()
		return nil, &domain.ExtractionError{Err: fmt.Errorf("no orders found in document")}
	}
	e.metrics.ExtractionRequests.WithLabelValues("success").Inc()

	for i := range parsed.Orders {
		parsed.Orders[i].Clean()
	}
	return parsed.Orders, nil
}

// ordersSchema constrains the model output to the orders payload shape.
var ordersSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"orders": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"load":   map[string]any{"type": "string"},
					"unload": map[string]any{"type": "string"},
				},
				"required": []string{"load", "unload"},
			},
		},
	},
	"required": []string{"orders"},
}

type ordersPayload struct {
	Orders []domain.ExtractedOrder `json:"orders"`
}

// Gemini wire types.

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type"`
	ResponseSchema   any    `json:"response_schema"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}
