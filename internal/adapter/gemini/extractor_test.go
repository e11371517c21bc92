package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testExtractor(baseURL string) *Extractor {
	return &Extractor{
		apiKey:     "test-key",
		model:      "gemini-2.0-flash",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:    observability.NewMetricsForTesting(),
	}
}

// modelReply wraps a model text payload in the generateContent response
// envelope.
func modelReply(t *testing.T, payload string) []byte {
	t.Helper()
	out, err := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{
				"parts": []map[string]any{{"text": payload}},
			}},
		},
	})
	require.NoError(t, err)
	return out
}

func TestExtract(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake document")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "gemini-2.0-flash:generateContent")
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		parts := req.Contents[0].Parts
		require.Len(t, parts, 3)
		assert.Contains(t, parts[0].Text, "Loading point")
		require.NotNil(t, parts[1].InlineData)
		assert.Equal(t, "application/pdf", parts[1].InlineData.MIMEType)
		assert.Equal(t, base64.StdEncoding.EncodeToString(pdf), parts[1].InlineData.Data)
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)

		_, _ = w.Write(modelReply(t, `{"orders":[
			{"load":"Warehouse 1,\nBerlin","unload":"Dock 4,  Hamburg"},
			{"load":"Plant 2, Munich","unload":"Depot 9, Cologne"}
		]}`))
	}))
	defer srv.Close()

	e := testExtractor(srv.URL)
	orders, err := e.Extract(context.Background(), pdf)
	require.NoError(t, err)

	require.Len(t, orders, 2)
	assert.Equal(t, "Warehouse 1, Berlin", orders[0].Load, "addresses cleaned")
	assert.Equal(t, "Dock 4, Hamburg", orders[0].Unload)
	assert.Equal(t, "Plant 2, Munich", orders[1].Load)
}

func TestExtract_NoOrders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(modelReply(t, `{"orders":[]}`))
	}))
	defer srv.Close()

	e := testExtractor(srv.URL)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)

	var extErr *domain.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Contains(t, extErr.Error(), "no orders")
}

func TestExtract_MalformedModelOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(modelReply(t, `not json`))
	}))
	defer srv.Close()

	e := testExtractor(srv.URL)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)

	var extErr *domain.ExtractionError
	require.ErrorAs(t, err, &extErr)
}

func TestExtract_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded"}}`))
	}))
	defer srv.Close()

	e := testExtractor(srv.URL)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestExtract_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	e := testExtractor(srv.URL)
	_, err := e.Extract(context.Background(), []byte("%PDF"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty model response")
}
