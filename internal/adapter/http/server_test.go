package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	httpadapter "github.com/haulware/dispatch-task-service/internal/adapter/http"
	"github.com/haulware/dispatch-task-service/internal/buffer"
	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
	"github.com/haulware/dispatch-task-service/internal/processor"
	"github.com/haulware/dispatch-task-service/internal/reconcile"
	"github.com/haulware/dispatch-task-service/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

// memStore backs the whole stack in memory for handler tests.
type memStore struct {
	inputs   map[string]*domain.InputMatch
	verified map[int64]*domain.VerifiedCoordinate
	orders   []domain.Order
	coords   []domain.VerifiedCoordinate
}

func newMemStore() *memStore {
	return &memStore{
		inputs:   make(map[string]*domain.InputMatch),
		verified: make(map[int64]*domain.VerifiedCoordinate),
	}
}

func (s *memStore) FindInput(_ context.Context, raw string) (*domain.InputMatch, error) {
	return s.inputs[raw], nil
}

func (s *memStore) FindCanonical(_ context.Context, _ string) (*domain.CanonicalAddress, error) {
	return nil, nil
}

func (s *memStore) CurrentVerified(_ context.Context, addressID int64) (*domain.VerifiedCoordinate, error) {
	return s.verified[addressID], nil
}

func (s *memStore) GoogleCoordinates(_ context.Context, addressID int64) (float64, float64, bool, error) {
	for _, m := range s.inputs {
		if m.AddressID == addressID {
			return m.GoogleLat, m.GoogleLng, true, nil
		}
	}
	return 0, 0, false, nil
}

func (s *memStore) UnverifiedAddresses(_ context.Context) ([]domain.UnverifiedAddress, error) {
	return nil, nil
}

func (s *memStore) LoadAddresses(_ context.Context, _ []domain.CanonicalAddress) error { return nil }
func (s *memStore) LoadAddressInputs(_ context.Context, _ []domain.AddressInput) error { return nil }
func (s *memStore) LoadVerifiedCoordinates(_ context.Context, rows []domain.VerifiedCoordinate) error {
	s.coords = append(s.coords, rows...)
	return nil
}

func (s *memStore) LoadOrders(_ context.Context, rows []domain.Order) error {
	s.orders = append(s.orders, rows...)
	return nil
}

func (s *memStore) seed(raw string, lat, lng float64) int64 {
	id := domain.AddressID(raw)
	s.inputs[raw] = &domain.InputMatch{
		AddressID:        id,
		FormattedAddress: domain.CanonicalFormattedAddress(raw),
		GoogleLat:        lat,
		GoogleLng:        lng,
	}
	return id
}

type fakeDispatcher struct {
	next int
}

func (d *fakeDispatcher) SubmitTask(_ context.Context, _ domain.TaskRecord, _ string) (string, error) {
	d.next++
	return fmt.Sprintf("%d", 9000+d.next), nil
}

func (d *fakeDispatcher) SubmitTasks(_ context.Context, tasks []domain.TaskRecord, _ string) ([]string, error) {
	ids := make([]string, len(tasks))
	for i := range tasks {
		d.next++
		ids[i] = fmt.Sprintf("%d", 9000+d.next)
	}
	return ids, nil
}

func (d *fakeDispatcher) FetchTasks(_ context.Context, _ []string) ([]domain.FleetTask, error) {
	return nil, nil
}

type fakeExtractor struct {
	orders []domain.ExtractedOrder
	err    error
}

func (e *fakeExtractor) Extract(_ context.Context, _ []byte) ([]domain.ExtractedOrder, error) {
	if e.err != nil {
		return nil, &domain.ExtractionError{Err: e.err}
	}
	return e.orders, nil
}

type serverOpts struct {
	readyErr  error
	extractor domain.OrderExtractor
	noProc    bool
}

func newTestServer(t *testing.T, store *memStore, opts serverOpts) *httpadapter.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()
	buffers := buffer.NewSet(store, 1000, logger, metrics)
	res := resolver.New(store, buffers, nil, nil, domain.DefaultCoordinateEpsilon, logger, metrics)

	var proc *processor.Processor
	var rec *reconcile.Reconciler
	if !opts.noProc {
		dispatcher := &fakeDispatcher{}
		proc = processor.New(res, dispatcher, nil, logger, metrics)
		rec = reconcile.New(res, dispatcher, 50, logger, metrics)
	}

	return httpadapter.NewServer(":0", &mockReadiness{err: opts.readyErr}, res, proc, rec, opts.extractor, logger)
}

func doRequest(srv *httpadapter.Server, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	srv.ServeHTTP(rec, httptest.NewRequest(method, target, reader))
	return rec
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyz(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz_NotReady(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{readyErr: errors.New("db unreachable")})
	rec := doRequest(srv, http.MethodGet, "/readyz", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "db unreachable")
}

func TestResolve(t *testing.T) {
	store := newMemStore()
	id := store.seed("123 Main St, Springfield", 39.7990175, -89.6439575)
	srv := newTestServer(t, store, serverOpts{})

	rec := doRequest(srv, http.MethodPost, "/v1/addresses/resolve",
		`{"address":"123 Main St, Springfield"}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AddressID int64   `json:"address_id"`
		Lat       float64 `json:"lat"`
		Verified  bool    `json:"verified"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id, body.AddressID)
	assert.Equal(t, 39.7990175, body.Lat)
	assert.False(t, body.Verified)
}

func TestResolve_MissingAddress(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodPost, "/v1/addresses/resolve", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolve_GeocodingDisabled(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodPost, "/v1/addresses/resolve", `{"address":"unknown place"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecordCoordinate(t *testing.T) {
	store := newMemStore()
	id := store.seed("Depot A", 52.52, 13.405)
	srv := newTestServer(t, store, serverOpts{})

	rec := doRequest(srv, http.MethodPost, "/v1/coordinates",
		fmt.Sprintf(`{"address_id":%d,"lat":52.5210,"lng":13.4060}`, id))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recorded":true`)

	// Same fix again is suppressed.
	rec = doRequest(srv, http.MethodPost, "/v1/coordinates",
		fmt.Sprintf(`{"address_id":%d,"lat":52.5210,"lng":13.4060}`, id))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recorded":false`)
}

func TestSubmitTask(t *testing.T) {
	store := newMemStore()
	store.seed("Depot A", 52.52, 13.405)
	srv := newTestServer(t, store, serverOpts{})

	rec := doRequest(srv, http.MethodPost, "/v1/tasks",
		`{"deviceNumber":"DEV-9","task":{"localId":"T-1","locationAddress":"Depot A"}}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var result domain.ProcessingResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "9001", result.TaskID)
	assert.Equal(t, "T-1", result.LocalID)
}

func TestSubmitTask_NoDispatcher(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{noProc: true})
	rec := doRequest(srv, http.MethodPost, "/v1/tasks",
		`{"deviceNumber":"DEV-9","task":{"localId":"T-1","locationAddress":"Depot A"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSubmitBulk(t *testing.T) {
	store := newMemStore()
	store.seed("Depot A", 52.52, 13.405)
	store.seed("Depot B", 48.8566, 2.3522)
	srv := newTestServer(t, store, serverOpts{})

	csv := strings.Join([]string{
		"localId,deviceNumber,locationAddress",
		"T-1,DEV-9,Depot A",
		"T-2,DEV-9,Depot B",
		"T-3,DEV-7,Depot A",
	}, "\n")
	rec := doRequest(srv, http.MethodPost, "/v1/tasks/bulk", csv)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Batches []struct {
			DeviceNumber string `json:"device_number"`
			Batch        struct {
				Results []domain.ProcessingResult `json:"results"`
			} `json:"batch"`
		} `json:"batches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Batches, 2, "one batch per device")
	assert.Equal(t, "DEV-9", body.Batches[0].DeviceNumber)
	assert.Len(t, body.Batches[0].Batch.Results, 2)
	assert.Equal(t, "DEV-7", body.Batches[1].DeviceNumber)
	assert.Len(t, body.Batches[1].Batch.Results, 1)
}

func TestSubmitBulk_MissingColumns(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodPost, "/v1/tasks/bulk", "localId,locationAddress\nT-1,Depot A")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "deviceNumber")
}

func TestDocument(t *testing.T) {
	store := newMemStore()
	store.seed("Warehouse 1, Berlin", 52.52, 13.405)
	store.seed("Dock 4, Hamburg", 53.5511, 9.9937)
	ext := &fakeExtractor{orders: []domain.ExtractedOrder{
		{Load: "Warehouse 1, Berlin", Unload: "Dock 4, Hamburg"},
	}}
	srv := newTestServer(t, store, serverOpts{extractor: ext})

	rec := doRequest(srv, http.MethodPost, "/v1/documents?deviceNumber=DEV-9", "%PDF-1.4 fake")

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		DeviceNumber string `json:"device_number"`
		Batch        struct {
			Results []domain.ProcessingResult `json:"results"`
		} `json:"batch"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DEV-9", body.DeviceNumber)
	assert.Len(t, body.Batch.Results, 2, "one pickup and one delivery")
}

func TestDocument_NoExtractor(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodPost, "/v1/documents?deviceNumber=DEV-9", "%PDF")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDocument_ExtractionFailure(t *testing.T) {
	ext := &fakeExtractor{err: errors.New("quota exceeded")}
	srv := newTestServer(t, newMemStore(), serverOpts{extractor: ext})
	rec := doRequest(srv, http.MethodPost, "/v1/documents?deviceNumber=DEV-9", "%PDF")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReconcile(t *testing.T) {
	srv := newTestServer(t, newMemStore(), serverOpts{})
	rec := doRequest(srv, http.MethodPost, "/v1/reconcile", "")

	require.Equal(t, http.StatusOK, rec.Code)

	var summary reconcile.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, reconcile.Summary{}, summary)
}

func TestFlush(t *testing.T) {
	store := newMemStore()
	id := store.seed("Depot A", 52.52, 13.405)
	srv := newTestServer(t, store, serverOpts{})

	rec := doRequest(srv, http.MethodPost, "/v1/coordinates",
		fmt.Sprintf(`{"address_id":%d,"lat":1,"lng":2}`, id))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/v1/flush", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.coords, 1, "buffered fix persisted on flush")
}
