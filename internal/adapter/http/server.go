// Package http exposes the service over HTTP: health, readiness, and
// metrics endpoints plus the v1 dispatch API. Handlers are thin JSON shims
// over the core packages.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/processor"
	"github.com/haulware/dispatch-task-service/internal/reconcile"
	"github.com/haulware/dispatch-task-service/internal/resolver"
)

// maxDocumentSize bounds uploaded PDF bodies.
const maxDocumentSize = 32 << 20

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Server exposes the service's HTTP surface. Processor, reconciler, and
// extractor are optional; routes backed by an absent collaborator answer 503.
type Server struct {
	httpServer *http.Server
	resolver   *resolver.Resolver
	processor  *processor.Processor
	reconciler *reconcile.Reconciler
	extractor  domain.OrderExtractor
	logger     *slog.Logger
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, ready ReadinessChecker, res *resolver.Resolver, proc *processor.Processor, rec *reconcile.Reconciler, ext domain.OrderExtractor, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		resolver:   res,
		processor:  proc,
		reconciler: rec,
		extractor:  ext,
		logger:     logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/addresses/resolve", s.handleResolve)
	mux.HandleFunc("POST /v1/coordinates", s.handleRecordCoordinate)
	mux.HandleFunc("POST /v1/tasks", s.handleSubmitTask)
	mux.HandleFunc("POST /v1/tasks/bulk", s.handleSubmitBulk)
	mux.HandleFunc("POST /v1/documents", s.handleDocument)
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	mux.HandleFunc("POST /v1/flush", s.handleFlush)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

type resolveRequest struct {
	Address string `json:"address"`
}

type resolveResponse struct {
	AddressID        int64   `json:"address_id"`
	FormattedAddress string  `json:"formatted_address"`
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Verified         bool    `json:"verified"`
	GoogleLat        float64 `json:"google_lat"`
	GoogleLng        float64 `json:"google_lng"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	res, err := s.resolver.ResolveAddress(r.Context(), req.Address)
	if err != nil {
		s.writeResolverError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resolveResponse{
		AddressID:        res.AddressID,
		FormattedAddress: res.FormattedAddress,
		Lat:              res.Lat,
		Lng:              res.Lng,
		Verified:         res.Verified,
		GoogleLat:        res.GoogleLat,
		GoogleLng:        res.GoogleLng,
	})
}

type coordinateRequest struct {
	AddressID int64   `json:"address_id"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

func (s *Server) handleRecordCoordinate(w http.ResponseWriter, r *http.Request) {
	var req coordinateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AddressID == 0 {
		writeError(w, http.StatusBadRequest, "address_id is required")
		return
	}

	recorded, err := s.resolver.RecordFieldCoordinate(r.Context(), req.AddressID, req.Lat, req.Lng)
	if err != nil {
		s.writeResolverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

type submitTaskRequest struct {
	DeviceNumber string            `json:"deviceNumber"`
	Task         domain.TaskRecord `json:"task"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "task dispatch is not configured")
		return
	}

	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceNumber == "" || req.Task.LocalID == "" || req.Task.LocationAddress == "" {
		writeError(w, http.StatusBadRequest, "deviceNumber, task.localId, and task.locationAddress are required")
		return
	}

	result, err := s.processor.ProcessTask(r.Context(), req.Task, req.DeviceNumber)
	if err != nil {
		s.writeResolverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type bulkResponse struct {
	Batches []deviceBatch `json:"batches"`
}

type deviceBatch struct {
	DeviceNumber string                `json:"device_number"`
	Results      processor.BatchResult `json:"batch"`
}

func (s *Server) handleSubmitBulk(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "task dispatch is not configured")
		return
	}

	inputs, err := processor.ParseTasksCSV(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(inputs) == 0 {
		writeError(w, http.StatusBadRequest, "no valid tasks in CSV")
		return
	}

	// Group by device, preserving first-seen device order.
	var devices []string
	byDevice := make(map[string][]domain.TaskRecord)
	for _, in := range inputs {
		if _, seen := byDevice[in.DeviceNumber]; !seen {
			devices = append(devices, in.DeviceNumber)
		}
		byDevice[in.DeviceNumber] = append(byDevice[in.DeviceNumber], in.Task)
	}

	var resp bulkResponse
	for _, device := range devices {
		batch, err := s.processor.ProcessBatch(r.Context(), byDevice[device], device)
		if err != nil {
			s.writeResolverError(w, err)
			return
		}
		resp.Batches = append(resp.Batches, deviceBatch{DeviceNumber: device, Results: batch})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if s.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "document extraction is not configured")
		return
	}
	if s.processor == nil {
		writeError(w, http.StatusServiceUnavailable, "task dispatch is not configured")
		return
	}

	device := r.URL.Query().Get("deviceNumber")
	if device == "" {
		writeError(w, http.StatusBadRequest, "deviceNumber query parameter is required")
		return
	}

	document, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read document body: "+err.Error())
		return
	}
	if len(document) == 0 {
		writeError(w, http.StatusBadRequest, "empty document body")
		return
	}

	orders, err := s.extractor.Extract(r.Context(), document)
	if err != nil {
		s.writeResolverError(w, err)
		return
	}

	tasks := processor.TasksFromOrders(orders)
	batch, err := s.processor.ProcessBatch(r.Context(), tasks, device)
	if err != nil {
		s.writeResolverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceBatch{DeviceNumber: device, Results: batch})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconciler == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation is not configured")
		return
	}

	summary, err := s.reconciler.Run(r.Context())
	if err != nil {
		s.writeResolverError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.resolver.FlushAll(r.Context()); err != nil {
		s.logger.Error("flush failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// writeResolverError maps core errors onto HTTP statuses: disabled features
// are 503, upstream API failures are 502, everything else is 500.
func (s *Server) writeResolverError(w http.ResponseWriter, err error) {
	var geoErr *domain.GeocodingError
	var dispErr *domain.DispatchError
	var extErr *domain.ExtractionError

	switch {
	case errors.Is(err, domain.ErrValidationRequired):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &geoErr), errors.As(err, &dispErr), errors.As(err, &extErr):
		s.logger.Warn("upstream API failure", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
