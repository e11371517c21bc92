// Package reconcile implements the out-of-band pass that pulls
// device-reported positions from the fleet tracker for dispatched tasks whose
// addresses still lack a verified coordinate, and feeds them into the ledger.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
	"github.com/haulware/dispatch-task-service/internal/resolver"
)

// DefaultChunkSize bounds the task-id list per fetch; ids travel in a URL
// query parameter.
const DefaultChunkSize = 50

// Summary reports one reconciliation run.
type Summary struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Unchanged  int `json:"unchanged"`
	Failed     int `json:"failed"`
}

// Reconciler drives reconciliation runs.
type Reconciler struct {
	resolver   *resolver.Resolver
	dispatcher domain.Dispatcher
	chunkSize  int
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Reconciler. chunkSize <= 0 falls back to DefaultChunkSize.
func New(res *resolver.Resolver, dispatcher domain.Dispatcher, chunkSize int, logger *slog.Logger, metrics *observability.Metrics) *Reconciler {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Reconciler{
		resolver:   res,
		dispatcher: dispatcher,
		chunkSize:  chunkSize,
		logger:     logger,
		metrics:    metrics,
	}
}

// Run performs one reconciliation pass. Fetches are chunked; a failed chunk
// counts its tasks as failed and the run moves on. Coordinates are rounded to
// seven decimal places before the epsilon check, so sub-centimeter jitter
// from the device never mints a ledger row.
func (r *Reconciler) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	r.metrics.ReconcileRuns.Inc()

	pending, err := r.resolver.ListAddressesMissingVerification(ctx)
	if err != nil {
		return Summary{}, err
	}

	byTask := make(map[string]int64, len(pending))
	taskIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		if _, seen := byTask[p.TaskID]; seen {
			continue
		}
		byTask[p.TaskID] = p.AddressID
		taskIDs = append(taskIDs, p.TaskID)
	}

	summary := Summary{Candidates: len(taskIDs)}
	for chunk := range chunks(taskIDs, r.chunkSize) {
		fleet, err := r.dispatcher.FetchTasks(ctx, chunk)
		if err != nil {
			summary.Failed += len(chunk)
			r.logger.Warn("fleet fetch failed, chunk skipped", "tasks", len(chunk), "error", err)
			continue
		}

		for _, ft := range fleet {
			addressID, ok := byTask[ft.TaskID]
			if !ok {
				continue
			}
			lat := domain.RoundCoordinate(ft.Lat)
			lng := domain.RoundCoordinate(ft.Lng)

			recorded, err := r.resolver.RecordFieldCoordinate(ctx, addressID, lat, lng)
			if err != nil {
				summary.Failed++
				r.logger.Warn("coordinate record failed", "task_id", ft.TaskID, "address_id", addressID, "error", err)
				continue
			}
			if recorded {
				summary.Updated++
				r.metrics.ReconcileCoordinates.WithLabelValues("updated").Inc()
			} else {
				summary.Unchanged++
				r.metrics.ReconcileCoordinates.WithLabelValues("unchanged").Inc()
			}
		}
	}

	r.logger.Info("reconciliation finished",
		"candidates", summary.Candidates,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"duration", time.Since(start),
	)
	return summary, nil
}

// chunks yields ids in slices of at most size.
func chunks(ids []string, size int) func(yield func([]string) bool) {
	return func(yield func([]string) bool) {
		for start := 0; start < len(ids); start += size {
			end := min(start+size, len(ids))
			if !yield(ids[start:end]) {
				return
			}
		}
	}
}
