// Package buffer implements the write-buffering layer between the core and
// the backing store. Each logical table has an independent in-memory queue;
// rows accumulate until a configured threshold triggers a bulk load, and a
// session-end FlushAll drains everything below the threshold. The backing
// store's write cost is dominated by the number of load jobs, not row count,
// so batching amortizes the per-write fixed cost.
package buffer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
)

// Logical table names used for metrics and error reporting.
const (
	TableAddresses           = "addresses"
	TableAddressInputs       = "address_inputs"
	TableVerifiedCoordinates = "verified_coordinates"
	TableOrders              = "orders"
)

// LoadFunc performs one bulk write of a batch to the backing store.
type LoadFunc[T any] func(ctx context.Context, rows []T) error

// Table is one buffered queue. Appends past the threshold flush
// synchronously on the appending goroutine. A failed flush puts every row
// back at the head of the queue; nothing is dropped or partially cleared.
//
// The queue is swapped out before the load call, so a concurrent append
// during a flush lands in a fresh queue and never mutates the batch in
// flight. No lock is held across the load call.
type Table[T any] struct {
	name      string
	threshold int
	load      LoadFunc[T]
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	rows []T
}

// NewTable creates a buffered queue for one logical table.
func NewTable[T any](name string, threshold int, load LoadFunc[T], logger *slog.Logger, metrics *observability.Metrics) *Table[T] {
	return &Table[T]{
		name:      name,
		threshold: threshold,
		load:      load,
		logger:    logger,
		metrics:   metrics,
	}
}

// Append queues a row, flushing first when the queue has reached the
// threshold. A flush failure is returned but the row is still queued.
func (t *Table[T]) Append(ctx context.Context, row T) error {
	t.mu.Lock()
	t.rows = append(t.rows, row)
	full := len(t.rows) >= t.threshold
	t.metrics.BufferRows.WithLabelValues(t.name).Set(float64(len(t.rows)))
	t.mu.Unlock()

	if full {
		return t.Flush(ctx)
	}
	return nil
}

// Flush performs a single bulk write of the queue contents and clears the
// queue only on success. On failure the rows are restored and a
// *domain.BatchWriteError is returned; the caller may retry.
func (t *Table[T]) Flush(ctx context.Context) error {
	t.mu.Lock()
	if len(t.rows) == 0 {
		t.mu.Unlock()
		return nil
	}
	batch := t.rows
	t.rows = nil
	t.metrics.BufferRows.WithLabelValues(t.name).Set(0)
	t.mu.Unlock()

	start := time.Now()
	if err := t.load(ctx, batch); err != nil {
		t.mu.Lock()
		t.rows = append(batch, t.rows...)
		queued := len(t.rows)
		t.metrics.BufferRows.WithLabelValues(t.name).Set(float64(queued))
		t.mu.Unlock()

		t.metrics.BufferFlushes.WithLabelValues(t.name, "error").Inc()
		t.logger.Error("batch load failed, rows retained",
			"table", t.name,
			"rows", len(batch),
			"error", err,
		)
		return &domain.BatchWriteError{Table: t.name, Rows: len(batch), Err: err}
	}

	t.metrics.BufferFlushes.WithLabelValues(t.name, "success").Inc()
	t.metrics.BufferFlushDuration.Observe(time.Since(start).Seconds())
	t.logger.Info("batch loaded", "table", t.name, "rows", len(batch))
	return nil
}

// Len reports the number of rows currently queued.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rows)
}

// Store is the bulk-load surface the backing store exposes to the buffers.
type Store interface {
	LoadAddresses(ctx context.Context, rows []domain.CanonicalAddress) error
	LoadAddressInputs(ctx context.Context, rows []domain.AddressInput) error
	LoadVerifiedCoordinates(ctx context.Context, rows []domain.VerifiedCoordinate) error
	LoadOrders(ctx context.Context, rows []domain.Order) error
}

// Set groups the four table buffers behind one FlushAll.
type Set struct {
	Addresses   *Table[domain.CanonicalAddress]
	Inputs      *Table[domain.AddressInput]
	Coordinates *Table[domain.VerifiedCoordinate]
	Orders      *Table[domain.Order]
}

// NewSet builds the buffer set over a backing store.
func NewSet(store Store, threshold int, logger *slog.Logger, metrics *observability.Metrics) *Set {
	return &Set{
		Addresses:   NewTable(TableAddresses, threshold, store.LoadAddresses, logger, metrics),
		Inputs:      NewTable(TableAddressInputs, threshold, store.LoadAddressInputs, logger, metrics),
		Coordinates: NewTable(TableVerifiedCoordinates, threshold, store.LoadVerifiedCoordinates, logger, metrics),
		Orders:      NewTable(TableOrders, threshold, store.LoadOrders, logger, metrics),
	}
}

// FlushAll flushes every queue unconditionally. Each table is attempted even
// when an earlier one fails; failures are joined. Flush order across tables
// is unspecified.
func (s *Set) FlushAll(ctx context.Context) error {
	return errors.Join(
		s.Addresses.Flush(ctx),
		s.Inputs.Flush(ctx),
		s.Coordinates.Flush(ctx),
		s.Orders.Flush(ctx),
	)
}
