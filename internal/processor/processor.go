// Package processor orchestrates task submission: it resolves each task's
// address, attaches the winning coordinates, submits to the dispatch API, and
// enqueues the resulting order rows with the API-assigned task ids.
package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/haulware/dispatch-task-service/internal/observability"
	"github.com/haulware/dispatch-task-service/internal/resolver"
)

// Processor submits tasks through the resolver and dispatcher.
type Processor struct {
	resolver   *resolver.Resolver
	dispatcher domain.Dispatcher
	publisher  domain.EventPublisher
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// New creates a Processor. A nil publisher disables the event stream.
func New(res *resolver.Resolver, dispatcher domain.Dispatcher, publisher domain.EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Processor {
	return &Processor{
		resolver:   res,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
	}
}

// SkippedTask reports one batch item that could not be prepared.
type SkippedTask struct {
	LocalID string `json:"local_id"`
	Reason  string `json:"reason"`
}

// BatchResult is the outcome of one batch submission: per-item results for
// everything submitted, plus the items dropped during preparation.
type BatchResult struct {
	Results []domain.ProcessingResult `json:"results"`
	Skipped []SkippedTask             `json:"skipped,omitempty"`
}

// ProcessTask resolves, submits, and records a single task. The order row is
// enqueued only after the dispatch API has assigned a task id.
func (p *Processor) ProcessTask(ctx context.Context, task domain.TaskRecord, deviceNumber string) (domain.ProcessingResult, error) {
	result, err := p.prepare(ctx, &task)
	if err != nil {
		return domain.ProcessingResult{}, err
	}

	taskID, err := p.dispatcher.SubmitTask(ctx, task, deviceNumber)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	p.metrics.TasksSubmitted.WithLabelValues("single").Inc()

	result.TaskID = taskID
	if err := p.recordOrder(ctx, taskID, task, result, deviceNumber); err != nil {
		return domain.ProcessingResult{}, err
	}
	return result, nil
}

// ProcessBatch resolves every task, submits the prepared ones in one bulk
// call, and zips the returned task ids back onto the items. A task that fails
// preparation is reported in Skipped and does not block the rest; a dispatch
// failure fails the whole batch since nothing was assigned an id.
func (p *Processor) ProcessBatch(ctx context.Context, tasks []domain.TaskRecord, deviceNumber string) (BatchResult, error) {
	var out BatchResult
	prepared := make([]domain.TaskRecord, 0, len(tasks))
	results := make([]domain.ProcessingResult, 0, len(tasks))

	for i := range tasks {
		task := tasks[i]
		result, err := p.prepare(ctx, &task)
		if err != nil {
			p.logger.Warn("task skipped", "local_id", task.LocalID, "error", err)
			out.Skipped = append(out.Skipped, SkippedTask{LocalID: task.LocalID, Reason: err.Error()})
			continue
		}
		prepared = append(prepared, task)
		results = append(results, result)
	}

	if len(prepared) == 0 {
		return out, nil
	}

	taskIDs, err := p.dispatcher.SubmitTasks(ctx, prepared, deviceNumber)
	if err != nil {
		return BatchResult{}, err
	}
	if len(taskIDs) != len(prepared) {
		return BatchResult{}, fmt.Errorf("dispatch returned %d task ids for %d tasks", len(taskIDs), len(prepared))
	}
	p.metrics.TasksSubmitted.WithLabelValues("bulk").Add(float64(len(prepared)))

	for i, taskID := range taskIDs {
		results[i].TaskID = taskID
		if err := p.recordOrder(ctx, taskID, prepared[i], results[i], deviceNumber); err != nil {
			return BatchResult{}, err
		}
	}

	out.Results = results
	return out, nil
}

// prepare resolves the task's address and attaches the winning coordinates,
// mutating the task in place.
func (p *Processor) prepare(ctx context.Context, task *domain.TaskRecord) (domain.ProcessingResult, error) {
	res, err := p.resolver.ResolveAddress(ctx, task.LocationAddress)
	if err != nil {
		return domain.ProcessingResult{}, err
	}
	task.SetCoordinates(res.Lat, res.Lng)

	result := domain.ProcessingResult{
		LocalID:          task.LocalID,
		FormattedAddress: res.FormattedAddress,
		AddressID:        res.AddressID,
		IsVerified:       res.Verified,
		OriginalLat:      res.GoogleLat,
		OriginalLng:      res.GoogleLng,
	}
	if res.Verified {
		lat, lng := res.Lat, res.Lng
		result.VerifiedLat = &lat
		result.VerifiedLng = &lng
	}
	return result, nil
}

// recordOrder enqueues the order row and emits the dispatch event.
func (p *Processor) recordOrder(ctx context.Context, taskID string, task domain.TaskRecord, result domain.ProcessingResult, deviceNumber string) error {
	order, err := domain.NewOrder(taskID, task, result.AddressID, deviceNumber)
	if err != nil {
		return err
	}
	if err := p.resolver.EnqueueTask(ctx, order); err != nil {
		return err
	}
	p.publish(ctx, taskDispatchedEvent(order))
	return nil
}

func (p *Processor) publish(ctx context.Context, event domain.ChangeEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.metrics.EventsPublished.WithLabelValues("error").Inc()
		p.logger.Warn("event publish failed", "kind", event.Kind, "error", err)
		return
	}
	p.metrics.EventsPublished.WithLabelValues("success").Inc()
}

func taskDispatchedEvent(order domain.Order) domain.ChangeEvent {
	e := domain.NewChangeEvent(domain.EventTaskDispatched)
	e.TaskID = order.TaskID
	e.DeviceNumber = order.DeviceNumber
	e.AddressID = order.AddressID
	return e
}
