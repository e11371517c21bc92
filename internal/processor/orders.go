package processor

import (
	"fmt"

	"github.com/haulware/dispatch-task-service/internal/domain"
	"github.com/jonboulle/clockwork"
)

var clock = clockwork.NewRealClock()

// SetClock swaps the package clock, for tests. Passing nil restores the real
// clock.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}

const localIDTimestampLayout = "20060102150405"

// TasksFromOrders turns extracted load/unload pairs into dispatch tasks: one
// pickup and one delivery per order, in order. Local ids share a timestamp
// prefix so all tasks from one document sort together.
func TasksFromOrders(orders []domain.ExtractedOrder) []domain.TaskRecord {
	timestamp := clock.Now().Format(localIDTimestampLayout)

	tasks := make([]domain.TaskRecord, 0, 2*len(orders))
	for i, order := range orders {
		order.Clean()
		prefix := fmt.Sprintf("%s_ORD%d", timestamp, i+1)
		tasks = append(tasks,
			domain.TaskRecord{
				LocalID:         prefix + "-LOAD",
				LocationAddress: order.Load,
				ActionTag:       domain.ActionParcelLoad,
				Type:            domain.TaskPickup,
			},
			domain.TaskRecord{
				LocalID:         prefix + "-UNLOAD",
				LocationAddress: order.Unload,
				ActionTag:       domain.ActionParcelUnload,
				Type:            domain.TaskDelivery,
			},
		)
	}
	return tasks
}
