package domain

import "context"

// FleetTask is a task as reported back by the fleet-tracking system,
// carrying the device's current coordinates for that stop.
type FleetTask struct {
	TaskID string
	Lat    float64
	Lng    float64
}

// Dispatcher submits tasks to the external dispatch API and fetches
// device-reported task positions. Implementations return a *DispatchError
// on failure.
type Dispatcher interface {
	// SubmitTask sends one task to a device and returns the assigned task id.
	SubmitTask(ctx context.Context, task TaskRecord, deviceNumber string) (string, error)

	// SubmitTasks sends a batch to a device and returns the assigned task
	// ids in submission order.
	SubmitTasks(ctx context.Context, tasks []TaskRecord, deviceNumber string) ([]string, error)

	// FetchTasks retrieves tasks by id with their current device-reported
	// coordinates. Callers chunk the id list to bound URL length.
	FetchTasks(ctx context.Context, taskIDs []string) ([]FleetTask, error)
}
