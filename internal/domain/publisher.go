package domain

import (
	"context"
	"time"
)

// Change event kinds published to the event stream.
const (
	EventAddressCreated     = "address.created"
	EventCoordinateVerified = "coordinate.verified"
	EventTaskDispatched     = "task.dispatched"
)

// ChangeEvent records one state change for downstream consumers. Events are
// best-effort: a publish failure is logged, never propagated into the
// request path.
type ChangeEvent struct {
	Kind             string    `json:"kind"`
	AddressID        int64     `json:"address_id,omitempty"`
	FormattedAddress string    `json:"formatted_address,omitempty"`
	TaskID           string    `json:"task_id,omitempty"`
	DeviceNumber     string    `json:"device_number,omitempty"`
	Lat              float64   `json:"lat,omitempty"`
	Lng              float64   `json:"lng,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// NewChangeEvent stamps an event with the current time.
func NewChangeEvent(kind string) ChangeEvent {
	return ChangeEvent{Kind: kind, OccurredAt: clock.Now()}
}

// EventPublisher emits change events to an external stream. A nil publisher
// disables the stream.
type EventPublisher interface {
	Publish(ctx context.Context, events ...ChangeEvent) error
}
