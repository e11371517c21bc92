package domain

import (
	"fmt"
	"time"
)

// TaskType distinguishes pickup (load) from delivery (unload) actions.
type TaskType string

const (
	TaskPickup   TaskType = "pickup"
	TaskDelivery TaskType = "delivery"
)

// Action tags understood by the dispatch API for document-derived tasks.
const (
	ActionParcelLoad   = "PARCEL_LOAD"
	ActionParcelUnload = "PARCEL_UNLOAD"
)

// taskDateLayout is the dispatch API's date encoding.
const taskDateLayout = "20060102"

// TaskRecord is a dispatch task in the API's wire shape: camelCase fields,
// empty optionals omitted, date as YYYYMMDD. Coordinates are attached by the
// resolver before submission.
type TaskRecord struct {
	LocalID         string `json:"localId"`
	LocationAddress string `json:"locationAddress"`

	LocationName     string   `json:"locationName,omitempty"`
	LogistComment    string   `json:"logistComment,omitempty"`
	ActionTag        string   `json:"actionTag,omitempty"`
	ActionTagSubtype string   `json:"actionTagSubtype,omitempty"`
	ParcelWeight     *float64 `json:"parcelWeight,omitempty"`
	Date             string   `json:"date,omitempty"`
	TimeComment      string   `json:"timeComment,omitempty"`
	RefuelVolume     *float64 `json:"refuelVolume,omitempty"`
	RefuelFullTank   *bool    `json:"refuelFullTank,omitempty"`
	AdblueVolume     *float64 `json:"adblueVolume,omitempty"`
	AdblueFullTank   *bool    `json:"adblueFullTank,omitempty"`
	TemperatureInfo  string   `json:"temperatureInfo,omitempty"`
	DriverAtchTags   string   `json:"driverAtchTags,omitempty"`

	DriverAtchTagsVisitDisabled *bool `json:"driverAtchTagsVisitDisabled,omitempty"`

	Lat *float64 `json:"lat,omitempty"`
	Lng *float64 `json:"lng,omitempty"`

	Type TaskType `json:"-"`
}

// SetCoordinates attaches resolved coordinates to the outbound payload.
func (t *TaskRecord) SetCoordinates(lat, lng float64) {
	t.Lat = &lat
	t.Lng = &lng
}

// Order is the persisted, write-once record of a dispatched task.
type Order struct {
	TaskID       string
	AddressID    int64
	LocalID      string
	DeviceNumber string

	LocationName     string
	LogistComment    string
	ActionTag        string
	ActionTagSubtype string
	ParcelWeight     *float64
	Date             *time.Time
	TimeComment      string
	RefuelVolume     *float64
	RefuelFullTank   *bool
	AdblueVolume     *float64
	AdblueFullTank   *bool
	TemperatureInfo  string
	DriverAtchTags   string

	DriverAtchTagsVisitDisabled *bool

	CreatedAt time.Time
}

// NewOrder builds the order row for a submitted task. taskID comes from the
// dispatch API response. Fails when the task carries a malformed date.
func NewOrder(taskID string, task TaskRecord, addressID int64, deviceNumber string) (Order, error) {
	o := Order{
		TaskID:       taskID,
		AddressID:    addressID,
		LocalID:      task.LocalID,
		DeviceNumber: deviceNumber,

		LocationName:     task.LocationName,
		LogistComment:    task.LogistComment,
		ActionTag:        task.ActionTag,
		ActionTagSubtype: task.ActionTagSubtype,
		ParcelWeight:     task.ParcelWeight,
		TimeComment:      task.TimeComment,
		RefuelVolume:     task.RefuelVolume,
		RefuelFullTank:   task.RefuelFullTank,
		AdblueVolume:     task.AdblueVolume,
		AdblueFullTank:   task.AdblueFullTank,
		TemperatureInfo:  task.TemperatureInfo,
		DriverAtchTags:   task.DriverAtchTags,

		DriverAtchTagsVisitDisabled: task.DriverAtchTagsVisitDisabled,

		CreatedAt: clock.Now(),
	}

	if task.Date != "" {
		d, err := time.Parse(taskDateLayout, task.Date)
		if err != nil {
			return Order{}, fmt.Errorf("invalid task date %q: expected YYYYMMDD: %w", task.Date, err)
		}
		o.Date = &d
	}
	return o, nil
}

// ProcessingResult reports the outcome of one task submission to the caller.
type ProcessingResult struct {
	TaskID           string   `json:"task_id"`
	LocalID          string   `json:"local_id"`
	FormattedAddress string   `json:"formatted_address"`
	AddressID        int64    `json:"address_id"`
	IsVerified       bool     `json:"is_verified"`
	OriginalLat      float64  `json:"original_lat"`
	OriginalLng      float64  `json:"original_lng"`
	VerifiedLat      *float64 `json:"verified_lat,omitempty"`
	VerifiedLng      *float64 `json:"verified_lng,omitempty"`
}

// ExtractedOrder is one load/unload address pair extracted from a shipping
// document.
type ExtractedOrder struct {
	Load   string `json:"load"`
	Unload string `json:"unload"`
}

// Clean normalizes both addresses of an extracted order.
func (o *ExtractedOrder) Clean() {
	o.Load = NormalizeAddress(o.Load)
	o.Unload = NormalizeAddress(o.Unload)
}
