package processor

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/haulware/dispatch-task-service/internal/domain"
)

// TaskInput is one parsed CSV row: the task plus the device it targets.
type TaskInput struct {
	Task         domain.TaskRecord
	DeviceNumber string
}

var requiredColumns = []string{"localId", "deviceNumber", "locationAddress"}

// ParseTasksCSV reads a task sheet. The header must carry localId,
// deviceNumber, and locationAddress; rows missing any required value are
// dropped. Optional columns map onto the task record, and a value that fails
// its type conversion is skipped field-by-field rather than killing the row.
func ParseTasksCSV(r io.Reader) ([]TaskInput, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}

	var inputs []TaskInput
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		localID := field("localId")
		device := field("deviceNumber")
		address := field("locationAddress")
		if localID == "" || device == "" || address == "" {
			continue
		}

		task := domain.TaskRecord{
			LocalID:          localID,
			LocationAddress:  address,
			LocationName:     field("locationName"),
			LogistComment:    field("logistComment"),
			ActionTag:        field("actionTag"),
			ActionTagSubtype: field("actionTagSubtype"),
			Date:             field("date"),
			TimeComment:      field("timeComment"),
			TemperatureInfo:  field("temperatureInfo"),
			DriverAtchTags:   field("driverAtchTags"),
		}
		task.ParcelWeight = parseFloatField(field("parcelWeight"))
		task.RefuelVolume = parseFloatField(field("refuelVolume"))
		task.RefuelFullTank = parseBoolField(field("refuelFullTank"))
		task.AdblueVolume = parseFloatField(field("adblueVolume"))
		task.AdblueFullTank = parseBoolField(field("adblueFullTank"))
		task.DriverAtchTagsVisitDisabled = parseBoolField(field("driverAtchTagsVisitDisabled"))

		inputs = append(inputs, TaskInput{Task: task, DeviceNumber: device})
	}
	return inputs, nil
}

func parseFloatField(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseBoolField(s string) *bool {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return nil
	}
	return &v
}
