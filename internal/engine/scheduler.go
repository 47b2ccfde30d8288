package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/smartdevs17/notification-engine/internal/models"
)

// ErrMissingReference is returned when a distinct_time workflow names a
// payload field that is absent or unparseable. The caller skips the workflow
// instead of silently delivering at the wrong moment.
var ErrMissingReference = errors.New("schedule reference field missing from payload")

// referenceTimeFormats are tried in order when the reference value is a string
var referenceTimeFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ComputeScheduledAt computes the delivery timestamp for a workflow match.
// distinct_time keeps the reference value's time of day and shifts it by the
// configured offset.
func ComputeScheduledAt(wf *models.Workflow, payload map[string]interface{}, now time.Time) (time.Time, error) {
	switch wf.ScheduleType {
	case models.ScheduleImmediate, "":
		return now, nil

	case models.ScheduleDelay:
		if wf.DelayMinutes < 0 {
			return now, nil
		}
		return now.Add(time.Duration(wf.DelayMinutes) * time.Minute), nil

	case models.ScheduleDistinctTime:
		ref, err := referenceTime(wf.ScheduleReference, payload)
		if err != nil {
			return time.Time{}, err
		}
		return ref.Add(offsetDuration(wf.ScheduleOffset, wf.ScheduleUnit)), nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule type: %s", wf.ScheduleType)
	}
}

// referenceTime reads the schedule reference field out of the payload
func referenceTime(field string, payload map[string]interface{}) (time.Time, error) {
	if field == "" {
		return time.Time{}, ErrMissingReference
	}

	raw, ok := payload[field]
	if !ok || raw == nil {
		return time.Time{}, ErrMissingReference
	}

	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		for _, format := range referenceTimeFormats {
			if t, err := time.Parse(format, v); err == nil {
				return t, nil
			}
		}
		return time.Time{}, ErrMissingReference
	default:
		return time.Time{}, ErrMissingReference
	}
}

// offsetDuration converts an offset and unit into a duration. The offset may
// be negative to schedule before the reference date.
func offsetDuration(offset int, unit string) time.Duration {
	switch unit {
	case "hours":
		return time.Duration(offset) * time.Hour
	case "days":
		return time.Duration(offset) * 24 * time.Hour
	default: // minutes
		return time.Duration(offset) * time.Minute
	}
}
