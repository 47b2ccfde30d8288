package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/models"
)

func TestComputeScheduledAtImmediate(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	for _, scheduleType := range []string{models.ScheduleImmediate, ""} {
		wf := &models.Workflow{ScheduleType: scheduleType}
		at, err := ComputeScheduledAt(wf, nil, now)
		require.NoError(t, err)
		assert.Equal(t, now, at)
	}
}

func TestComputeScheduledAtDelay(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	wf := &models.Workflow{ScheduleType: models.ScheduleDelay, DelayMinutes: 30}
	at, err := ComputeScheduledAt(wf, nil, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), at)
}

func TestComputeScheduledAtDelayZeroAndNegative(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	wf := &models.Workflow{ScheduleType: models.ScheduleDelay, DelayMinutes: 0}
	at, err := ComputeScheduledAt(wf, nil, now)
	require.NoError(t, err)
	assert.Equal(t, now, at)

	wf.DelayMinutes = -10
	at, err = ComputeScheduledAt(wf, nil, now)
	require.NoError(t, err)
	assert.Equal(t, now, at, "negative delay clamps to now")
}

func TestComputeScheduledAtDistinctTime(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	// A reminder two days before the due date
	wf := &models.Workflow{
		ScheduleType:      models.ScheduleDistinctTime,
		ScheduleReference: "due_date",
		ScheduleOffset:    -2,
		ScheduleUnit:      "days",
	}
	payload := map[string]interface{}{"due_date": "2026-01-10"}

	at, err := ComputeScheduledAt(wf, payload, now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC), at)
}

func TestComputeScheduledAtDistinctTimeUnits(t *testing.T) {
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	payload := map[string]interface{}{"starts_at": "2026-03-01T09:00:00Z"}

	cases := []struct {
		unit   string
		offset int
		want   time.Time
	}{
		{"minutes", 15, time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC)},
		{"hours", -1, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)},
		{"days", 1, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}

	for _, tc := range cases {
		wf := &models.Workflow{
			ScheduleType:      models.ScheduleDistinctTime,
			ScheduleReference: "starts_at",
			ScheduleOffset:    tc.offset,
			ScheduleUnit:      tc.unit,
		}
		at, err := ComputeScheduledAt(wf, payload, now)
		require.NoError(t, err)
		assert.Equal(t, tc.want, at, "unit %s offset %d", tc.unit, tc.offset)
	}
}

func TestComputeScheduledAtMissingReference(t *testing.T) {
	now := time.Now()
	wf := &models.Workflow{
		ScheduleType:      models.ScheduleDistinctTime,
		ScheduleReference: "due_date",
	}

	_, err := ComputeScheduledAt(wf, map[string]interface{}{}, now)
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = ComputeScheduledAt(wf, map[string]interface{}{"due_date": nil}, now)
	assert.ErrorIs(t, err, ErrMissingReference)

	_, err = ComputeScheduledAt(wf, map[string]interface{}{"due_date": "not a date"}, now)
	assert.ErrorIs(t, err, ErrMissingReference)

	wf.ScheduleReference = ""
	_, err = ComputeScheduledAt(wf, map[string]interface{}{"due_date": "2026-01-10"}, now)
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestComputeScheduledAtUnknownType(t *testing.T) {
	wf := &models.Workflow{ScheduleType: "cron"}
	_, err := ComputeScheduledAt(wf, nil, time.Now())
	assert.Error(t, err)
}
