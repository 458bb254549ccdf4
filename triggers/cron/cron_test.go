package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzgo/core"
)

func TestNew_RejectsInvalidExpression(t *testing.T) {
	_, err := New("t", "g", "job", "g", time.Now(), "not a cron expression")
	require.Error(t, err)
}

func TestComputeFirstFireTime_MatchesExpression(t *testing.T) {
	start := time.Date(2026, 1, 1, 11, 59, 0, 0, time.UTC)
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *") // noon every day
	require.NoError(t, err)

	first := tr.ComputeFirstFireTime(nil)
	require.NotNil(t, first)
	assert.Equal(t, 12, first.Hour())
	assert.Equal(t, 1, first.Day())
}

func TestTriggered_AdvancesToNextMatch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *")
	require.NoError(t, err)
	tr.ComputeFirstFireTime(nil)

	first := *tr.GetNextFireTime()
	tr.Triggered(nil)

	require.NotNil(t, tr.GetNextFireTime())
	assert.True(t, tr.GetNextFireTime().After(first))
	assert.Equal(t, first, *tr.GetPreviousFireTime())
	assert.Equal(t, 2, tr.GetNextFireTime().Day())
}

func TestMisfireInstructionValidation(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *")
	require.NoError(t, err)

	require.NoError(t, tr.SetMisfireInstruction(core.MisfireInstructionSmartPolicy))
	require.NoError(t, tr.SetMisfireInstruction(MisfireInstructionFireOnceNow))
	require.Error(t, tr.SetMisfireInstruction(42))
}

func TestStartTimeTruncatedToSecond(t *testing.T) {
	withMillis := time.Date(2026, 1, 1, 0, 0, 0, 500_000_000, time.UTC)
	tr, err := New("t", "g", "job", "g", withMillis, "0 12 * * *")
	require.NoError(t, err)
	assert.False(t, tr.HasMillisecondPrecision())
	assert.Zero(t, tr.StartTime().Nanosecond())
}

func TestComputeFirstFireTime_RespectsCalendar(t *testing.T) {
	start := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) // Saturday; first two matches fall on the weekend
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *")
	require.NoError(t, err)

	cal := weekendExcludingCalendar{}
	first := tr.ComputeFirstFireTime(cal)
	require.NotNil(t, first)
	assert.Equal(t, time.Monday, first.Weekday())
	assert.Equal(t, 5, first.Day())
}

func TestGetFireTimeAfter_DoesNotMutateState(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *")
	require.NoError(t, err)
	tr.ComputeFirstFireTime(nil)

	before := *tr.GetNextFireTime()
	next := tr.GetFireTimeAfter(before)
	require.NotNil(t, next)
	assert.True(t, next.After(before))
	assert.Equal(t, before, *tr.GetNextFireTime())
}

func TestExecutionComplete_DefaultsToNoop(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr, err := New("t", "g", "job", "g", start, "0 12 * * *")
	require.NoError(t, err)
	tr.ComputeFirstFireTime(nil)

	instruction := tr.ExecutionComplete(&core.JobExecutionContext{}, nil)
	assert.Equal(t, core.InstructionNoop, instruction)
}

// weekendExcludingCalendar is a minimal core.Calendar used only to prove
// ComputeFirstFireTime skips excluded matches.
type weekendExcludingCalendar struct{}

func (weekendExcludingCalendar) IsTimeIncluded(t time.Time) bool {
	return t.Weekday() != time.Saturday && t.Weekday() != time.Sunday
}

func (c weekendExcludingCalendar) NextIncludedTime(t time.Time) time.Time {
	for !c.IsTimeIncluded(t) {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func (weekendExcludingCalendar) Description() string { return "weekends excluded" }
