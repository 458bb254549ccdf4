// Package simple implements an interval-repeat concrete trigger: fire once
// at StartTime, then every RepeatInterval for RepeatCount additional times
// (or forever when RepeatCount is RepeatIndefinitely).
package simple

import (
	"errors"
	"fmt"
	"time"

	"github.com/quartzgo/core"
)

// RepeatIndefinitely marks a Trigger that repeats forever.
const RepeatIndefinitely = -1

// Concrete misfire instruction codes, extending core.MisfireInstructionSmartPolicy.
const (
	MisfireInstructionFireNow                               = 1
	MisfireInstructionRescheduleNowWithExistingRepeatCount  = 2
	MisfireInstructionRescheduleNowWithRemainingRepeatCount = 3
	MisfireInstructionRescheduleNextWithRemainingCount      = 4
	MisfireInstructionRescheduleNextWithExistingCount       = 5
)

func validMisfireInstruction(instruction int) bool {
	switch instruction {
	case MisfireInstructionFireNow,
		MisfireInstructionRescheduleNowWithExistingRepeatCount,
		MisfireInstructionRescheduleNowWithRemainingRepeatCount,
		MisfireInstructionRescheduleNextWithRemainingCount,
		MisfireInstructionRescheduleNextWithExistingCount:
		return true
	default:
		return false
	}
}

// Trigger fires on a fixed interval, optionally a bounded number of times.
// It supports millisecond precision, unlike the cron-backed trigger.
type Trigger struct {
	core.BaseTrigger

	repeatCount    int
	repeatInterval time.Duration
	timesTriggered int

	nextFireTime     *time.Time
	previousFireTime *time.Time
}

// New builds a simple interval Trigger. repeatCount may be RepeatIndefinitely.
func New(name, group, jobName, jobGroup string, startTime time.Time, repeatCount int, repeatInterval time.Duration) (*Trigger, error) {
	base, err := core.NewBaseTrigger(name, group, jobName, jobGroup, startTime, true)
	if err != nil {
		return nil, err
	}
	base.SetMisfireValidator(validMisfireInstruction)
	t := &Trigger{BaseTrigger: base, repeatCount: repeatCount, repeatInterval: repeatInterval}
	return t, nil
}

func (t *Trigger) RepeatCount() int              { return t.repeatCount }
func (t *Trigger) RepeatInterval() time.Duration { return t.repeatInterval }
func (t *Trigger) TimesTriggered() int           { return t.timesTriggered }

func (t *Trigger) GetNextFireTime() *time.Time     { return t.nextFireTime }
func (t *Trigger) GetPreviousFireTime() *time.Time { return t.previousFireTime }

// ComputeFirstFireTime sets and returns the first fire time (StartTime,
// advanced past any calendar exclusion), or nil if the end time has already
// passed.
func (t *Trigger) ComputeFirstFireTime(cal core.Calendar) *time.Time {
	first := t.StartTime()
	if cal != nil {
		first = cal.NextIncludedTime(first)
	}
	if end := t.EndTime(); end != nil && first.After(*end) {
		t.nextFireTime = nil
		return nil
	}
	t.nextFireTime = &first
	return t.nextFireTime
}

// GetFireTimeAfter returns the first fire time strictly after t, without
// mutating trigger state.
func (t *Trigger) GetFireTimeAfter(after time.Time) *time.Time {
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		return nil
	}
	if after.Before(t.StartTime()) {
		start := t.StartTime()
		if end := t.EndTime(); end != nil && start.After(*end) {
			return nil
		}
		return &start
	}
	if t.repeatInterval <= 0 {
		return nil
	}

	numberOfTimesExecuted := int(after.Sub(t.StartTime()) / t.repeatInterval)
	if t.StartTime().Add(time.Duration(numberOfTimesExecuted)*t.repeatInterval).Before(after) ||
		t.StartTime().Add(time.Duration(numberOfTimesExecuted)*t.repeatInterval).Equal(after) {
		numberOfTimesExecuted++
	}

	if t.repeatCount != RepeatIndefinitely && numberOfTimesExecuted > t.repeatCount {
		return nil
	}

	candidate := t.StartTime().Add(time.Duration(numberOfTimesExecuted) * t.repeatInterval)
	if end := t.EndTime(); end != nil && candidate.After(*end) {
		return nil
	}
	return &candidate
}

// GetFinalFireTime returns the last time this trigger will ever fire, or
// nil for an infinitely repeating trigger.
func (t *Trigger) GetFinalFireTime() *time.Time {
	if t.repeatCount == RepeatIndefinitely {
		return nil
	}
	final := t.StartTime().Add(time.Duration(t.repeatCount) * t.repeatInterval)
	if end := t.EndTime(); end != nil && final.After(*end) {
		return t.lastFireTimeBeforeEnd()
	}
	return &final
}

func (t *Trigger) lastFireTimeBeforeEnd() *time.Time {
	end := *t.EndTime()
	if t.repeatInterval <= 0 {
		start := t.StartTime()
		if start.After(end) {
			return nil
		}
		return &start
	}
	count := int(end.Sub(t.StartTime()) / t.repeatInterval)
	if count < 0 {
		return nil
	}
	final := t.StartTime().Add(time.Duration(count) * t.repeatInterval)
	return &final
}

func (t *Trigger) MayFireAgain() bool {
	return t.GetNextFireTime() != nil
}

// Triggered advances timesTriggered, records previousFireTime, and
// computes the next fire time subject to cal and repeatCount/EndTime.
func (t *Trigger) Triggered(cal core.Calendar) {
	t.timesTriggered++
	t.previousFireTime = t.nextFireTime

	if t.nextFireTime == nil {
		return
	}
	next := t.nextFireTime.Add(t.repeatInterval)
	t.advanceTo(&next, cal)
}

func (t *Trigger) advanceTo(candidate *time.Time, cal core.Calendar) {
	if t.repeatCount != RepeatIndefinitely && t.timesTriggered > t.repeatCount {
		t.nextFireTime = nil
		return
	}
	if candidate != nil && cal != nil {
		c := cal.NextIncludedTime(*candidate)
		candidate = &c
	}
	if candidate != nil && t.EndTime() != nil && candidate.After(*t.EndTime()) {
		candidate = nil
	}
	t.nextFireTime = candidate
}

// UpdateAfterMisfire repairs the next fire time after a misfire, honoring
// this trigger's MisfireInstruction.
func (t *Trigger) UpdateAfterMisfire(cal core.Calendar) {
	now := time.Now()
	if t.nextFireTime == nil {
		return
	}

	switch t.MisfireInstruction() {
	case core.MisfireInstructionSmartPolicy:
		if t.repeatCount == 0 {
			t.updateFireNow(now, cal)
		} else {
			t.updateRescheduleNowWithRemainingCount(now, cal)
		}
	case MisfireInstructionFireNow:
		t.updateFireNow(now, cal)
	case MisfireInstructionRescheduleNowWithExistingRepeatCount:
		t.updateRescheduleNowWithExistingCount(now, cal)
	case MisfireInstructionRescheduleNowWithRemainingRepeatCount:
		t.updateRescheduleNowWithRemainingCount(now, cal)
	case MisfireInstructionRescheduleNextWithRemainingCount:
		t.advanceTo(t.GetFireTimeAfter(now), cal)
	case MisfireInstructionRescheduleNextWithExistingCount:
		t.advanceTo(t.GetFireTimeAfter(now), cal)
	}
}

func (t *Trigger) updateFireNow(now time.Time, cal core.Calendar) {
	t.advanceTo(&now, cal)
}

func (t *Trigger) updateRescheduleNowWithExistingCount(now time.Time, cal core.Calendar) {
	t.timesTriggered = 0
	t.advanceTo(&now, cal)
}

func (t *Trigger) updateRescheduleNowWithRemainingCount(now time.Time, cal core.Calendar) {
	if t.repeatCount != RepeatIndefinitely {
		t.repeatCount -= t.timesTriggered
		t.timesTriggered = 0
	}
	t.advanceTo(&now, cal)
}

// UpdateWithNewCalendar recomputes the next fire time after the named
// calendar changed, skipping anything within misfireThreshold of now.
func (t *Trigger) UpdateWithNewCalendar(cal core.Calendar, misfireThreshold time.Duration) {
	if t.nextFireTime == nil {
		return
	}
	next := cal.NextIncludedTime(*t.nextFireTime)
	now := time.Now()
	for next.Before(now.Add(misfireThreshold)) {
		advanced := next.Add(t.repeatInterval)
		next = cal.NextIncludedTime(advanced)
	}
	t.nextFireTime = &next
}

// Clone produces an independent copy, safe to hand to listeners.
func (t *Trigger) Clone() core.Trigger {
	clone := *t
	t.BaseTrigger.CloneInto(&clone.BaseTrigger)
	if t.nextFireTime != nil {
		v := *t.nextFireTime
		clone.nextFireTime = &v
	}
	if t.previousFireTime != nil {
		v := *t.previousFireTime
		clone.previousFireTime = &v
	}
	return &clone
}

// ExecutionComplete decides this trigger's fate after one firing: a job
// requesting UnscheduleFiringTrigger/UnscheduleAllTriggers wins outright;
// otherwise a RefireImmediately request re-executes; otherwise the trigger
// completes when it can never fire again.
func (t *Trigger) ExecutionComplete(jec *core.JobExecutionContext, jobErr error) core.CompletionInstruction {
	var jee *core.JobExecutionError
	if errors.As(jobErr, &jee) {
		if jee.UnscheduleAllTriggers {
			return core.InstructionSetAllJobTriggersComplete
		}
		if jee.UnscheduleFiringTrigger {
			return core.InstructionSetTriggerComplete
		}
		if jee.RefireImmediately {
			return core.InstructionReExecuteJob
		}
	}

	if !t.MayFireAgain() {
		return core.InstructionSetTriggerComplete
	}
	return core.InstructionNoop
}

func (t *Trigger) String() string {
	return fmt.Sprintf("SimpleTrigger %s: repeatCount=%d, repeatInterval=%s, timesTriggered=%d",
		t.Key(), t.repeatCount, t.repeatInterval, t.timesTriggered)
}
