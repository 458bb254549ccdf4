// Package cron implements a calendar-expression concrete trigger backed by
// github.com/robfig/cron/v3's standard five-field parser.
package cron

import (
	"errors"
	"fmt"
	"time"

	"github.com/quartzgo/core"
	"github.com/robfig/cron/v3"
)

// MisfireInstructionFireOnceNow fires once immediately, at the cost of
// skipping every expression-computed fire that elapsed during the misfire
// window. The smart policy is handled the same way (see UpdateAfterMisfire).
const MisfireInstructionFireOnceNow = 1

func validMisfireInstruction(instruction int) bool {
	return instruction == MisfireInstructionFireOnceNow
}

// Trigger fires according to a standard five-field cron expression. It does
// not support millisecond precision: cron.Schedule.Next only ever returns
// second-resolution instants.
type Trigger struct {
	core.BaseTrigger

	expression string
	schedule   cron.Schedule

	nextFireTime     *time.Time
	previousFireTime *time.Time
}

// New parses expr with cron.ParseStandard and builds a Trigger over it.
func New(name, group, jobName, jobGroup string, startTime time.Time, expr string) (*Trigger, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	base, err := core.NewBaseTrigger(name, group, jobName, jobGroup, startTime, false)
	if err != nil {
		return nil, err
	}
	base.SetMisfireValidator(validMisfireInstruction)
	return &Trigger{BaseTrigger: base, expression: expr, schedule: schedule}, nil
}

func (t *Trigger) Expression() string { return t.expression }

func (t *Trigger) GetNextFireTime() *time.Time     { return t.nextFireTime }
func (t *Trigger) GetPreviousFireTime() *time.Time { return t.previousFireTime }

func (t *Trigger) nextAfter(after time.Time) *time.Time {
	next := t.schedule.Next(after)
	if end := t.EndTime(); end != nil && next.After(*end) {
		return nil
	}
	return &next
}

// ComputeFirstFireTime sets and returns the first fire time at or after
// StartTime, honoring cal, or nil if that falls beyond EndTime.
func (t *Trigger) ComputeFirstFireTime(cal core.Calendar) *time.Time {
	candidate := t.nextAfter(t.StartTime().Add(-time.Nanosecond))
	t.nextFireTime = t.applyCalendar(candidate, cal)
	return t.nextFireTime
}

func (t *Trigger) applyCalendar(candidate *time.Time, cal core.Calendar) *time.Time {
	if candidate == nil || cal == nil {
		return candidate
	}
	for !cal.IsTimeIncluded(*candidate) {
		next := t.nextAfter(*candidate)
		if next == nil {
			return nil
		}
		candidate = next
	}
	return candidate
}

// GetFireTimeAfter returns the first fire time strictly after ts, without
// mutating trigger state.
func (t *Trigger) GetFireTimeAfter(ts time.Time) *time.Time {
	return t.nextAfter(ts)
}

// GetFinalFireTime returns nil: a cron expression without an EndTime never
// stops firing, and even with an EndTime the standard parser offers no
// closed-form "last match", so this trigger only enforces EndTime lazily
// via nextAfter/Triggered.
func (t *Trigger) GetFinalFireTime() *time.Time {
	return nil
}

func (t *Trigger) MayFireAgain() bool {
	return t.GetNextFireTime() != nil
}

// Triggered advances previousFireTime and computes the next match after
// the current fire, subject to cal.
func (t *Trigger) Triggered(cal core.Calendar) {
	t.previousFireTime = t.nextFireTime
	if t.nextFireTime == nil {
		return
	}
	candidate := t.nextAfter(*t.nextFireTime)
	t.nextFireTime = t.applyCalendar(candidate, cal)
}

// UpdateAfterMisfire repairs the next fire time after a misfire. The smart
// policy and MisfireInstructionFireOnceNow both fire once, right now, then
// resume the expression's own cadence from there.
func (t *Trigger) UpdateAfterMisfire(cal core.Calendar) {
	now := time.Now()
	t.nextFireTime = t.applyCalendar(&now, cal)
}

// UpdateWithNewCalendar recomputes the next fire time after the named
// calendar changed, skipping anything within misfireThreshold of now.
func (t *Trigger) UpdateWithNewCalendar(cal core.Calendar, misfireThreshold time.Duration) {
	if t.nextFireTime == nil {
		return
	}
	candidate := t.applyCalendar(t.nextFireTime, cal)
	now := time.Now()
	for candidate != nil && candidate.Before(now.Add(misfireThreshold)) {
		candidate = t.applyCalendar(t.nextAfter(*candidate), cal)
	}
	t.nextFireTime = candidate
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

// ExecutionComplete honors a job's unschedule/refire request, otherwise
// completes the trigger once the expression can never match again (an
// EndTime has passed).
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
	return fmt.Sprintf("CronTrigger %s: expression=%q", t.Key(), t.expression)
}
