package core

import (
	"fmt"
	"strings"
	"time"
)

// Trigger is a polymorphic fire-time calculator plus the identity, listener
// list, and lifecycle metadata every concrete schedule needs. Concrete
// variants (triggers/simple, triggers/cron, ...) differ
// only in the fire-time math and the misfire codes they accept; everything
// else is carried by BaseTrigger and shared via embedding.
type Trigger interface {
	// Key returns the trigger's own (group, name) identity.
	Key() Key
	// JobKey returns the identity of the job this trigger fires.
	JobKey() Key

	Description() string
	SetDescription(description string)

	JobDataMap() JobDataMap
	SetJobDataMap(m JobDataMap)

	Volatile() bool
	SetVolatile(v bool)

	CalendarName() string
	SetCalendarName(name string)

	FireInstanceID() string
	SetFireInstanceID(id string)

	MisfireInstruction() int
	// SetMisfireInstruction validates instruction against the smart policy
	// plus whatever the concrete trigger additionally accepts.
	SetMisfireInstruction(instruction int) error

	TriggerListenerNames() []string
	AddTriggerListener(name string)
	// RemoveTriggerListener removes the first occurrence of name and
	// reports whether it was present.
	RemoveTriggerListener(name string) bool

	StartTime() time.Time
	SetStartTime(t time.Time) error
	EndTime() *time.Time
	SetEndTime(t *time.Time) error

	// HasMillisecondPrecision declares whether this concrete trigger type
	// supports sub-second fire times. When false, StartTime is truncated
	// to a second boundary on assignment.
	HasMillisecondPrecision() bool

	// GetNextFireTime returns the next instant this trigger will fire, or
	// nil if it will never fire again.
	GetNextFireTime() *time.Time
	// GetPreviousFireTime returns the instant this trigger last fired, or
	// nil if it has never fired.
	GetPreviousFireTime() *time.Time
	// ComputeFirstFireTime computes and stores the first fire time,
	// honoring calendar exclusions, and returns it (nil for an
	// unschedulable trigger).
	ComputeFirstFireTime(cal Calendar) *time.Time
	// GetFireTimeAfter returns the first fire time strictly after t,
	// without mutating trigger state.
	GetFireTimeAfter(t time.Time) *time.Time
	// GetFinalFireTime returns the last time this trigger will ever fire,
	// or nil for a trigger with no end (an infinite schedule).
	GetFinalFireTime() *time.Time
	// MayFireAgain reports whether GetNextFireTime could ever return a
	// non-nil value again.
	MayFireAgain() bool

	// Triggered advances internal state past the current fire, computing
	// the next fire time subject to cal.
	Triggered(cal Calendar)
	// UpdateAfterMisfire repairs trigger state after a misfire, according
	// to this trigger's MisfireInstruction, to a sane next fire.
	UpdateAfterMisfire(cal Calendar)
	// UpdateWithNewCalendar recomputes the next fire time after the named
	// calendar changed. A newly computed fire time within threshold of now
	// is skipped forward to avoid an immediate misfire.
	UpdateWithNewCalendar(cal Calendar, misfireThreshold time.Duration)

	// Validate is the pre-scheduling gate: name, group, job name, and job
	// group must all be non-empty.
	Validate() error

	// Clone produces a shallow independent copy suitable for handing to
	// listeners without exposing internal mutation.
	Clone() Trigger

	// ExecutionComplete is called once per executed pass, after the job has
	// run, to let the trigger decide what happens next; a vetoed firing
	// never reaches it. jobErr
	// is whatever the job run returned, or nil on success; a
	// *JobExecutionError carries the job's own refire/unschedule wishes.
	// The returned CompletionInstruction tells the job run shell how to
	// proceed. Implementations must not panic; the shell recovers as a
	// last resort but treats it as a defect when it happens.
	ExecutionComplete(jec *JobExecutionContext, jobErr error) CompletionInstruction
}

// CompareTriggers implements the total order used to select
// the next due trigger:
//  1. both next-fire-times absent -> equal
//  2. only one absent -> the one with a value sorts first (fires sooner)
//  3. otherwise ascending by time
func CompareTriggers(a, b Trigger) int {
	at := a.GetNextFireTime()
	bt := b.GetNextFireTime()

	switch {
	case at == nil && bt == nil:
		return 0
	case at == nil:
		return 1
	case bt == nil:
		return -1
	case at.Before(*bt):
		return -1
	case at.After(*bt):
		return 1
	default:
		return 0
	}
}

// EqualTriggers reports whether a and b share the same (group, name)
// identity.
func EqualTriggers(a, b Trigger) bool {
	return a.Key().Equals(b.Key())
}

// BaseTrigger implements the identity, listener list, and validated mutators
// common to every concrete Trigger. Concrete triggers embed BaseTrigger and
// implement only the fire-time contract methods (ComputeFirstFireTime,
// GetNextFireTime, Triggered, UpdateAfterMisfire, ...), modeling the
// Trigger family as a sum type with a shared record of common fields
// rather than class inheritance.
type BaseTrigger struct {
	key    Key
	jobKey Key

	description string
	jobDataMap  JobDataMap
	volatile    bool

	calendarName   string
	fireInstanceID string

	misfireInstruction int
	misfireValidator   MisfireValidator

	listenerNames []string

	startTime time.Time
	endTime   *time.Time

	millisecondPrecision bool
}

// NewBaseTrigger constructs a BaseTrigger. name/group identify the trigger;
// jobName/jobGroup identify the job it fires. startTime is required.
// millisecondPrecision should be set by the concrete trigger type
// according to whether it supports sub-second fire times.
func NewBaseTrigger(name, group, jobName, jobGroup string, startTime time.Time, millisecondPrecision bool) (BaseTrigger, error) {
	if strings.TrimSpace(name) == "" {
		return BaseTrigger{}, ErrNameRequired
	}
	if strings.TrimSpace(jobName) == "" {
		return BaseTrigger{}, ErrJobNameRequired
	}
	if group != "" && strings.TrimSpace(group) == "" {
		return BaseTrigger{}, ErrGroupEmpty
	}
	if jobGroup != "" && strings.TrimSpace(jobGroup) == "" {
		return BaseTrigger{}, ErrJobGroupEmpty
	}

	t := BaseTrigger{
		key:                  NewKey(name, group),
		jobKey:               NewKey(jobName, jobGroup),
		millisecondPrecision: millisecondPrecision,
	}
	if err := t.SetStartTime(startTime); err != nil {
		return BaseTrigger{}, err
	}
	return t, nil
}

// SetMisfireValidator installs the concrete trigger's extra misfire codes.
// Concrete trigger constructors call this once after NewBaseTrigger.
func (t *BaseTrigger) SetMisfireValidator(v MisfireValidator) {
	t.misfireValidator = v
}

func (t *BaseTrigger) Key() Key    { return t.key }
func (t *BaseTrigger) JobKey() Key { return t.jobKey }

func (t *BaseTrigger) Description() string { return t.description }
func (t *BaseTrigger) SetDescription(d string) { t.description = d }

func (t *BaseTrigger) JobDataMap() JobDataMap { return t.jobDataMap }
func (t *BaseTrigger) SetJobDataMap(m JobDataMap) { t.jobDataMap = m }

func (t *BaseTrigger) Volatile() bool      { return t.volatile }
func (t *BaseTrigger) SetVolatile(v bool)  { t.volatile = v }

func (t *BaseTrigger) CalendarName() string        { return t.calendarName }
func (t *BaseTrigger) SetCalendarName(name string) { t.calendarName = name }

func (t *BaseTrigger) FireInstanceID() string      { return t.fireInstanceID }
func (t *BaseTrigger) SetFireInstanceID(id string) { t.fireInstanceID = id }

func (t *BaseTrigger) MisfireInstruction() int { return t.misfireInstruction }

// SetMisfireInstruction validates instruction against MisfireInstructionSmartPolicy
// plus the concrete trigger's registered validator.
func (t *BaseTrigger) SetMisfireInstruction(instruction int) error {
	if err := validateMisfireInstruction(instruction, t.misfireValidator); err != nil {
		return err
	}
	t.misfireInstruction = instruction
	return nil
}

func (t *BaseTrigger) TriggerListenerNames() []string {
	out := make([]string, len(t.listenerNames))
	copy(out, t.listenerNames)
	return out
}

// AddTriggerListener appends name to the ordered listener list. Order is
// significant: listeners are notified in insertion order.
func (t *BaseTrigger) AddTriggerListener(name string) {
	t.listenerNames = append(t.listenerNames, name)
}

// RemoveTriggerListener removes the first occurrence of name and reports
// whether it was present. Absent names leave the list unchanged.
func (t *BaseTrigger) RemoveTriggerListener(name string) bool {
	for i, n := range t.listenerNames {
		if n == name {
			t.listenerNames = append(t.listenerNames[:i], t.listenerNames[i+1:]...)
			return true
		}
	}
	return false
}

func (t *BaseTrigger) HasMillisecondPrecision() bool { return t.millisecondPrecision }

func (t *BaseTrigger) StartTime() time.Time { return t.startTime }

// SetStartTime rejects a start-after-end, and truncates sub-second
// precision when HasMillisecondPrecision is false.
func (t *BaseTrigger) SetStartTime(start time.Time) error {
	if !t.millisecondPrecision {
		start = start.Truncate(time.Second)
	}
	if t.endTime != nil && start.After(*t.endTime) {
		return ErrStartAfterEnd
	}
	t.startTime = start
	return nil
}

func (t *BaseTrigger) EndTime() *time.Time { return t.endTime }

// SetEndTime rejects an end-before-start. end may be nil to clear the bound.
func (t *BaseTrigger) SetEndTime(end *time.Time) error {
	if end != nil && end.Before(t.startTime) {
		return ErrEndBeforeStart
	}
	t.endTime = end
	return nil
}

// Validate is the pre-scheduling gate: name, group, job name, and job group
// must all be non-empty. Key construction already guarantees group/jobGroup
// are never empty (they default to DefaultGroup), so this only needs to
// check the name fields, matching "Validation".
func (t *BaseTrigger) Validate() error {
	if strings.TrimSpace(t.key.Name) == "" {
		return fmt.Errorf("%w: %v", ErrValidation, ErrNameRequired)
	}
	if strings.TrimSpace(t.jobKey.Name) == "" {
		return fmt.Errorf("%w: %v", ErrValidation, ErrJobNameRequired)
	}
	return nil
}

// clone returns a value copy of the base fields, including an independent
// copy of the listener-name slice and job data map, so mutating the clone
// never mutates the original.
func (t BaseTrigger) clone() BaseTrigger {
	cp := t
	cp.listenerNames = append([]string(nil), t.listenerNames...)
	cp.jobDataMap = t.jobDataMap.Clone()
	if t.endTime != nil {
		end := *t.endTime
		cp.endTime = &end
	}
	return cp
}

// CloneInto copies BaseTrigger's fields into dst, for use by concrete
// trigger Clone() implementations that embed BaseTrigger.
func (t BaseTrigger) CloneInto(dst *BaseTrigger) {
	*dst = t.clone()
}
