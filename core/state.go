package core

// TriggerState names the lifecycle states a job store holds for a trigger.
// The core only names the states and their meanings; state
// transitions are driven by the scheduler and job store, not by the Trigger
// value itself.
type TriggerState int

const (
	// TriggerStateNone is a sentinel meaning "unknown/absent" — e.g. the
	// trigger has not been added to any job store yet.
	TriggerStateNone TriggerState = -1

	// TriggerStateNormal is the steady "eligible to fire" state.
	TriggerStateNormal TriggerState = 0

	// TriggerStatePaused means the trigger is administratively paused.
	TriggerStatePaused TriggerState = 1

	// TriggerStateComplete means the trigger's schedule is exhausted or it
	// was explicitly marked complete by a shell's completion instruction.
	TriggerStateComplete TriggerState = 2

	// TriggerStateError means the scheduler could not instantiate or fire
	// the trigger's job; it is never retried automatically.
	TriggerStateError TriggerState = 3

	// TriggerStateBlocked means the trigger's job is stateful and currently
	// executing, so no further firing of any trigger on that job may be
	// dispatched until it completes.
	TriggerStateBlocked TriggerState = 4
)

func (s TriggerState) String() string {
	switch s {
	case TriggerStateNone:
		return "NONE"
	case TriggerStateNormal:
		return "NORMAL"
	case TriggerStatePaused:
		return "PAUSED"
	case TriggerStateComplete:
		return "COMPLETE"
	case TriggerStateError:
		return "ERROR"
	case TriggerStateBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}
