package core

import "fmt"

// JobExecutionError is the domain-specific error kind a job may return to
// signal a handled failure and tell the trigger/shell how to react, as
// opposed to an arbitrary error which the shell must wrap.
type JobExecutionError struct {
	// Err is the underlying cause, or nil if the job merely wants to
	// signal refire/unschedule without reporting a failure.
	Err error

	// RefireImmediately asks the shell to return InstructionReExecuteJob
	// behavior for this firing (a job can request this directly; a trigger
	// may also choose to honor or ignore it in ExecutionComplete).
	RefireImmediately bool

	// UnscheduleFiringTrigger asks that only the firing trigger be
	// unscheduled (moved to COMPLETE).
	UnscheduleFiringTrigger bool

	// UnscheduleAllTriggers asks that every trigger pointing at this job
	// be unscheduled.
	UnscheduleAllTriggers bool
}

func (e *JobExecutionError) Error() string {
	if e.Err == nil {
		return "job execution error"
	}
	return fmt.Sprintf("job execution error: %v", e.Err)
}

func (e *JobExecutionError) Unwrap() error {
	return e.Err
}

// NewJobExecutionError wraps cause as a domain job-execution error with no
// refire/unschedule requests, the common case.
func NewJobExecutionError(cause error) *JobExecutionError {
	return &JobExecutionError{Err: cause}
}
