package core

import (
	"context"
	"time"
)

// Job is the unit of work a Trigger fires. Implementations live outside
// this package, which only defines the contract the job run shell invokes.
type Job interface {
	// Execute runs the job for one firing. A returned error that is (or
	// wraps) a *JobExecutionError is treated as a domain-specific job
	// error; any other error is wrapped by the shell as
	// "JOB_EXECUTION_THREW_EXCEPTION".
	Execute(ctx context.Context, jec *JobExecutionContext) error
}

// JobDetail describes a job's identity and static configuration —
// independent of any particular trigger or firing.
type JobDetail struct {
	Key         Key
	Description string
	JobDataMap  JobDataMap

	// Stateful marks a job whose instance state must not be executed
	// concurrently with itself; its triggers move to TriggerStateBlocked
	// while it runs. Enforced by the scheduler and job store, not by
	// the shell.
	Stateful bool
}

// FiredTriggerBundle is the packet the scheduler's decision loop hands to a
// job run shell via Initialize.
type FiredTriggerBundle struct {
	Trigger           Trigger
	JobDetail         *JobDetail
	Calendar          Calendar
	JobIsRecovering   bool
	FireTime          time.Time
	ScheduledFireTime *time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time
}
