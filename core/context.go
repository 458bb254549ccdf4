package core

import "time"

// SchedulerHandle is the minimal view of the owning scheduler a job
// execution context exposes to jobs and listeners, kept deliberately tiny so
// the core never depends on the scheduler façade package.
type SchedulerHandle interface {
	Name() string
}

// JobExecutionContext is the per-fire bundle of a scheduler handle,
// trigger, job detail, job instance, run-time stats, and refire counter.
// It is owned by exactly one JobRunShell for the duration of one Run.
type JobExecutionContext struct {
	Scheduler SchedulerHandle
	Trigger   Trigger
	JobDetail *JobDetail
	JobInstance Job

	// MergedJobDataMap is the trigger's JobDataMap merged with the job
	// detail's JobDataMap, the payload actually visible to the job.
	MergedJobDataMap JobDataMap

	ScheduledFireTime *time.Time
	FireTime          time.Time
	PreviousFireTime  *time.Time
	NextFireTime      *time.Time

	// RefireCount is incremented once per RE_EXECUTE_JOB pass within a
	// single Run.
	RefireCount int

	// Recovering marks a firing that is replaying a misfired/interrupted
	// execution rather than a fresh one.
	Recovering bool

	// JobRunTime is the wall-clock duration of the most recent Execute
	// call, set by the shell after each pass.
	JobRunTime time.Duration

	// Result is an opaque slot a job may use to hand data back to the
	// caller of a manually-triggered firing; the core never interprets it.
	Result interface{}
}

// NewJobExecutionContext builds the context for one fired bundle, merging
// the trigger's and job detail's data maps.
func NewJobExecutionContext(scheduler SchedulerHandle, job Job, bundle FiredTriggerBundle) *JobExecutionContext {
	merged := bundle.JobDetail.JobDataMap.Clone()
	merged = merged.Merge(bundle.Trigger.JobDataMap())

	return &JobExecutionContext{
		Scheduler:         scheduler,
		Trigger:           bundle.Trigger,
		JobDetail:         bundle.JobDetail,
		JobInstance:       job,
		MergedJobDataMap:  merged,
		ScheduledFireTime: bundle.ScheduledFireTime,
		FireTime:          bundle.FireTime,
		PreviousFireTime:  bundle.PrevFireTime,
		NextFireTime:      bundle.NextFireTime,
		Recovering:        bundle.JobIsRecovering,
	}
}

// IncrementRefireCount bumps RefireCount; called by the shell exactly once
// per RE_EXECUTE_JOB instruction.
func (c *JobExecutionContext) IncrementRefireCount() {
	c.RefireCount++
}
