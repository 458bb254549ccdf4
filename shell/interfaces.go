// Package shell implements the job run shell: the isolated execution
// envelope that runs exactly one firing decision end to end.
package shell

import (
	"context"

	"github.com/quartzgo/core"
)

// JobFactory instantiates the job a fired bundle refers to. JobRunShell's
// Initialize reports any failure to scheduler listeners.
type JobFactory interface {
	NewJob(ctx context.Context, bundle core.FiredTriggerBundle) (core.Job, error)
}

// JobStoreNotifier reports the shell's final disposition back to the job
// store. It may fail with a persistence error, in which case the shell
// retries until it succeeds or shutdown is requested.
type JobStoreNotifier interface {
	NotifyJobStoreJobComplete(ctx context.Context, jec *core.JobExecutionContext, trigger core.Trigger, jobDetail *core.JobDetail, instruction core.CompletionInstruction) error
}

// SchedulerListenerBus is the scheduler-wide event sink the shell reports
// bugs and finalization events to.
type SchedulerListenerBus interface {
	NotifySchedulerListenersError(ctx context.Context, msg string, err error)
	NotifySchedulerListenersFinalized(ctx context.Context, trigger core.Trigger)
	NotifySchedulerThread()
}

// TriggerListenerDispatcher resolves a trigger's listener names to callables and notifies them in order.
type TriggerListenerDispatcher interface {
	// NotifyTriggerListenersFired returns vetoed=true if any trigger
	// listener vetoed this firing.
	NotifyTriggerListenersFired(ctx context.Context, jec *core.JobExecutionContext) (vetoed bool, err error)
	NotifyTriggerListenersComplete(ctx context.Context, jec *core.JobExecutionContext, instruction core.CompletionInstruction) error
}

// JobListenerDispatcher notifies job listeners of the to-be-executed,
// was-executed, and was-vetoed events.
type JobListenerDispatcher interface {
	NotifyJobListenersToBeExecuted(ctx context.Context, jec *core.JobExecutionContext) error
	NotifyJobListenersWasExecuted(ctx context.Context, jec *core.JobExecutionContext, jobErr error) error
	NotifyJobListenersWasVetoed(ctx context.Context, jec *core.JobExecutionContext) error
}

// ShellFactory receives a shell back once it has finished a firing and
// passivated, so it can be pooled.
type ShellFactory interface {
	ReturnJobRunShell(s *JobRunShell)
}
