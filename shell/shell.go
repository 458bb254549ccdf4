package shell

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quartzgo/core"
	"github.com/quartzgo/logging"
)

// BeginHook and CompleteHook are extension points a persistent-store backed
// deployment can use to wrap a firing in a transaction. Go has no
// subclassing, so these take the place of the overridable begin/complete
// methods a class-based scheduler would expose; both default to no-ops.
type BeginHook func(ctx context.Context) error
type CompleteHook func(ctx context.Context, successful bool)

// PersistenceRetryInterval is the default sleep between job-store retry
// attempts after a persistence failure.
const PersistenceRetryInterval = 5 * time.Second

// Option configures a JobRunShell at construction time.
type Option func(*JobRunShell)

// WithBeginHook overrides the default no-op begin hook.
func WithBeginHook(h BeginHook) Option {
	return func(s *JobRunShell) { s.begin = h }
}

// WithCompleteHook overrides the default no-op complete hook.
func WithCompleteHook(h CompleteHook) Option {
	return func(s *JobRunShell) { s.onComplete = h }
}

// WithRetryInterval overrides PersistenceRetryInterval, primarily for tests.
func WithRetryInterval(d time.Duration) Option {
	return func(s *JobRunShell) { s.retryInterval = d }
}

// WithLogger overrides the default no-op logger.
func WithLogger(l logging.Logger) Option {
	return func(s *JobRunShell) { s.logger = l }
}

// JobRunShell runs exactly one firing decision end to end: pre-notify,
// execute, post-notify, ask the trigger what happens next, and report the
// outcome to the job store — retrying on persistence failure until either
// the write succeeds or shutdown is requested. A shell holds no lock across
// any of these steps and may re-execute the job in place when the trigger
// instructs it to, without giving up its worker.
type JobRunShell struct {
	jobFactory    JobFactory
	shellFactory  ShellFactory
	storeNotifier JobStoreNotifier
	schedulerBus  SchedulerListenerBus
	triggerBus    TriggerListenerDispatcher
	jobBus        JobListenerDispatcher
	logger        logging.Logger

	begin      BeginHook
	onComplete CompleteHook

	retryInterval time.Duration

	jec     *core.JobExecutionContext
	initErr error

	shutdownRequested atomic.Bool
}

// New constructs a JobRunShell wired to its collaborators.
func New(
	jobFactory JobFactory,
	shellFactory ShellFactory,
	storeNotifier JobStoreNotifier,
	schedulerBus SchedulerListenerBus,
	triggerBus TriggerListenerDispatcher,
	jobBus JobListenerDispatcher,
	opts ...Option,
) *JobRunShell {
	s := &JobRunShell{
		jobFactory:    jobFactory,
		shellFactory:  shellFactory,
		storeNotifier: storeNotifier,
		schedulerBus:  schedulerBus,
		triggerBus:    triggerBus,
		jobBus:        jobBus,
		logger:        logging.Nop{},
		begin:         func(context.Context) error { return nil },
		onComplete:    func(context.Context, bool) {},
		retryInterval: PersistenceRetryInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the job instance via the job factory and builds a
// fresh execution context for bundle. A factory failure is reported to the
// scheduler listener bus here, before Run is ever called, and recorded so
// Run aborts immediately without reporting it a second time.
func (s *JobRunShell) Initialize(ctx context.Context, scheduler core.SchedulerHandle, bundle core.FiredTriggerBundle) error {
	job, err := s.jobFactory.NewJob(ctx, bundle)
	s.initErr = err
	if err != nil {
		s.schedulerBus.NotifySchedulerListenersError(ctx, "unable to instantiate job", err)
		return err
	}
	s.jec = core.NewJobExecutionContext(scheduler, job, bundle)
	return nil
}

// Run drives the firing to completion. It returns true once the firing's
// outcome has been reported to the job store (including after any
// RE_EXECUTE_JOB passes), and also when a trigger listener vetoed the
// firing, in which case nothing is reported to the store. It returns false
// if the firing was aborted — by a failed Initialize, a listener
// returning an error, or a persistence retry loop that observed
// RequestShutdown before the store accepted the write.
func (s *JobRunShell) Run(ctx context.Context) bool {
	defer s.finalize()

	if s.initErr != nil {
		return false
	}

	for {
		again, ok := s.runOnePass(ctx)
		if !ok {
			return false
		}
		if !again {
			return true
		}
	}
}

// runOnePass executes one begin-through-complete cycle. again is true when
// the trigger instructed RE_EXECUTE_JOB and the loop in Run should repeat
// in place; ok is false when the pass was aborted.
func (s *JobRunShell) runOnePass(ctx context.Context) (again bool, ok bool) {
	if err := s.begin(ctx); err != nil {
		s.schedulerBus.NotifySchedulerListenersError(ctx, "begin hook failed", err)
		return false, false
	}

	vetoed, err := s.triggerBus.NotifyTriggerListenersFired(ctx, s.jec)
	if err != nil {
		s.schedulerBus.NotifySchedulerListenersError(ctx, "trigger listener error while firing", err)
		return false, false
	}

	if vetoed {
		if err := s.jobBus.NotifyJobListenersWasVetoed(ctx, s.jec); err != nil {
			s.logger.Warn("job listener error on was-vetoed", "error", err)
		}
		s.onComplete(ctx, true)
		return false, true
	}

	if err := s.jobBus.NotifyJobListenersToBeExecuted(ctx, s.jec); err != nil {
		s.schedulerBus.NotifySchedulerListenersError(ctx, "job listener error on to-be-executed", err)
		return false, false
	}

	jobErr := s.executeJob(ctx)

	if err := s.jobBus.NotifyJobListenersWasExecuted(ctx, s.jec, jobErr); err != nil {
		s.schedulerBus.NotifySchedulerListenersError(ctx, "job listener error on was-executed", err)
		return false, false
	}

	instruction := s.askTrigger(ctx, jobErr)

	if err := s.triggerBus.NotifyTriggerListenersComplete(ctx, s.jec, instruction); err != nil {
		s.logger.Warn("trigger listener error on complete", "error", err)
	}
	if s.jec.Trigger.GetNextFireTime() == nil {
		s.schedulerBus.NotifySchedulerListenersFinalized(ctx, s.jec.Trigger)
	}

	if instruction == core.InstructionReExecuteJob {
		s.onComplete(ctx, false)
		s.jec.IncrementRefireCount()
		return true, true
	}

	s.onComplete(ctx, true)
	if !s.completeTriggerRetryLoop(ctx, instruction) {
		return false, false
	}
	return false, true
}

// executeJob runs the job once and classifies whatever it returns. A
// *core.JobExecutionError is domain-specific and passed through untouched so
// the trigger can see its RefireImmediately/Unschedule* flags. Anything else
// is an unhandled job error: it is reported to the scheduler listener bus
// once, here, and wrapped so the trigger still learns a failure occurred.
func (s *JobRunShell) executeJob(ctx context.Context) error {
	start := time.Now()
	err := s.jec.JobInstance.Execute(ctx, s.jec)
	s.jec.JobRunTime = time.Since(start)

	if err == nil {
		return nil
	}

	var jobExecErr *core.JobExecutionError
	if errors.As(err, &jobExecErr) {
		return jobExecErr
	}

	wrapped := NewSchedulerError(ErrorCodeJobExecutionThrewException, err)
	s.schedulerBus.NotifySchedulerListenersError(ctx, "job threw an unhandled error", wrapped)
	return wrapped
}

// askTrigger asks the trigger what should happen next. A trigger is
// expected never to panic, but since it is arbitrary user-supplied code,
// askTrigger recovers anyway and reports the defect as ErrorCodeTriggerThrew
// instead of letting it take the worker down.
func (s *JobRunShell) askTrigger(ctx context.Context, jobErr error) (instruction core.CompletionInstruction) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("trigger executionComplete panicked: %v", r)
			wrapped := NewSchedulerError(ErrorCodeTriggerThrew, err)
			s.schedulerBus.NotifySchedulerListenersError(ctx, "trigger's executionComplete panicked", wrapped)
			instruction = core.InstructionNoop
		}
	}()
	return s.jec.Trigger.ExecutionComplete(s.jec, jobErr)
}

// completeTriggerRetryLoop reports the firing's outcome to the job store,
// retrying every retryInterval while the failure is a persistence error and
// no shutdown has been requested. Any other notifier error is logged once
// and not retried. It returns true once the outcome has been reported (or
// abandoned on a non-retryable error), and false only when it gave up
// because shutdown was requested or the context was canceled — a shutdown
// requested during a firing whose write succeeded does not poison the
// result.
func (s *JobRunShell) completeTriggerRetryLoop(ctx context.Context, instruction core.CompletionInstruction) bool {
	for {
		err := s.storeNotifier.NotifyJobStoreJobComplete(ctx, s.jec, s.jec.Trigger, s.jec.JobDetail, instruction)
		if err == nil {
			return true
		}
		if !IsPersistenceError(err) {
			s.schedulerBus.NotifySchedulerListenersError(ctx, "job store notification failed", err)
			return true
		}
		s.schedulerBus.NotifySchedulerListenersError(ctx, "job store unavailable, will retry", err)
		if s.shutdownRequested.Load() {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.retryInterval):
		}
		if s.shutdownRequested.Load() {
			return false
		}
	}
}

// RequestShutdown tells a retry loop in progress to give up after its
// current attempt instead of sleeping for another retryInterval.
func (s *JobRunShell) RequestShutdown() {
	s.shutdownRequested.Store(true)
}

// Passivate clears the shell's per-firing state so it is safe to hand back
// to the pool.
func (s *JobRunShell) Passivate() {
	s.jec = nil
	s.initErr = nil
}

func (s *JobRunShell) finalize() {
	s.schedulerBus.NotifySchedulerThread()
	s.Passivate()
	s.shellFactory.ReturnJobRunShell(s)
}
