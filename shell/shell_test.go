package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/quartzgo/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedTrigger is a minimal Trigger whose ExecutionComplete behavior is
// supplied per test, so each scenario can drive the shell's decision loop
// without a concrete triggers/simple or triggers/cron schedule.
type scriptedTrigger struct {
	core.BaseTrigger
	next                 *time.Time
	executionCompleteFn  func(jec *core.JobExecutionContext, jobErr error) core.CompletionInstruction
}

func newScriptedTrigger(t *testing.T, fn func(*core.JobExecutionContext, error) core.CompletionInstruction) *scriptedTrigger {
	t.Helper()
	base, err := core.NewBaseTrigger("t", "g", "job", "g", time.Unix(0, 0), false)
	require.NoError(t, err)
	return &scriptedTrigger{BaseTrigger: base, executionCompleteFn: fn}
}

func (s *scriptedTrigger) GetNextFireTime() *time.Time                   { return s.next }
func (s *scriptedTrigger) GetPreviousFireTime() *time.Time               { return nil }
func (s *scriptedTrigger) ComputeFirstFireTime(core.Calendar) *time.Time { return s.next }
func (s *scriptedTrigger) GetFireTimeAfter(time.Time) *time.Time         { return s.next }
func (s *scriptedTrigger) GetFinalFireTime() *time.Time                  { return nil }
func (s *scriptedTrigger) MayFireAgain() bool                            { return s.next != nil }
func (s *scriptedTrigger) Triggered(core.Calendar)                       {}
func (s *scriptedTrigger) UpdateAfterMisfire(core.Calendar)              {}
func (s *scriptedTrigger) UpdateWithNewCalendar(core.Calendar, time.Duration) {}
func (s *scriptedTrigger) Clone() core.Trigger {
	clone := *s
	return &clone
}
func (s *scriptedTrigger) ExecutionComplete(jec *core.JobExecutionContext, jobErr error) core.CompletionInstruction {
	return s.executionCompleteFn(jec, jobErr)
}

type fakeJob struct {
	runs int
	fn   func(ctx context.Context, jec *core.JobExecutionContext) error
}

func (j *fakeJob) Execute(ctx context.Context, jec *core.JobExecutionContext) error {
	j.runs++
	if j.fn != nil {
		return j.fn(ctx, jec)
	}
	return nil
}

type fakeJobFactory struct {
	job core.Job
	err error
}

func (f *fakeJobFactory) NewJob(context.Context, core.FiredTriggerBundle) (core.Job, error) {
	return f.job, f.err
}

type fakeShellFactory struct {
	returned []*JobRunShell
}

func (f *fakeShellFactory) ReturnJobRunShell(s *JobRunShell) {
	f.returned = append(f.returned, s)
}

type fakeSchedulerBus struct {
	mu        sync.Mutex
	errorMsgs []string
	errs      []error
	finalized []core.Trigger
	wakeCount int
}

func (b *fakeSchedulerBus) NotifySchedulerListenersError(_ context.Context, msg string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorMsgs = append(b.errorMsgs, msg)
	b.errs = append(b.errs, err)
}

func (b *fakeSchedulerBus) NotifySchedulerListenersFinalized(_ context.Context, trigger core.Trigger) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalized = append(b.finalized, trigger)
}

func (b *fakeSchedulerBus) NotifySchedulerThread() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wakeCount++
}

type fakeTriggerDispatcher struct {
	veto          bool
	fireErr       error
	completeInstr []core.CompletionInstruction
}

func (d *fakeTriggerDispatcher) NotifyTriggerListenersFired(context.Context, *core.JobExecutionContext) (bool, error) {
	return d.veto, d.fireErr
}

func (d *fakeTriggerDispatcher) NotifyTriggerListenersComplete(_ context.Context, _ *core.JobExecutionContext, instruction core.CompletionInstruction) error {
	d.completeInstr = append(d.completeInstr, instruction)
	return nil
}

type fakeJobDispatcher struct {
	toBeExecuted, wasExecuted, wasVetoed int
	toBeExecutedErr                      error
	wasExecutedErr                       error
}

func (d *fakeJobDispatcher) NotifyJobListenersToBeExecuted(context.Context, *core.JobExecutionContext) error {
	d.toBeExecuted++
	return d.toBeExecutedErr
}

func (d *fakeJobDispatcher) NotifyJobListenersWasExecuted(context.Context, *core.JobExecutionContext, error) error {
	d.wasExecuted++
	return d.wasExecutedErr
}

func (d *fakeJobDispatcher) NotifyJobListenersWasVetoed(context.Context, *core.JobExecutionContext) error {
	d.wasVetoed++
	return nil
}

type fakeStoreNotifier struct {
	mu        sync.Mutex
	calls     int
	alwaysErr error
	errs      []error
	instrSeen []core.CompletionInstruction
	onCall    func(callIndex int)
}

func (n *fakeStoreNotifier) NotifyJobStoreJobComplete(_ context.Context, _ *core.JobExecutionContext, _ core.Trigger, _ *core.JobDetail, instruction core.CompletionInstruction) error {
	n.mu.Lock()
	idx := n.calls
	n.calls++
	n.instrSeen = append(n.instrSeen, instruction)
	n.mu.Unlock()

	if n.onCall != nil {
		n.onCall(idx)
	}
	if n.alwaysErr != nil {
		return n.alwaysErr
	}
	if idx < len(n.errs) {
		return n.errs[idx]
	}
	return nil
}

type fakeSchedulerHandle struct{}

func (fakeSchedulerHandle) Name() string { return "test-scheduler" }

func newTestBundle(trig core.Trigger) core.FiredTriggerBundle {
	return core.FiredTriggerBundle{
		Trigger:   trig,
		JobDetail: &core.JobDetail{Key: core.NewKey("job", "g")},
		FireTime:  time.Now(),
	}
}

func TestJobRunShell_HappyPath(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		return core.InstructionSetTriggerComplete
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, jobBus.toBeExecuted)
	assert.Equal(t, 1, jobBus.wasExecuted)
	assert.Equal(t, 0, jobBus.wasVetoed)
	require.Len(t, storeNotifier.instrSeen, 1)
	assert.Equal(t, core.InstructionSetTriggerComplete, storeNotifier.instrSeen[0])
	assert.Equal(t, 1, schedulerBus.wakeCount)
	assert.Len(t, shellFactory.returned, 1)
	assert.Empty(t, schedulerBus.errorMsgs)
}

func TestJobRunShell_Vetoed(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{veto: true}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		t.Fatal("ExecutionComplete must not be called for a vetoed firing")
		return core.InstructionNoop
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 1, jobBus.wasVetoed)
	assert.Equal(t, 0, jobBus.wasExecuted)
	assert.Empty(t, storeNotifier.instrSeen)
	assert.Equal(t, 1, schedulerBus.wakeCount)
}

func TestJobRunShell_JobThrowsUnhandledError(t *testing.T) {
	boom := errors.New("boom")
	job := &fakeJob{fn: func(context.Context, *core.JobExecutionContext) error { return boom }}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	var seenErr error
	trig := newScriptedTrigger(t, func(_ *core.JobExecutionContext, jobErr error) core.CompletionInstruction {
		seenErr = jobErr
		return core.InstructionSetTriggerError
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.True(t, ok)
	var schedErr *SchedulerError
	require.ErrorAs(t, seenErr, &schedErr)
	assert.Equal(t, ErrorCodeJobExecutionThrewException, schedErr.Code)
	assert.ErrorIs(t, schedErr, boom)
	assert.Contains(t, schedulerBus.errorMsgs, "job threw an unhandled error")
	require.Len(t, storeNotifier.instrSeen, 1)
	assert.Equal(t, core.InstructionSetTriggerError, storeNotifier.instrSeen[0])
}

func TestJobRunShell_ReExecutesThenCompletes(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	calls := 0
	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		calls++
		if calls < 3 {
			return core.InstructionReExecuteJob
		}
		return core.InstructionSetTriggerComplete
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 3, job.runs)
	assert.Equal(t, 3, jobBus.toBeExecuted)
	assert.Equal(t, 3, jobBus.wasExecuted)
	assert.Equal(t,
		[]core.CompletionInstruction{core.InstructionReExecuteJob, core.InstructionReExecuteJob, core.InstructionSetTriggerComplete},
		triggerBus.completeInstr,
	)
	// Re-execute passes never report to the job store; only the final
	// disposition does.
	require.Len(t, storeNotifier.instrSeen, 1)
	assert.Equal(t, core.InstructionSetTriggerComplete, storeNotifier.instrSeen[0])
	assert.Equal(t, 1, schedulerBus.wakeCount)
}

func TestJobRunShell_PersistenceFailureThenShutdownAborts(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}

	persistErr := fmt.Errorf("%w: disk full", ErrPersistence)
	storeNotifier := &fakeStoreNotifier{alwaysErr: persistErr}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		return core.InstructionSetTriggerComplete
	})

	var s *JobRunShell
	storeNotifier.onCall = func(idx int) {
		if idx == 1 {
			s.RequestShutdown()
		}
	}

	s = New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus, WithRetryInterval(time.Millisecond))
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.False(t, ok)
	assert.GreaterOrEqual(t, storeNotifier.calls, 2)
	// The shell still finalizes and returns itself to the pool even when
	// the firing is ultimately abandoned.
	assert.Len(t, shellFactory.returned, 1)
	assert.Equal(t, 1, schedulerBus.wakeCount)
}

func TestJobRunShell_InitializeFailureReportsAndAbortsWithoutRun(t *testing.T) {
	factory := &fakeJobFactory{err: errors.New("no such job class")}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		t.Fatal("ExecutionComplete must not be called when Initialize failed")
		return core.InstructionNoop
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	err := s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig))
	require.Error(t, err)
	assert.Len(t, schedulerBus.errorMsgs, 1)

	ok := s.Run(context.Background())

	assert.False(t, ok)
	assert.Empty(t, storeNotifier.instrSeen)
	assert.Len(t, schedulerBus.errorMsgs, 1)
	assert.Len(t, shellFactory.returned, 1)
}

// TestJobRunShell_ReinitializeAfterFailureClearsStaleInitErr guards against a
// pooled shell carrying a stale initErr from a prior failed Initialize into a
// later successful one, which would make Run abort a perfectly good firing.
func TestJobRunShell_ReinitializeAfterFailureClearsStaleInitErr(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{err: errors.New("no such job class")}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		return core.InstructionNoop
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.Error(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))
	assert.False(t, s.Run(context.Background()))

	factory.err = nil
	factory.job = job

	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))
	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, job.runs)
}

// TestJobRunShell_ShutdownAfterSuccessfulWriteStillReportsSuccess pins down
// the retry loop's contract: a shutdown requested while the firing was
// executing must not turn a successfully reported outcome into a failure.
// Only a retry loop that gave up before the store accepted the write makes
// Run return false.
func TestJobRunShell_ShutdownAfterSuccessfulWriteStillReportsSuccess(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}
	storeNotifier := &fakeStoreNotifier{}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		return core.InstructionNoop
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus)
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	s.RequestShutdown()
	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 1, job.runs)
	require.Len(t, storeNotifier.instrSeen, 1)
}

// TestJobRunShell_PersistenceRecoversOnRetry covers the other half of the
// retry loop's contract: a store that fails once and then accepts the write
// yields a successful Run, not an abandoned firing.
func TestJobRunShell_PersistenceRecoversOnRetry(t *testing.T) {
	job := &fakeJob{}
	factory := &fakeJobFactory{job: job}
	shellFactory := &fakeShellFactory{}
	schedulerBus := &fakeSchedulerBus{}
	triggerBus := &fakeTriggerDispatcher{}
	jobBus := &fakeJobDispatcher{}

	persistErr := fmt.Errorf("%w: connection reset", ErrPersistence)
	storeNotifier := &fakeStoreNotifier{errs: []error{persistErr}}

	trig := newScriptedTrigger(t, func(*core.JobExecutionContext, error) core.CompletionInstruction {
		return core.InstructionNoop
	})

	s := New(factory, shellFactory, storeNotifier, schedulerBus, triggerBus, jobBus, WithRetryInterval(time.Millisecond))
	require.NoError(t, s.Initialize(context.Background(), fakeSchedulerHandle{}, newTestBundle(trig)))

	ok := s.Run(context.Background())

	assert.True(t, ok)
	assert.Equal(t, 2, storeNotifier.calls)
	assert.Contains(t, schedulerBus.errorMsgs, "job store unavailable, will retry")
}
