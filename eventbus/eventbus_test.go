package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzgo/core"
)

type recordingTriggerListener struct {
	name   string
	veto   bool
	err    error
	fired  []string
	shared *[]string
}

func (l *recordingTriggerListener) Name() string { return l.name }
func (l *recordingTriggerListener) Fired(ctx context.Context, jec *core.JobExecutionContext) (bool, error) {
	*l.shared = append(*l.shared, l.name)
	return l.veto, l.err
}
func (l *recordingTriggerListener) Complete(ctx context.Context, jec *core.JobExecutionContext, instruction core.CompletionInstruction) error {
	return nil
}

func newTrigger(t *testing.T, listeners ...string) core.Trigger {
	t.Helper()
	base, err := core.NewBaseTrigger("t", "g", "job", "g", time.Unix(0, 0), false)
	require.NoError(t, err)
	for _, l := range listeners {
		base.AddTriggerListener(l)
	}
	return &stubTrigger{BaseTrigger: base}
}

type stubTrigger struct{ core.BaseTrigger }

func (s *stubTrigger) GetNextFireTime() *time.Time                        { return nil }
func (s *stubTrigger) GetPreviousFireTime() *time.Time                    { return nil }
func (s *stubTrigger) ComputeFirstFireTime(core.Calendar) *time.Time      { return nil }
func (s *stubTrigger) GetFireTimeAfter(time.Time) *time.Time              { return nil }
func (s *stubTrigger) GetFinalFireTime() *time.Time                       { return nil }
func (s *stubTrigger) MayFireAgain() bool                                 { return false }
func (s *stubTrigger) Triggered(core.Calendar)                            {}
func (s *stubTrigger) UpdateAfterMisfire(core.Calendar)                   {}
func (s *stubTrigger) UpdateWithNewCalendar(core.Calendar, time.Duration) {}
func (s *stubTrigger) Clone() core.Trigger                                { c := *s; return &c }
func (s *stubTrigger) ExecutionComplete(*core.JobExecutionContext, error) core.CompletionInstruction {
	return core.InstructionNoop
}

func TestNotifyTriggerListenersFired_CallsInOrderAndPropagatesVeto(t *testing.T) {
	bus := New("test", nil)
	var order []string
	a := &recordingTriggerListener{name: "a", shared: &order}
	b := &recordingTriggerListener{name: "b", veto: true, shared: &order}
	bus.RegisterTriggerListener(a)
	bus.RegisterTriggerListener(b)

	trigger := newTrigger(t, "a", "b")
	jec := &core.JobExecutionContext{Trigger: trigger}

	vetoed, err := bus.NotifyTriggerListenersFired(context.Background(), jec)
	require.NoError(t, err)
	assert.True(t, vetoed)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestNotifyTriggerListenersFired_UnresolvedNameIsSkipped(t *testing.T) {
	bus := New("test", nil)
	trigger := newTrigger(t, "ghost")
	jec := &core.JobExecutionContext{Trigger: trigger}

	vetoed, err := bus.NotifyTriggerListenersFired(context.Background(), jec)
	require.NoError(t, err)
	assert.False(t, vetoed)
}

func TestNotifyTriggerListenersFired_PropagatesListenerError(t *testing.T) {
	bus := New("test", nil)
	var order []string
	boom := errors.New("boom")
	l := &recordingTriggerListener{name: "a", err: boom, shared: &order}
	bus.RegisterTriggerListener(l)

	trigger := newTrigger(t, "a")
	jec := &core.JobExecutionContext{Trigger: trigger}

	_, err := bus.NotifyTriggerListenersFired(context.Background(), jec)
	require.ErrorIs(t, err, boom)
}

type recordingJobListener struct {
	name  string
	calls *[]string
}

func (l *recordingJobListener) Name() string { return l.name }
func (l *recordingJobListener) ToBeExecuted(ctx context.Context, jec *core.JobExecutionContext) error {
	*l.calls = append(*l.calls, l.name+":toBeExecuted")
	return nil
}
func (l *recordingJobListener) WasExecuted(ctx context.Context, jec *core.JobExecutionContext, jobErr error) error {
	*l.calls = append(*l.calls, l.name+":wasExecuted")
	return nil
}
func (l *recordingJobListener) WasVetoed(ctx context.Context, jec *core.JobExecutionContext) error {
	*l.calls = append(*l.calls, l.name+":wasVetoed")
	return nil
}

func TestJobListeners_DispatchInRegistrationOrder(t *testing.T) {
	bus := New("test", nil)
	var calls []string
	bus.RegisterJobListener(&recordingJobListener{name: "first", calls: &calls})
	bus.RegisterJobListener(&recordingJobListener{name: "second", calls: &calls})

	jec := &core.JobExecutionContext{}
	require.NoError(t, bus.NotifyJobListenersToBeExecuted(context.Background(), jec))
	require.NoError(t, bus.NotifyJobListenersWasExecuted(context.Background(), jec, nil))
	require.NoError(t, bus.NotifyJobListenersWasVetoed(context.Background(), jec))

	assert.Equal(t, []string{
		"first:toBeExecuted", "second:toBeExecuted",
		"first:wasExecuted", "second:wasExecuted",
		"first:wasVetoed", "second:wasVetoed",
	}, calls)
}

type recordingSchedulerListener struct {
	errors     []cloudevents.Event
	finalized  []cloudevents.Event
}

func (l *recordingSchedulerListener) SchedulerError(ctx context.Context, event cloudevents.Event) {
	l.errors = append(l.errors, event)
}
func (l *recordingSchedulerListener) TriggerFinalized(ctx context.Context, event cloudevents.Event) {
	l.finalized = append(l.finalized, event)
}

func TestNotifySchedulerListenersError_EmitsCloudEvent(t *testing.T) {
	bus := New("test-source", nil)
	l := &recordingSchedulerListener{}
	bus.RegisterSchedulerListener(l)

	bus.NotifySchedulerListenersError(context.Background(), "boom happened", errors.New("boom"))

	require.Len(t, l.errors, 1)
	assert.Equal(t, EventTypeSchedulerError, l.errors[0].Type())
	assert.Equal(t, "test-source", l.errors[0].Source())
}

func TestNotifySchedulerListenersFinalized_EmitsCloudEvent(t *testing.T) {
	bus := New("test-source", nil)
	l := &recordingSchedulerListener{}
	bus.RegisterSchedulerListener(l)

	trigger := newTrigger(t)
	bus.NotifySchedulerListenersFinalized(context.Background(), trigger)

	require.Len(t, l.finalized, 1)
	assert.Equal(t, EventTypeTriggerFinalized, l.finalized[0].Type())
}

func TestNotifySchedulerThread_IsNonBlockingAndCoalesces(t *testing.T) {
	bus := New("test", nil)
	bus.NotifySchedulerThread()
	bus.NotifySchedulerThread() // second send must not block even though buffer is 1

	select {
	case <-bus.Wake():
	default:
		t.Fatal("expected a pending wake signal")
	}
}
