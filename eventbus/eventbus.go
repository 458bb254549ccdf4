// Package eventbus implements the scheduler-listener bus and the trigger-
// and job-listener dispatchers the job run shell consumes (spec.md §6,
// §4.3), publishing scheduler-listener notifications (errors and finalized
// triggers) as CloudEvents the way the teacher module emits scheduler
// events, calling trigger and job listeners directly, and resolving trigger
// listener names
// (carried on the trigger itself) to registered callables the way the
// scheduler layer is expected to (spec.md §4.2 "Listener ordering").
package eventbus

import (
	"context"
	"errors"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"

	"github.com/quartzgo/core"
	"github.com/quartzgo/logging"
)

// Event type constants, following CloudEvents reverse-domain notation. The
// Bus itself emits only EventTypeSchedulerError and EventTypeTriggerFinalized;
// the trigger and job listener notifications are direct method calls.
const (
	EventTypeSchedulerError     = "io.quartzgo.scheduler.error"
	EventTypeTriggerFinalized   = "io.quartzgo.trigger.finalized"
	EventTypeTriggerFired       = "io.quartzgo.trigger.fired"
	EventTypeTriggerComplete    = "io.quartzgo.trigger.complete"
	EventTypeJobToBeExecuted    = "io.quartzgo.job.tobeexecuted"
	EventTypeJobWasExecuted     = "io.quartzgo.job.wasexecuted"
	EventTypeJobWasVetoed       = "io.quartzgo.job.wasvetoed"
)

// TriggerListener observes the pre-execution "fired" decision (with veto
// power) and the post-execution "complete" notification for every trigger
// that names it in TriggerListenerNames().
type TriggerListener interface {
	Name() string
	Fired(ctx context.Context, jec *core.JobExecutionContext) (veto bool, err error)
	Complete(ctx context.Context, jec *core.JobExecutionContext, instruction core.CompletionInstruction) error
}

// JobListener observes to-be-executed, was-executed, and was-vetoed for
// every firing. Unlike trigger listeners, job listeners are registered
// globally on the Bus: spec.md §3.1 carries listener names only on the
// trigger, so job-listener resolution is this package's to define.
type JobListener interface {
	Name() string
	ToBeExecuted(ctx context.Context, jec *core.JobExecutionContext) error
	WasExecuted(ctx context.Context, jec *core.JobExecutionContext, jobErr error) error
	WasVetoed(ctx context.Context, jec *core.JobExecutionContext) error
}

// SchedulerListener receives the bus's scheduler-wide events: an error
// surfaced during a firing, or a trigger that finalized (will never fire
// again).
type SchedulerListener interface {
	SchedulerError(ctx context.Context, event cloudevents.Event)
	TriggerFinalized(ctx context.Context, event cloudevents.Event)
}

// Bus implements shell.SchedulerListenerBus, shell.TriggerListenerDispatcher,
// and shell.JobListenerDispatcher over a registry of named listeners,
// wrapping scheduler-listener notifications as CloudEvents the way the
// teacher's SchedulerModule.EmitEvent does.
type Bus struct {
	mu sync.RWMutex

	source string
	logger logging.Logger

	triggerListeners map[string]TriggerListener
	jobListenerNames []string
	jobListeners     map[string]JobListener
	schedulerListeners []SchedulerListener

	wake chan struct{}
}

// New builds an empty Bus. source is the CloudEvents source attribute
// (e.g. "quartzgo-scheduler").
func New(source string, logger logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Nop{}
	}
	return &Bus{
		source:           source,
		logger:           logger,
		triggerListeners: make(map[string]TriggerListener),
		jobListeners:     make(map[string]JobListener),
		// buffered by 1: NotifySchedulerThread is a best-effort wake, never
		// a rendezvous the shell should block on.
		wake: make(chan struct{}, 1),
	}
}

// Wake returns the channel a scheduler façade's dispatch loop selects on to
// learn a worker finished and it should re-poll for due triggers.
func (b *Bus) Wake() <-chan struct{} { return b.wake }

func (b *Bus) RegisterTriggerListener(l TriggerListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.triggerListeners[l.Name()] = l
}

// RegisterJobListener appends l to the globally-ordered job listener list.
func (b *Bus) RegisterJobListener(l JobListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.jobListeners[l.Name()]; !exists {
		b.jobListenerNames = append(b.jobListenerNames, l.Name())
	}
	b.jobListeners[l.Name()] = l
}

func (b *Bus) RegisterSchedulerListener(l SchedulerListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schedulerListeners = append(b.schedulerListeners, l)
}

func (b *Bus) newEvent(eventType string, data map[string]any) cloudevents.Event {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(b.source)
	event.SetType(eventType)
	if data != nil {
		_ = event.SetData(cloudevents.ApplicationJSON, data)
	}
	return event
}

// NotifySchedulerListenersError implements shell.SchedulerListenerBus.
func (b *Bus) NotifySchedulerListenersError(ctx context.Context, msg string, err error) {
	b.logger.Error(msg, "error", err)
	event := b.newEvent(EventTypeSchedulerError, map[string]any{"message": msg, "error": err.Error()})
	b.mu.RLock()
	listeners := append([]SchedulerListener(nil), b.schedulerListeners...)
	b.mu.RUnlock()
	for _, l := range listeners {
		l.SchedulerError(ctx, event)
	}
}

// NotifySchedulerListenersFinalized implements shell.SchedulerListenerBus.
func (b *Bus) NotifySchedulerListenersFinalized(ctx context.Context, trigger core.Trigger) {
	event := b.newEvent(EventTypeTriggerFinalized, map[string]any{
		"triggerKey": trigger.Key().FullName(),
		"jobKey":     trigger.JobKey().FullName(),
	})
	b.mu.RLock()
	listeners := append([]SchedulerListener(nil), b.schedulerListeners...)
	b.mu.RUnlock()
	for _, l := range listeners {
		l.TriggerFinalized(ctx, event)
	}
}

// NotifySchedulerThread implements shell.SchedulerListenerBus: a
// non-blocking send, since a pending wake already covers the next poll.
func (b *Bus) NotifySchedulerThread() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bus) lookupTriggerListener(name string) (TriggerListener, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.triggerListeners[name]
	return l, ok
}

// NotifyTriggerListenersFired implements shell.TriggerListenerDispatcher,
// calling every listener named on the trigger in insertion order. A veto
// from any one of them vetoes the whole firing, but every listener is
// still given a chance to observe (they are not short-circuited), matching
// Quartz's TriggerListener semantics.
func (b *Bus) NotifyTriggerListenersFired(ctx context.Context, jec *core.JobExecutionContext) (bool, error) {
	vetoed := false
	for _, name := range jec.Trigger.TriggerListenerNames() {
		l, ok := b.lookupTriggerListener(name)
		if !ok {
			b.logger.Warn("unresolved trigger listener name", "name", name)
			continue
		}
		v, err := l.Fired(ctx, jec)
		if err != nil {
			return false, err
		}
		if v {
			vetoed = true
		}
	}
	return vetoed, nil
}

// NotifyTriggerListenersComplete implements shell.TriggerListenerDispatcher.
// Per spec.md §4.3 a post-listener's error is logged and ignored by the
// shell; this still surfaces the first error so callers that want it can
// inspect it, but collects every listener's error so none are silently lost.
func (b *Bus) NotifyTriggerListenersComplete(ctx context.Context, jec *core.JobExecutionContext, instruction core.CompletionInstruction) error {
	var errs []error
	for _, name := range jec.Trigger.TriggerListenerNames() {
		l, ok := b.lookupTriggerListener(name)
		if !ok {
			continue
		}
		if err := l.Complete(ctx, jec, instruction); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyJobListenersToBeExecuted implements shell.JobListenerDispatcher.
func (b *Bus) NotifyJobListenersToBeExecuted(ctx context.Context, jec *core.JobExecutionContext) error {
	for _, l := range b.orderedJobListeners() {
		if err := l.ToBeExecuted(ctx, jec); err != nil {
			return err
		}
	}
	return nil
}

// NotifyJobListenersWasExecuted implements shell.JobListenerDispatcher.
func (b *Bus) NotifyJobListenersWasExecuted(ctx context.Context, jec *core.JobExecutionContext, jobErr error) error {
	for _, l := range b.orderedJobListeners() {
		if err := l.WasExecuted(ctx, jec, jobErr); err != nil {
			return err
		}
	}
	return nil
}

// NotifyJobListenersWasVetoed implements shell.JobListenerDispatcher.
func (b *Bus) NotifyJobListenersWasVetoed(ctx context.Context, jec *core.JobExecutionContext) error {
	var errs []error
	for _, l := range b.orderedJobListeners() {
		if err := l.WasVetoed(ctx, jec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) orderedJobListeners() []JobListener {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]JobListener, 0, len(b.jobListenerNames))
	for _, name := range b.jobListenerNames {
		out = append(out, b.jobListeners[name])
	}
	return out
}
