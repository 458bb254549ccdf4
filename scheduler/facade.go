// Package scheduler supplies the worker-pool façade spec.md keeps outside
// the core: the loop that polls the job store for due triggers, advances
// each one, and hands it to a job run shell, grounded on the teacher's
// Scheduler.worker/dispatchPendingJobs (modules/scheduler/scheduler.go).
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quartzgo/config"
	"github.com/quartzgo/core"
	"github.com/quartzgo/eventbus"
	"github.com/quartzgo/logging"
	"github.com/quartzgo/shell"
	"github.com/quartzgo/store"
)

// JobConstructor builds the job instance a FiredTriggerBundle refers to.
type JobConstructor func(ctx context.Context, bundle core.FiredTriggerBundle) (core.Job, error)

// Facade owns the worker pool, the due-trigger polling loop, and the shell
// pool; it is the minimal slice of "the scheduler's top-level public API
// surface" spec.md §1 explicitly keeps external to the core.
type Facade struct {
	name   string
	store  store.JobStore
	bus    *eventbus.Bus
	logger logging.Logger
	cfg    config.SchedulerConfig

	mu           sync.RWMutex
	constructors map[core.Key]JobConstructor

	shellPool sync.Pool
	sem       chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Facade. name identifies this scheduler instance to jobs via
// core.SchedulerHandle.
func New(name string, js store.JobStore, bus *eventbus.Bus, logger logging.Logger, cfg config.SchedulerConfig) *Facade {
	if logger == nil {
		logger = logging.Nop{}
	}
	f := &Facade{
		name:         name,
		store:        js,
		bus:          bus,
		logger:       logger,
		cfg:          cfg,
		constructors: make(map[core.Key]JobConstructor),
		sem:          make(chan struct{}, cfg.WorkerCount),
	}
	f.shellPool.New = func() any {
		return shell.New(f, f, f, f.bus, f.bus, f.bus, shell.WithLogger(f.logger), shell.WithRetryInterval(cfg.PersistenceRetryInterval()))
	}
	return f
}

// Name implements core.SchedulerHandle.
func (f *Facade) Name() string { return f.name }

// RegisterJob associates jobKey with the constructor used to build its job
// instance on every firing.
func (f *Facade) RegisterJob(jobKey core.Key, ctor JobConstructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[jobKey] = ctor
}

// NewJob implements shell.JobFactory.
func (f *Facade) NewJob(ctx context.Context, bundle core.FiredTriggerBundle) (core.Job, error) {
	f.mu.RLock()
	ctor, ok := f.constructors[bundle.JobDetail.Key]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scheduler: no job constructor registered for %s", bundle.JobDetail.Key)
	}
	return ctor(ctx, bundle)
}

// ReturnJobRunShell implements shell.ShellFactory.
func (f *Facade) ReturnJobRunShell(s *shell.JobRunShell) {
	f.shellPool.Put(s)
}

// NotifyJobStoreJobComplete implements shell.JobStoreNotifier, applying the
// trigger's completion instruction to the job store, then — for a stateful
// job — releasing the BLOCKED mutual exclusion dispatchDue put in place
// before this firing started (spec.md §3.1 NORMAL->BLOCKED, §5).
func (f *Facade) NotifyJobStoreJobComplete(ctx context.Context, jec *core.JobExecutionContext, trigger core.Trigger, jobDetail *core.JobDetail, instruction core.CompletionInstruction) error {
	if err := f.applyCompletionInstruction(trigger, jobDetail, instruction); err != nil {
		return err
	}
	if jobDetail.Stateful {
		if err := f.store.UnblockTriggersForJob(jobDetail.Key); err != nil {
			f.logger.Error("failed to unblock stateful job's triggers", "job", jobDetail.Key, "error", err)
		}
	}
	return nil
}

func (f *Facade) applyCompletionInstruction(trigger core.Trigger, jobDetail *core.JobDetail, instruction core.CompletionInstruction) error {
	switch instruction {
	case core.InstructionSetTriggerComplete:
		return f.store.SetTriggerState(trigger.Key(), core.TriggerStateComplete)
	case core.InstructionDeleteTrigger:
		return f.store.RemoveTrigger(trigger.Key())
	case core.InstructionSetAllJobTriggersComplete:
		return f.store.SetAllTriggersForJobState(jobDetail.Key, core.TriggerStateComplete)
	case core.InstructionSetTriggerError:
		return f.store.SetTriggerState(trigger.Key(), core.TriggerStateError)
	case core.InstructionSetAllJobTriggersError:
		return f.store.SetAllTriggersForJobState(jobDetail.Key, core.TriggerStateError)
	case core.InstructionNoop, core.InstructionReExecuteJob:
		return nil
	default:
		return fmt.Errorf("scheduler: unknown completion instruction %d", instruction)
	}
}

// Start begins the due-trigger polling loop on its own goroutine and
// returns immediately.
func (f *Facade) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	f.wg.Add(1)
	go f.pollLoop(runCtx)
	f.logger.Info("scheduler started", "name", f.name, "workers", f.cfg.WorkerCount)
	return nil
}

// Stop cancels the polling loop and waits for in-flight firings to finish
// reporting to the store (RequestShutdown only bounds the persistence
// retry loop; it never interrupts an in-flight Execute, per spec.md §5).
func (f *Facade) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

func (f *Facade) pollLoop(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(f.cfg.CheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.dispatchDue(ctx)
		case <-f.bus.Wake():
			f.dispatchDue(ctx)
		}
	}
}

// dispatchDue polls the store for due triggers and hands each to a worker.
// Stateful-job mutual exclusion (spec.md §3.1, §5) is enforced here, ahead
// of dispatch: a due trigger whose job is stateful and already has a
// sibling BLOCKED (another of its triggers is executing right now, from
// this poll or a still-running earlier one) is released back to the store
// and skipped for this poll, instead of being handed to a second worker.
func (f *Facade) dispatchDue(ctx context.Context) {
	due, err := f.store.GetDueTriggers(time.Now())
	if err != nil {
		f.logger.Error("failed to query due triggers", "error", err)
		return
	}

	for _, trigger := range due {
		jobDetail, err := f.store.GetJobDetail(trigger.JobKey())
		if err != nil {
			f.logger.Error("job detail missing for due trigger", "trigger", trigger.Key(), "error", err)
			_ = f.store.SetTriggerState(trigger.Key(), core.TriggerStateError)
			continue
		}

		if jobDetail.Stateful {
			state, err := f.store.GetTriggerState(trigger.Key())
			if err == nil && state != core.TriggerStateNormal {
				// a sibling trigger for this stateful job is already
				// executing; wait for it to release BLOCKED.
				_ = f.store.ReleaseTrigger(trigger.Key())
				continue
			}
			if err := f.store.BlockTriggersForJob(jobDetail.Key); err != nil {
				f.logger.Error("failed to block stateful job's triggers", "job", jobDetail.Key, "error", err)
			}
		}

		select {
		case f.sem <- struct{}{}:
		default:
			// every worker busy; this trigger waits for the next poll.
			if jobDetail.Stateful {
				_ = f.store.UnblockTriggersForJob(jobDetail.Key)
			}
			_ = f.store.ReleaseTrigger(trigger.Key())
			continue
		}
		f.wg.Add(1)
		go func(t core.Trigger, jd *core.JobDetail) {
			defer f.wg.Done()
			defer func() { <-f.sem }()
			f.fire(ctx, t, jd)
		}(trigger, jobDetail)
	}
}

// fire advances trigger past its current fire and runs a job run shell for
// it. If the trigger's scheduled fire time fell more than the configured
// misfire threshold behind now, this is a misfire (spec.md §3.2, GLOSSARY):
// UpdateAfterMisfire repairs the schedule instead of Triggered simply
// advancing it by one regular step, which would otherwise leave the trigger
// still hopelessly behind (or, for a bounded repeat count, burn through its
// remaining fires catching up one elapsed interval at a time).
func (f *Facade) fire(ctx context.Context, trigger core.Trigger, jobDetail *core.JobDetail) {
	var cal core.Calendar
	if name := trigger.CalendarName(); name != "" {
		cal, _ = f.store.GetCalendar(name)
	}

	now := time.Now()
	scheduled := trigger.GetNextFireTime()
	prev := trigger.GetPreviousFireTime()
	if misfired(scheduled, now, f.cfg.MisfireThreshold()) {
		trigger.UpdateAfterMisfire(cal)
	} else {
		trigger.Triggered(cal)
	}
	next := trigger.GetNextFireTime()
	trigger.SetFireInstanceID(uuid.NewString())
	if err := f.store.ReleaseTrigger(trigger.Key()); err != nil {
		f.logger.Error("failed to release acquired trigger", "trigger", trigger.Key(), "error", err)
	}

	bundle := core.FiredTriggerBundle{
		Trigger:           trigger,
		JobDetail:         jobDetail,
		Calendar:          cal,
		FireTime:          now,
		ScheduledFireTime: scheduled,
		PrevFireTime:      prev,
		NextFireTime:      next,
	}

	s := f.shellPool.Get().(*shell.JobRunShell)
	if err := s.Initialize(ctx, f, bundle); err != nil {
		s.Passivate()
		f.shellPool.Put(s)
		// could not instantiate the job: the trigger moves to ERROR and is
		// never retried automatically.
		if err := f.store.SetTriggerState(trigger.Key(), core.TriggerStateError); err != nil {
			f.logger.Error("failed to mark trigger ERROR after job instantiation failure", "trigger", trigger.Key(), "error", err)
		}
		if jobDetail.Stateful {
			if err := f.store.UnblockTriggersForJob(jobDetail.Key); err != nil {
				f.logger.Error("failed to unblock stateful job's triggers", "job", jobDetail.Key, "error", err)
			}
		}
		return
	}
	s.Run(ctx)
}

// misfired reports whether next fell more than threshold behind now — a
// scheduled fire moment that elapsed without the scheduler delivering it in
// time (GLOSSARY "Misfire").
func misfired(next *time.Time, now time.Time, threshold time.Duration) bool {
	return next != nil && next.Before(now.Add(-threshold))
}
