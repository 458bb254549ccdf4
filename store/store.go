// Package store defines the job store contract the core references as an
// external collaborator (spec.md §1, §6) and a reference in-memory
// implementation, adapted from the teacher's memory_store.go to hold
// core.Trigger values alongside their lifecycle state instead of the
// teacher's flat Job records.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quartzgo/core"
)

// Errors returned by JobStore implementations.
var (
	ErrJobAlreadyExists     = errors.New("job already exists")
	ErrJobNotFound          = errors.New("job not found")
	ErrTriggerAlreadyExists = errors.New("trigger already exists")
	ErrTriggerNotFound      = errors.New("trigger not found")
	ErrCalendarNotFound     = errors.New("calendar not found")
)

// JobStore is the persistence collaborator the scheduler façade polls for
// due triggers and reports completion instructions to. spec.md places its
// concrete contract out of scope for the core; this is the minimal surface
// a complete repository needs to run end to end.
type JobStore interface {
	AddJobDetail(detail *core.JobDetail) error
	GetJobDetail(key core.Key) (*core.JobDetail, error)

	AddTrigger(trigger core.Trigger) error
	RemoveTrigger(key core.Key) error
	GetTrigger(key core.Key) (core.Trigger, error)

	// GetDueTriggers returns every NORMAL trigger whose next fire time is
	// at or before before, ascending by fire time.
	GetDueTriggers(before time.Time) ([]core.Trigger, error)

	GetTriggerState(key core.Key) (core.TriggerState, error)
	SetTriggerState(key core.Key, state core.TriggerState) error
	// SetAllTriggersForJobState transitions every trigger pointing at
	// jobKey to state, for SET_ALL_JOB_TRIGGERS_COMPLETE/ERROR.
	SetAllTriggersForJobState(jobKey core.Key, state core.TriggerState) error

	// BlockTriggersForJob transitions every NORMAL trigger pointing at
	// jobKey to BLOCKED, enforcing the mutual exclusion a stateful job
	// requires: GetDueTriggers' NORMAL-only filter then keeps every
	// trigger sharing this job out of the due set until UnblockTriggersForJob
	// releases them. A job with no NORMAL triggers is a no-op, not an error.
	BlockTriggersForJob(jobKey core.Key) error
	// UnblockTriggersForJob transitions every BLOCKED trigger pointing at
	// jobKey back to NORMAL, once the job's execution has finished. A job
	// with no BLOCKED triggers is a no-op, not an error.
	UnblockTriggersForJob(jobKey core.Key) error

	// ReleaseTrigger clears the acquired mark GetDueTriggers left on key so
	// it becomes eligible for acquisition again. The scheduler calls this
	// once it has advanced the trigger's fire time, closing the window
	// between acquisition and advancement during which a second poll would
	// otherwise acquire the same trigger twice.
	ReleaseTrigger(key core.Key) error

	AddCalendar(name string, cal core.Calendar) error
	GetCalendar(name string) (core.Calendar, error)

	PauseTrigger(key core.Key) error
	ResumeTrigger(key core.Key) error
}

type triggerRecord struct {
	trigger  core.Trigger
	state    core.TriggerState
	acquired bool
}

// Memory is an in-memory JobStore, safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	jobs      map[core.Key]*core.JobDetail
	triggers  map[core.Key]*triggerRecord
	calendars map[string]core.Calendar
}

// NewMemory builds an empty in-memory JobStore.
func NewMemory() *Memory {
	return &Memory{
		jobs:      make(map[core.Key]*core.JobDetail),
		triggers:  make(map[core.Key]*triggerRecord),
		calendars: make(map[string]core.Calendar),
	}
}

func (m *Memory) AddJobDetail(detail *core.JobDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[detail.Key]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, detail.Key)
	}
	m.jobs[detail.Key] = detail
	return nil
}

func (m *Memory) GetJobDetail(key core.Key) (*core.JobDetail, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	detail, ok := m.jobs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, key)
	}
	return detail, nil
}

func (m *Memory) AddTrigger(trigger core.Trigger) error {
	if err := trigger.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.triggers[trigger.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrTriggerAlreadyExists, trigger.Key())
	}
	m.triggers[trigger.Key()] = &triggerRecord{trigger: trigger, state: core.TriggerStateNormal}
	return nil
}

func (m *Memory) RemoveTrigger(key core.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.triggers[key]; !exists {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	delete(m.triggers, key)
	return nil
}

func (m *Memory) GetTrigger(key core.Key) (core.Trigger, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.triggers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	return rec.trigger, nil
}

// GetDueTriggers returns every NORMAL trigger due at or before before,
// ascending by next fire time per core.CompareTriggers. A returned trigger
// is marked acquired and will not be returned again until ReleaseTrigger is
// called for its key, the same way the teacher's GetDueJobs flips a job to
// JobStatusRunning under the same lock to prevent a second poll dispatching
// it again before the first has advanced its schedule. A trigger whose
// state was flipped to BLOCKED by BlockTriggersForJob (its job is stateful
// and another of the job's triggers is already firing) is excluded by the
// same NORMAL-only filter, until UnblockTriggersForJob restores it.
func (m *Memory) GetDueTriggers(before time.Time) ([]core.Trigger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := make([]core.Trigger, 0)
	for _, rec := range m.triggers {
		if rec.state != core.TriggerStateNormal || rec.acquired {
			continue
		}
		next := rec.trigger.GetNextFireTime()
		if next != nil && !next.After(before) {
			rec.acquired = true
			due = append(due, rec.trigger)
		}
	}

	for i := 1; i < len(due); i++ {
		for j := i; j > 0 && core.CompareTriggers(due[j-1], due[j]) > 0; j-- {
			due[j-1], due[j] = due[j], due[j-1]
		}
	}
	return due, nil
}

// ReleaseTrigger implements JobStore.ReleaseTrigger.
func (m *Memory) ReleaseTrigger(key core.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.triggers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	rec.acquired = false
	return nil
}

func (m *Memory) GetTriggerState(key core.Key) (core.TriggerState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.triggers[key]
	if !ok {
		return core.TriggerStateNone, fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	return rec.state, nil
}

func (m *Memory) SetTriggerState(key core.Key, state core.TriggerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.triggers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	rec.state = state
	return nil
}

func (m *Memory) SetAllTriggersForJobState(jobKey core.Key, state core.TriggerState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	for _, rec := range m.triggers {
		if rec.trigger.JobKey().Equals(jobKey) {
			rec.state = state
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: no triggers for job %s", ErrTriggerNotFound, jobKey)
	}
	return nil
}

// BlockTriggersForJob implements JobStore.BlockTriggersForJob.
func (m *Memory) BlockTriggersForJob(jobKey core.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.triggers {
		if rec.trigger.JobKey().Equals(jobKey) && rec.state == core.TriggerStateNormal {
			rec.state = core.TriggerStateBlocked
		}
	}
	return nil
}

// UnblockTriggersForJob implements JobStore.UnblockTriggersForJob.
func (m *Memory) UnblockTriggersForJob(jobKey core.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.triggers {
		if rec.trigger.JobKey().Equals(jobKey) && rec.state == core.TriggerStateBlocked {
			rec.state = core.TriggerStateNormal
		}
	}
	return nil
}

func (m *Memory) AddCalendar(name string, cal core.Calendar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calendars[name] = cal
	return nil
}

func (m *Memory) GetCalendar(name string) (core.Calendar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cal, ok := m.calendars[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCalendarNotFound, name)
	}
	return cal, nil
}

func (m *Memory) PauseTrigger(key core.Key) error {
	return m.SetTriggerState(key, core.TriggerStatePaused)
}

func (m *Memory) ResumeTrigger(key core.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.triggers[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTriggerNotFound, key)
	}
	if rec.state == core.TriggerStatePaused {
		rec.state = core.TriggerStateNormal
	}
	return nil
}
