// Package config defines the scheduler façade's configuration struct and a
// YAML-plus-environment-override loader, following the teacher's
// modules/scheduler/config.go tagging convention.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// SchedulerConfig configures the worker pool and due-trigger polling loop
// the scheduler façade runs. It intentionally does not expose anything
// about fire-time scheduling itself: spec.md's Non-goals exclude hot
// reconfiguration of fire times, so only the ambient knobs below are
// reloadable.
type SchedulerConfig struct {
	// WorkerCount is the number of job run shells that may execute
	// concurrently.
	WorkerCount int `yaml:"workerCount" env:"WORKER_COUNT"`

	// CheckIntervalMillis is how often the façade polls the job store for
	// due triggers.
	CheckIntervalMillis int `yaml:"checkIntervalMillis" env:"CHECK_INTERVAL_MILLIS"`

	// MisfireThresholdMillis is how far behind a trigger's computed next
	// fire time may fall before it is treated as misfired.
	MisfireThresholdMillis int `yaml:"misfireThresholdMillis" env:"MISFIRE_THRESHOLD_MILLIS"`

	// PersistenceRetrySeconds overrides shell.PersistenceRetryInterval.
	PersistenceRetrySeconds int `yaml:"persistenceRetrySeconds" env:"PERSISTENCE_RETRY_SECONDS"`
}

// CheckInterval returns CheckIntervalMillis as a time.Duration.
func (c SchedulerConfig) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalMillis) * time.Millisecond
}

// MisfireThreshold returns MisfireThresholdMillis as a time.Duration.
func (c SchedulerConfig) MisfireThreshold() time.Duration {
	return time.Duration(c.MisfireThresholdMillis) * time.Millisecond
}

// PersistenceRetryInterval returns PersistenceRetrySeconds as a time.Duration.
func (c SchedulerConfig) PersistenceRetryInterval() time.Duration {
	return time.Duration(c.PersistenceRetrySeconds) * time.Second
}

// Default returns the configuration the teacher ships as its baseline
// defaults, adapted to this repository's knobs.
func Default() SchedulerConfig {
	return SchedulerConfig{
		WorkerCount:             5,
		CheckIntervalMillis:     1000,
		MisfireThresholdMillis:  60_000,
		PersistenceRetrySeconds: 5,
	}
}

// Load reads a YAML file at path (if it exists) over Default(), then
// applies any WORKER_COUNT/CHECK_INTERVAL_MILLIS/... environment overrides.
// A missing file is not an error; the defaults and environment still apply.
func Load(path string) (SchedulerConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return SchedulerConfig{}, fmt.Errorf("parse scheduler config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through with defaults
		default:
			return SchedulerConfig{}, fmt.Errorf("read scheduler config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return SchedulerConfig{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *SchedulerConfig) error {
	overrides := []struct {
		env string
		dst *int
	}{
		{"WORKER_COUNT", &cfg.WorkerCount},
		{"CHECK_INTERVAL_MILLIS", &cfg.CheckIntervalMillis},
		{"MISFIRE_THRESHOLD_MILLIS", &cfg.MisfireThresholdMillis},
		{"PERSISTENCE_RETRY_SECONDS", &cfg.PersistenceRetrySeconds},
	}
	for _, o := range overrides {
		raw := os.Getenv(o.env)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("env %s: %w", o.env, err)
		}
		*o.dst = v
	}
	return nil
}
