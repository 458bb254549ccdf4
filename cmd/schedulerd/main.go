// Command schedulerd wires the job store, the scheduler façade, and two
// concrete triggers through the shell pool and runs until it receives
// SIGINT or SIGTERM, analogous to the teacher's examples/scheduler-demo (minus its
// HTTP/chi surface, which spec.md §1 keeps out of scope).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/quartzgo/calendar"
	"github.com/quartzgo/config"
	"github.com/quartzgo/core"
	"github.com/quartzgo/eventbus"
	"github.com/quartzgo/logging"
	"github.com/quartzgo/scheduler"
	"github.com/quartzgo/store"
	"github.com/quartzgo/triggers/cron"
	"github.com/quartzgo/triggers/simple"
)

// printJob logs every firing to stdout; a real deployment would register
// something that actually does work.
type printJob struct {
	label string
}

func (j *printJob) Execute(ctx context.Context, jec *core.JobExecutionContext) error {
	fmt.Printf("[%s] fired job %s (refire=%d)\n", time.Now().Format(time.RFC3339), j.label, jec.RefireCount)
	return nil
}

type stdoutSchedulerListener struct{}

func (stdoutSchedulerListener) SchedulerError(ctx context.Context, event cloudevents.Event) {
	fmt.Printf("scheduler error event: %s\n", event.Type())
}

func (stdoutSchedulerListener) TriggerFinalized(ctx context.Context, event cloudevents.Event) {
	fmt.Printf("trigger finalized event: %s\n", event.Type())
}

func main() {
	logger, err := logging.NewZapLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	configPath := os.Getenv("SCHEDULERD_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var stopWatcher chan struct{}
	if configPath != "" {
		watcher, err := config.New(configPath, func(reloaded config.SchedulerConfig) error {
			logger.Info("config reloaded; worker pool and check interval take effect on next restart",
				"workerCount", reloaded.WorkerCount, "checkIntervalMillis", reloaded.CheckIntervalMillis)
			return nil
		}, logger, 0)
		if err != nil {
			logger.Error("failed to build config watcher", "error", err)
			os.Exit(1)
		}
		stopWatcher = make(chan struct{})
		if err := watcher.Start(stopWatcher); err != nil {
			logger.Error("failed to start config watcher", "error", err)
			os.Exit(1)
		}
		defer watcher.Stop()
		defer close(stopWatcher)
	}

	js := store.NewMemory()
	bus := eventbus.New("quartzgo-schedulerd", logger)
	bus.RegisterSchedulerListener(stdoutSchedulerListener{})

	weekendsExcluded := calendar.NewWeekendExcluded()
	if err := js.AddCalendar("weekends-excluded", weekendsExcluded); err != nil {
		logger.Error("failed to register calendar", "error", err)
		os.Exit(1)
	}

	facade := scheduler.New("schedulerd", js, bus, logger, cfg)

	heartbeatKey := core.NewKey("heartbeat", "demo")
	if err := js.AddJobDetail(&core.JobDetail{Key: heartbeatKey, Description: "periodic heartbeat"}); err != nil {
		logger.Error("failed to register job", "error", err)
		os.Exit(1)
	}
	facade.RegisterJob(heartbeatKey, func(ctx context.Context, bundle core.FiredTriggerBundle) (core.Job, error) {
		return &printJob{label: "heartbeat"}, nil
	})

	heartbeatTrigger, err := simple.New("heartbeat-trigger", "demo", "heartbeat", "demo", time.Now(), simple.RepeatIndefinitely, 5*time.Second)
	if err != nil {
		logger.Error("failed to build simple trigger", "error", err)
		os.Exit(1)
	}
	heartbeatTrigger.ComputeFirstFireTime(nil)
	if err := js.AddTrigger(heartbeatTrigger); err != nil {
		logger.Error("failed to add trigger", "error", err)
		os.Exit(1)
	}

	reportKey := core.NewKey("daily-report", "demo")
	if err := js.AddJobDetail(&core.JobDetail{Key: reportKey, Description: "weekday report"}); err != nil {
		logger.Error("failed to register job", "error", err)
		os.Exit(1)
	}
	facade.RegisterJob(reportKey, func(ctx context.Context, bundle core.FiredTriggerBundle) (core.Job, error) {
		return &printJob{label: "daily-report"}, nil
	})

	reportTrigger, err := cron.New("daily-report-trigger", "demo", "daily-report", "demo", time.Now(), "*/10 * * * *")
	if err != nil {
		logger.Error("failed to build cron trigger", "error", err)
		os.Exit(1)
	}
	reportTrigger.SetCalendarName("weekends-excluded")
	reportTrigger.ComputeFirstFireTime(weekendsExcluded)
	if err := js.AddTrigger(reportTrigger); err != nil {
		logger.Error("failed to add trigger", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := facade.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down schedulerd")
	facade.Stop()
}
