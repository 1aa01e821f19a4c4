package tasks

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/slipstream/vidgrab/internal/scheduler"
)

// DefaultBackendHealthCron is used when no schedule is configured.
const DefaultBackendHealthCron = "*/5 * * * *"

// BackendProber is the part of the coordinator the health task drives.
type BackendProber interface {
	Startup(ctx context.Context) bool
	RefreshIndicators(ctx context.Context) error
}

// BackendHealthTask probes the download server. The first run is the
// startup probe; later runs refresh every tab's indicator.
type BackendHealthTask struct {
	prober  BackendProber
	started atomic.Bool
	logger  zerolog.Logger
}

// NewBackendHealthTask creates a new backend health task.
func NewBackendHealthTask(prober BackendProber, logger zerolog.Logger) *BackendHealthTask {
	return &BackendHealthTask{
		prober: prober,
		logger: logger.With().Str("task", "backend-health").Logger(),
	}
}

// Run executes one probe.
func (t *BackendHealthTask) Run(ctx context.Context) error {
	if t.started.CompareAndSwap(false, true) {
		connected := t.prober.Startup(ctx)
		t.logger.Debug().Bool("connected", connected).Msg("Startup probe finished")
		return nil
	}
	return t.prober.RefreshIndicators(ctx)
}

// RegisterBackendHealthTask registers the backend probe with the scheduler.
func RegisterBackendHealthTask(sched *scheduler.Scheduler, prober BackendProber, cron string, logger zerolog.Logger) error {
	if cron == "" {
		cron = DefaultBackendHealthCron
	}

	task := NewBackendHealthTask(prober, logger)
	return sched.RegisterTask(scheduler.TaskConfig{
		ID:          "backend-health",
		Name:        "Backend Health Check",
		Description: "Probes the download server and refreshes tab indicators",
		Cron:        cron,
		RunOnStart:  true,
		Func:        task.Run,
	})
}
