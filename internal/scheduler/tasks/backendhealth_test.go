package tasks

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipstream/vidgrab/internal/scheduler"
)

type fakeProber struct {
	startups  int
	refreshes int
}

func (f *fakeProber) Startup(context.Context) bool {
	f.startups++
	return false
}

func (f *fakeProber) RefreshIndicators(context.Context) error {
	f.refreshes++
	return nil
}

func TestBackendHealthTask_FirstRunIsStartupProbe(t *testing.T) {
	p := &fakeProber{}
	task := NewBackendHealthTask(p, zerolog.Nop())

	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 1, p.startups)
	assert.Equal(t, 0, p.refreshes)

	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Run(context.Background()))
	assert.Equal(t, 1, p.startups)
	assert.Equal(t, 2, p.refreshes)
}

func TestRegisterBackendHealthTask(t *testing.T) {
	sched, err := scheduler.New(zerolog.Nop())
	require.NoError(t, err)
	defer sched.Stop()

	require.NoError(t, RegisterBackendHealthTask(sched, &fakeProber{}, "", zerolog.Nop()))

	info, err := sched.GetTask("backend-health")
	require.NoError(t, err)
	assert.Equal(t, DefaultBackendHealthCron, info.Cron)
	assert.Equal(t, "Backend Health Check", info.Name)
}
