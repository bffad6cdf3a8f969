package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	config "github.com/taskpilot/taskpilot/config/utils"
	"github.com/taskpilot/taskpilot/internal/core/service"
)

func TestSchedulerConfigMapping(t *testing.T) {
	got := schedulerConfig(&config.Scheduler{
		MaxConcurrentTasks:   7,
		DefaultMaxAttempts:   2,
		DefaultWorkerMaxLoad: 3,
		TickInterval:         250 * time.Millisecond,
		TaskTimeout:          time.Minute,
		RetryDelay:           2 * time.Second,
	})

	assert.Equal(t, service.SchedulerConfig{
		MaxConcurrentTasks:   7,
		DefaultMaxAttempts:   2,
		DefaultWorkerMaxLoad: 3,
		TickInterval:         250 * time.Millisecond,
		TaskTimeout:          time.Minute,
		RetryDelay:           2 * time.Second,
	}, got)

	// A missing section leaves everything to the service defaults.
	assert.Equal(t, service.SchedulerConfig{}, schedulerConfig(nil))
}

func TestReportThresholdsMapping(t *testing.T) {
	defaults := service.DefaultThresholds()

	assert.Equal(t, defaults, reportThresholds(nil))
	assert.Equal(t, defaults, reportThresholds(&config.Report{}))

	got := reportThresholds(&config.Report{
		SlowTask:       10 * time.Second,
		SuccessRatePct: 95,
	})
	assert.Equal(t, 10*time.Second, got.SlowTask)
	assert.InDelta(t, 95.0, got.SuccessRatePct, 0.01)
	assert.Equal(t, defaults.ResourceCalls, got.ResourceCalls)
	assert.Equal(t, defaults.SlowAverage, got.SlowAverage)
}
