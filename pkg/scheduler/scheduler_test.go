package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStage reports work available until the well runs dry.
type countingStage struct {
	available int
	runs      int
}

func (c *countingStage) RunOnce(ctx context.Context) (bool, error) {
	if c.available == 0 {
		return false, nil
	}
	c.available--
	c.runs++
	return true, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TickInterval = 5 * time.Millisecond
	return cfg
}

func TestTickEnforcesBudgets(t *testing.T) {
	planner := &countingStage{available: 10}
	executor := &countingStage{available: 10}
	auditor := &countingStage{available: 2}
	agent := &countingStage{available: 0}

	cfg := testConfig()
	cfg.MaxPerTick = Budgets{Planner: 1, Executor: 4, Auditor: 8, Agent: 8}
	s := New(cfg, planner, executor, auditor, agent)

	s.Tick(context.Background())

	assert.Equal(t, 1, planner.runs, "planner capped at its budget")
	assert.Equal(t, 4, executor.runs)
	assert.Equal(t, 2, auditor.runs, "stage stops early when work runs out")
	assert.Equal(t, 0, agent.runs)

	m := s.Metrics()
	assert.Equal(t, uint64(1), m.Ticks)
	assert.Equal(t, uint64(4), m.Runs[StageExecutor])
}

func TestDisabledStageNeverRuns(t *testing.T) {
	executor := &countingStage{available: 5}

	cfg := testConfig()
	cfg.Stages.Executor = false
	s := New(cfg, &countingStage{}, executor, &countingStage{}, &countingStage{})

	s.Tick(context.Background())
	assert.Equal(t, 0, executor.runs)
}

func TestStageErrorRecordedAndTickContinues(t *testing.T) {
	failing := StageFunc(func(ctx context.Context) (bool, error) {
		return false, errors.New("mirror unavailable")
	})
	agent := &countingStage{available: 1}

	s := New(testConfig(), &countingStage{}, failing, &countingStage{}, agent)
	s.Tick(context.Background())

	m := s.Metrics()
	assert.Contains(t, m.LastError, "executor")
	assert.Contains(t, m.LastError, "mirror unavailable")
	assert.Equal(t, 1, agent.runs, "later stages still run")
}

func TestStartStopIdempotentAndRestartable(t *testing.T) {
	planner := &countingStage{available: 1000}
	s := New(testConfig(), planner, &countingStage{}, &countingStage{}, &countingStage{})

	s.Start()
	s.Start()
	require.True(t, s.Running())

	require.Eventually(t, func() bool {
		return s.Metrics().Ticks > 0
	}, time.Second, time.Millisecond)

	s.Stop()
	s.Stop()
	require.False(t, s.Running())

	ticksAfterStop := s.Metrics().Ticks
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticksAfterStop, s.Metrics().Ticks, "no ticks after stop")

	s.Start()
	require.Eventually(t, func() bool {
		return s.Metrics().Ticks > ticksAfterStop
	}, time.Second, time.Millisecond)
	s.Stop()
}
