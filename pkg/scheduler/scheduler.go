// Package scheduler drives the pipeline stages on a fixed cadence. Each
// tick gives every enabled stage a bounded budget of runs, so one busy
// stage cannot monopolize the tick and queue depths stay observable.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stage names, in tick order.
const (
	StagePlanner  = "planner"
	StageExecutor = "executor"
	StageAuditor  = "auditor"
	StageAgent    = "agent"
)

// Stage is one pipeline worker. RunOnce processes at most one record and
// reports whether it found work.
type Stage interface {
	RunOnce(ctx context.Context) (bool, error)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(ctx context.Context) (bool, error)

// RunOnce implements Stage.
func (f StageFunc) RunOnce(ctx context.Context) (bool, error) { return f(ctx) }

// Budgets caps how many records each stage may process per tick.
type Budgets struct {
	Planner  int `yaml:"planner" json:"planner"`
	Executor int `yaml:"executor" json:"executor"`
	Auditor  int `yaml:"auditor" json:"auditor"`
	Agent    int `yaml:"agent" json:"agent"`
}

// Enabled toggles stages individually, for debugging a wedged pipeline.
type Enabled struct {
	Planner  bool `yaml:"planner" json:"planner"`
	Executor bool `yaml:"executor" json:"executor"`
	Auditor  bool `yaml:"auditor" json:"auditor"`
	Agent    bool `yaml:"agent" json:"agent"`
}

// Config tunes the scheduler.
type Config struct {
	TickInterval time.Duration `yaml:"tick_interval" json:"tickInterval"`
	MaxPerTick   Budgets       `yaml:"max_per_tick" json:"maxPerTick"`
	Stages       Enabled       `yaml:"stages" json:"stages"`
}

// DefaultConfig returns the production cadence: a fast tick with one goal
// and a handful of downstream records per pass.
func DefaultConfig() Config {
	return Config{
		TickInterval: 250 * time.Millisecond,
		MaxPerTick:   Budgets{Planner: 1, Executor: 4, Auditor: 8, Agent: 8},
		Stages:       Enabled{Planner: true, Executor: true, Auditor: true, Agent: true},
	}
}

// Metrics is a point-in-time snapshot for the metrics endpoint.
type Metrics struct {
	Running    bool              `json:"running"`
	StartedAt  time.Time         `json:"startedAt,omitempty"`
	LastTickAt time.Time         `json:"lastTickAt,omitempty"`
	Ticks      uint64            `json:"ticks"`
	Runs       map[string]uint64 `json:"runs"`
	LastError  string            `json:"lastError,omitempty"`
}

type slot struct {
	name    string
	stage   Stage
	enabled bool
	budget  int
}

// Scheduler owns the tick loop. Start and Stop are idempotent; the loop is
// lazy by design and is usually started by the first agent turn.
type Scheduler struct {
	cfg   Config
	slots []slot

	mu         sync.Mutex
	running    bool
	startedAt  time.Time
	lastTickAt time.Time
	ticks      uint64
	runs       map[string]uint64
	lastError  string

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a scheduler over the four pipeline stages. The agent slot runs
// the committer, which closes the loop back to the conversation.
func New(cfg Config, planner, executor, auditor, agent Stage) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	return &Scheduler{
		cfg: cfg,
		slots: []slot{
			{StagePlanner, planner, cfg.Stages.Planner, max1(cfg.MaxPerTick.Planner)},
			{StageExecutor, executor, cfg.Stages.Executor, max1(cfg.MaxPerTick.Executor)},
			{StageAuditor, auditor, cfg.Stages.Auditor, max1(cfg.MaxPerTick.Auditor)},
			{StageAgent, agent, cfg.Stages.Agent, max1(cfg.MaxPerTick.Agent)},
		},
		runs: make(map[string]uint64),
	}
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Start launches the tick loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startedAt = time.Now()
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	slog.Info("Scheduler started", "tickInterval", s.cfg.TickInterval)
}

// Stop halts the loop and waits for the in-flight tick. Safe to call on a
// stopped scheduler, and the scheduler can be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	slog.Info("Scheduler stopped")
}

// Running reports whether the loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	ctx := context.Background()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass over the enabled stages, each up to its budget or
// until it reports no work. Stage errors are recorded, logged, and do not
// stop the tick; the queue lease model makes retry safe.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, sl := range s.slots {
		if !sl.enabled || sl.stage == nil {
			continue
		}
		for i := 0; i < sl.budget; i++ {
			worked, err := sl.stage.RunOnce(ctx)
			if err != nil {
				slog.Error("Stage run failed", "stage", sl.name, "error", err)
				s.mu.Lock()
				s.lastError = sl.name + ": " + err.Error()
				s.mu.Unlock()
				break
			}
			if !worked {
				break
			}
			s.mu.Lock()
			s.runs[sl.name]++
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.ticks++
	s.lastTickAt = time.Now()
	s.mu.Unlock()
}

// Metrics returns a snapshot of the loop's counters.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs := make(map[string]uint64, len(s.runs))
	for k, v := range s.runs {
		runs[k] = v
	}
	return Metrics{
		Running:    s.running,
		StartedAt:  s.startedAt,
		LastTickAt: s.lastTickAt,
		Ticks:      s.ticks,
		Runs:       runs,
		LastError:  s.lastError,
	}
}
