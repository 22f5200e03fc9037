package xec

import (
	"time"

	"github.com/creasty/defaults"
)

// Config groups the knobs shared by xec's demo CLI and by any host
// application that wants to build a TaskExecutor, SingleThreadExecution,
// or PoolExecution from a single settings struct instead of wiring each
// one by hand. NewConfig fills in the `default` tags via creasty/defaults;
// a bare Config{} has none of them applied and holds zero values.
type Config struct {
	// MinTimeToSchedule is the TaskExecutor threshold below which
	// ScheduleTask runs a task immediately instead of scheduling it.
	MinTimeToSchedule time.Duration `default:"20ms"`

	// FinishTasksOnExit controls TaskExecutor.SetFinishTasksOnExit.
	FinishTasksOnExit bool `default:"false"`

	// PoolWorkers is how many worker goroutines PoolExecution.LaunchThreads
	// starts.
	PoolWorkers int `default:"4"`

	// ThreadNamePrefix, if non-empty, is the base of the name passed to
	// LaunchThread / LaunchThreads so worker threads get OS-visible names.
	// A resulting name longer than threadname.MaxLen is rejected, and the
	// worker keeps its default OS thread name.
	ThreadNamePrefix string `default:"xec-worker"`
}

// NewConfig returns a Config with its tagged defaults applied, then
// overridden by opts in order.
func NewConfig(opts ...Option) Config {
	var c Config
	// only the tagged zero-value defaults are ever filled in; this never
	// fails for Config's field types, so the error is safe to discard.
	_ = defaults.Set(&c)
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Option mutates a Config; NewConfig applies a list of them over the
// struct's defaults.
type Option func(*Config)

// WithMinTimeToSchedule overrides MinTimeToSchedule.
func WithMinTimeToSchedule(d time.Duration) Option {
	return func(c *Config) { c.MinTimeToSchedule = d }
}

// WithFinishTasksOnExit overrides FinishTasksOnExit.
func WithFinishTasksOnExit(b bool) Option {
	return func(c *Config) { c.FinishTasksOnExit = b }
}

// WithPoolWorkers overrides PoolWorkers.
func WithPoolWorkers(n int) Option {
	return func(c *Config) { c.PoolWorkers = n }
}

// WithThreadNamePrefix overrides ThreadNamePrefix.
func WithThreadNamePrefix(name string) Option {
	return func(c *Config) { c.ThreadNamePrefix = name }
}
