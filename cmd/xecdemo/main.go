// Command xecdemo exercises xec from the command line with two
// subcommands: "single" runs a TaskExecutor on a SingleThreadExecution,
// and "pool" runs several TaskExecutors sharing a PoolExecution.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/iboB/xec"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "xecdemo",
		Short: "Exercise xec's execution contexts from the command line",
	}
	root.AddCommand(newSingleCmd(), newPoolCmd())
	return root
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		l = zap.NewNop()
	}
	return l
}

func newSingleCmd() *cobra.Command {
	var tasks int
	var verbose bool
	var minSchedule time.Duration

	cmd := &cobra.Command{
		Use:   "single",
		Short: "Run a TaskExecutor on a dedicated thread and push a batch of tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer log.Sync()
			xec.SetLogger(log)

			cfg := xec.NewConfig(
				xec.WithMinTimeToSchedule(minSchedule),
				xec.WithFinishTasksOnExit(true),
			)

			runID := uuid.New()
			log.Info("starting single-thread run", zap.String("run_id", runID.String()))

			te := xec.NewTaskExecutor(cfg.MinTimeToSchedule)
			te.SetFinishTasksOnExit(cfg.FinishTasksOnExit)
			exec := xec.NewSingleThreadExecution(te)
			exec.LaunchThread(cfg.ThreadNamePrefix + "-single")

			var remaining = make(chan struct{}, tasks)
			for i := 0; i < tasks; i++ {
				i := i
				te.PushTask(func() {
					log.Info("task ran", zap.Int("index", i))
					remaining <- struct{}{}
				}, 0, 0)
			}
			for i := 0; i < tasks; i++ {
				<-remaining
			}

			exec.StopAndJoinThread()
			log.Info("single-thread run complete", zap.String("run_id", runID.String()))
			return nil
		},
	}
	cmd.Flags().IntVar(&tasks, "tasks", 5, "number of tasks to push")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().DurationVar(&minSchedule, "min-schedule", 20*time.Millisecond, "minimum time-to-schedule threshold")
	return cmd
}

func newPoolCmd() *cobra.Command {
	var executors int
	var workers int
	var verbose bool
	var minSchedule time.Duration

	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Run several TaskExecutors sharing a worker pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(verbose)
			defer log.Sync()
			xec.SetLogger(log)

			cfg := xec.NewConfig(
				xec.WithMinTimeToSchedule(minSchedule),
				xec.WithPoolWorkers(workers),
			)

			runID := uuid.New()
			log.Info("starting pool run", zap.String("run_id", runID.String()),
				zap.Int("executors", executors), zap.Int("workers", cfg.PoolWorkers))

			pool := &xec.PoolExecution{}
			taskExecutors := make([]*xec.TaskExecutor, executors)
			for i := range taskExecutors {
				te := xec.NewTaskExecutor(cfg.MinTimeToSchedule)
				taskExecutors[i] = te
				pool.AddExecutor(te)
			}
			pool.LaunchThreads(cfg.PoolWorkers, cfg.ThreadNamePrefix+"-pool")

			done := make(chan struct{}, executors)
			for i, te := range taskExecutors {
				i, te := i, te
				te.PushTask(func() {
					log.Info("executor task ran", zap.Int("executor", i))
					done <- struct{}{}
				}, 0, 0)
			}
			for range taskExecutors {
				<-done
			}

			stats := pool.Stats()
			fmt.Printf("pool stats before stop: active=%d pending=%d scheduled=%d total=%d\n",
				stats.Active, stats.Pending, stats.Scheduled, stats.Total)

			pool.StopAndJoinThreads()
			log.Info("pool run complete", zap.String("run_id", runID.String()))
			return nil
		},
	}
	cmd.Flags().IntVar(&executors, "executors", 3, "number of TaskExecutors sharing the pool")
	cmd.Flags().IntVar(&workers, "workers", 2, "number of worker goroutines")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().DurationVar(&minSchedule, "min-schedule", 20*time.Millisecond, "minimum time-to-schedule threshold")
	return cmd
}
