package background

import (
	"context"
	"time"

	"spendly/internal/jobs"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// JobScheduler runs the trial sweeper on a fixed cadence. The sweep itself
// is idempotent, so an overlapping external trigger or a second instance
// firing the same day is harmless; singleton mode only avoids wasted work
// within this process.
type JobScheduler struct {
	scheduler gocron.Scheduler
	sweeper   *jobs.TrialSweeper
	logger    *zap.Logger
}

func NewJobScheduler(sweeper *jobs.TrialSweeper, logger *zap.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler: scheduler,
		sweeper:   sweeper,
		logger:    logger,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(24*time.Hour),
		gocron.NewTask(js.runSweep),
		gocron.WithName("trial-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, err
	}

	return js, nil
}

func (js *JobScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := js.sweeper.Run(ctx); err != nil {
		js.logger.Error("scheduled trial sweep failed", zap.Error(err))
	}
}

// Start begins executing registered jobs.
func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler")
	js.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}
