package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a unit of background work run on a fixed interval.
type Job struct {
	Name     string
	Interval time.Duration
	// Run returns how many items it handled, for logging.
	Run func(ctx context.Context) (int, error)
}

// RunJobs starts every job on its own ticker and blocks until ctx is done and all jobs
// have returned. Each job runs once immediately.
func RunJobs(ctx context.Context, logger zerolog.Logger, jobs ...Job) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		if job.Interval <= 0 {
			logger.Warn().Str("job", job.Name).Msg("job disabled, interval not set")
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			runJob(ctx, logger.With().Str("job", job.Name).Logger(), job)
		}(job)
	}
	wg.Wait()
}

func runJob(ctx context.Context, logger zerolog.Logger, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", job.Interval).Msg("starting job")
	for {
		RunOnce(ctx, logger, job)
		select {
		case <-ctx.Done():
			logger.Info().Msg("stopping job")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce runs job a single time, logging the outcome.
func RunOnce(ctx context.Context, logger zerolog.Logger, job Job) {
	n, err := job.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		return
	}
	if n > 0 {
		logger.Info().Int("count", n).Msg("job completed")
	}
}
