package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"
)

// Pruner drops expired entries and reports how many went.
type Pruner interface {
	Prune() int
}

type SchedulerConfig struct {
	PruneEvery   time.Duration
	ArchiveEvery time.Duration
}

// Scheduler runs the housekeeping jobs. A nil pruner or archiver skips its job.
type Scheduler struct {
	sched gocron.Scheduler
}

func StartScheduler(cfg SchedulerConfig, pruner Pruner, archiver *MatchArchiver) (*Scheduler, error) {
	logger := log.WithField("component", "workers.scheduler")
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	if pruner != nil {
		every := cfg.PruneEvery
		if every <= 0 {
			every = time.Minute
		}
		_, err = sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				if n := pruner.Prune(); n > 0 {
					logger.WithField("removed", n).Debug("pruned rate-limit windows")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	if archiver != nil {
		every := cfg.ArchiveEvery
		if every <= 0 {
			every = time.Hour
		}
		_, err = sched.NewJob(
			gocron.DurationJob(every),
			gocron.NewTask(func() {
				ctx, cancel := context.WithTimeout(context.Background(), every)
				defer cancel()
				if _, err := archiver.RunOnce(ctx); err != nil {
					logger.WithError(err).Error("match archive run failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return nil, err
		}
	}

	sched.Start()
	logger.Info("scheduler started")
	return &Scheduler{sched: sched}, nil
}

func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}
