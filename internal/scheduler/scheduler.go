// Package scheduler runs the periodic jobs: the daily task reminder
// digest and the recurring-task creator.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	kerrors "github.com/harunnryd/kakari/internal/errors"
)

const jobTimeout = 10 * time.Minute

// Job is one schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context)
}

type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

func New(log *slog.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// Register attaches a job to a cron spec (standard 5-field syntax).
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		s.log.Info("scheduled job started", "job", job.Name())
		job.Run(ctx)
		s.log.Info("scheduled job finished", "job", job.Name(), "elapsed", time.Since(start))
	})
	if err != nil {
		return kerrors.Wrap(err, "register cron job "+job.Name())
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling; the returned context is done once running jobs
// complete.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
