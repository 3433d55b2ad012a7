package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/agreedhq/backoffice/internal/config"
	"github.com/agreedhq/backoffice/internal/pkg/distlock"
	"github.com/agreedhq/backoffice/internal/pkg/logger"
)

// ErrAlreadyRunning is returned by TriggerNow when the job is mid-run.
var ErrAlreadyRunning = errors.New("reminder: job already running")

// Well-known job names.
const (
	JobEmail       = "email"
	JobCallContent = "call-content"
	JobVideoPoll   = "video-poll"
)

// Runner executes one batch and reports on it.
type Runner func(ctx context.Context) (*DispatchReport, error)

// Job is one daily pipeline run. The lock keeps multiple replicas from
// running the same job at once; the running flag keeps one replica's
// overlapping triggers apart. An overlapping trigger is dropped with a
// log line, never queued.
type Job struct {
	Name  string
	RunAt string // "HH:MM"
	Lock  distlock.DistLock
	Run   Runner

	running atomic.Bool
}

// Scheduler fires each job once a day at its wall-clock time in the
// configured timezone.
type Scheduler struct {
	cfg  config.ReminderConfig
	jobs []*Job

	now   func() time.Time                                // test hook
	sleep func(ctx context.Context, d time.Duration) bool // test hook
}

// NewScheduler builds a scheduler over the given jobs.
func NewScheduler(cfg config.ReminderConfig, jobs ...*Job) *Scheduler {
	return &Scheduler{
		cfg:   cfg,
		jobs:  jobs,
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Start launches one goroutine per job and blocks until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.loop(ctx, job)
		logger.Info("scheduled daily job", "job", job.Name, "run_at", job.RunAt, "tz", s.cfg.Timezone)
	}
	<-ctx.Done()
}

func (s *Scheduler) loop(ctx context.Context, job *Job) {
	hour, minute, err := config.RunAtTime(job.RunAt)
	if err != nil {
		logger.Error("job disabled", "job", job.Name, "error", err.Error())
		return
	}
	loc := s.cfg.Location()
	for {
		now := s.now().In(loc)
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, loc)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		if !s.sleep(ctx, next.Sub(now)) {
			return
		}
		if _, err := s.RunJob(ctx, job); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			logger.Error("scheduled run failed", "job", job.Name, "error", err.Error())
		}
	}
}

// RunJob executes one job run: overlap guard, cross-replica lock, and
// the batch deadline. The returned report is nil when the run was
// dropped or the lock was held elsewhere.
func (s *Scheduler) RunJob(ctx context.Context, job *Job) (*DispatchReport, error) {
	if !job.running.CompareAndSwap(false, true) {
		logger.Warn("run dropped, previous run still active", "job", job.Name)
		runsDropped.WithLabelValues(job.Name).Inc()
		return nil, ErrAlreadyRunning
	}
	defer job.running.Store(false)

	if job.Lock != nil {
		ok, err := job.Lock.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquiring run lock: %w", err)
		}
		if !ok {
			logger.Info("run lock held by another replica", "job", job.Name)
			return nil, nil
		}
		defer job.Lock.Release(context.WithoutCancel(ctx))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.BatchTimeout())
	defer cancel()

	logger.Info("job run starting", "job", job.Name)
	rep, err := job.Run(runCtx)
	if err != nil {
		return rep, fmt.Errorf("job %s: %w", job.Name, err)
	}
	return rep, nil
}

// TriggerNow runs the named job immediately, outside its daily slot.
func (s *Scheduler) TriggerNow(ctx context.Context, name string) (*DispatchReport, error) {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.RunJob(ctx, job)
		}
	}
	return nil, fmt.Errorf("reminder: unknown job %q", name)
}
