// Package scheduler runs ConeDex's periodic jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/conedex/conedex/internal/app/system"
	"github.com/conedex/conedex/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// JobFunc is one unit of periodic work.
type JobFunc func(ctx context.Context) error

type job struct {
	name    string
	spec    string
	timeout time.Duration
	fn      JobFunc
}

// Observer is told about every finished run.
type Observer func(name string, duration time.Duration, err error)

// Scheduler wraps a cron runner with the application lifecycle.
type Scheduler struct {
	log      *logger.Logger
	jobs     []job
	observer Observer

	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	return &Scheduler{log: log}
}

// Add registers a job. spec accepts the standard five-field syntax as well as
// descriptors such as "@hourly" and "@every 1m". Jobs must be added before
// Start.
func (s *Scheduler) Add(name, spec string, timeout time.Duration, fn JobFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("job name and function are required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("cannot add job %s while running", name)
	}
	s.jobs = append(s.jobs, job{name: name, spec: spec, timeout: timeout, fn: fn})
	return nil
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name     string
	Schedule string
	Timeout  time.Duration
}

// Jobs lists the registered jobs in registration order.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobInfo{Name: j.name, Schedule: j.spec, Timeout: j.timeout})
	}
	return out
}

// WithObserver installs fn as the run observer.
func (s *Scheduler) WithObserver(fn Observer) *Scheduler {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
	return s
}

func (s *Scheduler) Name() string { return "scheduler" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cron.New(cron.WithLocation(time.UTC))
	for _, j := range s.jobs {
		j := j
		if _, err := c.AddFunc(j.spec, func() { s.run(runCtx, j) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}
	c.Start()

	s.cron = c
	s.ctx = runCtx
	s.cancel = cancel
	s.running = true
	s.log.WithField("jobs", len(s.jobs)).Info("scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	cancel := s.cancel
	s.running = false
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	stopped := c.Stop()

	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.log.Info("scheduler stopped")
	return nil
}

// RunNow executes the named job synchronously, outside the schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var found *job
	for i := range s.jobs {
		if s.jobs[i].name == name {
			found = &s.jobs[i]
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.run(ctx, *found)
}

func (s *Scheduler) run(ctx context.Context, j job) (err error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	start := time.Now()
	entry := s.log.WithField("job", j.name)
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, rec)
			entry.WithField("stack", string(debug.Stack())).Error(err.Error())
		}
		s.mu.Lock()
		observe := s.observer
		s.mu.Unlock()
		if observe != nil {
			observe(j.name, time.Since(start), err)
		}
	}()

	if err = j.fn(ctx); err != nil {
		entry.WithError(err).Warn("scheduled job failed")
		return err
	}
	entry.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("scheduled job finished")
	return nil
}
