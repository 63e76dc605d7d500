// Package scheduler runs named maintenance jobs on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled task. ctx is cancelled when the scheduler stops.
type Job func(ctx context.Context) error

// Scheduler wraps robfig/cron and tracks each job by name.
type Scheduler struct {
	mu      sync.RWMutex
	c       *cron.Cron
	entries map[string]entry

	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	id   cron.EntryID
	expr string
}

// New creates a stopped Scheduler. Call Start to activate it.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		entries: make(map[string]entry),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetJob schedules fn under name, replacing any job of the same name. If the
// scheduler is already running the new schedule takes effect immediately.
func (s *Scheduler) SetJob(name, expr string, fn Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.c.AddFunc(expr, func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expr, name, err)
	}
	if old, ok := s.entries[name]; ok {
		s.c.Remove(old.id)
	}
	s.entries[name] = entry{id: id, expr: expr}
	slog.Info("scheduler: job set", "job", name, "cron", expr)
	return nil
}

func (s *Scheduler) run(name string, fn Job) {
	began := time.Now()
	if err := fn(s.ctx); err != nil {
		slog.Error("scheduler: job failed", "job", name, "error", err)
		return
	}
	slog.Debug("scheduler: job done", "job", name, "duration", time.Since(began))
}

// RunNow runs the named job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	id := s.entryFor(name)
	if id == 0 {
		return fmt.Errorf("unknown job %q", name)
	}
	e := s.c.Entry(id)
	if e.ID == 0 {
		return fmt.Errorf("job %q not registered", name)
	}
	e.Job.Run()
	return nil
}

func (s *Scheduler) entryFor(name string) cron.EntryID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].id
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.c.Start()
}

// Stop halts the cron loop, cancels running jobs and waits for them.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.c.Stop().Done()
}

// NextRunAt returns the next scheduled time of the named job, or nil if no
// such job is set or the scheduler is not running.
func (s *Scheduler) NextRunAt(name string) *time.Time {
	id := s.entryFor(name)
	if id == 0 {
		return nil
	}
	e := s.c.Entry(id)
	if e.ID == 0 || e.Next.IsZero() {
		return nil
	}
	t := e.Next
	return &t
}

// Jobs lists the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CronExpr returns the expression of the named job.
func (s *Scheduler) CronExpr(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[name].expr
}
