package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one periodic cleanup task.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Schedule is a cron expression or descriptor. Empty disables the job.
	Schedule string

	// Run performs one sweep and returns how many items it removed.
	Run func(ctx context.Context) (int, error)
}

// Sweeper runs jobs on their schedules.
type Sweeper struct {
	jobs    []Job
	cron    *cron.Cron
	entries map[string]cron.EntryID
	mu      sync.Mutex
	logger  *slog.Logger
	running bool

	// done is closed by Stop to release the current run's context watcher.
	done chan struct{}
}

// New creates a sweeper for jobs. A nil logger uses slog.Default().
func New(logger *slog.Logger, jobs ...Job) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		jobs:   jobs,
		logger: logger.With("component", "sweeper"),
	}
}

// Validate checks every job schedule.
func (s *Sweeper) Validate() error {
	for _, job := range s.jobs {
		if job.Schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(job.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q for %s sweep: %w", job.Schedule, job.Name, err)
		}
	}
	return nil
}

// Start schedules every job with a non-empty schedule. The sweeper stops when
// ctx is cancelled or Stop is called. Calling Start on a running sweeper is
// a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	if err := s.Validate(); err != nil {
		return err
	}

	c := cron.New()
	entries := make(map[string]cron.EntryID, len(s.jobs))
	for _, job := range s.jobs {
		if job.Schedule == "" {
			s.logger.Info("sweep schedule not configured, skipping", "job", job.Name)
			continue
		}
		job := job
		id, err := c.AddFunc(job.Schedule, func() {
			s.runJob(ctx, job)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s sweep: %w", job.Name, err)
		}
		entries[job.Name] = id
		s.logger.Info("sweep scheduled", "job", job.Name, "schedule", job.Schedule)
	}

	done := make(chan struct{})
	s.cron = c
	s.entries = entries
	s.done = done
	s.cron.Start()
	s.running = true

	// Stop this run when ctx ends, unless Stop got there first
	go func() {
		select {
		case <-ctx.Done():
			s.stopRun(c)
		case <-done:
		}
	}()

	s.logger.Info("sweeper started", "jobs", len(entries))
	return nil
}

// RunOnce runs every job immediately, regardless of schedule, and returns
// the total number of items removed.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for _, job := range s.jobs {
		n, err := job.Run(ctx)
		if err != nil {
			return total, fmt.Errorf("%s sweep: %w", job.Name, err)
		}
		total += n
	}
	return total, nil
}

func (s *Sweeper) runJob(ctx context.Context, job Job) {
	start := time.Now()

	removed, err := job.Run(ctx)
	if err != nil {
		s.logger.Error("sweep failed",
			"job", job.Name,
			"error", err,
		)
		return
	}

	if removed > 0 {
		s.logger.Info("sweep completed",
			"job", job.Name,
			"removed", removed,
			"duration", time.Since(start).String(),
		)
	} else {
		s.logger.Debug("sweep completed, nothing removed", "job", job.Name)
	}
}

// Stop stops the sweeper and waits for any running jobs to complete.
// A stopped sweeper can be started again.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
}

// stopRun stops the sweeper only if c is still the active schedule.
func (s *Sweeper) stopRun(c *cron.Cron) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != c {
		return
	}
	s.stopLocked()
}

func (s *Sweeper) stopLocked() {
	if s.cron == nil || !s.running {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done() // Wait for running jobs to finish
	close(s.done)
	s.running = false
	s.logger.Info("sweeper stopped")
}

// IsRunning returns true if the sweeper is running.
func (s *Sweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled run of the named job, or nil when the
// job is not scheduled.
func (s *Sweeper) NextRun(name string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}

	id, ok := s.entries[name]
	if !ok {
		return nil
	}
	entry := s.cron.Entry(id)
	if !entry.Valid() {
		return nil
	}
	next := entry.Next
	return &next
}
