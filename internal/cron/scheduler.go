package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks a job schedule: a 5-field expression or a
// descriptor such as "@hourly".
func ParseSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Scheduler runs registered jobs on their schedules. A job never overlaps
// with itself: a tick that arrives while the previous run is in flight is
// skipped.
type Scheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	jobs      []Job
	schedules map[string]cron.Schedule
	names     map[string]Job
	locks   map[string]*sync.Mutex
	logger  *slog.Logger
	metrics *metrics.Metrics
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
// m may be nil.
func NewScheduler(logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		schedules: make(map[string]cron.Schedule),
		names:     make(map[string]Job),
		locks:     make(map[string]*sync.Mutex),
		logger:    logger,
		metrics:   m,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// RegisterJob adds a job. It must be called before Start and fails on a
// duplicate name or an unparsable schedule.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.names[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	sched, err := parser.Parse(j.Schedule())
	if err != nil {
		return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
	}

	s.schedules[name] = sched
	s.names[name] = j
	s.locks[name] = &sync.Mutex{}
	s.jobs = append(s.jobs, j)
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return errors.New("cron: scheduler already started")
	}
	c := cron.New(cron.WithParser(parser))
	for _, job := range s.jobs {
		c.Schedule(s.schedules[job.Name()], cron.FuncJob(func() { s.run(job) }))
	}

	s.cron = c
	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.jobs))
	return nil
}

// Trigger runs the named job immediately, outside its schedule. It returns
// false if the job is unknown or its previous run is still in flight.
func (s *Scheduler) Trigger(name string) bool {
	s.mu.Lock()
	job, ok := s.names[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.run(job)
}

// run executes job unless its previous tick is still running.
func (s *Scheduler) run(job Job) bool {
	lock := s.locks[job.Name()]
	if !lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", job.Name())
		return false
	}
	defer lock.Unlock()

	s.logger.Debug("cron: job started", "job", job.Name())
	err := job.Run(s.ctx)
	s.metrics.RecordJob(job.Name(), err)
	if err != nil {
		s.logger.Error("cron: job failed", "job", job.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", job.Name())
	}
	return true
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
