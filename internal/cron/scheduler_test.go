package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Realm-101/unbuilt-advisor/internal/metrics"
)

// simpleJob is a minimal Job for scheduler tests.
type simpleJob struct {
	name     string
	schedule string
	runFunc  func(ctx context.Context) error
	mu       sync.Mutex
	calls    int
}

func (j *simpleJob) Name() string     { return j.name }
func (j *simpleJob) Schedule() string { return j.schedule }
func (j *simpleJob) Run(ctx context.Context) error {
	j.mu.Lock()
	j.calls++
	j.mu.Unlock()
	if j.runFunc != nil {
		return j.runFunc(ctx)
	}
	return nil
}

func (j *simpleJob) callCount() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.calls
}

func TestScheduler_RegisterJob_DuplicateName(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)

	if err := s.RegisterJob(&simpleJob{name: "test", schedule: "* * * * *"}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := s.RegisterJob(&simpleJob{name: "test", schedule: "* * * * *"}); err == nil {
		t.Fatal("duplicate registration should fail")
	}
}

func TestScheduler_RegisterJob_InvalidSchedule(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)
	if err := s.RegisterJob(&simpleJob{name: "bad", schedule: "invalid"}); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
	if err := s.RegisterJob(&simpleJob{name: "bad", schedule: "@hourly"}); err != nil {
		t.Fatalf("descriptor rejected: %v", err)
	}
}

func TestScheduler_StartTwice(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	defer s.Stop(context.Background())
	if err := s.Start(); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)
	_ = s.RegisterJob(&simpleJob{name: "noop", schedule: "* * * * *"})

	if err := s.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}

func TestScheduler_NilLogger(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil)
	if s.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}

func TestScheduler_Trigger_RecordsMetrics(t *testing.T) {
	t.Parallel()

	m := metrics.New(nil)
	s := NewScheduler(slog.Default(), m)
	ok := &simpleJob{name: "ok", schedule: "0 0 * * *"}
	failing := &simpleJob{
		name:     "failing",
		schedule: "0 0 * * *",
		runFunc:  func(context.Context) error { return errors.New("job failed") },
	}
	_ = s.RegisterJob(ok)
	_ = s.RegisterJob(failing)

	if !s.Trigger("ok") || !s.Trigger("failing") {
		t.Fatal("Trigger returned false for a registered idle job")
	}
	if s.Trigger("unknown") {
		t.Error("Trigger returned true for an unknown job")
	}

	if ok.callCount() != 1 || failing.callCount() != 1 {
		t.Errorf("calls = %d/%d, want 1/1", ok.callCount(), failing.callCount())
	}
	if v := testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("ok", "success")); v != 1 {
		t.Errorf("ok successes = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.JobRunsTotal.WithLabelValues("failing", "error")); v != 1 {
		t.Errorf("failing errors = %v, want 1", v)
	}
}

func TestScheduler_NoParallelExecution(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	s := NewScheduler(slog.Default(), nil)
	job := &simpleJob{
		name:     "slow",
		schedule: "0 0 * * *",
		runFunc: func(context.Context) error {
			close(started)
			<-release
			return nil
		},
	}
	_ = s.RegisterJob(job)

	done := make(chan bool)
	go func() { done <- s.Trigger("slow") }()
	<-started

	if s.Trigger("slow") {
		t.Error("second Trigger ran while the first was in flight")
	}
	close(release)
	if !<-done {
		t.Error("first Trigger reported a skip")
	}
	if job.callCount() != 1 {
		t.Errorf("calls = %d, want 1", job.callCount())
	}
}

func TestScheduler_StopCancelsJobContext(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)
	var got error
	_ = s.RegisterJob(&simpleJob{
		name:     "ctx",
		schedule: "0 0 * * *",
		runFunc: func(ctx context.Context) error {
			got = ctx.Err()
			return nil
		},
	})

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	s.Trigger("ctx")
	if !errors.Is(got, context.Canceled) {
		t.Errorf("job ctx err = %v, want context.Canceled", got)
	}
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	t.Parallel()

	s := NewScheduler(slog.Default(), nil)
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
}
