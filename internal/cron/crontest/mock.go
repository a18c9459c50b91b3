// Package crontest provides test doubles for the cron package.
package crontest

import (
	"context"
	"sync/atomic"

	"github.com/Realm-101/unbuilt-advisor/internal/cron"
)

var (
	_ cron.Job     = (*MockJob)(nil)
	_ cron.Sweeper = (*MockSweeper)(nil)
)

// MockJob is a cron.Job whose behavior is set by its fields.
type MockJob struct {
	JobName string
	Expr    string
	RunFunc func(ctx context.Context) error

	runs atomic.Int32
}

func (m *MockJob) Name() string     { return m.JobName }
func (m *MockJob) Schedule() string { return m.Expr }

// Run counts the call, then delegates to RunFunc when set.
func (m *MockJob) Run(ctx context.Context) error {
	m.runs.Add(1)
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return nil
}

// Runs returns how many times Run was called.
func (m *MockJob) Runs() int { return int(m.runs.Load()) }

// MockSweeper is a cron.Sweeper returning SweepFunc's result, or 0.
type MockSweeper struct {
	SweepFunc  func() int
	SweepCalls atomic.Int32
}

func (m *MockSweeper) Sweep() int {
	m.SweepCalls.Add(1)
	if m.SweepFunc != nil {
		return m.SweepFunc()
	}
	return 0
}
