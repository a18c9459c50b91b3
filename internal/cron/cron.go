// Package cron runs periodic maintenance for the advisor: expiring cache
// entries, sweeping rate-limiter state and reporting deduplication stats.
package cron

import "context"

// Job is a unit of scheduled maintenance. Name must be unique within a
// Scheduler and Schedule must be a standard 5-field expression.
type Job interface {
	Name() string
	Schedule() string

	// Run performs one pass. The context is cancelled when the scheduler
	// stops.
	Run(ctx context.Context) error
}
