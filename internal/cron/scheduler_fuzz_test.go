package cron

import (
	"context"
	"testing"

	"github.com/robfig/cron/v3"
)

type fuzzJob struct{ expr string }

func (j fuzzJob) Name() string                { return "fuzz" }
func (j fuzzJob) Schedule() string            { return j.expr }
func (j fuzzJob) Run(_ context.Context) error { return nil }

// RegisterJob accepts exactly the expressions the 5-field parser accepts.
func FuzzRegisterJobSchedule(f *testing.F) {
	for _, seed := range []string{
		defaultCachePurgeSchedule, defaultSweepSchedule, defaultStatsSchedule,
		"* * * * *", "@hourly", "off", "", "60 * * * *", "0 25 * * *", "*/0 * * * *",
	} {
		f.Add(seed)
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	f.Fuzz(func(t *testing.T, expr string) {
		_, parseErr := parser.Parse(expr)
		err := NewScheduler(nil, nil).RegisterJob(fuzzJob{expr})
		if (err == nil) != (parseErr == nil) {
			t.Fatalf("RegisterJob(%q) err = %v, parser err = %v", expr, err, parseErr)
		}
	})
}
