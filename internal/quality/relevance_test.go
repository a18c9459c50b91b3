package quality_test

import (
	"slices"
	"testing"

	"github.com/Realm-101/unbuilt-advisor/internal/quality"
)

func TestCheckRelevance(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	query := "What is the market size for meal kits?"

	got := v.CheckRelevance("The meal kit market size is roughly $4B.", query)
	if !got.Relevant || got.Confidence != 0.75 {
		t.Errorf("related answer = %+v, want relevant at 0.75", got)
	}

	got = v.CheckRelevance("Our office dog enjoys long walks.", query)
	if got.Relevant || got.Confidence != 0 {
		t.Errorf("unrelated answer = %+v", got)
	}

	if got := v.CheckRelevance("Anything at all.", "is it?"); got != (quality.Relevance{}) {
		t.Errorf("query without significant words = %+v", got)
	}

	strict := quality.NewValidator(quality.Config{RelevanceThreshold: 0.9})
	if got := strict.CheckRelevance("The meal kit market size is roughly $4B.", query); got.Relevant {
		t.Errorf("strict threshold = %+v", got)
	}
}

func TestDetectHallucination(t *testing.T) {
	t.Parallel()

	v := quality.NewValidator(quality.Config{})
	tests := []struct {
		name       string
		response   string
		likely     bool
		indicators []string
	}{
		{
			name:       "single statistic",
			response:   "The segment grew 23.7% last year.",
			indicators: []string{quality.IndicatorUnattributedStatistic},
		},
		{
			name:       "statistic and date",
			response:   "The segment grew 23.7% last year. It launched on March 3, 2021.",
			likely:     true,
			indicators: []string{quality.IndicatorUnattributedDate, quality.IndicatorUnattributedStatistic},
		},
		{
			name:     "attributed",
			response: "According to the 2024 industry report, the segment grew 23.7%. The report says it launched on March 3, 2021.",
		},
		{
			name:       "named role and statistic",
			response:   "Sarah Chen, CEO of GreenBox, confirmed the deal. Margins reached 41.5% in the pilot.",
			likely:     true,
			indicators: []string{quality.IndicatorUnattributedStatistic, quality.IndicatorNamedRole},
		},
		{
			name:     "illustrative person",
			response: "For example, Jane Doe, founder of a local bakery, could pilot the service.",
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		got := v.DetectHallucination(tt.response)
		if got.Likely != tt.likely || !slices.Equal(got.Indicators, tt.indicators) {
			t.Errorf("%s: DetectHallucination = %+v, want likely=%v %v", tt.name, got, tt.likely, tt.indicators)
		}
	}
}
