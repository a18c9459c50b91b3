package ctxengine

import (
	"fmt"
	"strings"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

const (
	maxDescriptionRunes = 160
	queryEllipsis       = "..."
)

// renderAnalysis renders a bounded textual summary of an analysis. The first
// line is the floor that trimming never removes.
func renderAnalysis(a conversation.Analysis, maxCompetitors int) []string {
	lines := []string{fmt.Sprintf("Innovation score: %d/100. Feasibility: %s.", a.InnovationScore, a.FeasibilityRating)}
	if q := strings.TrimSpace(a.SearchQuery); q != "" {
		lines = append(lines, fmt.Sprintf("Idea analyzed: %q", truncateRunes(q, maxDescriptionRunes)))
	}

	if len(a.TopGaps) > 0 {
		lines = append(lines, "Top gaps:")
		for i, g := range a.TopGaps {
			line := fmt.Sprintf("%d. %s (score %g)", i+1, g.Title, g.Score)
			if d := strings.TrimSpace(g.Description); d != "" {
				line += ": " + truncateRunes(oneLine(d), maxDescriptionRunes)
			}
			lines = append(lines, line)
		}
	}

	if len(a.Competitors) > 0 {
		n := min(len(a.Competitors), maxCompetitors)
		parts := make([]string, 0, n)
		for _, c := range a.Competitors[:n] {
			if d := strings.TrimSpace(c.Description); d != "" {
				parts = append(parts, fmt.Sprintf("%s (%s)", c.Name, truncateRunes(oneLine(d), maxDescriptionRunes/2)))
			} else {
				parts = append(parts, c.Name)
			}
		}
		lines = append(lines, "Competitors: "+strings.Join(parts, "; "))
	}

	if len(a.ActionPlan.Phases) > 0 {
		names := make([]string, 0, len(a.ActionPlan.Phases))
		for _, p := range a.ActionPlan.Phases {
			names = append(names, p.Name)
		}
		lines = append(lines, "Action plan phases: "+strings.Join(names, " > "))
	}
	return lines
}

// fitAnalysis drops lines from the end until the text fits budget tokens.
// The first line is always kept.
func fitAnalysis(estimator TokenEstimator, text string, budget int) string {
	if estimator.Estimate(text) <= budget || text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	for len(lines) > 1 && estimator.Estimate(strings.Join(lines, "\n")) > budget {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// fitHistory removes the oldest message lines until text fits budget tokens.
// A leading summary block is kept as long as at least one line survives, and
// dropped only when it alone exceeds the budget.
func fitHistory(estimator TokenEstimator, text string, budget int) string {
	if estimator.Estimate(text) <= budget {
		return text
	}

	summary, body := "", text
	if strings.HasPrefix(text, summaryPrefix) {
		if i := strings.Index(text, "\n\n"); i >= 0 {
			summary, body = text[:i], text[i+2:]
		} else {
			summary, body = text, ""
		}
	}

	var lines []string
	if body != "" {
		lines = strings.Split(body, "\n")
	}
	join := func() string {
		switch {
		case summary == "":
			return strings.Join(lines, "\n")
		case len(lines) == 0:
			return summary
		default:
			return summary + "\n\n" + strings.Join(lines, "\n")
		}
	}

	for len(lines) > 0 && estimator.Estimate(join()) > budget {
		lines = lines[1:]
	}
	if summary != "" && estimator.Estimate(join()) > budget {
		summary = ""
	}
	return join()
}

// truncateQuery cuts query to maxChars runes and appends an ellipsis marker.
// At least one character is always kept.
func truncateQuery(query string, maxChars int) string {
	maxChars = max(maxChars, 1)
	if len([]rune(query)) <= maxChars {
		return query
	}
	return truncateRunes(query, maxChars) + queryEllipsis
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
