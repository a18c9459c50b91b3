// Package questions suggests the next questions a user could ask about an
// analysis, steering away from topics the conversation already covered.
package questions

import (
	"cmp"
	"fmt"
	"math"
	"regexp"
	"slices"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
	"github.com/Realm-101/unbuilt-advisor/internal/dedup"
)

// Category groups questions by the aspect of the idea they probe.
type Category string

// Question categories.
const (
	MarketValidation     Category = "market_validation"
	CompetitiveAnalysis  Category = "competitive_analysis"
	RiskAssessment       Category = "risk_assessment"
	TechnicalFeasibility Category = "technical_feasibility"
	GoToMarket           Category = "go_to_market"
	Monetization         Category = "monetization"
)

// Question is a suggested question. RelevanceScore in [0, 1] rates how
// strongly the question is anchored in the analysis and, for follow-ups,
// how much new ground it covers.
type Question struct {
	Text           string   `json:"text"`
	Category       Category `json:"category"`
	Priority       float64  `json:"priority"`
	RelevanceScore float64  `json:"relevance_score"`
}

// Config tunes question ranking.
type Config struct {
	// Count is the number of questions returned.
	Count int `yaml:"count"`

	// SimilarityThreshold is the similarity at or above which two
	// questions are considered the same.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// DecayFactor is applied once per history message that mentions a
	// category; BoostFactor is applied to categories never mentioned.
	DecayFactor float64 `yaml:"decay_factor"`
	BoostFactor float64 `yaml:"boost_factor"`
}

func (c Config) withDefaults() Config {
	if c.Count <= 0 {
		c.Count = 5
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = 0.7
	}
	if c.DecayFactor <= 0 || c.DecayFactor > 1 {
		c.DecayFactor = 0.7
	}
	if c.BoostFactor < 1 {
		c.BoostFactor = 1.2
	}
	return c
}

type template struct {
	category Category
	text     string // %[1]s is the subject, %[2]s the lead competitor
}

var templates = []template{
	{MarketValidation, "How can I validate real demand for %[1]s before building?"},
	{MarketValidation, "Which customer segment feels the pain behind %[1]s most acutely?"},
	{MarketValidation, "What signals would show that the market for %[1]s is growing?"},
	{CompetitiveAnalysis, "How does %[2]s address %[1]s today, and where does it fall short?"},
	{CompetitiveAnalysis, "What would make customers switch from existing alternatives to a solution for %[1]s?"},
	{CompetitiveAnalysis, "Which incumbent is most likely to move into %[1]s next?"},
	{RiskAssessment, "What are the biggest risks in pursuing %[1]s?"},
	{RiskAssessment, "Which assumptions about %[1]s would be the most expensive to get wrong?"},
	{RiskAssessment, "How could regulation or market shifts threaten %[1]s?"},
	{TechnicalFeasibility, "What would a minimum viable product for %[1]s require technically?"},
	{TechnicalFeasibility, "Which parts of %[1]s are hardest to build, and can they be bought instead?"},
	{GoToMarket, "What is the most effective channel to reach early adopters for %[1]s?"},
	{GoToMarket, "How should I sequence the launch of %[1]s?"},
	{Monetization, "What pricing model fits %[1]s best?"},
	{Monetization, "How much would early customers pay for %[1]s?"},
}

// mentions detects a category being discussed in a message.
var mentions = map[Category]*regexp.Regexp{
	MarketValidation:     regexp.MustCompile(`(?i)\b(demand|validat\w*|market\s+size|segments?|tam|surveys?|interviews?)\b`),
	CompetitiveAnalysis:  regexp.MustCompile(`(?i)\b(competit\w*|rivals?|alternatives?|incumbents?|differentiat\w*)\b`),
	RiskAssessment:       regexp.MustCompile(`(?i)\b(risks?|risky|threats?|regulat\w*|fail\w*|downsides?|assumptions?)\b`),
	TechnicalFeasibility: regexp.MustCompile(`(?i)\b(technical\w*|build\w*|mvp|prototype|architecture|tech\s+stack|engineer\w*)\b`),
	GoToMarket:           regexp.MustCompile(`(?i)\b(launch\w*|channels?|marketing|go-to-market|adopters?|distribution|sales)\b`),
	Monetization:         regexp.MustCompile(`(?i)\b(pric\w*|revenue|monetiz\w*|subscriptions?|pay\w*|margins?|fees?)\b`),
}

// Generator builds suggested questions. It holds no mutable state.
type Generator struct {
	config Config
}

// NewGenerator creates a Generator. Zero-value config fields get defaults.
func NewGenerator(cfg Config) *Generator {
	return &Generator{config: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.config }

// basePriority scores a category for a, before any history adjustment.
// The n-th template of a category loses 0.05 per position.
func basePriority(c Category, a conversation.Analysis, n int) float64 {
	score := float64(min(max(a.InnovationScore, 0), 100)) / 100
	var p float64
	switch c {
	case MarketValidation:
		p = 0.7 + 0.3*score
	case CompetitiveAnalysis:
		p = 0.75
	case RiskAssessment:
		p = 0.65
		if a.FeasibilityRating == conversation.FeasibilityLow {
			p += 0.25
		}
	case TechnicalFeasibility:
		p = 0.6
	case GoToMarket:
		p = 0.55
	case Monetization:
		p = 0.5
		if a.InnovationScore >= 80 {
			p += 0.1
		}
	}
	return round(p - 0.05*float64(n))
}

func round(p float64) float64 {
	return math.Round(p*1000) / 1000
}

// noGapRelevance is the relevance of questions about an analysis without
// gaps, whose subject is only the search query.
const noGapRelevance = 0.5

// topGap returns the highest-scoring gap.
func topGap(a conversation.Analysis) (conversation.Gap, bool) {
	if len(a.TopGaps) == 0 {
		return conversation.Gap{}, false
	}
	best := a.TopGaps[0]
	for _, g := range a.TopGaps[1:] {
		if g.Score > best.Score {
			best = g
		}
	}
	return best, true
}

// subject returns the title of the highest-scoring gap, falling back to the
// analysis search query.
func subject(a conversation.Analysis) string {
	if g, ok := topGap(a); ok {
		return g.Title
	}
	if a.SearchQuery != "" {
		return a.SearchQuery
	}
	return "this idea"
}

// anchorRelevance is the top gap's score on a 0-100 scale, as a fraction.
func anchorRelevance(a conversation.Analysis) float64 {
	g, ok := topGap(a)
	if !ok {
		return noGapRelevance
	}
	return round(min(max(g.Score, 0), 100) / 100)
}

func leadCompetitor(a conversation.Analysis) string {
	if len(a.Competitors) == 0 || a.Competitors[0].Name == "" {
		return "the closest competitor"
	}
	return a.Competitors[0].Name
}

// candidates renders every template for a.
func candidates(a conversation.Analysis) []Question {
	subj, comp := subject(a), leadCompetitor(a)
	relevance := anchorRelevance(a)
	seen := make(map[Category]int)
	out := make([]Question, 0, len(templates))
	for _, t := range templates {
		out = append(out, Question{
			Text:           fmt.Sprintf(t.text, subj, comp),
			Category:       t.category,
			Priority:       basePriority(t.category, a, seen[t.category]),
			RelevanceScore: relevance,
		})
		seen[t.category]++
	}
	return out
}

func byPriority(x, y Question) int {
	return cmp.Compare(y.Priority, x.Priority)
}

// GenerateInitial returns the opening questions for a: the lead question of
// market validation, competitive analysis, risk assessment and technical
// feasibility, plus the stronger of go-to-market and monetization, sorted by
// descending priority.
func (g *Generator) GenerateInitial(a conversation.Analysis) []Question {
	var out []Question
	var extra *Question
	lead := make(map[Category]bool)
	for _, q := range candidates(a) {
		if lead[q.Category] {
			continue
		}
		lead[q.Category] = true
		switch q.Category {
		case GoToMarket, Monetization:
			if extra == nil || q.Priority > extra.Priority {
				extra = &q
			}
		default:
			out = append(out, q)
		}
	}
	if extra != nil {
		out = append(out, *extra)
	}
	slices.SortStableFunc(out, byPriority)
	return out
}

// GenerateFollowUp ranks every candidate against the conversation so far.
// Candidates similar to a question the user already asked are excluded;
// each history message mentioning a category multiplies its priority by
// DecayFactor, and categories never mentioned get BoostFactor. Relevance is
// scaled by one minus the highest similarity to an asked question. At most
// Count questions are returned, by descending priority.
func (g *Generator) GenerateFollowUp(a conversation.Analysis, messages []conversation.Message) []Question {
	counts := make(map[Category]int)
	var asked []string
	for _, m := range messages {
		for c, re := range mentions {
			if re.MatchString(m.Content) {
				counts[c]++
			}
		}
		if m.Role == conversation.RoleUser {
			asked = append(asked, m.Content)
		}
	}

	pool := g.FilterExisting(candidates(a), asked)
	for i := range pool {
		q := &pool[i]
		if n := counts[q.Category]; n > 0 {
			q.Priority *= math.Pow(g.config.DecayFactor, float64(n))
		} else {
			q.Priority *= g.config.BoostFactor
		}
		q.Priority = round(q.Priority)
		q.RelevanceScore = round(q.RelevanceScore * (1 - maxSimilarity(q.Text, asked)))
	}

	out := g.Deduplicate(pool)
	if len(out) > g.config.Count {
		out = out[:g.config.Count]
	}
	return out
}

func maxSimilarity(text string, others []string) float64 {
	var best float64
	for _, o := range others {
		best = max(best, dedup.CalculateSimilarity(text, o))
	}
	return best
}

// Deduplicate collapses similar questions, keeping the highest-priority
// instance of each. The result is sorted by descending priority.
func (g *Generator) Deduplicate(questions []Question) []Question {
	sorted := slices.Clone(questions)
	slices.SortStableFunc(sorted, byPriority)

	out := make([]Question, 0, len(sorted))
	for _, q := range sorted {
		if !slices.ContainsFunc(out, func(kept Question) bool {
			return dedup.CalculateSimilarity(q.Text, kept.Text) >= g.config.SimilarityThreshold
		}) {
			out = append(out, q)
		}
	}
	return out
}

// FilterExisting drops candidates similar to any of existing, preserving
// the order of the rest.
func (g *Generator) FilterExisting(candidates []Question, existing []string) []Question {
	out := make([]Question, 0, len(candidates))
	for _, q := range candidates {
		if !slices.ContainsFunc(existing, func(e string) bool {
			return dedup.CalculateSimilarity(q.Text, e) >= g.config.SimilarityThreshold
		}) {
			out = append(out, q)
		}
	}
	return out
}
