// Package conversation defines the data model shared by the advisory chat
// engine: messages, analysis snapshots, tiers and severities, plus the
// collaborator interfaces used to load them.
package conversation

import (
	"strings"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Label returns the display label used when rendering history ("User", "Assistant").
func (r Role) Label() string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	default:
		return "Unknown"
	}
}

// Message is a single immutable entry in a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Gap is a market gap identified by an analysis.
type Gap struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Competitor is a known competitor listed by an analysis.
type Competitor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Phase is one step of an analysis action plan.
type Phase struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tasks       []string `json:"tasks,omitempty"`
}

// ActionPlan groups the phases recommended by an analysis.
type ActionPlan struct {
	Phases []Phase `json:"phases"`
}

// Feasibility ratings.
const (
	FeasibilityLow    = "low"
	FeasibilityMedium = "medium"
	FeasibilityHigh   = "high"
)

// Analysis is a read-only snapshot of a gap analysis. The engine never
// mutates an Analysis it receives; transforms return copies.
type Analysis struct {
	ID                string       `json:"id"`
	SearchQuery       string       `json:"search_query"`
	InnovationScore   int          `json:"innovation_score"`
	FeasibilityRating string       `json:"feasibility_rating"`
	TopGaps           []Gap        `json:"top_gaps"`
	Competitors       []Competitor `json:"competitors"`
	ActionPlan        ActionPlan   `json:"action_plan"`
}

// Clone returns a deep copy of a.
func (a Analysis) Clone() Analysis {
	out := a
	out.TopGaps = append([]Gap(nil), a.TopGaps...)
	out.Competitors = append([]Competitor(nil), a.Competitors...)
	out.ActionPlan.Phases = make([]Phase, len(a.ActionPlan.Phases))
	for i, p := range a.ActionPlan.Phases {
		p.Tasks = append([]string(nil), p.Tasks...)
		out.ActionPlan.Phases[i] = p
	}
	if a.ActionPlan.Phases == nil {
		out.ActionPlan.Phases = nil
	}
	return out
}

// Severity grades a validation finding.
type Severity string

// Severities, from least to most severe.
const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Tier is a user's service level.
type Tier string

// Service tiers.
const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// ParseTier normalizes s case-insensitively. Unknown values map to the most
// restrictive tier (free).
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}
