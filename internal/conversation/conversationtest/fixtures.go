// Package conversationtest provides fixtures for tests that need analyses
// and conversation histories.
package conversationtest

import (
	"fmt"
	"time"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// Analysis returns a representative analysis snapshot.
func Analysis() conversation.Analysis {
	return conversation.Analysis{
		ID:                "analysis-1",
		SearchQuery:       "sustainable packaging for meal kits",
		InnovationScore:   78,
		FeasibilityRating: conversation.FeasibilityMedium,
		TopGaps: []conversation.Gap{
			{Title: "Compostable insulation", Description: "No affordable compostable cold-chain liners exist.", Score: 82},
			{Title: "Reusable container logistics", Description: "Return logistics for containers are fragmented.", Score: 91},
			{Title: "Portion-aware packaging", Description: "Packaging sizes ignore actual portion counts.", Score: 64},
			{Title: "Local sourcing labels", Description: "Consumers cannot verify ingredient origin.", Score: 47},
		},
		Competitors: []conversation.Competitor{
			{Name: "GreenBox", Description: "Recyclable meal kit boxes."},
			{Name: "LoopKit", Description: "Reusable container pilot in two cities."},
		},
		ActionPlan: conversation.ActionPlan{Phases: []conversation.Phase{
			{Name: "Validate demand"},
			{Name: "Build prototype"},
			{Name: "Pilot with partners"},
		}},
	}
}

// Messages returns n alternating user/assistant messages for conversation "conv-1".
func Messages(n int) []conversation.Message {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	msgs := make([]conversation.Message, n)
	for i := range msgs {
		role := conversation.RoleUser
		content := fmt.Sprintf("question %d about pricing strategy", i)
		if i%2 == 1 {
			role = conversation.RoleAssistant
			content = fmt.Sprintf("answer %d with some detail", i)
		}
		msgs[i] = conversation.Message{
			ID:             fmt.Sprintf("m-%d", i),
			ConversationID: "conv-1",
			Role:           role,
			Content:        content,
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

// Exchange builds a user message in conv-1 followed by its assistant reply.
func Exchange(question, answer string) []conversation.Message {
	return []conversation.Message{
		{ConversationID: "conv-1", Role: conversation.RoleUser, Content: question},
		{ConversationID: "conv-1", Role: conversation.RoleAssistant, Content: answer},
	}
}
