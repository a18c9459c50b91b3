package conversation

import (
	"context"
	"errors"
)

// ErrAnalysisNotFound indicates the requested analysis does not exist.
var ErrAnalysisNotFound = errors.New("conversation: analysis not found")

// AnalysisProvider loads read-only analysis snapshots.
// Implementations must be safe for concurrent use.
type AnalysisProvider interface {
	GetAnalysis(ctx context.Context, id string) (Analysis, error)
}

// MessageStore holds conversation history in append order.
// Implementations must be safe for concurrent use.
type MessageStore interface {
	// GetMessages returns every message of the conversation, oldest first.
	// An unknown conversation yields an empty slice.
	GetMessages(ctx context.Context, conversationID string) ([]Message, error)

	// Append adds a message to the end of the conversation. A missing ID or
	// CreatedAt is filled in by the store.
	Append(ctx context.Context, msg Message) (Message, error)

	// AppendBatch adds msgs in order as one unit: either every message is
	// stored or none is. Missing IDs and timestamps are filled as in Append.
	AppendBatch(ctx context.Context, msgs []Message) ([]Message, error)
}
