package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryMessageStore is a thread-safe, in-memory MessageStore.
type InMemoryMessageStore struct {
	mu            sync.RWMutex
	conversations map[string][]Message
	now           func() time.Time
}

// NewInMemoryMessageStore creates an empty message store.
func NewInMemoryMessageStore() *InMemoryMessageStore {
	return &InMemoryMessageStore{
		conversations: make(map[string][]Message),
		now:           time.Now,
	}
}

// Compile-time interface check.
var _ MessageStore = (*InMemoryMessageStore)(nil)

// GetMessages returns a copy of the conversation's messages, oldest first.
func (s *InMemoryMessageStore) GetMessages(_ context.Context, conversationID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.conversations[conversationID]
	result := make([]Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

// Append adds msg to the end of its conversation.
func (s *InMemoryMessageStore) Append(_ context.Context, msg Message) (Message, error) {
	msg = s.fill(msg)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[msg.ConversationID] = append(s.conversations[msg.ConversationID], msg)
	return msg, nil
}

// AppendBatch adds msgs under a single lock so readers never observe a
// partial batch.
func (s *InMemoryMessageStore) AppendBatch(ctx context.Context, msgs []Message) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := make([]Message, len(msgs))
	for i, m := range msgs {
		stored[i] = s.fill(m)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range stored {
		s.conversations[m.ConversationID] = append(s.conversations[m.ConversationID], m)
	}
	return stored, nil
}

func (s *InMemoryMessageStore) fill(msg Message) Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	return msg
}

// InMemoryAnalysisProvider serves analyses from a map. It is mainly used by
// tests and the CLI's offline commands.
type InMemoryAnalysisProvider struct {
	mu       sync.RWMutex
	analyses map[string]Analysis
}

// NewInMemoryAnalysisProvider creates a provider pre-loaded with analyses.
func NewInMemoryAnalysisProvider(analyses ...Analysis) *InMemoryAnalysisProvider {
	p := &InMemoryAnalysisProvider{analyses: make(map[string]Analysis, len(analyses))}
	for _, a := range analyses {
		p.analyses[a.ID] = a.Clone()
	}
	return p
}

// Compile-time interface check.
var _ AnalysisProvider = (*InMemoryAnalysisProvider)(nil)

// Put stores or replaces an analysis.
func (p *InMemoryAnalysisProvider) Put(a Analysis) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.analyses[a.ID] = a.Clone()
}

// GetAnalysis returns a copy of the analysis with the given ID.
func (p *InMemoryAnalysisProvider) GetAnalysis(_ context.Context, id string) (Analysis, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	a, ok := p.analyses[id]
	if !ok {
		return Analysis{}, ErrAnalysisNotFound
	}
	return a.Clone(), nil
}
