package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// GetAnalysis implements conversation.AnalysisProvider. Stored payloads are
// re-validated on read.
func (s *Store) GetAnalysis(ctx context.Context, id string) (conversation.Analysis, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM analyses WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Analysis{}, conversation.ErrAnalysisNotFound
	}
	if err != nil {
		return conversation.Analysis{}, fmt.Errorf("sqlite: get analysis: %w", err)
	}

	a, err := conversation.DecodeAnalysis([]byte(payload))
	if err != nil {
		return conversation.Analysis{}, fmt.Errorf("sqlite: analysis %s: %w", id, err)
	}
	return a, nil
}

// PutAnalysis stores or replaces an analysis snapshot.
func (s *Store) PutAnalysis(ctx context.Context, a conversation.Analysis) error {
	if a.ID == "" {
		return fmt.Errorf("%w: analysis id is required", conversation.ErrStructural)
	}
	if err := conversation.ValidateAnalysis(a); err != nil {
		return err
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("sqlite: marshal analysis: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (id, payload) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		a.ID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("sqlite: put analysis: %w", err)
	}
	return nil
}
