package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Realm-101/unbuilt-advisor/internal/conversation"
)

// GetMessages implements conversation.MessageStore.
func (s *Store) GetMessages(ctx context.Context, conversationID string) ([]conversation.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []conversation.Message{}
	for rows.Next() {
		var (
			m       conversation.Message
			role    string
			created string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan message: %w", err)
		}
		m.ConversationID = conversationID
		m.Role = conversation.Role(role)
		if m.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("sqlite: message %s: bad created_at %q: %w", m.ID, created, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get messages rows: %w", err)
	}
	return msgs, nil
}

// Append implements conversation.MessageStore.
func (s *Store) Append(ctx context.Context, msg conversation.Message) (conversation.Message, error) {
	msg = s.fill(msg)
	if err := insertMessage(ctx, s.db, msg); err != nil {
		return conversation.Message{}, err
	}
	return msg, nil
}

// AppendBatch implements conversation.MessageStore. All inserts share one
// transaction, so a failure leaves the conversation untouched.
func (s *Store) AppendBatch(ctx context.Context, msgs []conversation.Message) ([]conversation.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stored := make([]conversation.Message, len(msgs))
	for i, m := range msgs {
		stored[i] = s.fill(m)
		if err := insertMessage(ctx, tx, stored[i]); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite: commit append: %w", err)
	}
	return stored, nil
}

func (s *Store) fill(msg conversation.Message) conversation.Message {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return msg
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertMessage assigns the sequence number inside the INSERT so concurrent
// appends never collide.
func insertMessage(ctx context.Context, db execer, msg conversation.Message) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, content, created_at)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM messages WHERE conversation_id = ?), 0) + 1,
		        ?, ?, ?, ?)`,
		msg.ConversationID, msg.ConversationID,
		msg.ID, string(msg.Role), msg.Content, msg.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	return nil
}

// DeleteConversation removes every message of a conversation and returns
// how many were deleted.
func (s *Store) DeleteConversation(ctx context.Context, conversationID string) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conversationID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete conversation: %w", err)
	}
	return int(n), nil
}
