package storage

import (
	"context"
	"fmt"
	"time"
)

// LoadThread returns the full ordered message history for a thread.
// A never-seen thread yields an empty history, not an error.
func (s *Store) LoadThread(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT thread_id, seq, role, actor, content, payload, created_at
		FROM checkpoints WHERE thread_id = ? ORDER BY seq ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.ThreadID, &m.Seq, &m.Role, &m.Actor, &m.Content, &m.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning checkpoint row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for thread %s seq %d: %w", m.ThreadID, m.Seq, err)
		}
		m.CreatedAt = t
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// AppendMessages durably appends new messages to a thread within one
// transaction. Seq values are assigned past the current maximum, so the
// caller only supplies role/actor/content/payload in order.
func (s *Store) AppendMessages(ctx context.Context, threadID string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer tx.Rollback()

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&next); err != nil {
		return fmt.Errorf("reading next seq for thread %s: %w", threadID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO checkpoints (thread_id, seq, role, actor, content, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing checkpoint insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range messages {
		createdAt := m.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, threadID, next+i, m.Role, m.Actor, m.Content, m.Payload, createdAt.Format(time.RFC3339)); err != nil {
			return fmt.Errorf("inserting checkpoint seq %d: %w", next+i, err)
		}
	}

	return tx.Commit()
}

// ThreadCount returns the number of distinct threads with at least one message.
func (s *Store) ThreadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT thread_id) FROM checkpoints`).Scan(&count)
	return count, err
}
