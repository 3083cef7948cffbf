package cache

import (
	"fmt"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on
// conversation_id + msg_id).
func (db *DB) UpsertMessage(m *MessageRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (conversation_id, msg_id, sender_id, sender_role, body, read, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
			sender_role = excluded.sender_role,
			body = excluded.body,
			read = excluded.read`,
		m.ConversationID, m.MsgID, m.SenderID, m.SenderRole, m.Body, m.Read, m.Timestamp, now)
	return err
}

// ReplaceMessages mirrors a full server snapshot of one conversation's
// history in a transaction: rows vanished from the server are removed,
// the rest upserted.
func (db *DB) ReplaceMessages(conversationID string, msgs []MessageRow) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	for i, m := range msgs {
		msgID := m.MsgID
		if msgID == "" {
			// The backend normally supplies inquiry ids; rows missing one
			// get a positional id so the uniqueness constraint does not
			// collapse them into a single row.
			msgID = fmt.Sprintf("row-%d", i)
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, sender_id, sender_role, body, read, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(conversation_id, msg_id) DO UPDATE SET
				sender_role = excluded.sender_role,
				body = excluded.body,
				read = excluded.read`,
			conversationID, msgID, m.SenderID, m.SenderRole, m.Body, m.Read, m.Timestamp, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns a conversation's messages ordered by timestamp
// ascending, insertion order breaking ties.
func (db *DB) ListMessages(conversationID string, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.Query(`
		SELECT id, conversation_id, msg_id, sender_id, sender_role, body, read, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.MsgID, &m.SenderID, &m.SenderRole, &m.Body, &m.Read, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
