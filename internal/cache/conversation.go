package cache

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation summary.
func (db *DB) UpsertConversation(c *ConversationRow) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, client_id, agent_id, property_id, property_title, client_name, agent_name, last_message, last_message_at, unread_count, agent_responded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_id = excluded.client_id,
			agent_id = excluded.agent_id,
			property_id = excluded.property_id,
			property_title = excluded.property_title,
			client_name = excluded.client_name,
			agent_name = excluded.agent_name,
			last_message = excluded.last_message,
			last_message_at = excluded.last_message_at,
			unread_count = excluded.unread_count,
			agent_responded = excluded.agent_responded,
			updated_at = excluded.updated_at`,
		c.ID, c.ClientID, c.AgentID, c.PropertyID, c.PropertyTitle, c.ClientName, c.AgentName,
		c.LastMessage, c.LastMessageAt, c.UnreadCount, c.AgentResponded, now)
	return err
}

// ListConversations returns conversations sorted by last message timestamp
// descending.
func (db *DB) ListConversations(limit, offset int) ([]ConversationRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, client_id, agent_id, property_id, property_title, client_name, agent_name, last_message, last_message_at, unread_count, agent_responded
		FROM conversations
		ORDER BY last_message_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []ConversationRow
	for rows.Next() {
		var c ConversationRow
		if err := rows.Scan(&c.ID, &c.ClientID, &c.AgentID, &c.PropertyID, &c.PropertyTitle, &c.ClientName, &c.AgentName, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount, &c.AgentResponded); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// CountConversations returns the number of mirrored conversations.
func (db *DB) CountConversations() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&n)
	return n, err
}

// GetConversation returns a single conversation by id, or nil when absent.
func (db *DB) GetConversation(id string) (*ConversationRow, error) {
	var c ConversationRow
	err := db.QueryRow(`
		SELECT id, client_id, agent_id, property_id, property_title, client_name, agent_name, last_message, last_message_at, unread_count, agent_responded
		FROM conversations
		WHERE id = ?`, id).
		Scan(&c.ID, &c.ClientID, &c.AgentID, &c.PropertyID, &c.PropertyTitle, &c.ClientName, &c.AgentName, &c.LastMessage, &c.LastMessageAt, &c.UnreadCount, &c.AgentResponded)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConversation removes a conversation and its mirrored messages.
func (db *DB) DeleteConversation(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}
