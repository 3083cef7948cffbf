package cache

// ConversationRow is a mirrored conversation summary.
type ConversationRow struct {
	ID             string
	ClientID       string
	AgentID        string
	PropertyID     string
	PropertyTitle  string
	ClientName     string
	AgentName      string
	LastMessage    string
	LastMessageAt  int64
	UnreadCount    int
	AgentResponded bool
}

// MessageRow is one mirrored message.
type MessageRow struct {
	ID             int64
	ConversationID string
	MsgID          string
	SenderID       string
	SenderRole     string
	Body           string
	Read           bool
	Timestamp      int64
}
