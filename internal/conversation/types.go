package conversation

import "time"

// Role identifies which side of a conversation authored a message or is
// acting. It is always derived by comparing sender ids against the
// conversation's client id, never trusted as a raw field from the wire.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Peer returns the opposite role.
func (r Role) Peer() Role {
	if r == RoleClient {
		return RoleAgent
	}
	return RoleClient
}

// GuestInfo identifies an anonymous inquirer before a conversation exists.
type GuestInfo struct {
	Name  string
	Email string
	Phone string
}

// Message is one entry of a conversation's ordered history.
type Message struct {
	// ID is the server-assigned inquiry id, or a temporary local id
	// ("local-…") for an optimistic message awaiting confirmation.
	ID       string
	SenderID string
	Sender   Role
	Body     string
	// Timestamp is nil when the server sent an unparseable value.
	// Ordering follows the server array, not this field.
	Timestamp *time.Time
	Read      bool
	// Pending marks an optimistic message not yet confirmed by the server.
	Pending bool
	// Failed marks an optimistic message whose send did not persist.
	Failed bool
}

// Conversation is the normalized state of one client-agent thread.
type Conversation struct {
	// ID is empty until the first message is persisted server-side.
	ID         string
	ClientID   string
	AgentID    string
	PropertyID string

	// Messages are ordered by the server's timestamp-ascending ordering.
	Messages []Message

	// UnreadCount is the server's count of peer-authored unread messages.
	// It is never recomputed from the loaded message window.
	UnreadCount    int
	AgentResponded bool

	LastMessage   string
	LastMessageAt *time.Time

	AgentName     string
	AgentEmail    string
	PropertyTitle string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
}

// clone returns a deep copy; the messages slice is never shared.
func (c *Conversation) clone() Conversation {
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}
