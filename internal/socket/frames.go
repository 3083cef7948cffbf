package socket

import "encoding/json"

// Event names on the push channel.
const (
	// Client -> server
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventMessageRead       = "message_read"

	// Server -> client
	EventNewMessage     = "new_message"
	EventMessageReadAck = "message_read_ack"
)

// Frame is the wire envelope for every channel event.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRef scopes a join/leave to one conversation room.
type RoomRef struct {
	ConversationID string `json:"conversationId"`
}

// NewMessageEvent announces a freshly persisted message in a room.
type NewMessageEvent struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	InquiryID      string `json:"inquiryId"`
	AgentID        string `json:"agentId,omitempty"`
}

// ReadAnnounce is sent by a participant after its mark-read succeeded.
type ReadAnnounce struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Role           string `json:"role"`
}

// ReadAckEvent is the server's broadcast of a participant's read.
type ReadAckEvent struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	Role           string `json:"role"`
}
