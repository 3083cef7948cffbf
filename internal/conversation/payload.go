package conversation

import "time"

// Payload is the raw grouped-conversation shape returned by the
// marketplace backend. Field casing follows the wire contract, which mixes
// snake_case and camelCase for the display fields.
type Payload struct {
	ID                   string           `json:"id"`
	ClientID             string           `json:"client_id"`
	AgentID              string           `json:"agent_id"`
	PropertyID           string           `json:"property_id"`
	Messages             []MessagePayload `json:"messages"`
	LastMessage          string           `json:"last_message"`
	LastMessageTimestamp string           `json:"last_message_timestamp"`
	IsAgentResponded     bool             `json:"is_agent_responded"`
	UnreadMessagesCount  int              `json:"unread_messages_count"`
	AgentName            string           `json:"agentName"`
	AgentEmail           string           `json:"agentEmail"`
	PropertyTitle        string           `json:"propertyTitle"`
	ClientName           string           `json:"clientName"`
	ClientEmail          string           `json:"clientEmail"`
	ClientPhone          string           `json:"clientPhone"`
}

// MessagePayload is one raw message inside a conversation payload.
type MessagePayload struct {
	InquiryID string `json:"inquiry_id"`
	SenderID  string `json:"sender_id"`
	Content   string `json:"message_content"`
	Timestamp string `json:"timestamp"`
	Read      bool   `json:"read"`
}

// Fallbacks supplies locally-known display values used when the server
// omits them from a payload (e.g. the signed-in profile's own name).
type Fallbacks struct {
	AgentName     string
	AgentEmail    string
	PropertyTitle string
	ClientName    string
	ClientEmail   string
	ClientPhone   string
}

// DeriveSender resolves a message author by comparing its sender id
// against the conversation's client id.
func DeriveSender(senderID, clientID string) Role {
	if senderID == clientID {
		return RoleClient
	}
	return RoleAgent
}

// timestampLayouts are tried in order when parsing server timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ParseTimestamp parses a server timestamp defensively. Unparseable or
// empty values normalize to nil rather than an error: a bad timestamp must
// never drop a message.
func ParseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts
		}
	}
	return nil
}

// Normalize converts a raw payload into a Conversation, re-deriving every
// message's sender and filling display fields from fallbacks where the
// server omitted them. A nil payload or one without a messages array is
// treated as "no conversation" and yields nil.
func Normalize(p *Payload, fb Fallbacks) *Conversation {
	if p == nil || p.Messages == nil {
		return nil
	}

	conv := &Conversation{
		ID:             p.ID,
		ClientID:       p.ClientID,
		AgentID:        p.AgentID,
		PropertyID:     p.PropertyID,
		Messages:       make([]Message, 0, len(p.Messages)),
		UnreadCount:    max(p.UnreadMessagesCount, 0),
		AgentResponded: p.IsAgentResponded,
		LastMessage:    p.LastMessage,
		LastMessageAt:  ParseTimestamp(p.LastMessageTimestamp),
		AgentName:      firstNonEmpty(p.AgentName, fb.AgentName),
		AgentEmail:     firstNonEmpty(p.AgentEmail, fb.AgentEmail),
		PropertyTitle:  firstNonEmpty(p.PropertyTitle, fb.PropertyTitle),
		ClientName:     firstNonEmpty(p.ClientName, fb.ClientName),
		ClientEmail:    firstNonEmpty(p.ClientEmail, fb.ClientEmail),
		ClientPhone:    firstNonEmpty(p.ClientPhone, fb.ClientPhone),
	}

	for _, m := range p.Messages {
		conv.Messages = append(conv.Messages, Message{
			ID:        m.InquiryID,
			SenderID:  m.SenderID,
			Sender:    DeriveSender(m.SenderID, p.ClientID),
			Body:      m.Content,
			Timestamp: ParseTimestamp(m.Timestamp),
			Read:      m.Read,
		})
	}

	return conv
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
