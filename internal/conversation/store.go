package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the single source of truth for one open conversation's message
// list and meta-flags. A Store is owned by the one view/session displaying
// the conversation; the mutex exists because the push-channel read loop and
// callers run on different goroutines, not to support shared views.
type Store struct {
	mu   sync.Mutex
	conv Conversation
	gen  uint64
}

// NewStore creates an empty store holding no conversation.
func NewStore() *Store {
	return &Store{}
}

// Initialize replaces the entire state with the given conversation and
// bumps the generation, invalidating continuations of earlier async work.
// A nil conversation resets to the empty pending state.
func (s *Store) Initialize(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c == nil {
		s.conv = Conversation{}
	} else {
		s.conv = c.clone()
	}
	s.gen++
}

// Generation returns the current store generation. Async continuations
// capture it before suspending and discard their result when it moved.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// ID returns the canonical conversation id, or "" while pending.
func (s *Store) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.ID
}

// AdoptID records the server-assigned conversation id after a guest or
// first-message send created the conversation row.
func (s *Store) AdoptID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv.ID == "" {
		s.conv.ID = id
	}
}

// UnreadCount returns the current unread counter.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.UnreadCount
}

// Snapshot returns a deep copy of the current conversation state.
func (s *Store) Snapshot() Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.clone()
}

// AppendOptimistic inserts a locally authored message before network
// confirmation and returns it. Each call mints a fresh temporary id; the
// id survives until a reconciliation replaces the entry with its
// server-confirmed copy.
func (s *Store) AppendOptimistic(body string, sender Role, senderID string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	msg := Message{
		ID:        "local-" + uuid.NewString(),
		SenderID:  senderID,
		Sender:    sender,
		Body:      body,
		Timestamp: &now,
		Pending:   true,
	}
	s.conv.Messages = append(s.conv.Messages, msg)
	s.conv.LastMessage = body
	s.conv.LastMessageAt = &now
	return msg
}

// MarkFailed flags an optimistic message whose send did not persist. The
// message stays visible; rollback is deliberately not performed.
func (s *Store) MarkFailed(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conv.Messages {
		if s.conv.Messages[i].ID == tempID {
			s.conv.Messages[i].Failed = true
			return
		}
	}
}

// Reconcile replaces the message list wholesale with the server's
// authoritative ordering. Optimistic entries that have a server-confirmed
// counterpart (same sender, same body) are discarded in its favor;
// still-unconfirmed optimistic entries are kept at the tail so an
// in-flight or failed send stays visible. Returns false when the payload
// carries no messages array, in which case state is left untouched.
func (s *Store) Reconcile(p *Payload, fb Fallbacks) bool {
	fresh := Normalize(p, fb)
	if fresh == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []Message
	for _, m := range s.conv.Messages {
		if m.Pending && !confirmed(fresh.Messages, m) {
			pending = append(pending, m)
		}
	}

	if fresh.ID == "" {
		fresh.ID = s.conv.ID
	}
	s.conv = *fresh
	s.conv.Messages = append(s.conv.Messages, pending...)
	return true
}

// confirmed reports whether a server message list contains a confirmed
// copy of the given optimistic message.
func confirmed(serverMsgs []Message, local Message) bool {
	for _, m := range serverMsgs {
		if m.Sender == local.Sender && m.Body == local.Body {
			return true
		}
	}
	return false
}

// MarkReadBy flips the read flag on every message NOT authored by reader:
// the reader has seen everything the other side wrote. Both read-flows go
// through here. My own mark-read uses reader = self (flips the peer's
// messages), a peer's ack uses reader = peer (flips mine).
func (s *Store) MarkReadBy(reader Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conv.Messages {
		if s.conv.Messages[i].Sender != reader {
			s.conv.Messages[i].Read = true
		}
	}
}

// SetUnread overwrites the unread counter with the server's value.
func (s *Store) SetUnread(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.UnreadCount = max(n, 0)
}

// ResetUnread optimistically zeroes the unread counter.
func (s *Store) ResetUnread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conv.UnreadCount = 0
}
