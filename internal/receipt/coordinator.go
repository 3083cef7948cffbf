// Package receipt decides when to tell the server "I have read the peer's
// messages" and consumes the peer's acknowledgements.
package receipt

import (
	"context"
	"fmt"

	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/socket"
	"go.uber.org/zap"
)

// MarkReader is the REST call that persists a read marker.
type MarkReader interface {
	MarkRead(ctx context.Context, conversationID string, role conversation.Role) error
}

// Announcer broadcasts a successful read over the push channel.
type Announcer interface {
	AnnounceRead(a socket.ReadAnnounce) error
}

// Coordinator runs the read-receipt flows for one open conversation.
type Coordinator struct {
	api       MarkReader
	announcer Announcer
	store     *conversation.Store
	self      conversation.Role
	userID    string
	logger    *zap.Logger
}

// New creates a coordinator acting as the given role/user.
func New(api MarkReader, announcer Announcer, store *conversation.Store, self conversation.Role, userID string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		api:       api,
		announcer: announcer,
		store:     store,
		self:      self,
		userID:    userID,
		logger:    logger,
	}
}

// ConversationOpened fires the mark-read flow when the freshly opened
// conversation has unread peer messages.
func (c *Coordinator) ConversationOpened(ctx context.Context) error {
	if c.store.UnreadCount() == 0 {
		return nil
	}
	return c.trigger(ctx)
}

// PeerMessageArrived fires the mark-read flow for a peer message in the
// currently open conversation. Events for any other conversation are
// ignored without touching state.
func (c *Coordinator) PeerMessageArrived(ctx context.Context, conversationID string) error {
	if conversationID == "" || conversationID != c.store.ID() {
		return nil
	}
	return c.trigger(ctx)
}

// AckReceived handles the peer's read acknowledgement: the messages this
// side authored are now read. Purely a local flag flip; echoes of our own
// read (reader == self) and acks for other conversations are ignored.
func (c *Coordinator) AckReceived(conversationID string, reader conversation.Role) {
	if conversationID == "" || conversationID != c.store.ID() {
		return
	}
	if reader != c.self.Peer() {
		return
	}
	c.store.MarkReadBy(reader)
}

// trigger runs one mark-read round. The local unread counter and read
// flags flip optimistically before the request; a failed request is
// surfaced but not rolled back, the next fetch restores the server's
// authoritative count.
func (c *Coordinator) trigger(ctx context.Context) error {
	id := c.store.ID()
	if id == "" {
		return nil
	}

	c.store.ResetUnread()
	c.store.MarkReadBy(c.self)

	if err := c.api.MarkRead(ctx, id, c.self); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	if err := c.announcer.AnnounceRead(socket.ReadAnnounce{
		ConversationID: id,
		UserID:         c.userID,
		Role:           string(c.self),
	}); err != nil {
		// Channel silence: the peer will learn about the read on its
		// next fetch instead.
		c.logger.Warn("read announce not delivered", zap.Error(err), zap.String("conversation_id", id))
	}
	return nil
}
