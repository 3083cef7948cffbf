package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/nestiq/chatsync/internal/bus"
	"github.com/nestiq/chatsync/internal/conversation"
	"go.uber.org/zap"
)

// Source resolves the watched conversation against the backend.
type Source interface {
	Fetch(ctx context.Context) (*conversation.Conversation, error)
	CreateShell(ctx context.Context) (*conversation.Conversation, error)
}

// Rooms is the bridge's room-membership surface.
type Rooms interface {
	Open(conversationID string) error
	Close() error
}

// Receipts triggers the mark-read flow for a freshly opened conversation.
type Receipts interface {
	ConversationOpened(ctx context.Context) error
}

// Deleter removes a conversation server-side.
type Deleter interface {
	DeleteConversation(ctx context.Context, conversationID string) error
}

// Watcher owns the lifecycle of the one conversation a session keeps
// synchronized: resolve it, load it into the store, enter its room, and
// run the initial mark-read.
type Watcher struct {
	source   Source
	rooms    Rooms
	receipts Receipts
	deleter  Deleter
	store    *conversation.Store
	bus      *bus.Bus
	logger   *zap.Logger
}

// NewWatcher creates a watcher.
func NewWatcher(source Source, rooms Rooms, receipts Receipts, deleter Deleter, store *conversation.Store, b *bus.Bus, logger *zap.Logger) *Watcher {
	return &Watcher{
		source:   source,
		rooms:    rooms,
		receipts: receipts,
		deleter:  deleter,
		store:    store,
		bus:      b,
		logger:   logger,
	}
}

// Open resolves the watched conversation, creating it when none exists,
// and brings the session live: store loaded, room joined, unread marked.
func (w *Watcher) Open(ctx context.Context) error {
	conv, err := w.source.Fetch(ctx)
	if err != nil {
		return err
	}
	if conv == nil {
		w.logger.Info("no conversation yet, creating shell")
		conv, err = w.source.CreateShell(ctx)
		if err != nil {
			return err
		}
	}

	w.store.Initialize(conv)
	w.logger.Info("conversation loaded",
		zap.String("conversation_id", conv.ID),
		zap.Int("messages", len(conv.Messages)),
		zap.Int("unread", conv.UnreadCount))

	if err := w.rooms.Open(conv.ID); err != nil {
		return fmt.Errorf("open conversation room: %w", err)
	}

	if err := w.receipts.ConversationOpened(ctx); err != nil {
		// The conversation is usable; the read marker retries on the
		// next peer message.
		w.logger.Warn("initial mark-read failed", zap.Error(err))
	}

	w.publish("conversation.updated", w.store.Snapshot())
	return nil
}

// Delete removes the open conversation server-side and resets the session
// to the empty pending state.
func (w *Watcher) Delete(ctx context.Context) error {
	id := w.store.ID()
	if id == "" {
		return nil
	}
	if err := w.deleter.DeleteConversation(ctx, id); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if err := w.rooms.Close(); err != nil {
		w.logger.Warn("room leave after delete failed", zap.Error(err))
	}
	w.store.Initialize(nil)
	w.publish("conversation.deleted", id)
	w.logger.Info("conversation deleted", zap.String("conversation_id", id))
	return nil
}

func (w *Watcher) publish(kind string, payload any) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
