// Package bridge routes push-channel frames for the open conversation into
// store updates and read-receipt triggers, and manages room membership.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nestiq/chatsync/internal/bus"
	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/socket"
	"github.com/nestiq/chatsync/internal/status"
	"go.uber.org/zap"
)

// Channel is the room-membership surface of the push channel.
type Channel interface {
	JoinRoom(conversationID string) error
	LeaveRoom(conversationID string) error
}

// Refresher re-fetches the open conversation after a push notification.
type Refresher interface {
	Refresh(ctx context.Context, s *conversation.Store) error
}

// Receipts consumes the read-receipt side effects of routed frames.
type Receipts interface {
	PeerMessageArrived(ctx context.Context, conversationID string) error
	AckReceived(conversationID string, reader conversation.Role)
}

// Bridge ties the push channel to the conversation store. At most one
// conversation room is open at a time; frames for any other conversation
// are dropped before touching state.
type Bridge struct {
	channel   Channel
	machine   *status.Machine
	refresher Refresher
	receipts  Receipts
	store     *conversation.Store
	bus       *bus.Bus
	self      conversation.Role
	logger    *zap.Logger

	mu     sync.Mutex
	openID string
}

// New creates a bridge acting as the given role.
func New(ch Channel, machine *status.Machine, refresher Refresher, receipts Receipts, store *conversation.Store, b *bus.Bus, self conversation.Role, logger *zap.Logger) *Bridge {
	return &Bridge{
		channel:   ch,
		machine:   machine,
		refresher: refresher,
		receipts:  receipts,
		store:     store,
		bus:       b,
		self:      self,
		logger:    logger,
	}
}

// Open joins the conversation's room, leaving the previously open one
// first. The link must be established before a room can be joined.
func (br *Bridge) Open(conversationID string) error {
	if conversationID == "" {
		return errors.New("empty conversation id")
	}

	br.mu.Lock()
	defer br.mu.Unlock()

	if br.openID == conversationID {
		return nil
	}
	if br.openID != "" {
		if err := br.leaveLocked(); err != nil {
			return err
		}
	}

	if err := br.channel.JoinRoom(conversationID); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	if err := br.machine.Transition(status.Joined); err != nil {
		return err
	}
	br.openID = conversationID
	br.logger.Info("conversation room joined", zap.String("conversation_id", conversationID))
	return nil
}

// Close leaves the currently open room, if any.
func (br *Bridge) Close() error {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.leaveLocked()
}

func (br *Bridge) leaveLocked() error {
	if br.openID == "" {
		return nil
	}
	if err := br.channel.LeaveRoom(br.openID); err != nil {
		return fmt.Errorf("leave room: %w", err)
	}
	if br.machine.Current() == status.Joined {
		_ = br.machine.Transition(status.Connected)
	}
	br.logger.Info("conversation room left", zap.String("conversation_id", br.openID))
	br.openID = ""
	return nil
}

// Rejoin re-enters the open room after a reconnect. Registered as the
// channel's rejoin hook; room membership does not survive the socket.
func (br *Bridge) Rejoin() {
	br.mu.Lock()
	id := br.openID
	br.mu.Unlock()
	if id == "" {
		return
	}
	if err := br.channel.JoinRoom(id); err != nil {
		br.logger.Warn("room rejoin failed", zap.Error(err), zap.String("conversation_id", id))
		return
	}
	_ = br.machine.Transition(status.Joined)
	br.logger.Info("conversation room rejoined", zap.String("conversation_id", id))
}

// HandleFrame routes one inbound frame. Registered as the channel's frame
// handler; runs on the channel's read goroutine, so per-frame work is a
// bounded fetch plus local mutation.
func (br *Bridge) HandleFrame(f socket.Frame) {
	switch f.Event {
	case socket.EventNewMessage:
		var evt socket.NewMessageEvent
		if err := json.Unmarshal(f.Data, &evt); err != nil {
			br.logger.Warn("malformed new_message frame", zap.Error(err))
			return
		}
		br.handleNewMessage(evt)
	case socket.EventMessageReadAck:
		var evt socket.ReadAckEvent
		if err := json.Unmarshal(f.Data, &evt); err != nil {
			br.logger.Warn("malformed message_read_ack frame", zap.Error(err))
			return
		}
		br.handleReadAck(evt)
	default:
		br.logger.Debug("ignoring unhandled frame", zap.String("event", f.Event))
	}
}

func (br *Bridge) handleNewMessage(evt socket.NewMessageEvent) {
	if !br.isOpen(evt.ConversationID) {
		br.logger.Debug("dropping new_message for closed conversation",
			zap.String("conversation_id", evt.ConversationID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := br.refresher.Refresh(ctx, br.store); err != nil {
		br.logger.Warn("refresh after new_message failed", zap.Error(err),
			zap.String("conversation_id", evt.ConversationID))
		return
	}
	// The room may have changed while the fetch ran.
	if !br.isOpen(evt.ConversationID) {
		return
	}

	snap := br.store.Snapshot()
	br.publishUpdated(snap)

	if conversation.DeriveSender(evt.SenderID, snap.ClientID) != br.self {
		if err := br.receipts.PeerMessageArrived(ctx, evt.ConversationID); err != nil {
			br.logger.Warn("mark-read after peer message failed", zap.Error(err))
		}
	}
}

func (br *Bridge) handleReadAck(evt socket.ReadAckEvent) {
	if !br.isOpen(evt.ConversationID) {
		return
	}
	br.receipts.AckReceived(evt.ConversationID, conversation.Role(evt.Role))
	if br.bus != nil {
		br.bus.Publish(bus.Event{Kind: "receipt.acked", Timestamp: time.Now(), Payload: evt})
	}
	br.publishUpdated(br.store.Snapshot())
}

func (br *Bridge) isOpen(conversationID string) bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	return conversationID != "" && conversationID == br.openID
}

func (br *Bridge) publishUpdated(snap conversation.Conversation) {
	if br.bus == nil {
		return
	}
	br.bus.Publish(bus.Event{
		Kind:      "conversation.updated",
		Timestamp: time.Now(),
		Payload:   snap,
	})
}
