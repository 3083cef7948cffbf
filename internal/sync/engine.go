// Package sync mirrors live conversation state into the local cache.
package sync

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/nestiq/chatsync/internal/bus"
	"github.com/nestiq/chatsync/internal/cache"
	"github.com/nestiq/chatsync/internal/conversation"
	"go.uber.org/zap"
)

// checkpointKey records when the mirror last absorbed a snapshot.
const checkpointKey = "last_synced_at"

// Engine handles idempotent mirroring of conversation snapshots into the
// cache. It subscribes to "conversation.*" events on the bus and processes
// them.
type Engine struct {
	db     *cache.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new mirror engine.
func NewEngine(db *cache.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to conversation events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("conversation.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "conversation.updated":
		snap, ok := evt.Payload.(conversation.Conversation)
		if !ok {
			return
		}
		if err := e.MirrorSnapshot(&snap); err != nil {
			e.logger.Error("failed to mirror conversation", zap.Error(err), zap.String("conversation_id", snap.ID))
		}
	case "conversation.deleted":
		id, ok := evt.Payload.(string)
		if !ok {
			return
		}
		if err := e.db.DeleteConversation(id); err != nil {
			e.logger.Error("failed to remove mirrored conversation", zap.Error(err), zap.String("conversation_id", id))
		}
	}
}

// MirrorSnapshot writes one conversation snapshot into the cache
// (idempotent). Optimistic local messages are skipped; the mirror holds
// server-confirmed state only.
func (e *Engine) MirrorSnapshot(snap *conversation.Conversation) error {
	if snap.ID == "" {
		return nil
	}

	if err := e.db.UpsertConversation(&cache.ConversationRow{
		ID:             snap.ID,
		ClientID:       snap.ClientID,
		AgentID:        snap.AgentID,
		PropertyID:     snap.PropertyID,
		PropertyTitle:  snap.PropertyTitle,
		ClientName:     snap.ClientName,
		AgentName:      snap.AgentName,
		LastMessage:    truncate(snap.LastMessage, 100),
		LastMessageAt:  unixMilli(snap.LastMessageAt),
		UnreadCount:    snap.UnreadCount,
		AgentResponded: snap.AgentResponded,
	}); err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	rows := make([]cache.MessageRow, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		if m.Pending {
			continue
		}
		rows = append(rows, cache.MessageRow{
			MsgID:      m.ID,
			SenderID:   m.SenderID,
			SenderRole: string(m.Sender),
			Body:       m.Body,
			Read:       m.Read,
			Timestamp:  unixMilli(m.Timestamp),
		})
	}
	if err := e.db.ReplaceMessages(snap.ID, rows); err != nil {
		return fmt.Errorf("replace messages: %w", err)
	}

	now := time.Now()
	if err := e.db.SetState(checkpointKey, strconv.FormatInt(now.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("set checkpoint: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "mirror.upserted",
		Timestamp: now,
		Payload: map[string]string{
			"conversation_id": snap.ID,
		},
	})

	return nil
}

func unixMilli(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixMilli()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
