// Package resolver finds or creates the canonical conversation between a
// client and an agent and normalizes it into the store's shape.
package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/rest"
	"go.uber.org/zap"
)

// ShellContent is the sentinel first message posted so the server creates
// the conversation row. The creation response does not carry the grouped
// conversation shape, so a fetch always follows.
const ShellContent = "conversation_opened"

// API is the subset of the REST client the resolver needs.
type API interface {
	GetConversation(ctx context.Context, clientID, agentID string) (*conversation.Payload, error)
	CreateInquiry(ctx context.Context, req rest.CreateInquiryRequest) (*rest.SendResponse, error)
}

// Resolver is bound to one client-agent participant pair.
type Resolver struct {
	api        API
	clientID   string
	agentID    string
	propertyID string
	fallbacks  conversation.Fallbacks
	logger     *zap.Logger
}

// New creates a resolver for the conversation between clientID and agentID,
// optionally scoped to a listing.
func New(a API, clientID, agentID, propertyID string, fb conversation.Fallbacks, logger *zap.Logger) *Resolver {
	return &Resolver{
		api:        a,
		clientID:   clientID,
		agentID:    agentID,
		propertyID: propertyID,
		fallbacks:  fb,
		logger:     logger,
	}
}

// Fetch retrieves and normalizes the conversation. "No conversation yet"
// (404 or a payload without messages) yields (nil, nil); transport and
// server failures propagate so callers can distinguish "none exists" from
// "none available right now".
func (r *Resolver) Fetch(ctx context.Context) (*conversation.Conversation, error) {
	payload, err := r.api.GetConversation(ctx, r.clientID, r.agentID)
	if errors.Is(err, rest.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	return conversation.Normalize(payload, r.fallbacks), nil
}

// CreateShell posts a sentinel inquiry so the server creates the
// conversation, then fetches the canonical state.
func (r *Resolver) CreateShell(ctx context.Context) (*conversation.Conversation, error) {
	_, err := r.api.CreateInquiry(ctx, rest.CreateInquiryRequest{
		ClientID:   r.clientID,
		AgentID:    r.agentID,
		PropertyID: r.propertyID,
		Content:    ShellContent,
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation shell: %w", err)
	}
	conv, err := r.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, errors.New("conversation shell created but not resolvable")
	}
	return conv, nil
}

// Refresh re-fetches the conversation and reconciles the store with the
// authoritative server state. The result is discarded when the store moved
// to another conversation while the fetch was in flight.
func (r *Resolver) Refresh(ctx context.Context, s *conversation.Store) error {
	gen := s.Generation()

	payload, err := r.api.GetConversation(ctx, r.clientID, r.agentID)
	if errors.Is(err, rest.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("refresh conversation: %w", err)
	}

	if s.Generation() != gen {
		r.logger.Debug("discarding stale refresh", zap.String("conversation_id", s.ID()))
		return nil
	}
	s.Reconcile(payload, r.fallbacks)
	return nil
}
