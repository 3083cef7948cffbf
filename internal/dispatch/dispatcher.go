// Package dispatch builds and sends outbound messages, keeping the
// conversation store consistent with the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/rest"
	"go.uber.org/zap"
)

// Validation and precondition errors, rejected before any network call.
var (
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrGuestIdentity    = errors.New("guest name and email are required")
	ErrNotAuthenticated = errors.New("sign-in required")
)

// API is the subset of the REST client the dispatcher needs.
type API interface {
	CreateInquiry(ctx context.Context, req rest.CreateInquiryRequest) (*rest.SendResponse, error)
	PostMessage(ctx context.Context, req rest.PostMessageRequest) (*rest.SendResponse, error)
}

// Refresher replaces optimistic store state with confirmed server state.
type Refresher interface {
	Refresh(ctx context.Context, s *conversation.Store) error
}

// Config wires a dispatcher to one conversation store and acting identity.
type Config struct {
	API       API
	Refresher Refresher
	Store     *conversation.Store
	// Creds is nil for guest senders; authenticated sends require it.
	Creds      rest.TokenSource
	Role       conversation.Role
	UserID     string
	PeerID     string
	PropertyID string
	Logger     *zap.Logger
}

// Dispatcher sends messages for one side of one conversation.
type Dispatcher struct {
	cfg Config
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Dispatcher{cfg: cfg}
}

// Send validates, optimistically appends, and transmits one message.
// A nil guest means an authenticated send by the configured identity.
//
// Failures after the optimistic append leave the message visible and
// flagged failed; there is no automatic retry. Repeated identical sends
// are not deduplicated here; reconciliation owns duplicate suppression.
func (d *Dispatcher) Send(ctx context.Context, text string, guest *conversation.GuestInfo) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if guest != nil {
		if strings.TrimSpace(guest.Name) == "" || strings.TrimSpace(guest.Email) == "" {
			return ErrGuestIdentity
		}
	} else {
		if d.cfg.Creds == nil {
			return ErrNotAuthenticated
		}
		if _, err := d.cfg.Creds.Bearer(); err != nil {
			return fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}
	}

	store := d.cfg.Store
	msg := store.AppendOptimistic(text, d.cfg.Role, d.cfg.UserID)
	gen := store.Generation()
	convID := store.ID()

	var resp *rest.SendResponse
	var err error
	if convID == "" {
		resp, err = d.cfg.API.CreateInquiry(ctx, d.inquiryRequest(text, guest))
	} else {
		resp, err = d.cfg.API.PostMessage(ctx, rest.PostMessageRequest{
			ConversationID: convID,
			PropertyID:     d.cfg.PropertyID,
			Content:        text,
			RecipientID:    d.cfg.PeerID,
			MessageType:    "text",
		})
	}
	if err != nil {
		store.MarkFailed(msg.ID)
		return fmt.Errorf("send message: %w", err)
	}

	// The view may have moved to another conversation while the request
	// was in flight; its result is then discarded.
	if store.Generation() != gen {
		return nil
	}

	if convID == "" && resp != nil && resp.ConversationID != "" {
		store.AdoptID(resp.ConversationID)
		if d.cfg.Refresher != nil {
			if rerr := d.cfg.Refresher.Refresh(ctx, store); rerr != nil {
				// Keep the optimistic state; the next event-driven
				// reconciliation converges.
				d.cfg.Logger.Warn("post-send refresh failed", zap.Error(rerr),
					zap.String("conversation_id", resp.ConversationID))
			}
		}
	}
	return nil
}

func (d *Dispatcher) inquiryRequest(text string, guest *conversation.GuestInfo) rest.CreateInquiryRequest {
	req := rest.CreateInquiryRequest{
		PropertyID: d.cfg.PropertyID,
		Content:    text,
	}
	if d.cfg.Role == conversation.RoleClient {
		req.AgentID = d.cfg.PeerID
		req.ClientID = d.cfg.UserID
	} else {
		req.AgentID = d.cfg.UserID
		req.ClientID = d.cfg.PeerID
	}
	if guest != nil {
		req.ClientID = ""
		req.Name = guest.Name
		req.Email = guest.Email
		req.Phone = guest.Phone
	}
	return req
}
