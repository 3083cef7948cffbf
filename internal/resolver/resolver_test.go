package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/nestiq/chatsync/internal/conversation"
	"github.com/nestiq/chatsync/internal/rest"
	"go.uber.org/zap"
)

type fakeAPI struct {
	payload   *conversation.Payload
	getErr    error
	inquiries []rest.CreateInquiryRequest
	createErr error
	getCalls  int
	onGet     func()
}

func (f *fakeAPI) GetConversation(_ context.Context, clientID, agentID string) (*conversation.Payload, error) {
	f.getCalls++
	if f.onGet != nil {
		f.onGet()
	}
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.payload, nil
}

func (f *fakeAPI) CreateInquiry(_ context.Context, req rest.CreateInquiryRequest) (*rest.SendResponse, error) {
	f.inquiries = append(f.inquiries, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &rest.SendResponse{ConversationID: "c-1"}, nil
}

func newResolver(api *fakeAPI) *Resolver {
	return New(api, "client-1", "agent-1", "prop-1", conversation.Fallbacks{}, zap.NewNop())
}

func TestFetchReturnsNilWhenNotFound(t *testing.T) {
	api := &fakeAPI{getErr: rest.ErrNotFound}
	conv, err := newResolver(api).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if conv != nil {
		t.Errorf("conv = %+v, want nil", conv)
	}
}

func TestFetchReturnsNilWithoutMessagesArray(t *testing.T) {
	api := &fakeAPI{payload: &conversation.Payload{ID: "c-1"}}
	conv, err := newResolver(api).Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if conv != nil {
		t.Errorf("conv = %+v, want nil for payload without messages", conv)
	}
}

func TestFetchPropagatesServerFailure(t *testing.T) {
	api := &fakeAPI{getErr: errors.New("boom")}
	if _, err := newResolver(api).Fetch(context.Background()); err == nil {
		t.Fatal("Fetch() error = nil, want propagated failure")
	}
}

func TestCreateShellPostsSentinelThenFetches(t *testing.T) {
	api := &fakeAPI{payload: &conversation.Payload{
		ID:       "c-1",
		ClientID: "client-1",
		Messages: []conversation.MessagePayload{{InquiryID: "m1", SenderID: "client-1", Content: ShellContent}},
	}}
	conv, err := newResolver(api).CreateShell(context.Background())
	if err != nil {
		t.Fatalf("CreateShell() error = %v", err)
	}
	if conv == nil || conv.ID != "c-1" {
		t.Fatalf("conv = %+v, want id c-1", conv)
	}
	if len(api.inquiries) != 1 {
		t.Fatalf("inquiries = %d, want 1", len(api.inquiries))
	}
	req := api.inquiries[0]
	if req.Content != ShellContent || req.ClientID != "client-1" || req.AgentID != "agent-1" || req.PropertyID != "prop-1" {
		t.Errorf("inquiry request = %+v", req)
	}
}

func TestCreateShellErrsWhenStillUnresolvable(t *testing.T) {
	api := &fakeAPI{getErr: rest.ErrNotFound}
	if _, err := newResolver(api).CreateShell(context.Background()); err == nil {
		t.Fatal("CreateShell() error = nil, want unresolvable error")
	}
}

func TestRefreshReconcilesStore(t *testing.T) {
	api := &fakeAPI{payload: &conversation.Payload{
		ID:       "c-1",
		ClientID: "client-1",
		Messages: []conversation.MessagePayload{
			{InquiryID: "m1", SenderID: "client-1", Content: "hi"},
			{InquiryID: "m2", SenderID: "agent-1", Content: "hello"},
		},
		UnreadMessagesCount: 1,
	}}
	store := conversation.NewStore()
	store.Initialize(&conversation.Conversation{ID: "c-1", ClientID: "client-1"})

	if err := newResolver(api).Refresh(context.Background(), store); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	snap := store.Snapshot()
	if len(snap.Messages) != 2 || snap.UnreadCount != 1 {
		t.Errorf("snapshot = %d messages, unread %d; want 2, 1", len(snap.Messages), snap.UnreadCount)
	}
}

func TestRefreshDiscardsStaleResult(t *testing.T) {
	store := conversation.NewStore()
	store.Initialize(&conversation.Conversation{ID: "c-1", ClientID: "client-1"})

	api := &fakeAPI{payload: &conversation.Payload{
		ID:       "c-1",
		ClientID: "client-1",
		Messages: []conversation.MessagePayload{{InquiryID: "m1", SenderID: "client-1", Content: "hi"}},
	}}
	// The store moves to another conversation while the fetch is in flight.
	api.onGet = func() {
		store.Initialize(&conversation.Conversation{ID: "c-2", ClientID: "client-1"})
	}

	if err := newResolver(api).Refresh(context.Background(), store); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	snap := store.Snapshot()
	if snap.ID != "c-2" || len(snap.Messages) != 0 {
		t.Errorf("stale refresh applied: snapshot = %+v", snap)
	}
}

func TestRefreshIgnoresNotFound(t *testing.T) {
	store := conversation.NewStore()
	store.Initialize(&conversation.Conversation{ID: "c-1"})
	api := &fakeAPI{getErr: rest.ErrNotFound}
	if err := newResolver(api).Refresh(context.Background(), store); err != nil {
		t.Fatalf("Refresh() error = %v, want nil on not-found", err)
	}
	if store.ID() != "c-1" {
		t.Errorf("store id = %q, want untouched c-1", store.ID())
	}
}
