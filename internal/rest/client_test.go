package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nestiq/chatsync/internal/conversation"
)

type staticToken string

func (s staticToken) Bearer() (string, error) { return string(s), nil }

type failingToken struct{}

func (failingToken) Bearer() (string, error) { return "", errors.New("expired") }

func TestGetConversation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("client_id"); got != "u-1" {
			t.Errorf("client_id = %q, want u-1", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want Bearer tok-1", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversation": map[string]any{
				"id":        "c-1",
				"client_id": "u-1",
				"agent_id":  "a-1",
				"messages": []map[string]any{
					{"inquiry_id": "m1", "sender_id": "u-1", "message_content": "hi"},
				},
				"unread_messages_count": 2,
			},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"), time.Second)
	p, err := c.GetConversation(context.Background(), "u-1", "a-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if p.ID != "c-1" || len(p.Messages) != 1 || p.UnreadMessagesCount != 2 {
		t.Errorf("unexpected payload: %+v", p)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"), time.Second)
	_, err := c.GetConversation(context.Background(), "u-1", "a-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestGetConversationServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "database down"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"), time.Second)
	_, err := c.GetConversation(context.Background(), "u-1", "a-1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want a non-NotFound failure", err)
	}
}

func TestCreateInquiryWithoutCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("guest inquiry should carry no Authorization, got %q", got)
		}
		var req CreateInquiryRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Email != "guest@example.com" || req.Content != "is this still available?" {
			t.Errorf("unexpected request: %+v", req)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"conversation_id": "c-new"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, time.Second)
	resp, err := c.CreateInquiry(context.Background(), CreateInquiryRequest{
		AgentID: "a-1",
		Name:    "Guest",
		Email:   "guest@example.com",
		Content: "is this still available?",
	})
	if err != nil {
		t.Fatalf("CreateInquiry() error = %v", err)
	}
	if resp.ConversationID != "c-new" {
		t.Errorf("ConversationID = %q, want c-new", resp.ConversationID)
	}
}

func TestPostMessageRequiresCredential(t *testing.T) {
	c := NewClient("http://unused.invalid", failingToken{}, time.Second)
	_, err := c.PostMessage(context.Background(), PostMessageRequest{ConversationID: "c-1", Content: "x"})
	if err == nil {
		t.Fatal("PostMessage() without valid credential should fail before the network call")
	}
}

func TestMarkRead(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"), time.Second)
	if err := c.MarkRead(context.Background(), "c-1", conversation.RoleClient); err != nil {
		t.Fatalf("MarkRead() error = %v", err)
	}
	if gotMethod != http.MethodPut || gotPath != "/api/v1/conversations/c-1/read" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
	if gotBody["role"] != "client" {
		t.Errorf("role = %q, want client", gotBody["role"])
	}
}

func TestDeleteConversation(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
	}))
	defer srv.Close()

	c := NewClient(srv.URL, staticToken("tok-1"), time.Second)
	if err := c.DeleteConversation(context.Background(), "c-1"); err != nil {
		t.Fatalf("DeleteConversation() error = %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/api/v1/conversations/c-1" {
		t.Errorf("got %s %s", gotMethod, gotPath)
	}
}
