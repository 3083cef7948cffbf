// Package rest implements the client for the marketplace conversation API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nestiq/chatsync/internal/conversation"
)

// ErrNotFound is returned when no conversation exists between the given
// participants. Callers treat it as "create one", not as a failure.
var ErrNotFound = errors.New("conversation not found")

// TokenSource supplies the bearer credential for authenticated calls.
type TokenSource interface {
	Bearer() (string, error)
}

// Client talks to the marketplace conversation endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      TokenSource
}

// NewClient creates a REST client. creds may be nil for guest-only use;
// every call except CreateInquiry then fails its auth precondition.
func NewClient(baseURL string, creds TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		creds:      creds,
	}
}

// CreateInquiryRequest creates the first message of a (possibly new)
// conversation. Name/email/phone identify a guest sender; client_id
// identifies an authenticated one.
type CreateInquiryRequest struct {
	ClientID   string `json:"client_id,omitempty"`
	AgentID    string `json:"agent_id"`
	PropertyID string `json:"property_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Content    string `json:"message_content"`
}

// PostMessageRequest appends a message to an existing conversation.
type PostMessageRequest struct {
	ConversationID string `json:"conversation_id"`
	PropertyID     string `json:"property_id,omitempty"`
	Content        string `json:"message_content"`
	RecipientID    string `json:"recipient_id"`
	MessageType    string `json:"message_type"`
}

// SendResponse is the useful part of a create/post response: the
// conversation id, present when the call resolved or created one.
type SendResponse struct {
	ConversationID string `json:"conversation_id"`
}

// GetConversation fetches the grouped conversation between a client and an
// agent. A 404 maps to ErrNotFound.
func (c *Client) GetConversation(ctx context.Context, clientID, agentID string) (*conversation.Payload, error) {
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("agent_id", agentID)

	var wrapper struct {
		Conversation *conversation.Payload `json:"conversation"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/conversations?"+q.Encode(), nil, &wrapper, true)
	if err != nil {
		return nil, err
	}
	return wrapper.Conversation, nil
}

// CreateInquiry posts a first inquiry. This is the only call that may run
// without a bearer credential (guest flow).
func (c *Client) CreateInquiry(ctx context.Context, req CreateInquiryRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/inquiries", req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PostMessage appends a message to an existing conversation.
func (c *Client) PostMessage(ctx context.Context, req PostMessageRequest) (*SendResponse, error) {
	var resp SendResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/messages", req, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MarkRead tells the server this side has read the peer's messages.
func (c *Client) MarkRead(ctx context.Context, conversationID string, role conversation.Role) error {
	body := map[string]string{"role": string(role)}
	path := "/api/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	return c.do(ctx, http.MethodPut, path, body, nil, true)
}

// DeleteConversation removes a conversation.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	path := "/api/v1/conversations/" + url.PathEscape(conversationID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, authRequired bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req, authRequired); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%s %s: %s", method, path, serverMessage(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// authorize attaches the bearer credential. Calls with authRequired=false
// (guest inquiry creation) proceed without one.
func (c *Client) authorize(req *http.Request, required bool) error {
	if c.creds == nil {
		if required {
			return errors.New("bearer credential required")
		}
		return nil
	}
	token, err := c.creds.Bearer()
	if err != nil {
		if required {
			return fmt.Errorf("bearer credential: %w", err)
		}
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// serverMessage extracts the backend's error message, falling back to the
// HTTP status text.
func serverMessage(resp *http.Response) string {
	var apiErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(data, &apiErr) == nil {
		if apiErr.Error != "" {
			return apiErr.Error
		}
		if apiErr.Message != "" {
			return apiErr.Message
		}
	}
	return resp.Status
}
