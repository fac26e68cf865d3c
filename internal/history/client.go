// Package history persists conversations through the companion history
// service, a small REST API in front of the conversation database. It also
// converts stored rows back into chat turns so a new session can pick up
// where the last one left off.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/chat"
)

// ErrNotFound is returned for 404 responses, e.g. saving a message into a
// conversation that does not exist.
var ErrNotFound = errors.New("not found")

// Conversation is a stored conversation row.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	TopicID   string    `json:"topic_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is a stored message row. IsUser marks user turns; everything
// else is the assistant.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	Content        string    `json:"content"`
	IsUser         bool      `json:"is_user"`
	Timestamp      time.Time `json:"timestamp"`
}

// SearchResult is a message hit with its conversation title.
type SearchResult struct {
	Message
	Title string `json:"title"`
}

// Health is the history service's database health report.
type Health struct {
	Status   string   `json:"status"`
	Database string   `json:"database"`
	Tables   []string `json:"tables"`
}

// Config holds history client settings.
type Config struct {
	BaseURL string        `json:"base_url"`
	UserID  string        `json:"user_id"`
	Timeout time.Duration `json:"timeout"`
}

// Client is the REST client for the history service.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a history client for a single user.
func NewClient(logger zerolog.Logger, cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		userID:     cfg.UserID,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "history").Logger(),
	}
}

// UserID returns the user this client stores history for.
func (c *Client) UserID() string {
	return c.userID
}

// NewTopicID mints a topic identifier grouping related conversations.
func NewTopicID() string {
	return uuid.NewString()
}

// CreateConversation creates a conversation and returns its ID. An empty
// title defaults server-side to "New Conversation".
func (c *Client) CreateConversation(ctx context.Context, title, topicID string) (int64, error) {
	payload := map[string]any{"userId": c.userID}
	if title != "" {
		payload["title"] = title
	}
	if topicID != "" {
		payload["topicId"] = topicID
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/conversations", payload, &created); err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}

	c.logger.Info().Int64("conversationID", created.ID).Str("topicID", topicID).Msg("conversation created")
	return created.ID, nil
}

// Conversations lists the user's conversations, most recently updated
// first.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(c.userID), nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out, nil
}

// SaveMessage appends one turn to a conversation.
func (c *Client) SaveMessage(ctx context.Context, conversationID int64, content string, isUser bool) error {
	payload := map[string]any{
		"conversationId": conversationID,
		"userId":         c.userID,
		"content":        content,
		"isUser":         isUser,
	}
	if err := c.do(ctx, http.MethodPost, "/messages", payload, nil); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// Messages returns a conversation's messages, oldest first.
func (c *Client) Messages(ctx context.Context, conversationID int64) ([]Message, error) {
	var out []Message
	path := fmt.Sprintf("/messages/%d", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return out, nil
}

// DeleteConversation removes a conversation and its messages.
func (c *Client) DeleteConversation(ctx context.Context, conversationID int64) error {
	path := fmt.Sprintf("/conversations/%d", conversationID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// Search finds the user's messages matching term, newest first.
func (c *Client) Search(ctx context.Context, term string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("userId", c.userID)
	q.Set("term", term)

	var out []SearchResult
	if err := c.do(ctx, http.MethodGet, "/search?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return out, nil
}

// ConversationsByTopic lists conversations sharing a topic, oldest first.
func (c *Client) ConversationsByTopic(ctx context.Context, topicID string) ([]Conversation, error) {
	var out []Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/topic/"+url.PathEscape(topicID), nil, &out); err != nil {
		return nil, fmt.Errorf("list conversations by topic: %w", err)
	}
	return out, nil
}

// CheckHealth queries the service's database health endpoint.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.do(ctx, http.MethodGet, "/health/database", nil, &out); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("history API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// ToChatMessages converts stored rows into chat turns for reseeding a
// conversation.
func ToChatMessages(msgs []Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		role := "assistant"
		if m.IsUser {
			role = "user"
		}
		out = append(out, chat.Message{Role: role, Content: m.Content})
	}
	return out
}
