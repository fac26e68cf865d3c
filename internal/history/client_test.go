package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Client) {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /conversations", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["userId"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      42,
			"userId":  body["userId"],
			"title":   body["title"],
			"topicId": body["topicId"],
		})
	})

	mux.HandleFunc("GET /conversations/{userID}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-1", r.PathValue("userID"))
		json.NewEncoder(w).Encode([]Conversation{
			{ID: 42, UserID: "user-1", Title: "Latest", UpdatedAt: time.Now()},
			{ID: 41, UserID: "user-1", Title: "Older"},
		})
	})

	mux.HandleFunc("GET /conversations/topic/{topicID}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Conversation{
			{ID: 7, TopicID: r.PathValue("topicID")},
		})
	})

	mux.HandleFunc("DELETE /conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true})
	})

	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["conversationId"].(float64) != 42 {
			http.Error(w, `{"error":"Conversation not found"}`, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 1})
	})

	mux.HandleFunc("GET /messages/{conversationID}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Message{
			{ID: 1, ConversationID: 42, Content: "hello", IsUser: true},
			{ID: 2, ConversationID: 42, Content: "hi there!", IsUser: false},
		})
	})

	mux.HandleFunc("GET /search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "user-1", r.URL.Query().Get("userId"))
		assert.Equal(t, "weather", r.URL.Query().Get("term"))
		json.NewEncoder(w).Encode([]SearchResult{
			{Message: Message{ID: 9, Content: "sunny weather"}, Title: "Small talk"},
		})
	})

	mux.HandleFunc("GET /health/database", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Health{Status: "ok", Database: "companion", Tables: []string{"conversations", "messages"}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(zerolog.Nop(), Config{BaseURL: srv.URL, UserID: "user-1"})
	return srv, client
}

func TestClient_CreateConversation(t *testing.T) {
	_, c := newTestServer(t)

	id, err := c.CreateConversation(context.Background(), "First chat", NewTopicID())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestClient_Conversations(t *testing.T) {
	_, c := newTestServer(t)

	convs, err := c.Conversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "Latest", convs[0].Title)
}

func TestClient_SaveMessage(t *testing.T) {
	_, c := newTestServer(t)

	err := c.SaveMessage(context.Background(), 42, "hello", true)
	assert.NoError(t, err)

	err = c.SaveMessage(context.Background(), 999, "hello", true)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_MessagesAndReseed(t *testing.T) {
	_, c := newTestServer(t)

	msgs, err := c.Messages(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	turns := ToChatMessages(msgs)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestClient_Search(t *testing.T) {
	_, c := newTestServer(t)

	hits, err := c.Search(context.Background(), "weather")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Small talk", hits[0].Title)
}

func TestClient_ConversationsByTopic(t *testing.T) {
	_, c := newTestServer(t)

	topic := NewTopicID()
	convs, err := c.ConversationsByTopic(context.Background(), topic)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, topic, convs[0].TopicID)
}

func TestClient_DeleteConversation(t *testing.T) {
	_, c := newTestServer(t)
	assert.NoError(t, c.DeleteConversation(context.Background(), 42))
}

func TestClient_CheckHealth(t *testing.T) {
	_, c := newTestServer(t)

	h, err := c.CheckHealth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Contains(t, h.Tables, "messages")
}

func TestNewTopicID_Unique(t *testing.T) {
	assert.NotEqual(t, NewTopicID(), NewTopicID())
}
