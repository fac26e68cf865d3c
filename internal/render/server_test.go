package render

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abubokkor/safaavatar/internal/bus"
)

func startServer(t *testing.T) *Server {
	s := NewServer(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, s.Start(ctx, "127.0.0.1:0"))
	t.Cleanup(s.Stop)
	return s
}

func dial(t *testing.T, s *Server) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, s *Server, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, s.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_BroadcastFrame(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	waitForClients(t, s, 1)

	s.BroadcastFrame(map[string]float32{"jawOpen": 0.42, "mouthSmile": 0.1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))

	assert.Equal(t, TypeFrame, frame.Type)
	assert.InDelta(t, 0.42, frame.Weights["jawOpen"], 1e-6)
}

func TestServer_BroadcastReachesAllClients(t *testing.T) {
	s := startServer(t)
	a := dial(t, s)
	b := dial(t, s)
	waitForClients(t, s, 2)

	s.PlayTemporaryClip("Waving", 3*time.Second, "StandingIdle")

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var cmd ClipCommand
		require.NoError(t, conn.ReadJSON(&cmd))
		assert.Equal(t, TypeTempClip, cmd.Type)
		assert.Equal(t, "Waving", cmd.Clip)
		assert.Equal(t, int64(3000), cmd.DurationMs)
		assert.Equal(t, "StandingIdle", cmd.Revert)
	}
}

func TestServer_DropsDisconnectedClient(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)

	// Broadcasting into an empty room is fine.
	s.PlayClip("StandingIdle")
}

func TestServer_SpeechStateMessage(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	waitForClients(t, s, 1)

	s.NotifySpeechState("playing", "session-1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg SpeechState
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeSpeechState, msg.Type)
	assert.Equal(t, "playing", msg.State)
	assert.Equal(t, "session-1", msg.SessionID)
}

// Renderers learn about the speak lifecycle through the bus binding, not
// through direct calls.
func TestServer_BindSpeechEvents(t *testing.T) {
	s := startServer(t)
	conn := dial(t, s)
	waitForClients(t, s, 1)

	events := bus.NewEventBus()
	s.BindSpeechEvents(events)

	events.PublishSync(bus.Event{
		Type: bus.EventTypeSpeechStarted,
		Data: map[string]any{"sessionID": "session-2"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg SpeechState
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, TypeSpeechState, msg.Type)
	assert.Equal(t, "started", msg.State)
	assert.Equal(t, "session-2", msg.SessionID)
}
