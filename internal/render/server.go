// Package render pushes morph-weight frames and animation commands to
// connected renderer clients over WebSocket. The avatar process is the
// single writer; renderers are dumb displays that apply whatever weights
// arrive.
package render

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/bus"
)

// Message types sent to renderers.
const (
	TypeFrame       = "frame"
	TypePlayClip    = "playClip"
	TypeTempClip    = "playTemporaryClip"
	TypeSpeechState = "speechState"
)

// Frame carries one tick's worth of non-zero morph weights.
type Frame struct {
	Type    string             `json:"type"`
	Weights map[string]float32 `json:"weights"`
}

// ClipCommand starts an animation clip. For temporary clips DurationMs is
// how long the clip plays before the renderer reverts to Revert.
type ClipCommand struct {
	Type       string `json:"type"`
	Clip       string `json:"clip"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Revert     string `json:"revert,omitempty"`
}

// SpeechState notifies renderers of coordinator state changes.
type SpeechState struct {
	Type      string `json:"type"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
}

// Server accepts renderer connections and broadcasts to all of them.
type Server struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	listener net.Listener
	httpSrv  *http.Server
}

// NewServer creates a renderer broadcast server.
func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		logger: logger.With().Str("component", "render").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Start listens on addr and serves /ws until ctx is cancelled. It returns
// once the listener is bound, so Addr is valid immediately after.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)

	srv := &http.Server{Handler: mux}

	s.mu.Lock()
	s.listener = ln
	s.httpSrv = srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("render server error")
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("render server listening")
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes all client connections and the listener.
func (s *Server) Stop() {
	s.mu.Lock()
	srv := s.httpSrv
	for conn := range s.clients {
		conn.Close()
	}
	s.clients = make(map[*websocket.Conn]struct{})
	s.httpSrv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

// ClientCount reports the number of connected renderers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.clients[conn] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	s.logger.Info().Str("remote", conn.RemoteAddr().String()).Int("clients", count).Msg("renderer connected")

	// Drain incoming messages so pings and close frames are processed;
	// renderers have nothing to say to us.
	go func() {
		defer s.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	_, present := s.clients[conn]
	delete(s.clients, conn)
	s.mu.Unlock()

	conn.Close()
	if present {
		s.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("renderer disconnected")
	}
}

// BroadcastFrame sends the tick's morph weights to all renderers.
func (s *Server) BroadcastFrame(weights map[string]float32) {
	s.broadcast(Frame{Type: TypeFrame, Weights: weights})
}

// PlayClip switches renderers to a looping clip.
func (s *Server) PlayClip(clip string) {
	s.broadcast(ClipCommand{Type: TypePlayClip, Clip: clip})
}

// PlayTemporaryClip plays clip for the given duration, then reverts.
func (s *Server) PlayTemporaryClip(clip string, duration time.Duration, revert string) {
	s.broadcast(ClipCommand{
		Type:       TypeTempClip,
		Clip:       clip,
		DurationMs: duration.Milliseconds(),
		Revert:     revert,
	})
}

// NotifySpeechState reports a coordinator state change.
func (s *Server) NotifySpeechState(state, sessionID string) {
	s.broadcast(SpeechState{Type: TypeSpeechState, State: state, SessionID: sessionID})
}

// BindSpeechEvents mirrors speak lifecycle events from the bus to
// connected renderers as speechState messages, so they can gate their own
// behavior (subtitles, talk posture) on it.
func (s *Server) BindSpeechEvents(events *bus.EventBus) {
	events.SubscribeMultiple([]bus.EventType{
		bus.EventTypeSpeechSynthesizing,
		bus.EventTypeSpeechStarted,
		bus.EventTypeSpeechStopping,
		bus.EventTypeSpeechEnded,
		bus.EventTypeSpeechError,
	}, func(e bus.Event) {
		state := strings.TrimPrefix(string(e.Type), "speech.")
		sessionID, _ := e.Data["sessionID"].(string)
		s.NotifySpeechState(state, sessionID)
	})
}

func (s *Server) broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal broadcast")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Warn().Err(err).Msg("write failed, dropping renderer")
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
