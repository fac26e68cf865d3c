// Package speech coordinates the avatar's speaking pipeline: synthesis,
// playback into the analyzer, and session lifecycle. Exactly one session
// owns the mouth at any time; starting a new one tears the previous one
// down synchronously before any new audio flows.
package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/audio"
	"github.com/abubokkor/safaavatar/internal/bus"
	"github.com/abubokkor/safaavatar/internal/dsp"
	"github.com/abubokkor/safaavatar/internal/tts"
)

// State is the coordinator's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSynthesizing
	StatePlaying
	StateStopping
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSynthesizing:
		return "synthesizing"
	case StatePlaying:
		return "playing"
	case StateStopping:
		return "stopping"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Session identifies one utterance from synthesis through playback end.
type Session struct {
	ID        string
	Text      string
	StartedAt time.Time
}

// Options tunes the coordinator.
type Options struct {
	// SettleDelay is the pause between tearing down an interrupted
	// session and starting new audio, letting the mouth close first.
	SettleDelay time.Duration
	// CalibrationTime is how much leading audio recalibrates the
	// analyzer's volume bounds.
	CalibrationTime time.Duration
	// BlockSize mirrors the player's block size, for calibration math.
	BlockSize int
}

// DefaultOptions returns the standard coordinator tuning.
func DefaultOptions() Options {
	return Options{
		SettleDelay:     250 * time.Millisecond,
		CalibrationTime: 2 * time.Second,
		BlockSize:       4096,
	}
}

// Coordinator runs the speak pipeline.
type Coordinator struct {
	logger   zerolog.Logger
	events   *bus.EventBus
	provider tts.Provider
	analyzer *dsp.Analyzer
	player   *audio.Player
	opts     Options

	// speakMu serializes StartSpeaking calls so a session mid-synthesis
	// cannot be raced by a newer one.
	speakMu sync.Mutex

	mu      sync.Mutex
	state   State
	session *Session
	cancel  context.CancelFunc
}

// NewCoordinator wires the speak pipeline together.
func NewCoordinator(logger zerolog.Logger, events *bus.EventBus, provider tts.Provider, analyzer *dsp.Analyzer, player *audio.Player, opts Options) *Coordinator {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 250 * time.Millisecond
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 4096
	}
	return &Coordinator{
		logger:   logger.With().Str("component", "speech").Logger(),
		events:   events,
		provider: provider,
		analyzer: analyzer,
		player:   player,
		opts:     opts,
		state:    StateIdle,
	}
}

// State returns the coordinator's current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Speaking reports whether a session is currently playing.
func (c *Coordinator) Speaking() bool {
	return c.State() == StatePlaying
}

// CurrentSession returns the active session, or nil.
func (c *Coordinator) CurrentSession() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// StartSpeaking synthesizes text and plays it into the analyzer. Any
// session still playing is stopped synchronously first; the new session ID
// is returned once playback has started.
func (c *Coordinator) StartSpeaking(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", tts.ErrEmptyText
	}

	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	interrupted := c.stopCurrent()
	if interrupted {
		// Give the envelope a beat to close the mouth before new audio.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.opts.SettleDelay):
		}
	}

	session := &Session{
		ID:        uuid.NewString(),
		Text:      text,
		StartedAt: time.Now(),
	}

	// The session context lets StopSpeaking reach a synthesis call still
	// in flight; stopCurrent cancels it and we abandon the session here.
	sctx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()

	c.mu.Lock()
	c.state = StateSynthesizing
	c.session = session
	c.cancel = cancelSession
	c.mu.Unlock()
	c.publish(bus.EventTypeSpeechSynthesizing, session, nil)
	c.logger.Info().Str("sessionID", session.ID).Int("textLen", len(text)).Msg("synthesizing")

	resp, err := c.provider.Synthesize(sctx, &tts.SynthesizeRequest{Text: text})
	if sctx.Err() != nil {
		c.abandon(session)
		return "", sctx.Err()
	}
	if err != nil {
		c.fail(session, fmt.Errorf("synthesis: %w", err))
		return "", err
	}

	track, err := decodeTrack(resp)
	if err != nil {
		c.fail(session, fmt.Errorf("decode %s audio: %w", resp.Format, err))
		return "", err
	}

	// Recalibrate volume bounds over the leading blocks of this voice.
	if c.opts.CalibrationTime > 0 {
		blocks := int(c.opts.CalibrationTime.Seconds() * float64(track.SampleRate) / float64(c.opts.BlockSize))
		if blocks > 0 {
			c.analyzer.StartCalibration(blocks)
		}
	}

	c.setState(StatePlaying, session)
	c.publish(bus.EventTypeSpeechStarted, session, map[string]any{
		"provider": resp.Provider,
		"duration": track.Duration(),
	})
	c.logger.Info().
		Str("sessionID", session.ID).
		Str("provider", resp.Provider).
		Dur("duration", track.Duration()).
		Msg("speaking")

	c.player.Start(ctx, track, func(samples []float32) {
		c.analyzer.Process(samples)
	}, func(wasInterrupted bool) {
		c.finish(session, wasInterrupted)
	})

	return session.ID, nil
}

// StopSpeaking stops any active session and resets the mouth.
func (c *Coordinator) StopSpeaking() {
	if c.stopCurrent() {
		c.logger.Info().Msg("speech stopped")
	}
}

// stopCurrent tears down the active session, if any. Reports whether a
// session was interrupted.
func (c *Coordinator) stopCurrent() bool {
	c.mu.Lock()
	session := c.session
	cancel := c.cancel
	active := session != nil && (c.state == StatePlaying || c.state == StateSynthesizing)
	if active {
		c.state = StateStopping
	}
	c.mu.Unlock()

	if !active {
		return false
	}

	c.publish(bus.EventTypeSpeechStopping, session, nil)
	if cancel != nil {
		// Reaches a synthesis call still in flight; StartSpeaking notices
		// and abandons the session instead of playing.
		cancel()
	}
	c.player.Stop()

	// player.Stop waits for the playback goroutine, whose onDone already
	// moved us to Idle via finish. Reset drops the envelope so the mouth
	// closes instead of holding the last frame.
	c.analyzer.Reset()
	return true
}

// finish is the player's onDone callback.
func (c *Coordinator) finish(session *Session, interrupted bool) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != session.ID {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.session = nil
	c.cancel = nil
	c.mu.Unlock()

	c.analyzer.Reset()
	c.publish(bus.EventTypeSpeechEnded, session, map[string]any{"interrupted": interrupted})
	c.logger.Info().Str("sessionID", session.ID).Bool("interrupted", interrupted).Msg("speech ended")
}

// abandon drops a session whose synthesis was cancelled by a stop before
// any audio played.
func (c *Coordinator) abandon(session *Session) {
	c.mu.Lock()
	if c.session == nil || c.session.ID != session.ID {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.session = nil
	c.cancel = nil
	c.mu.Unlock()

	c.publish(bus.EventTypeSpeechEnded, session, map[string]any{"interrupted": true})
	c.logger.Info().Str("sessionID", session.ID).Msg("speech cancelled during synthesis")
}

func (c *Coordinator) fail(session *Session, err error) {
	c.mu.Lock()
	c.state = StateError
	c.session = nil
	c.cancel = nil
	c.mu.Unlock()

	c.publish(bus.EventTypeSpeechError, session, map[string]any{"error": err.Error()})
	c.logger.Error().Err(err).Str("sessionID", session.ID).Msg("speech failed")

	// Error is observable but not sticky.
	c.mu.Lock()
	if c.state == StateError {
		c.state = StateIdle
	}
	c.mu.Unlock()
}

func (c *Coordinator) setState(state State, session *Session) {
	c.mu.Lock()
	c.state = state
	c.session = session
	c.mu.Unlock()
}

func (c *Coordinator) publish(eventType bus.EventType, session *Session, extra map[string]any) {
	if c.events == nil {
		return
	}
	data := map[string]any{"sessionID": session.ID}
	for k, v := range extra {
		data[k] = v
	}
	c.events.Publish(bus.Event{Type: eventType, Data: data})
}

func decodeTrack(resp *tts.SynthesizeResponse) (*audio.Track, error) {
	switch resp.Format {
	case "wav":
		return audio.DecodeWAV(resp.Audio)
	case "pcm":
		return audio.DecodePCM16(resp.Audio, resp.SampleRate)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", resp.Format)
	}
}
