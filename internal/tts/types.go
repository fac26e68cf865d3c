// Package tts provides text-to-speech synthesis for the avatar's voice.
package tts

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrProviderUnavailable = errors.New("TTS provider unavailable")
	ErrNoProvider          = errors.New("no TTS provider available")
	ErrEmptyText           = errors.New("empty text")
)

// Provider is the interface all TTS providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "elevenlabs", "local").
	Name() string

	// IsAvailable reports whether the provider can synthesize right now
	// (API key present, binary on PATH, ...).
	IsAvailable() bool

	// Synthesize converts text to audio.
	Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error)
}

// SynthesizeRequest represents a synthesis request.
type SynthesizeRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// SynthesizeResponse represents a synthesis result. Format tells the
// caller how to decode Audio: "wav" is a RIFF container, "pcm" is raw
// 16-bit little-endian mono at SampleRate.
type SynthesizeResponse struct {
	Audio          []byte        `json:"audio"`
	Format         string        `json:"format"`
	SampleRate     int           `json:"sample_rate"`
	ProcessingTime time.Duration `json:"processing_time"`
	VoiceID        string        `json:"voice_id"`
	Provider       string        `json:"provider"`
}
