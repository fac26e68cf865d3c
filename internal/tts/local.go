// Local command-line TTS fallback. Uses espeak-ng (or any compatible
// binary) to render speech to a temporary WAV file, so the avatar still
// talks when no API key is configured or the network is down.
package tts

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// LocalProvider implements TTS via a local synthesis command.
type LocalProvider struct {
	logger zerolog.Logger
	config *LocalConfig
}

// LocalConfig holds local TTS configuration.
type LocalConfig struct {
	Command string `json:"command"` // espeak-ng by default
	Voice   string `json:"voice"`   // e.g. "en", "en+f3"
	Rate    int    `json:"rate"`    // words per minute
}

// DefaultLocalConfig returns sensible defaults.
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Command: "espeak-ng",
		Voice:   "en",
		Rate:    160,
	}
}

// NewLocalProvider creates a local command TTS provider.
func NewLocalProvider(logger zerolog.Logger, config *LocalConfig) *LocalProvider {
	if config == nil {
		config = DefaultLocalConfig()
	}
	return &LocalProvider{
		logger: logger.With().Str("provider", "local-tts").Logger(),
		config: config,
	}
}

func (p *LocalProvider) Name() string {
	return "local"
}

// IsAvailable reports whether the synthesis binary is on PATH.
func (p *LocalProvider) IsAvailable() bool {
	_, err := exec.LookPath(p.config.Command)
	return err == nil
}

func (p *LocalProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("%w: %s not found on PATH", ErrProviderUnavailable, p.config.Command)
	}
	if req.Text == "" {
		return nil, ErrEmptyText
	}

	startTime := time.Now()

	voice := req.VoiceID
	if voice == "" {
		voice = p.config.Voice
	}

	tmpFile, err := os.CreateTemp("", "tts-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	args := []string{
		"-v", voice,
		"-s", strconv.Itoa(p.config.Rate),
		"-w", tmpPath,
		req.Text,
	}

	p.logger.Debug().
		Str("voice", voice).
		Int("textLen", len(req.Text)).
		Msg("Synthesizing with local TTS")

	cmd := exec.CommandContext(ctx, p.config.Command, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("output", string(output)).
			Msg("Local TTS failed")
		return nil, fmt.Errorf("%s failed: %w", p.config.Command, err)
	}

	audioData, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}

	processingTime := time.Since(startTime)

	p.logger.Info().
		Str("voice", voice).
		Int("audioBytes", len(audioData)).
		Dur("processingTime", processingTime).
		Msg("Local TTS synthesis complete")

	return &SynthesizeResponse{
		Audio:          audioData,
		Format:         "wav",
		ProcessingTime: processingTime,
		VoiceID:        voice,
		Provider:       p.Name(),
	}, nil
}
