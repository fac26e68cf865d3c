package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		assert.Equal(t, "pcm_22050", r.URL.Query().Get("output_format"))
		w.Write([]byte{0x00, 0x01, 0x02, 0x03})
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(zerolog.Nop(), &ElevenLabsConfig{
		APIKey:       "test-key",
		Endpoint:     srv.URL,
		DefaultVoice: "voice-123",
		ModelID:      "eleven_monolingual_v1",
		Stability:    0.5,
		Similarity:   0.75,
	})
	require.True(t, p.IsAvailable())

	resp, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hello"})
	require.NoError(t, err)

	assert.Equal(t, "/text-to-speech/voice-123", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "pcm", resp.Format)
	assert.Equal(t, 22050, resp.SampleRate)
	assert.Len(t, resp.Audio, 4)
}

func TestElevenLabs_NoKey(t *testing.T) {
	t.Setenv("ELEVENLABS_API_KEY", "")
	p := NewElevenLabsProvider(zerolog.Nop(), &ElevenLabsConfig{})
	assert.False(t, p.IsAvailable())

	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hello"})
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestElevenLabs_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewElevenLabsProvider(zerolog.Nop(), &ElevenLabsConfig{APIKey: "k", Endpoint: srv.URL})
	_, err := p.Synthesize(context.Background(), &SynthesizeRequest{Text: "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

type stubProvider struct {
	name      string
	available bool
	err       error
	calls     int
}

func (s *stubProvider) Name() string      { return s.name }
func (s *stubProvider) IsAvailable() bool { return s.available }
func (s *stubProvider) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &SynthesizeResponse{Provider: s.name, Format: "wav"}, nil
}

func TestChain_FallsThroughOnFailure(t *testing.T) {
	primary := &stubProvider{name: "primary", available: true, err: errors.New("network down")}
	fallback := &stubProvider{name: "fallback", available: true}

	c := NewChain(zerolog.Nop(), primary, fallback)
	resp, err := c.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "fallback", resp.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestChain_SkipsUnavailable(t *testing.T) {
	offline := &stubProvider{name: "offline", available: false}
	online := &stubProvider{name: "online", available: true}

	c := NewChain(zerolog.Nop(), offline, online)
	resp, err := c.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "online", resp.Provider)
	assert.Equal(t, 0, offline.calls)
}

func TestChain_AllFail(t *testing.T) {
	broken := &stubProvider{name: "broken", available: true, err: errors.New("boom")}

	c := NewChain(zerolog.Nop(), broken)
	_, err := c.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoProvider)

	c = NewChain(zerolog.Nop())
	assert.False(t, c.IsAvailable())
	_, err = c.Synthesize(context.Background(), &SynthesizeRequest{Text: "hi"})
	assert.ErrorIs(t, err, ErrNoProvider)
}
