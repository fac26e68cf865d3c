package audio

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BlockFunc receives one block of PCM samples as playback reaches it. The
// slice is only valid for the duration of the call.
type BlockFunc func(samples []float32)

// Player walks a Track in fixed-size blocks at real-time pace, invoking a
// sink for every block. At most one playback is active at a time: starting
// a new one tears the previous one down synchronously, so a sink is never
// fed by two playbacks at once.
type Player struct {
	log       zerolog.Logger
	blockSize int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPlayer creates a player emitting blocks of blockSize samples.
func NewPlayer(blockSize int, logger zerolog.Logger) *Player {
	return &Player{
		log:       logger.With().Str("component", "player").Logger(),
		blockSize: blockSize,
	}
}

// Start begins playing track, calling sink for each block. Any previous
// playback is stopped first. onDone is invoked exactly once when playback
// finishes or is stopped; it may be nil.
func (p *Player) Start(ctx context.Context, track *Track, sink BlockFunc, onDone func(interrupted bool)) {
	p.Stop()

	playCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	blockDur := time.Duration(float64(p.blockSize) / float64(track.SampleRate) * float64(time.Second))
	p.log.Debug().
		Int("samples", len(track.Samples)).
		Int("sample_rate", track.SampleRate).
		Dur("block", blockDur).
		Dur("duration", track.Duration()).
		Msg("playback starting")

	go p.run(playCtx, track, blockDur, sink, onDone, done)
}

func (p *Player) run(ctx context.Context, track *Track, blockDur time.Duration, sink BlockFunc, onDone func(bool), done chan struct{}) {
	interrupted := false
	defer func() {
		close(done)
		if onDone != nil {
			onDone(interrupted)
		}
	}()

	ticker := time.NewTicker(blockDur)
	defer ticker.Stop()

	for offset := 0; offset < len(track.Samples); offset += p.blockSize {
		end := offset + p.blockSize
		if end > len(track.Samples) {
			end = len(track.Samples)
		}
		sink(track.Samples[offset:end])

		select {
		case <-ctx.Done():
			interrupted = true
			p.log.Debug().Msg("playback interrupted")
			return
		case <-ticker.C:
		}
	}
	p.log.Debug().Msg("playback finished")
}

// Stop cancels any active playback and waits for its goroutine to exit.
// Safe to call when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Playing reports whether a playback goroutine is currently active.
func (p *Player) Playing() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}
