package audio

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestDecodeWAV_RoundTrip(t *testing.T) {
	samples := sine(440, 22050, 22050)
	data, err := EncodeWAV(samples, 22050)
	require.NoError(t, err)

	track, err := DecodeWAV(data)
	require.NoError(t, err)

	assert.Equal(t, 22050, track.SampleRate)
	assert.Equal(t, len(samples), len(track.Samples))
	assert.InDelta(t, time.Second, track.Duration(), float64(time.Millisecond))

	// 16-bit quantization loses precision but not shape.
	for i := 0; i < len(samples); i += 1000 {
		assert.InDelta(t, samples[i], track.Samples[i], 0.01)
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	_, err := DecodeWAV(nil)
	assert.Error(t, err)

	_, err = DecodeWAV([]byte("not a wav file at all"))
	assert.Error(t, err)
}

func TestDecodePCM16(t *testing.T) {
	// Two samples: 0x4000 (+0.5) and 0xC000 (-0.5), little-endian.
	data := []byte{0x00, 0x40, 0x00, 0xC0}
	track, err := DecodePCM16(data, 22050)
	require.NoError(t, err)
	require.Len(t, track.Samples, 2)
	assert.InDelta(t, 0.5, track.Samples[0], 1e-4)
	assert.InDelta(t, -0.5, track.Samples[1], 1e-4)
	assert.Equal(t, 22050, track.SampleRate)

	_, err = DecodePCM16([]byte{0x00}, 22050)
	assert.Error(t, err)
	_, err = DecodePCM16(data, 0)
	assert.Error(t, err)
}

func TestDownmix(t *testing.T) {
	stereo := []float32{1, 0, 0.5, 0.5, -1, 1}
	mono := downmix(stereo, 2)
	require.Len(t, mono, 3)
	assert.InDelta(t, 0.5, mono[0], 1e-6)
	assert.InDelta(t, 0.5, mono[1], 1e-6)
	assert.InDelta(t, 0.0, mono[2], 1e-6)
}

func TestPlayer_DeliversAllBlocks(t *testing.T) {
	// 10 blocks of 441 samples at 44100 Hz: 10ms per block.
	track := &Track{Samples: sine(200, 44100, 4410), SampleRate: 44100}
	p := NewPlayer(441, zerolog.Nop())

	var got atomic.Int32
	done := make(chan struct{})
	p.Start(context.Background(), track, func(samples []float32) {
		got.Add(int32(len(samples)))
	}, func(interrupted bool) {
		assert.False(t, interrupted)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("playback did not finish")
	}
	assert.Equal(t, int32(4410), got.Load())
	assert.False(t, p.Playing())
}

func TestPlayer_StopInterrupts(t *testing.T) {
	track := &Track{Samples: make([]float32, 441000), SampleRate: 44100}
	p := NewPlayer(441, zerolog.Nop())

	var interrupted atomic.Bool
	done := make(chan struct{})
	p.Start(context.Background(), track, func([]float32) {}, func(i bool) {
		interrupted.Store(i)
		close(done)
	})

	time.Sleep(30 * time.Millisecond)
	p.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("onDone not called after Stop")
	}
	assert.True(t, interrupted.Load())
	assert.False(t, p.Playing())
}

// Starting a new playback while one is active must leave exactly one
// goroutine feeding the sink.
func TestPlayer_RestartLeavesSingleWriter(t *testing.T) {
	long := &Track{Samples: make([]float32, 441000), SampleRate: 44100}
	p := NewPlayer(441, zerolog.Nop())

	var mu sync.Mutex
	writers := map[int]int{}
	sinkFor := func(id int) BlockFunc {
		return func([]float32) {
			mu.Lock()
			writers[id]++
			mu.Unlock()
		}
	}

	p.Start(context.Background(), long, sinkFor(1), nil)
	time.Sleep(25 * time.Millisecond)
	p.Start(context.Background(), long, sinkFor(2), nil)

	mu.Lock()
	firstCount := writers[1]
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, firstCount, writers[1], "stopped playback kept writing")
	assert.Greater(t, writers[2], 0)
}
