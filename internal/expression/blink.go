package expression

import (
	"math/rand"
	"sync"
	"time"

	"github.com/abubokkor/safaavatar/internal/config"
	"github.com/abubokkor/safaavatar/internal/morph"
)

// WinkSide selects which eye winks.
type WinkSide int

const (
	WinkLeft WinkSide = iota
	WinkRight
)

// Blinker drives the eyelid morph targets and the idle smile jitter.
// It is orthogonal to the expression engine and applied after it, so an
// active emotion never overrides a blink.
//
// Triggers are scheduled as next-event times sampled up front (uniform for
// blinks, exponential for winks and smile jitter) instead of per-frame
// probability rolls, so the behavior is frame-rate independent and
// reproducible with a seeded RNG.
type Blinker struct {
	mu sync.Mutex

	cfg config.ExpressionConfig
	rng *rand.Rand

	clock time.Duration

	nextBlink  time.Duration
	blinkUntil time.Duration

	nextWink      time.Duration
	winkUntil     time.Duration
	winkSide      WinkSide
	winkMeanGap   time.Duration
	speaking      bool

	nextSmile   time.Duration
	smileUntil  time.Duration
	smileTarget float32
	smileWeight float32
	smileMean   time.Duration
}

// NewBlinker creates a blink controller with the given RNG seed.
func NewBlinker(cfg config.ExpressionConfig, seed int64) *Blinker {
	b := &Blinker{
		cfg:         cfg,
		rng:         rand.New(rand.NewSource(seed)),
		winkMeanGap: 8 * time.Second,
		smileMean:   20 * time.Second,
	}
	b.nextBlink = b.uniformGap()
	b.nextWink = b.exponentialGap(b.winkMeanGap)
	b.nextSmile = b.exponentialGap(b.smileMean)
	return b
}

// SetSpeaking gates the spontaneous winks, which only fire mid-speech.
func (b *Blinker) SetSpeaking(speaking bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.speaking = speaking
}

// TriggerWink winks one eye for the configured duration.
func (b *Blinker) TriggerWink(side WinkSide) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.winkSide = side
	b.winkUntil = b.clock + b.winkDuration()
}

// Update advances the internal clock by dt and writes eyelid and jitter
// weights into out.
func (b *Blinker) Update(dt time.Duration, out *morph.Weights) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clock += dt

	if b.clock >= b.nextBlink {
		b.blinkUntil = b.clock + b.blinkDur()
		b.nextBlink = b.clock + b.blinkDur() + b.uniformGap()
	}

	if b.clock >= b.nextWink {
		if b.speaking {
			if b.rng.Intn(2) == 0 {
				b.winkSide = WinkLeft
			} else {
				b.winkSide = WinkRight
			}
			b.winkUntil = b.clock + b.winkDuration()
		}
		b.nextWink = b.clock + b.exponentialGap(b.winkMeanGap)
	}

	blinking := b.clock < b.blinkUntil
	winking := b.clock < b.winkUntil

	left := float32(0)
	right := float32(0)
	if blinking {
		left, right = 1, 1
	}
	if winking {
		if b.winkSide == WinkLeft {
			left = 1
		} else {
			right = 1
		}
	}
	out.Accumulate(morph.EyeBlinkLeft, left)
	out.Accumulate(morph.EyeBlinkRight, right)

	b.updateSmileJitter(dt, out)
}

func (b *Blinker) updateSmileJitter(dt time.Duration, out *morph.Weights) {
	if !b.cfg.IdleJitter {
		return
	}

	if b.clock >= b.nextSmile {
		b.smileTarget = b.rng.Float32() * 0.3
		b.smileUntil = b.clock + 2*time.Second
		b.nextSmile = b.clock + b.exponentialGap(b.smileMean)
	}

	target := float32(0)
	if b.clock < b.smileUntil {
		target = b.smileTarget
	}
	// Quick ease toward the jitter target
	b.smileWeight += (target - b.smileWeight) * blendFraction(dt, 150*time.Millisecond)
	if b.smileWeight > 0.001 {
		out.Accumulate(morph.MouthSmile, b.smileWeight)
	}
}

func (b *Blinker) uniformGap() time.Duration {
	min := b.cfg.BlinkMinGap
	max := b.cfg.BlinkMaxGap
	if min <= 0 {
		min = time.Second
	}
	if max <= min {
		max = min + 4*time.Second
	}
	return min + time.Duration(b.rng.Int63n(int64(max-min)))
}

func (b *Blinker) exponentialGap(mean time.Duration) time.Duration {
	return time.Duration(b.rng.ExpFloat64() * float64(mean))
}

func (b *Blinker) blinkDur() time.Duration {
	if b.cfg.BlinkDuration > 0 {
		return b.cfg.BlinkDuration
	}
	return 200 * time.Millisecond
}

func (b *Blinker) winkDuration() time.Duration {
	if b.cfg.WinkDuration > 0 {
		return b.cfg.WinkDuration
	}
	return 300 * time.Millisecond
}
