// Package viseme classifies frequency-band energies into coarse mouth
// shapes. This is a spectral heuristic, not phoneme recognition: it picks
// a vowel/consonant family from band ratios and crossfades between the
// matching morph targets.
package viseme

import (
	"sync"
	"time"

	"github.com/abubokkor/safaavatar/internal/config"
	"github.com/abubokkor/safaavatar/internal/dsp"
	"github.com/abubokkor/safaavatar/internal/morph"
)

// Class is a coarse viseme family.
type Class int

const (
	ClassNeutral Class = iota
	ClassFrontVowel  // bright spectrum, spread lips (ee/eh)
	ClassBackVowel   // bass heavy, rounded lips (oh/oo)
	ClassFricative   // strong presence band (f/s/sh)
	ClassOpenVowel   // default speaking shape (ah)
)

func (c Class) String() string {
	switch c {
	case ClassNeutral:
		return "neutral"
	case ClassFrontVowel:
		return "front-vowel"
	case ClassBackVowel:
		return "back-vowel"
	case ClassFricative:
		return "fricative"
	case ClassOpenVowel:
		return "open-vowel"
	}
	return "unknown"
}

// classTargets maps each class to its primary morph target.
var classTargets = map[Class]morph.Index{
	ClassFrontVowel: morph.VisemeE,
	ClassBackVowel:  morph.VisemeO,
	ClassFricative:  morph.VisemeFF,
	ClassOpenVowel:  morph.VisemeAA,
}

const ratioEpsilon = 0.01

// Classify picks a viseme class from band energies. Decision order is
// significant: the floor check wins over everything, then brightness,
// fullness, and the absolute presence threshold.
func Classify(bands dsp.BandEnergies, volume, minVolume float64, cfg config.LipSyncConfig) Class {
	if volume < minVolume {
		return ClassNeutral
	}

	brightness := bands.Presence / (bands.LowMid + ratioEpsilon)
	fullness := bands.Bass / (bands.HighMid + ratioEpsilon)

	switch {
	case brightness > cfg.BrightnessThreshold:
		return ClassFrontVowel
	case fullness > cfg.FullnessThreshold:
		return ClassBackVowel
	case bands.Presence > cfg.FricativeThreshold:
		return ClassFricative
	default:
		return ClassOpenVowel
	}
}

// Controller crossfades morph targets as the classified viseme changes.
// Attack is faster than release so boundaries look natural without
// chattering on noisy class flips.
type Controller struct {
	mu sync.Mutex

	cfg config.LipSyncConfig

	current       Class
	currentWeight float32
	prev          Class
	prevWeight    float32
}

// NewController creates a crossfade controller.
func NewController(cfg config.LipSyncConfig) *Controller {
	return &Controller{cfg: cfg, current: ClassNeutral}
}

// Observe records the latest classification. A class change demotes the
// active target into release and starts attacking the new one.
func (c *Controller) Observe(class Class) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if class == c.current {
		return
	}
	c.prev = c.current
	c.prevWeight = c.currentWeight
	c.current = class
	c.currentWeight = 0
}

// Current returns the active class.
func (c *Controller) Current() Class {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Update advances the crossfade by dt and blends the result into weights,
// scaled by envelope (the mouth-open drive from the volume analysis).
func (c *Controller) Update(dt time.Duration, weights *morph.Weights, envelope float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attack := c.cfg.AttackTime
	if attack <= 0 {
		attack = 100 * time.Millisecond
	}
	release := c.cfg.ReleaseTime
	if release <= 0 {
		release = 200 * time.Millisecond
	}

	c.currentWeight = morph.Clamp(c.currentWeight+float32(dt)/float32(attack), 0, 1)
	c.prevWeight = morph.Clamp(c.prevWeight-float32(dt)/float32(release), 0, 1)

	if idx, ok := classTargets[c.current]; ok && c.currentWeight > 0 {
		weights.Accumulate(idx, c.currentWeight*envelope)
	}
	if idx, ok := classTargets[c.prev]; ok && c.prevWeight > 0 && c.prev != c.current {
		weights.Accumulate(idx, c.prevWeight*envelope)
	}
}

// Reset snaps both fades to zero and returns to neutral.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ClassNeutral
	c.prev = ClassNeutral
	c.currentWeight = 0
	c.prevWeight = 0
}
