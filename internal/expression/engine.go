package expression

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/abubokkor/safaavatar/internal/config"
	"github.com/abubokkor/safaavatar/internal/morph"
)

// Engine blends the active emotion into the face. It keeps its own
// persistent weight layer; per tick every union target ramps toward the
// active template's value (zero for targets the template omits), using
// time-constant smoothing so behavior is stable across frame rates.
type Engine struct {
	mu sync.Mutex

	cfg    config.ExpressionConfig
	logger zerolog.Logger

	current   Name
	weights   morph.Weights
	setupMode bool
}

// NewEngine creates an expression engine starting at the default face.
func NewEngine(cfg config.ExpressionConfig, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		logger:  logger.With().Str("component", "expression").Logger(),
		current: Default,
	}
}

// SetExpression transitions to the named emotion. Unknown names fall back
// to default. The transition itself is gradual: targets from prior
// expressions decay out over the following ticks.
func (e *Engine) SetExpression(name Name) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !Known(name) {
		e.logger.Warn().Str("expression", string(name)).Msg("unknown expression, using default")
		name = Default
	}
	if name == e.current {
		return
	}

	e.logger.Debug().
		Str("from", string(e.current)).
		Str("to", string(name)).
		Msg("expression transition")
	e.current = name
}

// Current returns the active expression name.
func (e *Engine) Current() Name {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// SetSetupMode suspends blending so morph targets can be posed manually.
func (e *Engine) SetSetupMode(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setupMode = enabled
}

// Update advances the blend by dt and merges the expression layer into out.
func (e *Engine) Update(dt time.Duration, out *morph.Weights) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.setupMode {
		template := Templates[e.current]

		attack := blendFraction(dt, e.cfg.BlendTau)
		release := blendFraction(dt, e.cfg.ReleaseTau)

		for _, idx := range TemplateUnion() {
			target, inTemplate := template[idx]
			if inTemplate {
				e.weights.Blend(idx, target, attack)
			} else {
				e.weights.Blend(idx, 0, release)
			}
		}
	}

	for _, idx := range TemplateUnion() {
		if w := e.weights.Get(idx); w > 0 {
			out.Accumulate(idx, w)
		}
	}
}

// Snapshot returns a copy of the engine's current layer, for tests and
// state inspection.
func (e *Engine) Snapshot() morph.Weights {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.weights
}

// blendFraction converts a time constant into this tick's lerp fraction:
// weight += (target - weight) * (1 - exp(-dt/tau)).
func blendFraction(dt, tau time.Duration) float32 {
	if tau <= 0 {
		return 1
	}
	return float32(1 - math.Exp(-float64(dt)/float64(tau)))
}
