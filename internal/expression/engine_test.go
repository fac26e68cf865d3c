package expression

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/abubokkor/safaavatar/internal/config"
	"github.com/abubokkor/safaavatar/internal/morph"
)

func testExpressionConfig() config.ExpressionConfig {
	return config.ExpressionConfig{
		BlendTau:      120 * time.Millisecond,
		ReleaseTau:    60 * time.Millisecond,
		BlinkMinGap:   1 * time.Second,
		BlinkMaxGap:   5 * time.Second,
		BlinkDuration: 200 * time.Millisecond,
		WinkDuration:  300 * time.Millisecond,
		IdleJitter:    true,
	}
}

func newTestEngine() *Engine {
	return NewEngine(testExpressionConfig(), zerolog.Nop())
}

// settle runs enough ticks for all blends to converge.
func settle(e *Engine) morph.Weights {
	var out morph.Weights
	for i := 0; i < 300; i++ {
		out.Reset()
		e.Update(16*time.Millisecond, &out)
	}
	return out
}

func TestTemplates_AllValuesInRange(t *testing.T) {
	for name, template := range Templates {
		for idx, w := range template {
			if w < 0 || w > 1 {
				t.Errorf("%s: %s weight %f out of range", name, morph.Names[idx], w)
			}
		}
	}
}

func TestTemplateUnion_CoversEveryTemplate(t *testing.T) {
	inUnion := map[morph.Index]bool{}
	for _, idx := range TemplateUnion() {
		inUnion[idx] = true
	}
	for name, template := range Templates {
		for idx := range template {
			if !inUnion[idx] {
				t.Errorf("template %s target %s missing from union", name, morph.Names[idx])
			}
		}
	}
}

func TestEngine_BlendsTowardTemplate(t *testing.T) {
	e := newTestEngine()
	e.SetExpression(Smile)

	out := settle(e)

	for idx, want := range Templates[Smile] {
		assert.InDelta(t, want, out.Get(idx), 0.02, "target %s", morph.Names[idx])
	}
}

// Transition invariant: after A -> B settles, every union target outside
// B's template is zero and targets in B approach their template values.
func TestEngine_TransitionZerosResidualWeights(t *testing.T) {
	transitions := []struct{ from, to Name }{
		{Angry, Smile},
		{Sad, Surprised},
		{FunnyFace, Sad},
		{Smile, Talking},
	}

	for _, tr := range transitions {
		e := newTestEngine()
		e.SetExpression(tr.from)
		settle(e)

		e.SetExpression(tr.to)
		out := settle(e)

		template := Templates[tr.to]
		for _, idx := range TemplateUnion() {
			want, inTemplate := template[idx]
			got := out.Get(idx)
			if inTemplate {
				assert.InDelta(t, want, got, 0.02,
					"%s->%s: %s should approach template", tr.from, tr.to, morph.Names[idx])
			} else {
				assert.InDelta(t, 0, got, 0.01,
					"%s->%s: residual weight on %s", tr.from, tr.to, morph.Names[idx])
			}
		}
	}
}

func TestEngine_DefaultReleasesEverything(t *testing.T) {
	e := newTestEngine()
	e.SetExpression(Angry)
	settle(e)

	e.SetExpression(Default)
	out := settle(e)

	for _, idx := range TemplateUnion() {
		assert.InDelta(t, 0, out.Get(idx), 0.01, "target %s", morph.Names[idx])
	}
}

func TestEngine_UnknownNameFallsBackToDefault(t *testing.T) {
	e := newTestEngine()
	e.SetExpression(Name("bogus"))
	assert.Equal(t, Default, e.Current())
}

func TestEngine_SetupModeFreezesBlend(t *testing.T) {
	e := newTestEngine()
	e.SetExpression(Smile)
	e.SetSetupMode(true)

	var out morph.Weights
	e.Update(16*time.Millisecond, &out)

	snap := e.Snapshot()
	for _, idx := range TemplateUnion() {
		assert.Zero(t, snap.Get(idx), "setup mode must not ramp %s", morph.Names[idx])
	}
}

func TestEngine_RampIsGradualNotInstant(t *testing.T) {
	e := newTestEngine()
	e.SetExpression(Surprised)

	var out morph.Weights
	e.Update(16*time.Millisecond, &out)

	got := out.Get(morph.BrowInnerUp)
	want := Templates[Surprised][morph.BrowInnerUp]
	assert.Greater(t, got, float32(0), "blend should have started")
	assert.Less(t, got, want, "blend must not jump straight to target")
}

func TestBlinker_BlinkClosesAndReopens(t *testing.T) {
	cfg := testExpressionConfig()
	b := NewBlinker(cfg, 42)

	sawClosed := false
	sawReopen := false
	var out morph.Weights
	// 10 simulated seconds covers at least one blink cycle
	for i := 0; i < 600; i++ {
		out.Reset()
		b.Update(16*time.Millisecond, &out)
		closed := out.Get(morph.EyeBlinkLeft) == 1 && out.Get(morph.EyeBlinkRight) == 1
		if closed {
			sawClosed = true
		}
		if sawClosed && !closed {
			sawReopen = true
		}
	}

	assert.True(t, sawClosed, "expected at least one blink in 10s")
	assert.True(t, sawReopen, "eyes should reopen after the blink window")
}

func TestBlinker_Deterministic(t *testing.T) {
	cfg := testExpressionConfig()
	run := func() []float32 {
		b := NewBlinker(cfg, 7)
		var trace []float32
		var out morph.Weights
		for i := 0; i < 500; i++ {
			out.Reset()
			b.Update(16*time.Millisecond, &out)
			trace = append(trace, out.Get(morph.EyeBlinkLeft))
		}
		return trace
	}

	assert.Equal(t, run(), run(), "same seed must reproduce the same blink trace")
}

func TestBlinker_WinkAffectsOneEye(t *testing.T) {
	cfg := testExpressionConfig()
	cfg.IdleJitter = false
	b := NewBlinker(cfg, 1)

	b.TriggerWink(WinkLeft)

	var out morph.Weights
	b.Update(16*time.Millisecond, &out)

	assert.Equal(t, float32(1), out.Get(morph.EyeBlinkLeft))
	assert.Equal(t, float32(0), out.Get(morph.EyeBlinkRight))

	// Past the wink duration the eye reopens
	for i := 0; i < 30; i++ {
		out.Reset()
		b.Update(16*time.Millisecond, &out)
	}
	assert.Equal(t, float32(0), out.Get(morph.EyeBlinkLeft))
}
