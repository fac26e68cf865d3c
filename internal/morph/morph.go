// Package morph defines the morph targets driven by the companion's face
// and the weight-vector math shared by the expression, lip-sync and idle
// subsystems.
package morph

// Index identifies a single morph target.
type Index int

const (
	BrowDownLeft Index = iota
	BrowDownRight
	BrowInnerUp
	CheekPuff
	CheekSquintLeft
	CheekSquintRight
	EyeBlinkLeft
	EyeBlinkRight
	EyeLookDownLeft
	EyeLookDownRight
	EyeLookUpLeft
	EyeLookUpRight
	EyeSquintLeft
	EyeSquintRight
	EyeWideLeft
	EyeWideRight
	JawForward
	JawLeft
	JawOpen
	MouthClose
	MouthDimpleLeft
	MouthDimpleRight
	MouthFrownLeft
	MouthFrownRight
	MouthFunnel
	MouthLeft
	MouthOpen
	MouthPressLeft
	MouthPressRight
	MouthPucker
	MouthRight
	MouthRollLower
	MouthShrugLower
	MouthSmile
	MouthSmileLeft
	MouthSmileRight
	MouthStretch
	NoseSneerLeft
	NoseSneerRight
	TongueOut
	VisemeAA
	VisemeCH
	VisemeE
	VisemeFF
	VisemeI
	VisemeKK
	VisemeO
	VisemePP
	VisemeTH
	VisemeU
	Count
)

// Names holds the renderer-facing name of each morph target. Viseme targets
// use the Ready Player Me naming so a stock avatar picks them up unchanged.
var Names = [Count]string{
	"browDownLeft",
	"browDownRight",
	"browInnerUp",
	"cheekPuff",
	"cheekSquintLeft",
	"cheekSquintRight",
	"eyeBlinkLeft",
	"eyeBlinkRight",
	"eyeLookDownLeft",
	"eyeLookDownRight",
	"eyeLookUpLeft",
	"eyeLookUpRight",
	"eyeSquintLeft",
	"eyeSquintRight",
	"eyeWideLeft",
	"eyeWideRight",
	"jawForward",
	"jawLeft",
	"jawOpen",
	"mouthClose",
	"mouthDimpleLeft",
	"mouthDimpleRight",
	"mouthFrownLeft",
	"mouthFrownRight",
	"mouthFunnel",
	"mouthLeft",
	"mouthOpen",
	"mouthPressLeft",
	"mouthPressRight",
	"mouthPucker",
	"mouthRight",
	"mouthRollLower",
	"mouthShrugLower",
	"mouthSmile",
	"mouthSmileLeft",
	"mouthSmileRight",
	"mouthStretch",
	"noseSneerLeft",
	"noseSneerRight",
	"tongueOut",
	"viseme_AA",
	"viseme_CH",
	"viseme_E",
	"viseme_FF",
	"viseme_I",
	"viseme_kk",
	"viseme_O",
	"viseme_PP",
	"viseme_TH",
	"viseme_U",
}

// Weights is a dense weight vector with one scalar per morph target.
// All values stay in [0,1].
type Weights [Count]float32

// NewWeights returns a zeroed weight vector.
func NewWeights() Weights {
	return Weights{}
}

func (w *Weights) Set(idx Index, value float32) {
	w[idx] = Clamp(value, 0, 1)
}

func (w *Weights) Get(idx Index) float32 {
	return w[idx]
}

func (w *Weights) Reset() {
	for i := range w {
		w[i] = 0
	}
}

// Blend moves the weight at idx toward target by the given fraction.
func (w *Weights) Blend(idx Index, target, fraction float32) {
	w[idx] = Clamp(w[idx]+(target-w[idx])*fraction, 0, 1)
}

// Accumulate adds value on top of the current weight, clamped at 1.
// This is the shared discipline for every writer touching the vector:
// additive then clamp, so no source permanently wins.
func (w *Weights) Accumulate(idx Index, value float32) {
	w[idx] = Clamp(w[idx]+value, 0, 1)
}

// Lerp returns the element-wise interpolation between w and target.
func (w *Weights) Lerp(target *Weights, t float32) Weights {
	if t <= 0 {
		return *w
	}
	if t >= 1 {
		return *target
	}

	var result Weights
	for i := range w {
		result[i] = w[i] + (target[i]-w[i])*t
	}
	return result
}

// Add returns the element-wise clamped sum of two vectors.
func (w *Weights) Add(other *Weights) Weights {
	var result Weights
	for i := range w {
		result[i] = Clamp(w[i]+other[i], 0, 1)
	}
	return result
}

// Scale returns a copy with every weight multiplied by factor.
func (w *Weights) Scale(factor float32) Weights {
	var result Weights
	for i := range w {
		result[i] = Clamp(w[i]*factor, 0, 1)
	}
	return result
}

// ToMap converts the vector to the name-keyed form used on the wire,
// dropping near-zero entries to keep frames small.
func (w *Weights) ToMap() map[string]float32 {
	out := make(map[string]float32)
	for i := range w {
		if w[i] > 0.001 {
			out[Names[i]] = w[i]
		}
	}
	return out
}

// IndexFromName resolves a renderer-facing name back to an Index.
// Returns -1 for unknown names.
func IndexFromName(name string) Index {
	for i, n := range Names {
		if n == name {
			return Index(i)
		}
	}
	return -1
}

// Clamp bounds v to [min, max].
func Clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
