// Package expression owns the companion's facial emotions: named morph
// templates, rate-limited blending between them, and the orthogonal
// blink/wink layer.
package expression

import "github.com/abubokkor/safaavatar/internal/morph"

// Name identifies a facial expression.
type Name string

const (
	Default   Name = "default"
	Smile     Name = "smile"
	FunnyFace Name = "funnyFace"
	Sad       Name = "sad"
	Surprised Name = "surprised"
	Angry     Name = "angry"
	Talking   Name = "talking"
)

// Template is a sparse morph-weight mapping for one emotion.
type Template map[morph.Index]float32

// Templates holds the fixed weight set for every named expression.
// Default is intentionally empty: it means "everything back to zero".
var Templates = map[Name]Template{
	Default: {},
	Smile: {
		morph.BrowInnerUp:     0.1,
		morph.EyeSquintLeft:   0.2,
		morph.EyeSquintRight:  0.22,
		morph.NoseSneerLeft:   0.08,
		morph.NoseSneerRight:  0.07,
		morph.MouthPressLeft:  0.3,
		morph.MouthPressRight: 0.2,
	},
	FunnyFace: {
		morph.JawLeft:         0.4,
		morph.MouthPucker:     0.3,
		morph.NoseSneerLeft:   0.5,
		morph.NoseSneerRight:  0.2,
		morph.MouthLeft:       0.5,
		morph.EyeLookUpLeft:   0.5,
		morph.EyeLookUpRight:  0.5,
		morph.CheekPuff:       0.6,
		morph.MouthDimpleLeft: 0.25,
		morph.MouthRollLower:  0.15,
		morph.MouthSmileLeft:  0.2,
		morph.MouthSmileRight: 0.2,
	},
	Sad: {
		morph.MouthFrownLeft:   0.6,
		morph.MouthFrownRight:  0.6,
		morph.MouthShrugLower:  0.4,
		morph.BrowInnerUp:      0.25,
		morph.EyeSquintLeft:    0.4,
		morph.EyeSquintRight:   0.4,
		morph.EyeLookDownLeft:  0.3,
		morph.EyeLookDownRight: 0.3,
		morph.JawForward:       0.5,
	},
	Surprised: {
		morph.EyeWideLeft:  0.3,
		morph.EyeWideRight: 0.3,
		morph.JawOpen:      0.2,
		morph.MouthFunnel:  0.5,
		morph.BrowInnerUp:  0.5,
	},
	Angry: {
		morph.BrowDownLeft:     0.6,
		morph.BrowDownRight:    0.6,
		morph.EyeSquintLeft:    0.6,
		morph.EyeSquintRight:   0.6,
		morph.JawForward:       0.5,
		morph.JawLeft:          0.5,
		morph.MouthShrugLower:  0.5,
		morph.NoseSneerLeft:    0.5,
		morph.NoseSneerRight:   0.3,
		morph.EyeLookDownLeft:  0.1,
		morph.EyeLookDownRight: 0.1,
		morph.CheekSquintLeft:  0.5,
		morph.CheekSquintRight: 0.5,
		morph.MouthClose:       0.15,
		morph.MouthFunnel:      0.3,
		morph.MouthDimpleRight: 0.5,
	},
	Talking: {
		morph.JawOpen:         0.12,
		morph.MouthOpen:       0.15,
		morph.MouthSmileLeft:  0.1,
		morph.MouthSmileRight: 0.1,
	},
}

// templateUnion is every morph target referenced by any template. Zeroing
// the whole union on a transition is what prevents residual weights from a
// prior emotion bleeding into the next one.
var templateUnion = func() []morph.Index {
	seen := map[morph.Index]bool{}
	for _, t := range Templates {
		for idx := range t {
			seen[idx] = true
		}
	}
	union := make([]morph.Index, 0, len(seen))
	for idx := range seen {
		union = append(union, idx)
	}
	return union
}()

// TemplateUnion returns the morph targets referenced by any expression.
func TemplateUnion() []morph.Index {
	return templateUnion
}

// Known reports whether name has a template.
func Known(name Name) bool {
	_, ok := Templates[name]
	return ok
}
