// Package dsp implements the spectrum analysis that drives lip-sync.
// It mirrors a Web-Audio style analyser: fixed FFT size, per-bin smoothing,
// and a speech-band volume envelope with adaptive noise floor.
package dsp

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/dsp/window"

	"github.com/abubokkor/safaavatar/internal/config"
)

// Band boundaries in FFT bins, tuned for speech at 44.1kHz / 1024-point FFT.
const (
	bassLow     = 1
	bassHigh    = 5
	lowMidHigh  = 20
	highMidHigh = 50
	presenceEnd = 100

	speechBinLow  = 5
	speechBinHigh = 150
)

// BandEnergies holds per-band average magnitudes, normalized to [0,1].
type BandEnergies struct {
	Bass     float64
	LowMid   float64
	HighMid  float64
	Presence float64
}

// Frame is one analysis tick's output. It is recomputed every tick and
// never retained across sessions.
type Frame struct {
	RawVolume      float64
	SmoothedVolume float64
	Bands          BandEnergies
	MinVolume      float64
	MaxVolume      float64
	Calibrating    bool
}

// Analyzer converts PCM blocks into smoothed spectrum snapshots.
type Analyzer struct {
	mu sync.Mutex

	cfg config.AudioConfig
	fft *fourier.FFT

	spectrum []float64 // smoothed magnitudes, [0,1]
	input    []float64
	coeffs   []complex128

	lastVolume float64
	minVolume  float64
	maxVolume  float64

	calibrating        bool
	calibrationTarget  int
	calibrationSamples []float64
}

// NewAnalyzer creates an analyzer for the given audio configuration.
func NewAnalyzer(cfg config.AudioConfig) *Analyzer {
	fftSize := cfg.FFTSize
	if fftSize <= 0 {
		fftSize = 1024
	}

	return &Analyzer{
		cfg:       cfg,
		fft:       fourier.NewFFT(fftSize),
		spectrum:  make([]float64, fftSize/2+1),
		input:     make([]float64, fftSize),
		coeffs:    make([]complex128, fftSize/2+1),
		minVolume: cfg.MinVolume,
		maxVolume: cfg.MaxVolume,
	}
}

// Process analyzes one block of mono PCM samples and returns the updated
// frame. Blocks shorter than the FFT size are zero padded; longer blocks
// use the leading FFT-size samples, matching a fixed analysis tick.
func (a *Analyzer) Process(samples []float32) Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.input)
	for i := range a.input {
		if i < len(samples) {
			a.input[i] = float64(samples[i])
		} else {
			a.input[i] = 0
		}
	}
	window.Hann(a.input)

	a.fft.Coefficients(a.coeffs, a.input)

	// Per-bin exponential smoothing, Web-Audio smoothingTimeConstant style.
	s := a.cfg.Smoothing
	scale := 2.0 / float64(n)
	for i := range a.spectrum {
		mag := cmplxAbs(a.coeffs[i]) * scale
		if mag > 1 {
			mag = 1
		}
		a.spectrum[i] = a.spectrum[i]*s + mag*(1-s)
	}

	raw := a.binAverage(speechBinLow, speechBinHigh)
	a.observeLocked(raw)

	return Frame{
		RawVolume:      raw,
		SmoothedVolume: a.lastVolume,
		Bands: BandEnergies{
			Bass:     a.binAverage(bassLow, bassHigh),
			LowMid:   a.binAverage(bassHigh, lowMidHigh),
			HighMid:  a.binAverage(lowMidHigh, highMidHigh),
			Presence: a.binAverage(highMidHigh, presenceEnd),
		},
		MinVolume:   a.minVolume,
		MaxVolume:   a.maxVolume,
		Calibrating: a.calibrating,
	}
}

// ObserveVolume feeds a precomputed volume sample through the envelope,
// adaptive floor and calibration logic without running the FFT. Used when
// band energies arrive from an external analyser tap.
func (a *Analyzer) ObserveVolume(raw float64) Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.observeLocked(raw)
	return Frame{
		RawVolume:      raw,
		SmoothedVolume: a.lastVolume,
		MinVolume:      a.minVolume,
		MaxVolume:      a.maxVolume,
		Calibrating:    a.calibrating,
	}
}

func (a *Analyzer) observeLocked(raw float64) {
	alpha := a.cfg.VolumeSmoothing
	a.lastVolume = a.lastVolume*(1-alpha) + raw*alpha

	// Quiet environments slowly relax the floor so the mouth does not stay
	// shut forever; the 0.8 guard keeps noise spikes from dragging it down.
	if raw > 0 && raw < a.minVolume*0.8 {
		a.minVolume = math.Max(0.03, a.minVolume*0.99)
	}

	if a.calibrating {
		a.calibrationSamples = append(a.calibrationSamples, raw)
		if len(a.calibrationSamples) >= a.calibrationTarget {
			a.finishCalibrationLocked()
		}
	}
}

// Snapshot returns the current analysis state without consuming audio.
// The update loop polls this between Process calls.
func (a *Analyzer) Snapshot() Frame {
	a.mu.Lock()
	defer a.mu.Unlock()

	return Frame{
		SmoothedVolume: a.lastVolume,
		Bands: BandEnergies{
			Bass:     a.binAverage(bassLow, bassHigh),
			LowMid:   a.binAverage(bassHigh, lowMidHigh),
			HighMid:  a.binAverage(lowMidHigh, highMidHigh),
			Presence: a.binAverage(highMidHigh, presenceEnd),
		},
		MinVolume:   a.minVolume,
		MaxVolume:   a.maxVolume,
		Calibrating: a.calibrating,
	}
}

// MouthWeight maps the current envelope into the morph weight range.
// Returns 0 below the floor, and saturates at the configured gain.
func (a *Analyzer) MouthWeight(gain float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return MouthWeightFor(a.lastVolume, a.minVolume, a.maxVolume, gain)
}

// MouthWeightFor is the pure envelope-to-weight mapping: zero at or below
// the floor, linear between the bounds, saturating at gain.
func MouthWeightFor(v, min, max, gain float64) float64 {
	if v <= min {
		return 0
	}
	span := max - min
	if span <= 0 {
		return gain
	}
	return math.Min((v-min)/span*gain, gain)
}

// StartCalibration begins collecting raw volume samples; after sampleCount
// ticks the floor and ceiling are recomputed from the observed distribution.
func (a *Analyzer) StartCalibration(sampleCount int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if sampleCount <= 0 {
		sampleCount = 20
	}
	a.calibrating = true
	a.calibrationTarget = sampleCount
	a.calibrationSamples = a.calibrationSamples[:0]
}

// Calibrating reports whether a calibration pass is in progress.
func (a *Analyzer) Calibrating() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibrating
}

// Bounds returns the current calibrated volume bounds.
func (a *Analyzer) Bounds() (min, max float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.minVolume, a.maxVolume
}

// Reset clears envelope and spectrum state between speech sessions.
// Calibrated bounds survive, a new session recalibrates explicitly.
func (a *Analyzer) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastVolume = 0
	a.calibrating = false
	a.calibrationSamples = a.calibrationSamples[:0]
	for i := range a.spectrum {
		a.spectrum[i] = 0
	}
}

func (a *Analyzer) finishCalibrationLocked() {
	a.calibrating = false
	if len(a.calibrationSamples) == 0 {
		return
	}

	sorted := make([]float64, len(a.calibrationSamples))
	copy(sorted, a.calibrationSamples)
	sortFloats(sorted)

	p10 := sorted[len(sorted)/10]
	p80 := sorted[len(sorted)*8/10]

	a.minVolume = math.Max(0.03, p10*0.8)
	a.maxVolume = math.Max(0.1, p80*1.2)
}

func (a *Analyzer) binAverage(lo, hi int) float64 {
	if hi > len(a.spectrum) {
		hi = len(a.spectrum)
	}
	if lo >= hi {
		return 0
	}
	var sum float64
	for i := lo; i < hi; i++ {
		sum += a.spectrum[i]
	}
	return sum / float64(hi-lo)
}

func cmplxAbs(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

func sortFloats(v []float64) {
	// Insertion sort; calibration windows are tens of samples.
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}
