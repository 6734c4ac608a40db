package effects

import "math"

// DefaultSmoothingFactor is the weight given to the newest sample.
const DefaultSmoothingFactor = 0.05

// Smoothing is a single-pole exponential smoothing low-pass filter, the
// discretised RC low-pass: y[n] = a*x[n] + (1-a)*y[n-1].
type Smoothing struct {
	factor float32
	y      float32
}

// NewSmoothing returns a filter with factor a clamped to (0, 1].
func NewSmoothing(a float32) *Smoothing {
	if a <= 0 || a > 1 {
		a = DefaultSmoothingFactor
	}
	return &Smoothing{factor: a}
}

// NewSmoothingCutoff derives the factor from a -3dB cutoff, the way the
// engine low-pass filters compute their alpha.
func NewSmoothingCutoff(sampleRate int, cutoffHz float64) *Smoothing {
	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / float64(sampleRate)
	return NewSmoothing(float32(dt / (rc + dt)))
}

func (s *Smoothing) Process(x float32) float32 {
	s.y = s.factor*x + (1-s.factor)*s.y
	return s.y
}

func (s *Smoothing) Reset() {
	s.y = 0
}

// Factor reports the smoothing weight.
func (s *Smoothing) Factor() float32 { return s.factor }
