package effects

// Tremolo modulates amplitude with a triangle LFO. Gain swings between 1 and
// 1-depth.
type Tremolo struct {
	depth float32
	step  float64 // phase increment per sample
	phase float64 // [0, 1)
}

// NewTremolo returns a tremolo of the given depth in [0, 1] and rate in Hz.
func NewTremolo(sampleRate int, depth float32, rateHz float64) *Tremolo {
	switch {
	case depth < 0:
		depth = 0
	case depth > 1:
		depth = 1
	}
	t := &Tremolo{depth: depth}
	if sampleRate > 0 && rateHz > 0 {
		t.step = rateHz / float64(sampleRate)
	}
	return t
}

// lfo is a unipolar triangle, 0 at phase 0 and 1 at phase 0.5.
func (t *Tremolo) lfo() float32 {
	if t.phase < 0.5 {
		return float32(2 * t.phase)
	}
	return float32(2 - 2*t.phase)
}

func (t *Tremolo) Process(x float32) float32 {
	g := 1 - t.depth*t.lfo()
	t.phase += t.step
	for t.phase >= 1 {
		t.phase--
	}
	return x * g
}

func (t *Tremolo) Reset() { t.phase = 0 }

// Active reports whether the tremolo changes its input at all.
func (t *Tremolo) Active() bool { return t.depth > 0 && t.step > 0 }
