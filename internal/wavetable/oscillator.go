package wavetable

import "math"

// Oscillator is a phase accumulator over a Table. The zero value sits at
// index 0 and never advances.
type Oscillator struct {
	index float64 // current position in the table [0, len)
	step  float64 // table indices advanced per output sample
}

// NewOscillator returns an oscillator producing hz at sampleRate when read
// from a table of tableLen samples.
func NewOscillator(hz, sampleRate float64, tableLen int) Oscillator {
	return Oscillator{step: hz * float64(tableLen) / sampleRate}
}

// Step reports the per-sample index increment.
func (o *Oscillator) Step() float64 { return o.step }

// Index reports the current table position.
func (o *Oscillator) Index() float64 { return o.index }

// Sample returns the nearest table sample at the current index and advances.
func (o *Oscillator) Sample(t Table) float32 {
	n := float64(len(t))
	s := t[int(o.index)]
	o.index = math.Mod(o.index+o.step, n)
	if o.index < 0 {
		o.index += n
	}
	return s
}

// MidiToFreq converts a MIDI key number to its equal-tempered frequency.
func MidiToFreq(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}
