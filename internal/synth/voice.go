package synth

import "github.com/cbegin/nocturne-go/internal/wavetable"

// VelocityScale normalises raw 0-127 velocities. Dividing by 100 rather than
// 127 lets loud notes run slightly hot.
const VelocityScale = 100.0

// Voice is one sounding key.
type Voice struct {
	osc      wavetable.Oscillator
	table    wavetable.Table
	env      Envelope
	velocity float32
}

func newVoice(table wavetable.Table, hz, sampleRate float64, velocity uint8, r Rates) *Voice {
	return &Voice{
		osc:      wavetable.NewOscillator(hz, sampleRate, len(table)),
		table:    table,
		env:      NewEnvelope(r),
		velocity: float32(velocity) / VelocityScale,
	}
}

// Amplitude is the current output gain of the voice.
func (v *Voice) Amplitude() float32 {
	return Headroom * v.env.Gain() * v.velocity
}

// Sample returns the next output sample without touching the envelope.
func (v *Voice) Sample() float32 {
	return v.Amplitude() * v.osc.Sample(v.table)
}

// Envelope exposes the voice's envelope state.
func (v *Voice) Envelope() *Envelope { return &v.env }

// Velocity is the normalised note velocity.
func (v *Voice) Velocity() float32 { return v.velocity }
