package synth

// Headroom scales every voice so that a few simultaneous voices sum without
// clipping.
const Headroom = 0.2

// SilenceThreshold is the decay factor below which a voice is inaudible.
const SilenceThreshold = 0.05

// Rates are the per-step increments of the envelope.
type Rates struct {
	Attack      float32 // added to the attack factor until it reaches 1
	OnlineDecay float32 // natural decay applied on every step
	Release     float32 // decay applied once a stop is requested
}

// DefaultRates returns the stock envelope tuning.
func DefaultRates() Rates {
	return Rates{
		Attack:      0.5,
		OnlineDecay: 0.005,
		Release:     0.05,
	}
}

type envState int

const (
	envAttack envState = iota
	envSustain
	envRelease
	envSilent
)

func (s envState) String() string {
	switch s {
	case envAttack:
		return "attacking"
	case envSustain:
		return "sustaining"
	case envRelease:
		return "releasing"
	default:
		return "silent"
	}
}

// Envelope is the amplitude model of one voice: an attack ramp, a slow
// decay while the key is held and a faster release after note-off.
type Envelope struct {
	Attack        float32
	OnlineDecay   float32
	OffDecay      float32
	StopRequested bool
	rates         Rates
}

// NewEnvelope returns an envelope at the start of its attack.
func NewEnvelope(r Rates) Envelope {
	return Envelope{
		Attack:      0,
		OnlineDecay: 1,
		OffDecay:    1,
		rates:       r,
	}
}

// Step advances the envelope by one sample. Decays bottom out at zero so a
// voice that went silent mid-frame stays silent until it is removed.
func (e *Envelope) Step() {
	e.OnlineDecay = floor0(e.OnlineDecay - e.rates.OnlineDecay)
	if e.StopRequested {
		e.OffDecay = floor0(e.OffDecay - e.rates.Release)
	}
	if e.Attack < 1 {
		e.Attack += e.rates.Attack
		if e.Attack > 1 {
			e.Attack = 1
		}
	}
}

func floor0(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}

// Release requests the release phase.
func (e *Envelope) Release() { e.StopRequested = true }

// Gain is the envelope's contribution to amplitude, before headroom and
// velocity.
func (e *Envelope) Gain() float32 {
	return e.Attack * e.OnlineDecay * e.OffDecay
}

// Silent reports whether either decay has crossed the silence threshold.
func (e *Envelope) Silent() bool {
	return e.OffDecay < SilenceThreshold || e.OnlineDecay < SilenceThreshold
}

func (e *Envelope) state() envState {
	switch {
	case e.Silent():
		return envSilent
	case e.StopRequested:
		return envRelease
	case e.Attack < 1:
		return envAttack
	default:
		return envSustain
	}
}

// State names the current phase: attacking, sustaining, releasing or silent.
func (e *Envelope) State() string { return e.state().String() }

// StepsToSilence is the number of steps a fresh envelope released
// immediately needs before Silent reports true, roughly
// (1-SilenceThreshold)/max(Release, OnlineDecay). It returns -1 when neither
// decay rate is positive.
func (r Rates) StepsToSilence() int {
	if r.Release <= 0 && r.OnlineDecay <= 0 {
		return -1
	}
	e := NewEnvelope(r)
	e.Release()
	n := 0
	for !e.Silent() {
		e.Step()
		n++
	}
	return n
}
