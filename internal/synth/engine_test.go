package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/wavetable"
)

const testRate = 48000

// sustainParams keeps held notes audible for many frames.
func sustainParams() Params {
	p := DefaultParams()
	p.Rates = Rates{Attack: 0.5, OnlineDecay: 0, Release: 0.001}
	p.FrameLength = 64
	return p
}

func TestSilentEngineProducesZeroFrame(t *testing.T) {
	e := New(testRate, 2, DefaultParams(), nil)
	frame := e.ProduceFrame()
	require.Len(t, frame, 512*2)
	for i, s := range frame {
		if s != 0 {
			t.Fatalf("sample %d = %v, want 0", i, s)
		}
	}
}

func TestRetriggerKeepsOneVoice(t *testing.T) {
	e := New(testRate, 1, sustainParams(), nil)
	e.HandleMessage(midi.NoteOn(0, 60, 100))
	e.ProduceFrame()
	require.Equal(t, float32(1), e.Voice(60).Envelope().Attack)

	e.HandleMessage(midi.NoteOn(0, 60, 80))
	assert.Equal(t, 1, e.ActiveVoiceCount())
	v := e.Voice(60)
	require.NotNil(t, v)
	assert.Equal(t, float32(0), v.Envelope().Attack, "retrigger should restart the attack")
	assert.InDelta(t, 0.8, v.Velocity(), 1e-6)
}

func TestZeroVelocityNoteOnReleases(t *testing.T) {
	e := New(testRate, 1, sustainParams(), nil)
	e.HandleMessage(midi.NoteOn(0, 64, 100))
	e.HandleMessage(midi.NoteOn(0, 64, 0))
	v := e.Voice(64)
	require.NotNil(t, v)
	assert.True(t, v.Envelope().StopRequested)
	assert.Equal(t, "releasing", v.Envelope().State())
}

func TestNoteOffForUnknownKeyIsNoop(t *testing.T) {
	e := New(testRate, 1, sustainParams(), nil)
	e.HandleMessage(midi.NoteOff(0, 10))
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestReleasedVoiceRemovedWithinBound(t *testing.T) {
	p := sustainParams()
	e := New(testRate, 1, p, nil)
	e.NoteOn(69, 100)
	e.NoteOff(69)

	bound := p.Rates.StepsToSilence()
	require.Greater(t, bound, 0)

	rendered := 0
	for e.ActiveVoiceCount() > 0 {
		e.ProduceFrame()
		rendered += p.FrameLength
		require.LessOrEqual(t, rendered, bound+p.FrameLength, "voice outlived its release")
	}
	assert.GreaterOrEqual(t, rendered, bound)
}

func TestDefaultRatesSilenceHeldNoteWithinOneFrame(t *testing.T) {
	e := New(testRate, 1, DefaultParams(), nil)
	e.NoteOn(60, 127)
	e.ProduceFrame()
	assert.Equal(t, 0, e.ActiveVoiceCount())
}

func TestAllNotesOffControllersReset(t *testing.T) {
	for _, cc := range []uint8{ccAllSoundOff, ccAllNotesOff} {
		e := New(testRate, 1, sustainParams(), nil)
		e.NoteOn(60, 100)
		e.NoteOn(64, 100)
		e.HandleMessage(midi.ControlChange(0, 7, 100))
		require.Equal(t, 2, e.ActiveVoiceCount())

		e.HandleMessage(midi.ControlChange(0, cc, 0))
		assert.Equal(t, 0, e.ActiveVoiceCount(), "controller %d", cc)
	}
}

func TestUnsupportedMessagesIgnored(t *testing.T) {
	e := New(testRate, 1, sustainParams(), nil)
	e.NoteOn(60, 100)
	for _, m := range []midi.RawMessage{
		{Data: [midi.MessageSize]byte{0xE0, 0x00, 0x40}}, // pitch bend
		{Data: [midi.MessageSize]byte{0xF8}},
		{Data: [midi.MessageSize]byte{0xFE}},
		{Data: [midi.MessageSize]byte{0xFF, 0x2F, 0x00}}, // end of track
		{},
	} {
		e.HandleMessage(m)
	}
	assert.Equal(t, 1, e.ActiveVoiceCount())
}

func TestChannelsCarryTheSameSample(t *testing.T) {
	e := New(testRate, 2, sustainParams(), nil)
	e.NoteOn(57, 100)
	var energy float64
	for n := 0; n < 4; n++ {
		frame := e.ProduceFrame()
		for i := 0; i < len(frame); i += 2 {
			if frame[i] != frame[i+1] {
				t.Fatalf("frame %d sample %d: left %v right %v", n, i/2, frame[i], frame[i+1])
			}
			if frame[i] < 0 {
				energy -= float64(frame[i])
			} else {
				energy += float64(frame[i])
			}
		}
	}
	if energy == 0 {
		t.Fatalf("expected non-zero audio energy")
	}
}

func TestVoiceAmplitudeBounded(t *testing.T) {
	e := New(testRate, 1, sustainParams(), nil)
	for k := uint8(0); k < 128; k++ {
		e.NoteOn(k, 127)
	}
	require.Equal(t, 128, e.ActiveVoiceCount())
	e.ProduceFrame()
	for k := uint8(0); k < 128; k++ {
		v := e.Voice(k)
		require.NotNil(t, v)
		assert.LessOrEqual(t, v.Amplitude(), float32(Headroom*127/VelocityScale)+1e-6)
	}
}

func TestMultiEngineMixesTracks(t *testing.T) {
	p := sustainParams()
	m := NewMultiEngine(testRate, 1, p, true, nil)
	assert.Equal(t, wavetable.Sawtooth, m.WaveformFor(0))
	assert.Equal(t, wavetable.Sine, m.WaveformFor(1))
	assert.Equal(t, wavetable.Sawtooth, m.WaveformFor(4))

	m.HandleMessage(0, midi.NoteOn(0, 60, 100))
	m.HandleMessage(1, midi.NoteOn(0, 67, 100))
	require.Equal(t, 2, m.ActiveVoiceCount())

	a := New(testRate, 1, withWaveform(p, wavetable.Sawtooth), nil)
	a.NoteOn(60, 100)
	b := New(testRate, 1, withWaveform(p, wavetable.Sine), nil)
	b.NoteOn(67, 100)

	mixed := m.ProduceFrame()
	fa, fb := a.ProduceFrame(), b.ProduceFrame()
	require.Len(t, mixed, len(fa))
	for i := range mixed {
		assert.InDelta(t, fa[i]+fb[i], mixed[i], 1e-6)
	}

	m.Reset()
	assert.Equal(t, 0, m.ActiveVoiceCount())
}

func TestMultiEngineFixedWaveform(t *testing.T) {
	p := sustainParams()
	p.Waveform = wavetable.Square
	m := NewMultiEngine(testRate, 1, p, false, nil)
	for track := 0; track < 5; track++ {
		assert.Equal(t, wavetable.Square, m.WaveformFor(track))
	}
}

func withWaveform(p Params, s wavetable.Shape) Params {
	p.Waveform = s
	return p
}

func TestTremoloAndCutoffShapeOutput(t *testing.T) {
	render := func(p Params) []float32 {
		e := New(testRate, 1, p, nil)
		e.NoteOn(60, 100)
		var out []float32
		for i := 0; i < 8; i++ {
			out = append(out, e.ProduceFrame()...)
		}
		return out
	}
	plain := render(sustainParams())

	p := sustainParams()
	p.TremoloDepth, p.TremoloHz = 1, 20
	assert.NotEqual(t, plain, render(p))

	p = sustainParams()
	p.CutoffHz = 20000
	bright := render(p)
	assert.NotEqual(t, plain, bright)

	var pe, be float64
	for i := range plain {
		pe += float64(plain[i] * plain[i])
		be += float64(bright[i] * bright[i])
	}
	assert.Greater(t, be, pe, "a higher cutoff passes more energy")
}
