package synth

import (
	"log/slog"

	"github.com/cbegin/nocturne-go/internal/audio"
	"github.com/cbegin/nocturne-go/internal/effects"
	"github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/wavetable"
)

const numKeys = 128

// MIDI controllers that silence every voice.
const (
	ccAllSoundOff = 120
	ccAllNotesOff = 123
)

// Params controls one synthesis engine.
type Params struct {
	Waveform     wavetable.Shape
	Rates        Rates
	FilterFactor float32 // exponential smoothing weight applied to the mix
	CutoffHz     float64 // when set, derives FilterFactor from a -3dB cutoff
	TremoloDepth float32
	TremoloHz    float64
	FrameLength  int // samples per channel in one produced frame
}

// DefaultParams returns the stock engine settings.
func DefaultParams() Params {
	return Params{
		Waveform:     wavetable.Sine,
		Rates:        DefaultRates(),
		FilterFactor: effects.DefaultSmoothingFactor,
		FrameLength:  audio.FrameLength,
	}
}

// Engine owns the active voices of one instrument and renders them into
// frames. It is not safe for concurrent use; a single producer goroutine
// drives it.
type Engine struct {
	sampleRate float64
	channels   int
	params     Params
	table      wavetable.Table
	voices     [numKeys]*Voice
	order      []uint8 // sounding keys in note-on order
	post       *effects.Chain // applied to the mono mix
	log        *slog.Logger
}

// New creates an engine for the negotiated device sample rate and channel
// count.
func New(sampleRate, channels int, params Params, log *slog.Logger) *Engine {
	if channels <= 0 {
		channels = 1
	}
	if params.FrameLength <= 0 {
		params.FrameLength = audio.FrameLength
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		sampleRate: float64(sampleRate),
		channels:   channels,
		params:     params,
		table:      wavetable.Get(params.Waveform),
		order:      make([]uint8, 0, numKeys),
		post:       postChain(sampleRate, params),
		log:        log.With("waveform", params.Waveform.String()),
	}
}

func postChain(sampleRate int, p Params) *effects.Chain {
	filter := effects.NewSmoothing(p.FilterFactor)
	if p.CutoffHz > 0 && sampleRate > 0 {
		filter = effects.NewSmoothingCutoff(sampleRate, p.CutoffHz)
	}
	chain := effects.NewChain(filter)
	if tr := effects.NewTremolo(sampleRate, p.TremoloDepth, p.TremoloHz); tr.Active() {
		chain.Add(tr)
	}
	return chain
}

// HandleMessage applies one raw MIDI message. Unsupported messages are
// logged and ignored.
func (e *Engine) HandleMessage(m midi.RawMessage) {
	msg := m.Message()
	var ch, key, vel, ctl, val uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		e.log.Debug("note on", "key", key, "velocity", vel)
		e.NoteOn(key, vel)
	case msg.GetNoteEnd(&ch, &key):
		e.log.Debug("note off", "key", key)
		e.NoteOff(key)
	case msg.GetControlChange(&ch, &ctl, &val):
		if ctl == ccAllSoundOff || ctl == ccAllNotesOff {
			e.log.Info("resetting all voices", "controller", ctl)
			e.Reset()
			return
		}
		e.log.Debug("unsupported control change", "controller", ctl, "value", val)
	case m.Data[0] == 0xF8, m.Data[0] == 0xFE:
		// timing clock, active sensing
	default:
		e.log.Debug("unsupported midi message", "msg", m.String())
	}
}

// NoteOn starts key, replacing a voice already sounding for it. A zero
// velocity releases the key instead.
func (e *Engine) NoteOn(key, velocity uint8) {
	key &= 0x7F
	if velocity == 0 {
		e.NoteOff(key)
		return
	}
	if e.voices[key] == nil {
		e.order = append(e.order, key)
	}
	e.voices[key] = newVoice(e.table, wavetable.MidiToFreq(int(key)), e.sampleRate, velocity, e.params.Rates)
}

// NoteOff starts the release of key. It is a no-op when key is not sounding.
func (e *Engine) NoteOff(key uint8) {
	if v := e.voices[key&0x7F]; v != nil {
		v.env.Release()
	}
}

// Reset drops every voice immediately.
func (e *Engine) Reset() {
	for _, k := range e.order {
		e.voices[k] = nil
	}
	e.order = e.order[:0]
}

// Voice returns the voice sounding for key, or nil.
func (e *Engine) Voice(key uint8) *Voice {
	return e.voices[key&0x7F]
}

// ActiveVoiceCount returns the number of voices not yet removed.
func (e *Engine) ActiveVoiceCount() int {
	return len(e.order)
}

// Channels is the interleaved channel count of produced frames.
func (e *Engine) Channels() int { return e.channels }

// FrameSize is the number of samples in one produced frame.
func (e *Engine) FrameSize() int { return e.params.FrameLength * e.channels }

// ProduceFrame renders the next frame.
func (e *Engine) ProduceFrame() audio.Frame {
	frame := make(audio.Frame, e.FrameSize())
	e.RenderInto(frame)
	return frame
}

// RenderInto adds the next len(dst)/channels samples of every voice to dst.
// Each voice is clipped at 1 before mixing, the mix runs through the smoothing
// filter (and tremolo, if any) and is copied to every channel. Voices that fell
// silent are removed afterwards.
func (e *Engine) RenderInto(dst []float32) {
	frames := len(dst) / e.channels
	for i := 0; i < frames; i++ {
		var mix float32
		for _, k := range e.order {
			v := e.voices[k]
			s := v.Sample()
			if s > 1 {
				s = 1
			}
			mix += s
			v.env.Step()
		}
		y := e.post.Process(mix)
		base := i * e.channels
		for c := 0; c < e.channels; c++ {
			dst[base+c] += y
		}
	}
	e.reap()
}

func (e *Engine) reap() {
	kept := e.order[:0]
	for _, k := range e.order {
		if e.voices[k].env.Silent() {
			e.voices[k] = nil
			continue
		}
		kept = append(kept, k)
	}
	e.order = kept
}
