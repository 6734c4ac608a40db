package synth

import (
	"log/slog"
	"sync"

	"github.com/cbegin/nocturne-go/internal/audio"
	"github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/wavetable"
)

// MultiEngine routes messages to one Engine per track and mixes all of them
// into a single frame. Tracks get their own instrument, cycling through
// wavetable.Shapes unless a fixed waveform is configured.
type MultiEngine struct {
	mu         sync.Mutex
	engines    map[int]*Engine
	tracks     []int // registration order, for deterministic mixing
	sampleRate int
	channels   int
	params     Params
	rotate     bool
	log        *slog.Logger
}

// NewMultiEngine creates an empty ensemble. When rotate is true the waveform
// of track n is wavetable.Shapes[n%len(Shapes)]; otherwise every track uses
// params.Waveform.
func NewMultiEngine(sampleRate, channels int, params Params, rotate bool, log *slog.Logger) *MultiEngine {
	if channels <= 0 {
		channels = 1
	}
	if params.FrameLength <= 0 {
		params.FrameLength = audio.FrameLength
	}
	if log == nil {
		log = slog.Default()
	}
	return &MultiEngine{
		engines:    make(map[int]*Engine),
		sampleRate: sampleRate,
		channels:   channels,
		params:     params,
		rotate:     rotate,
		log:        log,
	}
}

// WaveformFor returns the waveform track will be played with.
func (m *MultiEngine) WaveformFor(track int) wavetable.Shape {
	if !m.rotate {
		return m.params.Waveform
	}
	if track < 0 {
		track = -track
	}
	return wavetable.Shapes[track%len(wavetable.Shapes)]
}

// Track returns the engine for track, creating it on first use.
func (m *MultiEngine) Track(track int) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track(track)
}

func (m *MultiEngine) track(track int) *Engine {
	if e, ok := m.engines[track]; ok {
		return e
	}
	p := m.params
	p.Waveform = m.WaveformFor(track)
	e := New(m.sampleRate, m.channels, p, m.log.With("track", track))
	m.engines[track] = e
	m.tracks = append(m.tracks, track)
	return e
}

// HandleMessage applies msg to the engine of track.
func (m *MultiEngine) HandleMessage(track int, msg midi.RawMessage) {
	m.Track(track).HandleMessage(msg)
}

// Reset silences every track.
func (m *MultiEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		m.engines[t].Reset()
	}
}

// FrameSize is the number of samples in one produced frame.
func (m *MultiEngine) FrameSize() int { return m.params.FrameLength * m.channels }

// ProduceFrame renders the sum of all tracks.
func (m *MultiEngine) ProduceFrame() audio.Frame {
	frame := make(audio.Frame, m.FrameSize())
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tracks {
		m.engines[t].RenderInto(frame)
	}
	return frame
}

// ActiveVoiceCount sums the voices of every track.
func (m *MultiEngine) ActiveVoiceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tracks {
		n += m.engines[t].ActiveVoiceCount()
	}
	return n
}
