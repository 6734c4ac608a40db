package nocturne

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/cbegin/nocturne-go/internal/audio/device"
	intmidi "github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/recording"
	intseq "github.com/cbegin/nocturne-go/internal/sequencer"
	"github.com/cbegin/nocturne-go/internal/synth"
)

// maxTail bounds how long Render keeps going after the last event while
// voices are still sounding.
const maxTail = 30 * time.Second

// Rendering is interleaved audio produced without a device.
type Rendering struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// format is the sample rate and channel count the backend negotiates. New
// has already rejected configurations Negotiate refuses.
func (in *Instrument) format() (rate, channels int) {
	rate, channels, _ = device.Negotiate(in.deviceConfig())
	return rate, channels
}

// Duration is the length of the rendering.
func (r Rendering) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	frames := len(r.Samples) / r.Channels
	return time.Duration(frames) * time.Second / time.Duration(r.SampleRate)
}

// Render synthesizes f as fast as possible with the instrument's settings,
// in the format the configured backend would play. Events take effect at
// frame boundaries, as they do during playback.
func (in *Instrument) Render(f *intmidi.File) Rendering {
	rate, channels := in.format()
	engine := synth.NewMultiEngine(rate, channels, in.params(), !in.cfg.fixedWave, in.log)
	tl := intseq.FromFile(f, in.log)

	var out []float32
	var rendered int64 // samples per channel
	frameLen := int64(in.cfg.frameLength)
	for _, batch := range tl.Batches() {
		at := intseq.TicksToDuration(in.cfg.bpm, f.PPQN, batch[0].Tick)
		target := int64(at.Seconds() * float64(rate))
		for rendered < target {
			out = append(out, engine.ProduceFrame()...)
			rendered += frameLen
		}
		for _, ev := range batch {
			engine.HandleMessage(ev.Track, ev.Message)
		}
	}
	limit := rendered + int64(maxTail.Seconds()*float64(rate))
	for engine.ActiveVoiceCount() > 0 && rendered < limit {
		out = append(out, engine.ProduceFrame()...)
		rendered += frameLen
	}
	in.log.Info("rendered", "events", len(tl.Events), "dropped", tl.Dropped, "frames", rendered)
	return Rendering{Samples: out, SampleRate: rate, Channels: channels}
}

// RenderFile renders the MIDI file at midiPath into a 16-bit WAV at wavPath
// and reports its levels.
func (in *Instrument) RenderFile(midiPath, wavPath string) (Levels, error) {
	f, err := intmidi.LoadFile(midiPath)
	if err != nil {
		return Levels{}, err
	}
	r := in.Render(f)
	if err := recording.WriteFile(wavPath, r.Samples, r.SampleRate, r.Channels); err != nil {
		return Levels{}, err
	}
	return MeasureLevels(r), nil
}

// Levels summarizes a rendering.
type Levels struct {
	Peak     float64 // largest absolute sample
	RMS      float64
	Clipped  int // samples outside [-1, 1]
	Duration time.Duration
}

// MeasureLevels computes peak and RMS over all channels.
func MeasureLevels(r Rendering) Levels {
	lv := Levels{Duration: r.Duration()}
	if len(r.Samples) == 0 {
		return lv
	}
	xs := make([]float64, len(r.Samples))
	for i, s := range r.Samples {
		xs[i] = float64(s)
		if s > 1 || s < -1 {
			lv.Clipped++
		}
	}
	lv.Peak = math.Max(floats.Max(xs), -floats.Min(xs))
	lv.RMS = floats.Norm(xs, 2) / math.Sqrt(float64(len(xs)))
	return lv
}
