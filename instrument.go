package nocturne

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	intaudio "github.com/cbegin/nocturne-go/internal/audio"
	"github.com/cbegin/nocturne-go/internal/audio/device"
	intmidi "github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/recording"
	intseq "github.com/cbegin/nocturne-go/internal/sequencer"
	"github.com/cbegin/nocturne-go/internal/synth"
	intwt "github.com/cbegin/nocturne-go/internal/wavetable"
)

// Backend selects the audio output.
type Backend = device.Backend

const (
	BackendEbiten = device.BackendEbiten
	BackendOto    = device.BackendOto
	BackendNull   = device.BackendNull
)

// Waveform is an oscillator shape.
type Waveform = intwt.Shape

const (
	WaveformSine     = intwt.Sine
	WaveformSquare   = intwt.Square
	WaveformSawtooth = intwt.Sawtooth
	WaveformTriangle = intwt.Triangle
)

// ErrBusy is returned when a second playback is started on an instrument.
var ErrBusy = errors.New("instrument is already playing")

type Option func(*config)

type config struct {
	backend      Backend
	sampleRate   int
	channels     int
	frameLength  int
	buffersAhead int
	bufferSize   time.Duration
	recordPath   string
	waveform     Waveform
	fixedWave    bool
	rates        synth.Rates
	filterFactor float32
	cutoffHz     float64
	tremoloDepth float32
	tremoloHz    float64
	bpm          float64
	log          *slog.Logger
}

func defaultConfig() config {
	p := synth.DefaultParams()
	return config{
		backend:      BackendEbiten,
		sampleRate:   device.DefaultSampleRate,
		channels:     2,
		frameLength:  intaudio.FrameLength,
		buffersAhead: intaudio.BuffersAhead,
		waveform:     p.Waveform,
		rates:        p.Rates,
		filterFactor: p.FilterFactor,
		bpm:          intseq.DefaultBPM,
		log:          slog.Default(),
	}
}

func WithBackend(b Backend) Option {
	return func(cfg *config) { cfg.backend = b }
}

// WithSampleRate requests an output rate. Backends may only support some
// rates.
func WithSampleRate(hz int) Option {
	return func(cfg *config) { cfg.sampleRate = hz }
}

// WithChannels requests an output channel count. The ebiten backend is
// always stereo.
func WithChannels(n int) Option {
	return func(cfg *config) { cfg.channels = n }
}

// WithFrameLength sets the samples per channel of each produced frame.
func WithFrameLength(n int) Option {
	return func(cfg *config) { cfg.frameLength = n }
}

// WithBuffersAhead sets how many frames are produced before playback starts.
func WithBuffersAhead(n int) Option {
	return func(cfg *config) { cfg.buffersAhead = n }
}

// WithDeviceBuffer sets the backend's own buffer duration.
func WithDeviceBuffer(d time.Duration) Option {
	return func(cfg *config) { cfg.bufferSize = d }
}

// WithRecording mirrors the output to a 16-bit WAV file at path.
func WithRecording(path string) Option {
	return func(cfg *config) { cfg.recordPath = path }
}

// WithWaveform plays every track with w. Without it, file tracks cycle
// through sawtooth, sine, triangle and square.
func WithWaveform(w Waveform) Option {
	return func(cfg *config) {
		cfg.waveform = w
		cfg.fixedWave = true
	}
}

// WithEnvelope sets the per-sample attack, held-note decay and release rates.
func WithEnvelope(attack, decay, release float32) Option {
	return func(cfg *config) {
		cfg.rates = synth.Rates{Attack: attack, OnlineDecay: decay, Release: release}
	}
}

// WithFilterFactor sets the output smoothing weight in (0, 1]. 1 disables
// smoothing.
func WithFilterFactor(a float32) Option {
	return func(cfg *config) { cfg.filterFactor = a }
}

// WithFilterCutoff derives the smoothing factor from a -3dB cutoff frequency
// instead.
func WithFilterCutoff(hz float64) Option {
	return func(cfg *config) { cfg.cutoffHz = hz }
}

// WithTremolo adds amplitude modulation of depth in [0, 1] at rateHz.
func WithTremolo(depth float32, rateHz float64) Option {
	return func(cfg *config) {
		cfg.tremoloDepth = depth
		cfg.tremoloHz = rateHz
	}
}

// WithBPM sets the tempo used to replay files.
func WithBPM(bpm float64) Option {
	return func(cfg *config) { cfg.bpm = bpm }
}

func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.log = l
		}
	}
}

// Instrument plays MIDI input through a synthesizer to an audio device.
type Instrument struct {
	cfg    config
	log    *slog.Logger
	resets chan struct{}
	voices  atomic.Int64
	dropped atomic.Uint64

	mu      sync.Mutex
	playing bool
	stats   intaudio.Stats
}

// New validates the options and returns an idle instrument.
func New(opts ...Option) (*Instrument, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if _, _, err := device.Negotiate(cfg.deviceConfig(nil)); err != nil {
		return nil, err
	}
	switch {
	case cfg.sampleRate <= 0:
		return nil, errors.New("sample rate must be positive")
	case cfg.frameLength <= 0:
		return nil, errors.New("frame length must be positive")
	case cfg.buffersAhead < 1:
		return nil, errors.New("buffers ahead must be at least 1")
	case cfg.bpm <= 0:
		return nil, errors.New("bpm must be positive")
	case cfg.filterFactor <= 0 || cfg.filterFactor > 1:
		return nil, fmt.Errorf("filter factor %v outside (0, 1]", cfg.filterFactor)
	case cfg.rates.Attack <= 0:
		return nil, errors.New("attack rate must be positive")
	case cfg.cutoffHz < 0 || cfg.tremoloHz < 0:
		return nil, errors.New("frequencies must not be negative")
	case cfg.tremoloDepth < 0 || cfg.tremoloDepth > 1:
		return nil, fmt.Errorf("tremolo depth %v outside [0, 1]", cfg.tremoloDepth)
	}
	return &Instrument{
		cfg:    cfg,
		log:    cfg.log,
		resets: make(chan struct{}, 1),
	}, nil
}

// AllNotesOff silences every sounding voice of the current playback.
func (in *Instrument) AllNotesOff() {
	select {
	case in.resets <- struct{}{}:
	default:
	}
}

// Playing reports whether a playback is running.
func (in *Instrument) Playing() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.playing
}

// ActiveVoices is the number of voices sounding in the running playback, as
// of the producer's last step.
func (in *Instrument) ActiveVoices() int {
	return int(in.voices.Load())
}

// Stats returns the bridge counters of the last finished playback.
func (in *Instrument) Stats() intaudio.Stats {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.stats
}

func (cfg config) deviceConfig(log *slog.Logger) device.Config {
	return device.Config{
		Backend:    cfg.backend,
		SampleRate: cfg.sampleRate,
		Channels:   cfg.channels,
		BufferSize: cfg.bufferSize,
		Logger:     log,
	}
}

func (in *Instrument) deviceConfig() device.Config {
	return in.cfg.deviceConfig(in.log)
}

func (in *Instrument) params() synth.Params {
	return synth.Params{
		Waveform:     in.cfg.waveform,
		Rates:        in.cfg.rates,
		FilterFactor: in.cfg.filterFactor,
		CutoffHz:     in.cfg.cutoffHz,
		TremoloDepth: in.cfg.tremoloDepth,
		TremoloHz:    in.cfg.tremoloHz,
		FrameLength:  in.cfg.frameLength,
	}
}

// trackMessage is a message tagged with the track whose instrument plays it.
type trackMessage struct {
	track int
	msg   intmidi.RawMessage
}

// feedFunc delivers messages until its input ends or ctx is done. It must not
// close events.
type feedFunc func(ctx context.Context, events chan<- trackMessage) error

// PlayDevice plays live input from MIDI port until ctx is cancelled.
func (in *Instrument) PlayDevice(ctx context.Context, port int) error {
	src, err := intmidi.OpenDevice(port, in.log)
	if err != nil {
		return err
	}
	defer src.Close()
	return in.play(ctx, false, func(ctx context.Context, events chan<- trackMessage) error {
		// closing early unblocks the driver thread while the device drains
		defer src.Close()
		for {
			select {
			case <-ctx.Done():
				return nil
			case m := <-src.Messages():
				select {
				case events <- trackMessage{msg: m}:
				case <-ctx.Done():
					return nil
				}
			}
		}
	})
}

// PlayFile replays the MIDI file at path and returns once every note has
// faded out, or when ctx is cancelled.
func (in *Instrument) PlayFile(ctx context.Context, path string) error {
	f, err := intmidi.LoadFile(path)
	if err != nil {
		return err
	}
	return in.PlayMIDI(ctx, f)
}

// PlayMIDI is PlayFile for an already parsed file.
func (in *Instrument) PlayMIDI(ctx context.Context, f *intmidi.File) error {
	tl := intseq.FromFile(f, in.log)
	in.log.Info("timeline built", "events", len(tl.Events), "tracks", tl.Tracks, "dropped", tl.Dropped, "ppqn", f.PPQN)
	opts := intseq.Options{BPM: in.cfg.bpm, PPQN: f.PPQN, Logger: in.log}
	return in.play(ctx, true, func(ctx context.Context, events chan<- trackMessage) error {
		return replayTracks(ctx, tl, events, opts)
	})
}

// replayTracks runs the quantizer into one channel per track and merges the
// tracks into events.
func replayTracks(ctx context.Context, tl intseq.Timeline, events chan<- trackMessage, opts intseq.Options) error {
	chans := make([]chan intmidi.RawMessage, tl.Tracks)
	outs := make([]chan<- intmidi.RawMessage, tl.Tracks)
	var fanIn errgroup.Group
	for i := range chans {
		c := make(chan intmidi.RawMessage, intmidi.ChannelBuffer)
		chans[i], outs[i] = c, c
		track := i
		fanIn.Go(func() error {
			for m := range c {
				select {
				case events <- trackMessage{track: track, msg: m}:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	err := intseq.Replay(ctx, tl, outs, opts)
	for _, c := range chans {
		close(c)
	}
	if werr := fanIn.Wait(); err == nil {
		err = werr
	}
	return err
}

func (in *Instrument) begin() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.playing {
		return ErrBusy
	}
	in.playing = true
	return nil
}

func (in *Instrument) end(st intaudio.Stats) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.playing = false
	in.stats = st
	in.voices.Store(0)
}

// play opens the device, runs feed and the producer until feed is done and
// the voices are silent (finite) or ctx is cancelled, then tears everything
// down: device paused, input closed, recording finalized, device closed.
func (in *Instrument) play(ctx context.Context, finite bool, feed feedFunc) (err error) {
	if err := in.begin(); err != nil {
		return err
	}

	fan := intaudio.NewFanout()
	devSub := fan.Subscribe("device", intaudio.ChannelBuffer)
	bridge := intaudio.NewBridge(devSub.C, intaudio.ChannelBuffer)
	dev, err := device.Open(in.deviceConfig(), bridge)
	if err != nil {
		in.end(intaudio.Stats{})
		return err
	}
	rate, channels := dev.SampleRate(), dev.Channels()

	var rec *recording.Recorder
	if in.cfg.recordPath != "" {
		rec, err = recording.Start(in.cfg.recordPath, rate, channels, fan.Subscribe("recording", intaudio.ChannelBuffer), in.log)
		if err != nil {
			_ = dev.Close()
			in.end(intaudio.Stats{})
			return err
		}
	}

	defer func() {
		dev.Pause()
		fan.Close()
		if rec != nil {
			if rerr := rec.Close(); rerr != nil && err == nil {
				err = rerr
			}
		}
		if derr := dev.Close(); derr != nil && err == nil {
			err = fmt.Errorf("close audio device: %w", derr)
		}
		st := bridge.Stats()
		st.Dropped = in.dropped.Swap(0) + devSub.TakeLagged()
		in.log.Info("playback stopped", "callbacks", st.Callbacks, "underruns", st.Underruns, "debt", st.Debt, "dropped", st.Dropped)
		in.end(st)
	}()

	engine := synth.NewMultiEngine(rate, channels, in.params(), !in.cfg.fixedWave, in.log)
	for i := 0; i < in.cfg.buffersAhead; i++ {
		fan.Publish(engine.ProduceFrame())
	}

	// drain any reset requested while idle
	select {
	case <-in.resets:
	default:
	}

	sessCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(sessCtx)
	events := make(chan trackMessage, intmidi.ChannelBuffer)

	dev.Play()
	in.log.Info("playback started", "sample_rate", rate, "channels", channels)

	g.Go(func() error {
		defer close(events)
		return feed(gctx, events)
	})
	g.Go(func() error {
		in.logGlitches(gctx, bridge)
		return nil
	})
	g.Go(func() error {
		defer stop()
		return in.produce(gctx, engine, bridge, devSub, fan, events, finite)
	})

	if werr := g.Wait(); werr != nil && !isCancel(werr) {
		return werr
	}
	return nil
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// produce is the synthesis loop: exactly one message, buffer request or reset
// is handled per iteration.
func (in *Instrument) produce(ctx context.Context, engine *synth.MultiEngine, bridge *intaudio.Bridge,
	devSub *intaudio.Subscription, fan *intaudio.Fanout, events <-chan trackMessage, finite bool) error {
	inputDone := false
	draining := false
	for {
		in.voices.Store(int64(engine.ActiveVoiceCount()))
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-events:
			if !ok {
				events = nil
				inputDone = true
				continue
			}
			engine.HandleMessage(m.track, m.msg)
		case <-bridge.Requests():
			if draining {
				if len(devSub.C) == 0 {
					in.log.Info("playback finished")
					return nil
				}
				continue
			}
			fan.Publish(engine.ProduceFrame())
			in.checkDeviceLag(devSub)
			if finite && inputDone && engine.ActiveVoiceCount() == 0 {
				draining = true
			}
		case <-in.resets:
			in.log.Info("all notes off")
			engine.Reset()
		}
	}
}

// checkDeviceLag logs frames the fan-out dropped because the device queue was
// full and adds them to dropped.
func (in *Instrument) checkDeviceLag(sub *intaudio.Subscription) {
	if n := sub.TakeLagged(); n > 0 {
		in.dropped.Add(n)
		in.log.Warn("device queue full, frames dropped", "frames", n, "total", in.dropped.Load())
	}
}

func (in *Instrument) logGlitches(ctx context.Context, bridge *intaudio.Bridge) {
	for {
		select {
		case <-ctx.Done():
			return
		case g := <-bridge.Glitches():
			in.log.Debug("audio underrun", "requested", g.Requested, "delivered", g.Delivered, "debt", g.Debt)
		}
	}
}
