package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"golang.org/x/term"

	"github.com/cbegin/nocturne-go"
	"github.com/cbegin/nocturne-go/internal/audio/device"
	"github.com/cbegin/nocturne-go/internal/midi"
	"github.com/cbegin/nocturne-go/internal/sequencer"
	"github.com/cbegin/nocturne-go/internal/synth"
	"github.com/cbegin/nocturne-go/internal/wavetable"
)

var logger = slog.Default()

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

const usage = `usage: nocturne <command> [flags]

commands:
  list-ports   list MIDI input ports
  play-device  play a live MIDI input port (-port N)
  play-file    play a MIDI file (-midi path)
  render       render a MIDI file to WAV (-midi path -out path)

run "nocturne <command> -h" for command flags
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	defer midi.CloseDriver()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "list-ports":
		err = listPorts()
	case "play-device":
		err = playDevice(args)
	case "play-file":
		err = playFile(args)
	case "render":
		err = render(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Error("nocturne failed", "err", err)
		midi.CloseDriver()
		os.Exit(1)
	}
}

// synthFlags are shared by every command that builds an instrument.
type synthFlags struct {
	backend    *string
	sampleRate *int
	channels   *int
	waveform   *string
	attack     *float64
	decay      *float64
	release    *float64
	filter     *float64
	cutoff     *float64
	tremDepth  *float64
	tremRate   *float64
	bpm        *float64
	record     *string
	verbose    *bool
}

func addSynthFlags(fs *flag.FlagSet) *synthFlags {
	p := synth.DefaultParams()
	return &synthFlags{
		backend:    fs.String("backend", string(device.BackendEbiten), "audio backend: ebiten|oto|null"),
		sampleRate: fs.Int("sample-rate", device.DefaultSampleRate, "output sample rate"),
		channels:   fs.Int("channels", 2, "output channels (ebiten is always stereo)"),
		waveform:   fs.String("waveform", "", "waveform for every track: sine|square|sawtooth|triangle (default: cycle per track)"),
		attack:     fs.Float64("attack", float64(p.Rates.Attack), "envelope attack increment per sample"),
		decay:      fs.Float64("decay", float64(p.Rates.OnlineDecay), "held-note decay per sample"),
		release:    fs.Float64("release", float64(p.Rates.Release), "release decay per sample"),
		filter:     fs.Float64("filter", float64(p.FilterFactor), "output smoothing factor in (0, 1]"),
		cutoff:     fs.Float64("cutoff", 0, "smoothing cutoff in Hz, overrides -filter when set"),
		tremDepth:  fs.Float64("tremolo-depth", 0, "tremolo depth in [0, 1]"),
		tremRate:   fs.Float64("tremolo-rate", 5, "tremolo rate in Hz"),
		bpm:        fs.Float64("bpm", sequencer.DefaultBPM, "tempo for MIDI files"),
		record:     fs.String("record", "", "also record the output to this WAV file"),
		verbose:    fs.Bool("v", false, "debug logging"),
	}
}

func (f *synthFlags) options() ([]nocturne.Option, error) {
	initLogger(*f.verbose)
	backend, err := device.ParseBackend(*f.backend)
	if err != nil {
		return nil, fmt.Errorf("invalid -backend: %w", err)
	}
	opts := []nocturne.Option{
		nocturne.WithLogger(logger),
		nocturne.WithBackend(backend),
		nocturne.WithSampleRate(*f.sampleRate),
		nocturne.WithChannels(*f.channels),
		nocturne.WithEnvelope(float32(*f.attack), float32(*f.decay), float32(*f.release)),
		nocturne.WithFilterFactor(float32(*f.filter)),
		nocturne.WithFilterCutoff(*f.cutoff),
		nocturne.WithTremolo(float32(*f.tremDepth), *f.tremRate),
		nocturne.WithBPM(*f.bpm),
	}
	if strings.TrimSpace(*f.waveform) != "" {
		w, err := wavetable.ParseShape(*f.waveform)
		if err != nil {
			return nil, fmt.Errorf("invalid -waveform: %w", err)
		}
		opts = append(opts, nocturne.WithWaveform(w))
	}
	if *f.record != "" {
		opts = append(opts, nocturne.WithRecording(*f.record))
	}
	return opts, nil
}

func listPorts() error {
	ports := midi.ListInPorts()
	fmt.Println("--- Available MIDI input ports ---")
	for _, p := range ports {
		fmt.Printf("%d: %s\n", p.Number, p.Name)
	}
	if len(ports) == 0 {
		fmt.Println("(none)")
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func playDevice(args []string) error {
	fs := flag.NewFlagSet("play-device", flag.ExitOnError)
	port := fs.Int("port", 0, "MIDI input port number (see list-ports)")
	sf := addSynthFlags(fs)
	_ = fs.Parse(args)

	opts, err := sf.options()
	if err != nil {
		return err
	}
	inst, err := nocturne.New(opts...)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	if restore := watchKeys(ctx, cancel, inst); restore != nil {
		defer restore()
	}
	return inst.PlayDevice(ctx, *port)
}

// watchKeys puts an interactive terminal in raw mode: q or Ctrl-C quits, p
// sends all notes off. It returns nil when stdin is not a terminal.
func watchKeys(ctx context.Context, cancel context.CancelFunc, inst *nocturne.Instrument) func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		logger.Warn("keyboard controls unavailable", "err", err)
		return nil
	}
	fmt.Fprint(os.Stderr, "q: quit  p: all notes off\r\n")
	go func() {
		buf := make([]byte, 1)
		for ctx.Err() == nil {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			switch buf[0] {
			case 'q', 'Q', 0x03:
				cancel()
				return
			case 'p', 'P':
				inst.AllNotesOff()
			}
		}
	}()
	return func() { _ = term.Restore(fd, old) }
}

func playFile(args []string) error {
	fs := flag.NewFlagSet("play-file", flag.ExitOnError)
	path := fs.String("midi", "", "path to a standard MIDI file")
	sf := addSynthFlags(fs)
	_ = fs.Parse(args)
	if *path == "" {
		return errors.New("play-file needs -midi")
	}

	opts, err := sf.options()
	if err != nil {
		return err
	}
	inst, err := nocturne.New(opts...)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return inst.PlayFile(ctx, *path)
}

func render(args []string) error {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	path := fs.String("midi", "", "path to a standard MIDI file")
	out := fs.String("out", "", "output WAV path")
	sf := addSynthFlags(fs)
	_ = fs.Parse(args)
	if *path == "" || *out == "" {
		return errors.New("render needs -midi and -out")
	}

	opts, err := sf.options()
	if err != nil {
		return err
	}
	inst, err := nocturne.New(opts...)
	if err != nil {
		return err
	}
	lv, err := inst.RenderFile(*path, *out)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s: %s, peak %.3f, rms %.3f, clipped %d\n", *out, lv.Duration.Round(time.Millisecond), lv.Peak, lv.RMS, lv.Clipped)
	return nil
}
