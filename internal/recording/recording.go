// Package recording writes rendered audio to 16-bit PCM WAV files.
package recording

import (
	"log/slog"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"

	intaudio "github.com/cbegin/nocturne-go/internal/audio"
)

const bitDepth = 16

// Quantize maps a float sample to a 16-bit integer, clipping to [-1, 1].
func Quantize(s float32) int {
	switch {
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	case math.IsNaN(float64(s)):
		s = 0
	}
	return int(math.Round(float64(s) * 32767))
}

type sink struct {
	f   *os.File
	enc *wav.Encoder
	buf *audio.IntBuffer
}

func create(path string, sampleRate, channels int) (*sink, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, errors.Errorf("invalid recording format %d Hz x%d", sampleRate, channels)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create recording")
	}
	return &sink{
		f:   f,
		enc: wav.NewEncoder(f, sampleRate, bitDepth, channels, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
			SourceBitDepth: bitDepth,
		},
	}, nil
}

func (s *sink) write(samples []float32) error {
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, v := range samples {
		s.buf.Data[i] = Quantize(v)
	}
	return errors.Wrap(s.enc.Write(s.buf), "write recording")
}

// close patches the WAV header and closes the file.
func (s *sink) close() error {
	encErr := s.enc.Close()
	fileErr := s.f.Close()
	if encErr != nil {
		return errors.Wrap(encErr, "finalize recording")
	}
	return errors.Wrap(fileErr, "close recording")
}

// WriteFile writes interleaved samples to path in one go.
func WriteFile(path string, samples []float32, sampleRate, channels int) error {
	s, err := create(path, sampleRate, channels)
	if err != nil {
		return err
	}
	if err := s.write(samples); err != nil {
		_ = s.close()
		return err
	}
	return s.close()
}

// Recorder consumes frames from a fan-out subscription and writes them to a
// WAV file.
type Recorder struct {
	path   string
	sink   *sink
	sub    *intaudio.Subscription
	log    *slog.Logger
	done   chan struct{}
	err    error
	frames uint64
	lagged uint64
}

// Start creates path and begins recording every frame delivered to sub. The
// recorder stops when sub's channel is closed.
func Start(path string, sampleRate, channels int, sub *intaudio.Subscription, log *slog.Logger) (*Recorder, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := create(path, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	r := &Recorder{
		path: path,
		sink: s,
		sub:  sub,
		log:  log.With("path", path),
		done: make(chan struct{}),
	}
	go r.run()
	r.log.Info("recording started", "sample_rate", sampleRate, "channels", channels)
	return r, nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for frame := range r.sub.C {
		if n := r.sub.TakeLagged(); n > 0 {
			r.lagged += n
			r.log.Warn("recording fell behind, frames skipped", "frames", n)
		}
		if r.err != nil {
			continue
		}
		if err := r.sink.write(frame); err != nil {
			r.err = err
			r.log.Error("recording write failed", "err", err)
			continue
		}
		r.frames++
	}
	r.lagged += r.sub.TakeLagged()
}

// Close waits for the subscription to be closed and drained, then finalizes
// the file. The first write or finalize error is returned.
func (r *Recorder) Close() error {
	<-r.done
	err := r.sink.close()
	if r.err != nil {
		err = r.err
	}
	if err != nil {
		return err
	}
	r.log.Info("recording finalized", "frames", r.frames, "skipped", r.lagged)
	return nil
}

// Path is the output file.
func (r *Recorder) Path() string { return r.path }
