// Package device connects an audio.SampleSource to an output backend.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cbegin/nocturne-go/internal/audio"
)

// ErrUnknownBackend is returned for backend names Open does not know.
var ErrUnknownBackend = errors.New("unknown audio backend")

// Backend names an output implementation.
type Backend string

const (
	BackendEbiten Backend = "ebiten"
	BackendOto    Backend = "oto"
	BackendNull   Backend = "null"
)

// Backends lists the supported backends, default first.
var Backends = []Backend{BackendEbiten, BackendOto, BackendNull}

// ParseBackend maps a CLI name to a Backend.
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrUnknownBackend, name)
}

// Device is an opened output. SampleRate and Channels are the values the
// backend actually negotiated.
type Device interface {
	SampleRate() int
	Channels() int
	Play()
	Pause()
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend    Backend
	SampleRate int
	Channels   int
	// BufferSize is the backend's internal buffering; zero keeps its default.
	BufferSize time.Duration
	Logger     *slog.Logger
}

// DefaultSampleRate is used when Config.SampleRate is not set.
const DefaultSampleRate = 48000

// Negotiate returns the sample rate and channel count Open would use for cfg
// without touching any hardware.
func Negotiate(cfg Config) (sampleRate, channels int, err error) {
	sampleRate = cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	channels = cfg.Channels
	if channels <= 0 {
		channels = 2
	}
	switch cfg.Backend {
	case BackendEbiten, "":
		// ebiten players are always stereo
		channels = 2
	case BackendOto, BackendNull:
	default:
		return 0, 0, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
	return sampleRate, channels, nil
}

// Open starts no playback; call Play on the returned device. src is pulled
// from the backend's audio goroutine.
func Open(cfg Config, src audio.SampleSource) (Device, error) {
	rate, channels, err := Negotiate(cfg)
	if err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("backend", string(cfg.Backend), "sample_rate", rate, "channels", channels)

	var d Device
	switch cfg.Backend {
	case BackendEbiten, "":
		d, err = openEbiten(rate, cfg.BufferSize, src)
	case BackendOto:
		d, err = openOto(rate, channels, cfg.BufferSize, src)
	case BackendNull:
		d = openNull(rate, channels, src)
	}
	if err != nil {
		return nil, err
	}
	log.Info("audio device opened")
	return d, nil
}
