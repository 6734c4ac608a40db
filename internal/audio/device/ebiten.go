package device

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"

	"github.com/cbegin/nocturne-go/internal/audio"
)

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

type ebitenDevice struct {
	player     *ebitaudio.Player
	reader     *audio.StreamReader
	sampleRate int
}

func openEbiten(sampleRate int, bufferSize time.Duration, src audio.SampleSource) (*ebitenDevice, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := audio.NewStreamReader(src, 2)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("create ebiten player: %w", err)
	}
	if bufferSize > 0 {
		pl.SetBufferSize(bufferSize)
	}
	return &ebitenDevice{player: pl, reader: reader, sampleRate: sampleRate}, nil
}

func (d *ebitenDevice) SampleRate() int { return d.sampleRate }
func (d *ebitenDevice) Channels() int   { return 2 }
func (d *ebitenDevice) Play()           { d.player.Play() }
func (d *ebitenDevice) Pause()          { d.player.Pause() }

func (d *ebitenDevice) Close() error {
	d.player.Pause()
	if err := d.player.Close(); err != nil {
		return err
	}
	return d.reader.Close()
}
