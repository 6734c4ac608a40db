package device

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/cbegin/nocturne-go/internal/audio"
)

// oto allows a single context per process.
var (
	otoOnce       sync.Once
	otoContext    *oto.Context
	otoErr        error
	otoSampleRate int
	otoChannels   int
)

func sharedOtoContext(sampleRate, channels int, bufferSize time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoSampleRate, otoChannels = sampleRate, channels
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("create oto context: %w", err)
			return
		}
		<-ready
		otoContext = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoSampleRate != sampleRate || otoChannels != channels {
		return nil, fmt.Errorf("oto context already initialized at %d Hz x%d (requested %d Hz x%d)",
			otoSampleRate, otoChannels, sampleRate, channels)
	}
	return otoContext, nil
}

type otoDevice struct {
	player     *oto.Player
	sampleRate int
	channels   int
}

func openOto(sampleRate, channels int, bufferSize time.Duration, src audio.SampleSource) (*otoDevice, error) {
	ctx, err := sharedOtoContext(sampleRate, channels, bufferSize)
	if err != nil {
		return nil, err
	}
	p := ctx.NewPlayer(audio.NewStreamReader(src, channels))
	return &otoDevice{player: p, sampleRate: sampleRate, channels: channels}, nil
}

func (d *otoDevice) SampleRate() int { return d.sampleRate }
func (d *otoDevice) Channels() int   { return d.channels }
func (d *otoDevice) Play()           { d.player.Play() }
func (d *otoDevice) Pause()          { d.player.Pause() }

func (d *otoDevice) Close() error {
	d.player.Pause()
	return d.player.Close()
}
