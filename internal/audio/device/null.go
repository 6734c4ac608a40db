package device

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/nocturne-go/internal/audio"
)

// nullDevice pulls the source in real time and discards the samples. It
// stands in for a sound card on headless hosts and in tests.
type nullDevice struct {
	src        audio.SampleSource
	sampleRate int
	channels   int
	period     time.Duration
	buf        []float32

	playing atomic.Bool
	pulled  atomic.Uint64
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func openNull(sampleRate, channels int, src audio.SampleSource) *nullDevice {
	d := &nullDevice{
		src:        src,
		sampleRate: sampleRate,
		channels:   channels,
		period:     time.Duration(audio.FrameLength) * time.Second / time.Duration(sampleRate),
		buf:        make([]float32, audio.FrameLength*channels),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *nullDevice) run() {
	defer close(d.done)
	t := time.NewTicker(d.period)
	defer t.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-t.C:
			if d.playing.Load() {
				d.pulled.Add(uint64(d.src.Fill(d.buf)))
			}
		}
	}
}

func (d *nullDevice) SampleRate() int { return d.sampleRate }
func (d *nullDevice) Channels() int   { return d.channels }
func (d *nullDevice) Play()           { d.playing.Store(true) }
func (d *nullDevice) Pause()          { d.playing.Store(false) }

// Pulled is the number of samples delivered by the source so far.
func (d *nullDevice) Pulled() uint64 { return d.pulled.Load() }

func (d *nullDevice) Close() error {
	d.once.Do(func() {
		d.playing.Store(false)
		close(d.stop)
	})
	<-d.done
	return nil
}
