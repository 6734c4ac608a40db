// Package sequencer turns multi-track MIDI files into a single timeline and
// replays it in real time.
package sequencer

import (
	"log/slog"
	"sort"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/nocturne-go/internal/midi"
)

// Event is one message at an absolute tick.
type Event struct {
	Tick    int64
	Track   int
	Message midi.RawMessage
}

// Timeline is the merged, tick-ordered event list of every track.
type Timeline struct {
	Events  []Event
	Tracks  int
	Dropped int // events that do not fit a raw message
}

// Build merges tracks into one timeline. Absolute ticks are the running sum
// of deltas within each track; ties keep track order. Messages longer than
// midi.MessageSize bytes (sysex, most meta events) are dropped. log may be
// nil.
func Build(tracks []smf.Track, log *slog.Logger) Timeline {
	if log == nil {
		log = slog.Default()
	}
	tl := Timeline{Tracks: len(tracks)}
	for ti, tr := range tracks {
		var tick int64
		for _, ev := range tr {
			tick += int64(ev.Delta)
			raw, err := midi.NewRawMessage(uint64(tick), ev.Message)
			if err != nil {
				tl.Dropped++
				log.Debug("dropping event", "track", ti, "tick", tick, "len", len(ev.Message), "err", err)
				continue
			}
			tl.Events = append(tl.Events, Event{Tick: tick, Track: ti, Message: raw})
		}
	}
	sort.SliceStable(tl.Events, func(i, j int) bool {
		return tl.Events[i].Tick < tl.Events[j].Tick
	})
	return tl
}

// FromFile builds the timeline of a parsed file.
func FromFile(f *midi.File, log *slog.Logger) Timeline {
	return Build(f.Tracks, log)
}

// Batches groups consecutive events sharing a tick. The returned slices alias
// tl.Events.
func (tl Timeline) Batches() [][]Event {
	var out [][]Event
	for i := 0; i < len(tl.Events); {
		j := i + 1
		for j < len(tl.Events) && tl.Events[j].Tick == tl.Events[i].Tick {
			j++
		}
		out = append(out, tl.Events[i:j])
		i = j
	}
	return out
}

// LastTick is the tick of the final event, or 0 for an empty timeline.
func (tl Timeline) LastTick() int64 {
	if len(tl.Events) == 0 {
		return 0
	}
	return tl.Events[len(tl.Events)-1].Tick
}
