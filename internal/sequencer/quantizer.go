package sequencer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cbegin/nocturne-go/internal/midi"
)

// WaitFunc suspends for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real-time WaitFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options tune a replay.
type Options struct {
	BPM    float64 // DefaultBPM when zero
	PPQN   uint16
	Wait   WaitFunc // Sleep when nil
	Logger *slog.Logger
}

// Replay dispatches every event of tl to outs[event.Track], batching events
// that share a tick and waiting for the tick gap between batches. The last
// batch is not followed by a wait. Replay returns ctx.Err() when cancelled;
// messages already sent stay sent. It never closes outs.
func Replay(ctx context.Context, tl Timeline, outs []chan<- midi.RawMessage, opts Options) error {
	bpm := opts.BPM
	if bpm <= 0 {
		bpm = DefaultBPM
	}
	wait := opts.Wait
	if wait == nil {
		wait = Sleep
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	batches := tl.Batches()
	log.Info("replay started", "events", len(tl.Events), "tracks", tl.Tracks, "bpm", bpm, "ppqn", opts.PPQN)
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, ev := range batch {
			if ev.Track < 0 || ev.Track >= len(outs) || outs[ev.Track] == nil {
				log.Debug("no output for track", "track", ev.Track)
				continue
			}
			select {
			case outs[ev.Track] <- ev.Message:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if i == len(batches)-1 {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		gap := batches[i+1][0].Tick - batch[0].Tick
		if err := wait(ctx, TicksToDuration(bpm, opts.PPQN, gap)); err != nil {
			return err
		}
	}
	log.Info("replay finished")
	return nil
}
