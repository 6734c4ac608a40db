package sequencer

import (
	"math"
	"time"
)

// DefaultBPM is the tempo used when none is configured. Tempo meta events in
// files are not interpreted.
const DefaultBPM = 120.0

// TicksToDuration converts a tick count at the given tempo and resolution to
// wall-clock time, floored to whole nanoseconds.
func TicksToDuration(bpm float64, ppqn uint16, ticks int64) time.Duration {
	if bpm <= 0 || ppqn == 0 || ticks <= 0 {
		return 0
	}
	// one division keeps whole results exact
	nanos := float64(ticks) * float64(time.Minute) / (bpm * float64(ppqn))
	return time.Duration(math.Floor(nanos))
}
