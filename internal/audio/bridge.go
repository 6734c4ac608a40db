package audio

import "sync/atomic"

// Glitch describes a device callback that could not be filled completely.
type Glitch struct {
	Requested int
	Delivered int
	Debt      int64
}

// Stats is a snapshot of bridge counters.
type Stats struct {
	Callbacks       uint64
	Underruns       uint64
	Requests        uint64
	Debt            int64
	GlitchesDropped uint64
	// Dropped counts frames that never reached the bridge because its
	// queue was full. The bridge cannot see these; the owner of its
	// subscription fills it in.
	Dropped uint64
}

// Bridge hands produced frames to a device callback. Fill is the only method
// meant for the callback goroutine: it never blocks, locks or allocates.
// Every time Fill needs a new frame it also asks the producer for one more
// through Requests; requests that do not fit are kept as debt and sent by a
// later Fill.
type Bridge struct {
	frames   <-chan Frame
	requests chan struct{}
	glitches chan Glitch

	// owned by the callback goroutine
	leftover Frame
	cursor   int

	debt            atomic.Int64
	callbacks       atomic.Uint64
	underruns       atomic.Uint64
	sent            atomic.Uint64
	glitchesDropped atomic.Uint64
}

// NewBridge creates a bridge consuming frames. requestCapacity bounds the
// request channel; values below 1 use ChannelBuffer.
func NewBridge(frames <-chan Frame, requestCapacity int) *Bridge {
	if requestCapacity < 1 {
		requestCapacity = ChannelBuffer
	}
	return &Bridge{
		frames:   frames,
		requests: make(chan struct{}, requestCapacity),
		glitches: make(chan Glitch, ChannelBuffer),
	}
}

// Requests delivers one value per frame the callback wants produced.
func (b *Bridge) Requests() <-chan struct{} { return b.requests }

// Glitches reports short fills. Reports are dropped when nobody drains them.
func (b *Bridge) Glitches() <-chan Glitch { return b.glitches }

// Debt is the number of requests still waiting for room in the request
// channel.
func (b *Bridge) Debt() int64 { return b.debt.Load() }

// Stats returns the current counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Callbacks:       b.callbacks.Load(),
		Underruns:       b.underruns.Load(),
		Requests:        b.sent.Load(),
		Debt:            b.debt.Load(),
		GlitchesDropped: b.glitchesDropped.Load(),
	}
}

// Fill zeroes dst and copies as many buffered samples into it as are
// available. It returns the number of samples delivered; the remainder of dst
// stays silent.
func (b *Bridge) Fill(dst []float32) int {
	clear(dst)
	b.callbacks.Add(1)
	b.payDebt()

	n := 0
	for n < len(dst) {
		if b.cursor >= len(b.leftover) {
			f, ok := b.next()
			b.request()
			if !ok {
				break
			}
			b.leftover, b.cursor = f, 0
		}
		c := copy(dst[n:], b.leftover[b.cursor:])
		n += c
		b.cursor += c
	}

	if n < len(dst) {
		b.underruns.Add(1)
		select {
		case b.glitches <- Glitch{Requested: len(dst), Delivered: n, Debt: b.debt.Load()}:
		default:
			b.glitchesDropped.Add(1)
		}
	}
	return n
}

func (b *Bridge) next() (Frame, bool) {
	select {
	case f, ok := <-b.frames:
		if !ok {
			b.frames = nil
			return nil, false
		}
		if len(f) == 0 {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// request owes one more frame and pays as much of the debt as fits.
func (b *Bridge) request() {
	b.debt.Add(1)
	b.payDebt()
}

func (b *Bridge) payDebt() {
	for b.debt.Load() > 0 {
		select {
		case b.requests <- struct{}{}:
			b.debt.Add(-1)
			b.sent.Add(1)
		default:
			return
		}
	}
}
