package audio

import (
	"sync"
	"sync/atomic"
)

// Fanout broadcasts frames to every subscriber without ever blocking the
// publisher. A subscriber whose channel is full misses the frame and its lag
// counter grows.
type Fanout struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Subscription is one consumer of a Fanout.
type Subscription struct {
	C <-chan Frame

	name   string
	c      chan Frame
	lagged atomic.Uint64
}

func NewFanout() *Fanout { return &Fanout{} }

// Subscribe registers a consumer with the given channel capacity. Subscribing
// to a closed Fanout returns an already closed subscription.
func (f *Fanout) Subscribe(name string, buffer int) *Subscription {
	if buffer < 1 {
		buffer = ChannelBuffer
	}
	c := make(chan Frame, buffer)
	s := &Subscription{C: c, name: name, c: c}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		close(c)
		return s
	}
	f.subs = append(f.subs, s)
	return s
}

// Publish offers frame to every subscriber.
func (f *Fanout) Publish(frame Frame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	for _, s := range f.subs {
		select {
		case s.c <- frame:
		default:
			s.lagged.Add(1)
		}
	}
}

// Close closes every subscriber channel. Further publishes are ignored.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.subs {
		close(s.c)
	}
}

// Name identifies the subscriber in logs.
func (s *Subscription) Name() string { return s.name }

// Lagged is the total number of frames this subscriber missed.
func (s *Subscription) Lagged() uint64 { return s.lagged.Load() }

// TakeLagged returns the frames missed since the previous call.
func (s *Subscription) TakeLagged() uint64 { return s.lagged.Swap(0) }
