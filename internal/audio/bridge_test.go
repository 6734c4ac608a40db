package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(start, n int) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = float32(start + i)
	}
	return f
}

func TestFillWithoutFramesIsSilent(t *testing.T) {
	b := NewBridge(make(chan Frame), 4)
	dst := []float32{1, 1, 1, 1}
	n := b.Fill(dst)
	assert.Equal(t, 0, n)
	assert.Equal(t, []float32{0, 0, 0, 0}, dst)
	assert.Len(t, b.Requests(), 1, "an empty leftover still asks for a frame")

	st := b.Stats()
	assert.Equal(t, uint64(1), st.Callbacks)
	assert.Equal(t, uint64(1), st.Underruns)

	select {
	case g := <-b.Glitches():
		assert.Equal(t, Glitch{Requested: 4, Delivered: 0}, g)
	default:
		t.Fatal("expected a glitch report")
	}
}

func TestDebtAccumulatesAndIsPaid(t *testing.T) {
	b := NewBridge(make(chan Frame), 1)
	dst := make([]float32, 8)
	for i := 0; i < 3; i++ {
		b.Fill(dst)
	}
	require.Len(t, b.Requests(), 1)
	assert.Equal(t, int64(2), b.Debt())

	<-b.Requests()
	b.Fill(nil)
	assert.Equal(t, int64(1), b.Debt())

	<-b.Requests()
	b.Fill(nil)
	assert.Equal(t, int64(0), b.Debt())
	assert.Equal(t, uint64(3), b.Stats().Requests, "every request is eventually sent")
}

func TestLeftoverCarriesAcrossCallbacks(t *testing.T) {
	frames := make(chan Frame, 2)
	frames <- ramp(0, 512)
	frames <- ramp(512, 512)
	b := NewBridge(frames, 8)

	next := float32(0)
	for _, size := range []int{300, 300, 300, 124} {
		dst := make([]float32, size)
		require.Equal(t, size, b.Fill(dst))
		for i, s := range dst {
			if s != next {
				t.Fatalf("size %d sample %d = %v, want %v", size, i, s, next)
			}
			next++
		}
	}
	assert.Equal(t, uint64(0), b.Stats().Underruns)
	assert.Len(t, b.Requests(), 2, "one request per frame taken")

	dst := make([]float32, 10)
	assert.Equal(t, 0, b.Fill(dst))
	assert.Len(t, b.Requests(), 3)
}

func TestPartialFillKeepsDeliveredSamples(t *testing.T) {
	frames := make(chan Frame, 1)
	frames <- ramp(1, 4)
	b := NewBridge(frames, 8)

	dst := make([]float32, 6)
	assert.Equal(t, 4, b.Fill(dst))
	assert.Equal(t, []float32{1, 2, 3, 4, 0, 0}, dst)

	g := <-b.Glitches()
	assert.Equal(t, 6, g.Requested)
	assert.Equal(t, 4, g.Delivered)
}

func TestClosedFrameChannelIsSilence(t *testing.T) {
	frames := make(chan Frame)
	close(frames)
	b := NewBridge(frames, 8)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 0, b.Fill(make([]float32, 16)))
	}
	assert.Equal(t, uint64(3), b.Stats().Underruns)
}

func TestFanoutCountsLag(t *testing.T) {
	f := NewFanout()
	a := f.Subscribe("device", 1)
	r := f.Subscribe("recording", 2)

	for i := 0; i < 3; i++ {
		f.Publish(ramp(i, 1))
	}
	assert.Equal(t, uint64(2), a.Lagged())
	assert.Equal(t, uint64(1), r.Lagged())
	assert.Equal(t, uint64(1), r.TakeLagged())
	assert.Equal(t, uint64(0), r.Lagged())

	first := <-a.C
	assert.Equal(t, Frame{0}, first)

	f.Close()
	f.Publish(ramp(9, 1))
	f.Close()

	_, ok := <-a.C
	assert.False(t, ok)
	assert.Len(t, r.C, 2)

	late := f.Subscribe("late", 1)
	_, ok = <-late.C
	assert.False(t, ok)
}

type constSource struct{ v float32 }

func (s constSource) Fill(dst []float32) int {
	for i := range dst {
		dst[i] = s.v
	}
	return len(dst)
}

func TestStreamReaderEncodesWholeFrames(t *testing.T) {
	r := NewStreamReader(constSource{v: 0.25}, 2)

	p := make([]byte, 20)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, 16, n)
	for i := 0; i < n; i += 4 {
		assert.Equal(t, float32(0.25), math.Float32frombits(binary.LittleEndian.Uint32(p[i:])))
	}

	n, err = r.Read(make([]byte, 7))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
