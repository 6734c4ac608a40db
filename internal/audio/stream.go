package audio

import (
	"encoding/binary"
	"math"
)

// StreamReader exposes a SampleSource as the float32 little-endian byte
// stream pulled by audio players. Reads are whole sample frames only.
type StreamReader struct {
	source   SampleSource
	channels int
	buf      []float32
}

func NewStreamReader(source SampleSource, channels int) *StreamReader {
	if channels <= 0 {
		channels = 1
	}
	return &StreamReader{
		source:   source,
		channels: channels,
		buf:      make([]float32, FrameLength*channels),
	}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	frames := len(p) / (4 * r.channels)
	if frames == 0 {
		return 0, nil
	}
	need := frames * r.channels
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Fill(r.buf)
	for i, s := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
	}
	return need * 4, nil
}

func (r *StreamReader) Close() error { return nil }
