package audio

const (
	// FrameLength is the number of samples per channel in one produced frame.
	FrameLength = 512

	// ChannelBuffer is the capacity of the frame and buffer request channels.
	ChannelBuffer = 50

	// BuffersAhead is how many frames are produced before playback starts.
	BuffersAhead = 5
)

// Frame is a block of channel-interleaved samples. It must not be modified
// once published.
type Frame []float32

// SampleSource fills dst with samples and reports how many it produced. The
// rest of dst is silence.
type SampleSource interface {
	Fill(dst []float32) int
}
