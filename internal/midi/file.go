package midi

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ErrTimecode is returned for files using SMPTE timecode instead of
// pulses-per-quarter-note timing.
var ErrTimecode = errors.New("midi: SMPTE timecode files are not supported")

// File is a parsed standard MIDI file.
type File struct {
	Tracks []smf.Track
	PPQN   uint16
}

// ParseFile parses the raw bytes of a standard MIDI file.
func ParseFile(data []byte) (*File, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "parse midi file")
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, errors.Wrapf(ErrTimecode, "time format %v", s.TimeFormat)
	}
	if ticks == 0 {
		return nil, errors.New("midi: header declares zero pulses per quarter note")
	}
	if len(s.Tracks) == 0 {
		return nil, errors.New("midi: file has no tracks")
	}
	return &File{Tracks: s.Tracks, PPQN: uint16(ticks)}, nil
}

// LoadFile reads and parses the standard MIDI file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read midi file %s", path)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	return f, nil
}
