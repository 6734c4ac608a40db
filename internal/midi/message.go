package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
)

// MessageSize is the fixed size of a raw channel message. Longer events
// (sysex, most meta events) are not carried.
const MessageSize = 3

// RawMessage is a channel-voice message with the arrival timestamp reported
// by its source. Unused trailing bytes are zero.
type RawMessage struct {
	Timestamp uint64
	Data      [MessageSize]byte
}

// NewRawMessage copies b into a RawMessage. It fails when b does not fit.
func NewRawMessage(ts uint64, b []byte) (RawMessage, error) {
	var m RawMessage
	if len(b) == 0 || len(b) > MessageSize {
		return m, fmt.Errorf("midi: %d-byte message does not fit in %d bytes", len(b), MessageSize)
	}
	m.Timestamp = ts
	copy(m.Data[:], b)
	return m, nil
}

// NoteOn builds a raw note-on for channel, key and velocity.
func NoteOn(channel, key, velocity uint8) RawMessage {
	return RawMessage{Data: [MessageSize]byte{0x90 | channel&0x0F, key & 0x7F, velocity & 0x7F}}
}

// NoteOff builds a raw note-off for channel and key.
func NoteOff(channel, key uint8) RawMessage {
	return RawMessage{Data: [MessageSize]byte{0x80 | channel&0x0F, key & 0x7F, 0}}
}

// ControlChange builds a raw control change.
func ControlChange(channel, controller, value uint8) RawMessage {
	return RawMessage{Data: [MessageSize]byte{0xB0 | channel&0x0F, controller & 0x7F, value & 0x7F}}
}

// Len reports how many of the data bytes belong to the message, derived from
// the status byte.
func (m RawMessage) Len() int {
	status := m.Data[0]
	switch {
	case status < 0x80:
		return 0
	case status < 0xF0:
		switch status & 0xF0 {
		case 0xC0, 0xD0:
			return 2
		default:
			return 3
		}
	case status == 0xF1, status == 0xF3:
		return 2
	case status == 0xF2:
		return 3
	case status == 0xFF:
		// meta events that fit are always three bytes (e.g. end of track)
		return 3
	default:
		return 1
	}
}

// Message returns the message as a gomidi message for decoding.
func (m RawMessage) Message() gomidi.Message {
	return gomidi.Message(m.Data[:m.Len()])
}

func (m RawMessage) String() string {
	return fmt.Sprintf("% X @%d", m.Data[:m.Len()], m.Timestamp)
}
