package midi

import (
	"log/slog"
	"sync"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ChannelBuffer is the capacity of message channels between MIDI sources and
// the synthesizer.
const ChannelBuffer = 50

// Port describes an available MIDI input port.
type Port struct {
	Number int
	Name   string
}

// ListInPorts returns the input ports of the registered driver. A driver
// (e.g. rtmididrv) must be imported by the program.
func ListInPorts() []Port {
	ins := gomidi.GetInPorts()
	ports := make([]Port, 0, len(ins))
	for _, in := range ins {
		ports = append(ports, Port{Number: in.Number(), Name: in.String()})
	}
	return ports
}

// DeviceSource streams messages from a live MIDI input port.
type DeviceSource struct {
	messages chan RawMessage
	done     chan struct{}
	port     drivers.In
	stop     func()
	once     sync.Once
	log      *slog.Logger
}

// OpenDevice connects to input port number and starts listening.
func OpenDevice(port int, log *slog.Logger) (*DeviceSource, error) {
	if log == nil {
		log = slog.Default()
	}
	in, err := gomidi.InPort(port)
	if err != nil {
		return nil, errors.Wrapf(err, "open midi input port %d", port)
	}
	d := &DeviceSource{
		messages: make(chan RawMessage, ChannelBuffer),
		done:     make(chan struct{}),
		port:     in,
		log:      log.With("port", in.String()),
	}
	stop, err := gomidi.ListenTo(in, d.receive)
	if err != nil {
		_ = in.Close()
		return nil, errors.Wrapf(err, "listen on midi input port %d", port)
	}
	d.stop = stop
	d.log.Info("midi input connected")
	return d, nil
}

// receive runs on the driver's thread.
func (d *DeviceSource) receive(msg gomidi.Message, timestampms int32) {
	raw, err := NewRawMessage(uint64(timestampms), []byte(msg))
	if err != nil {
		d.log.Debug("ignoring midi message", "msg", msg.String(), "err", err)
		return
	}
	select {
	case d.messages <- raw:
	case <-d.done:
	}
}

// Messages returns the stream of incoming messages. It is never closed;
// callers stop reading once they have called Close.
func (d *DeviceSource) Messages() <-chan RawMessage {
	return d.messages
}

// Close stops listening and closes the port. It is safe to call more than
// once.
func (d *DeviceSource) Close() error {
	var err error
	d.once.Do(func() {
		close(d.done)
		if d.stop != nil {
			d.stop()
		}
		if cerr := d.port.Close(); cerr != nil {
			err = errors.Wrap(cerr, "close midi input port")
		}
		d.log.Info("midi input closed")
	})
	return err
}

// CloseDriver releases the registered MIDI driver. Call once before exit.
func CloseDriver() {
	gomidi.CloseDriver()
}
