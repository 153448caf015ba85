package modem

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

const (
	defaultBaudRate = 115200

	// defaultReadTimeout bounds a single Transport.Read. The engine polls
	// in a loop, so a short window here only caps how long one empty poll
	// may block; it does not delay data that is already available.
	defaultReadTimeout = 20 * time.Millisecond
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to a GSM modem.
//
// A Transport is assumed to be already connected and ready for use. It provides
// the low-level I/O primitives required to send AT commands and receive responses.
// Typical implementations include serial ports, TCP connections to emulators,
// or in-memory fakes used for testing.
//
// Read must be bounded: when no data arrives within the transport's read
// window it returns (0, nil) rather than blocking forever. Any non-nil
// read or write error is treated as a broken link by the engine.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port, TCP-based emulator, or test double) and is intended to be used
// during modem construction only. Once a Transport is obtained, the Dialer is
// no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a GSM modem over a local serial port.
//
// The zero Mode dials 8N1 at 115200 baud, which is what most USB modems
// enumerate at. ReadTimeout caps a single blocking read on the resulting
// Transport; zero selects a poll-friendly default.
type SerialDialer struct {
	PortName    string
	Mode        *serial.Mode
	ReadTimeout time.Duration
}

var _ Dialer = SerialDialer{}

// NewSerialDialer returns a SerialDialer for the named port with 8N1
// framing at the given baud rate. A baud of zero keeps the default.
func NewSerialDialer(portName string, baud int) SerialDialer {
	d := SerialDialer{PortName: portName}
	if baud > 0 {
		d.Mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}
	return d
}

// Dial opens the configured port. The open itself is not interruptible,
// so cancellation is only honored up front.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if d.PortName == "" {
		return nil, ErrNoPortName
	}
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: defaultBaudRate,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("gsm: open %s: %w", d.PortName, err)
	}

	readTimeout := d.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("gsm: configure %s: %w", d.PortName, err)
	}

	return port, nil
}
