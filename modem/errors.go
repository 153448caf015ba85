package modem

import (
	"errors"
	"fmt"

	"i4.energy/across/gsmgw/at"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNoPortName is returned by SerialDialer.Dial when no port name
	// was configured.
	ErrNoPortName = errors.New("gsm: serial port name is required")

	// ErrNilContext is returned by SerialDialer.Dial when the context is nil.
	ErrNilContext = errors.New("gsm: context is nil")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if initialization failed or if the Modem was not created
	// via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when an exchange is attempted on an
	// Engine or Modem that has been closed. Close itself is idempotent
	// and never returns this.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrBusy is returned when an exchange is started while another one
	// is still in flight. The engine owns a single command/response
	// conversation; callers must serialize access themselves.
	ErrBusy = errors.New("command exchange already in progress")

	// ErrSync is returned by Synchronize when the modem acknowledged none
	// of the probe commands. The usual causes are a wrong baud rate, a
	// wrong device path, or a modem that is still booting.
	ErrSync = errors.New("modem failed to synchronize")

	// ErrSIMPinRequired is returned when the SIM card requires a PIN and no
	// PIN was provided in the Config.
	//
	// Callers may handle this error specially (for example, by prompting
	// the user for a PIN) and retry initialization.
	ErrSIMPinRequired = errors.New("SIM PIN required")

	// ErrSIMPukRequired is returned when the SIM card is PIN-blocked and
	// demands its unblock key. Entering the PUK is left to a human;
	// retrying it programmatically can brick the SIM.
	ErrSIMPukRequired = errors.New("SIM PUK required")

	// ErrLineTooLong is returned when a modem response line exceeds the
	// maximum allowed length.
	//
	// This typically indicates malformed input, unexpected binary data,
	// or a protocol framing error.
	ErrLineTooLong = errors.New("response line too long")
)

// CommandError reports a command exchange that completed with a terminal
// status other than the one the caller required. The exchange itself
// worked; the modem just said no. It carries the verbatim terminal line
// and the response tokens so callers can inspect extended reports such
// as "+CME ERROR: 10".
type CommandError struct {
	Command string
	Status  at.Status
	Final   string
	Tokens  []string
}

func (e *CommandError) Error() string {
	if e.Final != "" && e.Final != e.Status.String() {
		return fmt.Sprintf("%s: %s (%s)", e.Command, e.Status, e.Final)
	}
	return fmt.Sprintf("%s: %s", e.Command, e.Status)
}
