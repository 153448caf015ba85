package modem

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"i4.energy/across/gsmgw/at"
)

const (
	// pollInterval is the sleep between empty transport reads while a
	// response is pending. It must stay well under any realistic command
	// timeout so it adds at most one interval of latency to a reply.
	pollInterval = 10 * time.Millisecond

	// readChunkSize is the transfer unit for a single transport read.
	// Modem replies are short; 256 bytes keeps even a full SMS listing
	// to a handful of reads.
	readChunkSize = 256

	// maxPendingBytes caps the unterminated tail of the receive buffer.
	// No AT response line comes anywhere near this; crossing it means
	// the link is delivering garbage or binary data.
	maxPendingBytes = 4096

	// Baud synchronization probing, after the previous gateway's
	// handshake: short per-probe window, brief pause between probes.
	syncProbeTimeout = 800 * time.Millisecond
	syncRetryDelay   = 150 * time.Millisecond

	// payloadPromptWindow bounds the wait for the modem to re-assert
	// the "> " prompt after an SMS body line. Modems that stay quiet
	// until Ctrl-Z are tolerated once the window closes.
	payloadPromptWindow = time.Second

	// DefaultSyncAttempts is the probe budget Synchronize assumes when
	// the caller passes a non-positive count.
	DefaultSyncAttempts = 4
)

// Commander is the capability set the messaging layer composes on: one
// blocking command/response conversation at a time against a single
// modem link. *Engine is the canonical implementation; the interface
// exists so policy code never reaches into engine internals.
type Commander interface {
	Send(command string, timeout time.Duration) (at.Result, error)
	SendPayload(payload string, timeout time.Duration) (at.Result, error)
	WaitFor(marker string, timeout time.Duration) (at.Result, error)
	Synchronize(maxAttempts int) error
	Synced() bool
	Desync()
	Busy() bool
	Close() error
}

// Engine drives the AT command/response cycle over one Transport.
//
// Every operation is fully synchronous: it writes the command, then
// polls the transport until a terminal marker arrives or the timeout
// elapses, and returns a structured at.Result. There is no background
// reader and no callback path. An Engine owns its Transport exclusively
// and is not safe for concurrent exchanges: a Send issued while another
// is in flight fails fast with ErrBusy instead of interleaving bytes on
// the wire. Close may be called from any goroutine at any time; it
// releases the transport exactly once and makes an in-flight exchange
// fail with the transport's read error.
type Engine struct {
	transport Transport

	busy   atomic.Bool
	closed atomic.Bool
	synced atomic.Bool

	// Exchange tuning, overridable in tests.
	probeTimeout time.Duration
	retryDelay   time.Duration
	promptWindow time.Duration
}

var _ Commander = (*Engine)(nil)

// NewEngine wraps an established transport. The caller keeps
// responsibility for having configured the link (port, baud rate, read
// window); Open bundles the two steps for the common serial case.
func NewEngine(t Transport) *Engine {
	return &Engine{
		transport:    t,
		probeTimeout: syncProbeTimeout,
		retryDelay:   syncRetryDelay,
		promptWindow: payloadPromptWindow,
	}
}

// Open dials the named serial port at the given baud rate (8N1) and
// returns an Engine bound to it. A non-positive baud selects the
// dialer's default. The link is not synchronized yet; callers should
// run Synchronize before trusting any exchange.
func Open(portName string, baud int) (*Engine, error) {
	t, err := NewSerialDialer(portName, baud).Dial(context.Background())
	if err != nil {
		return nil, err
	}
	return NewEngine(t), nil
}

// Send transmits one AT command line and blocks until the modem
// terminates its reply or the timeout elapses.
//
// The returned result is data, not a verdict: StatusError means the
// modem rejected the command, StatusTimeout that no terminal marker
// arrived in time (with whatever tokens did arrive). Only transport
// faults surface as a Go error, and those are never retried here: a
// broken link is not fixed by resending. If local echo is enabled the
// echoed command line is dropped from the tokens.
func (e *Engine) Send(command string, timeout time.Duration) (at.Result, error) {
	cmd := strings.TrimSpace(command)
	release, err := e.acquire()
	if err != nil {
		return at.Result{}, err
	}
	defer release()

	if err := e.writeAll(cmd + at.CRLF); err != nil {
		return at.Result{}, fmt.Errorf("write %q: %w", cmd, err)
	}
	res, err := e.awaitTerminal(timeout)
	if err != nil {
		return at.Result{}, err
	}
	if len(res.Tokens) > 0 && res.Tokens[0] == cmd {
		res.Tokens = res.Tokens[1:]
	}
	return res, nil
}

// SendPayload transmits an SMS body after a prompt exchange: the text
// plus line terminator, a bounded wait for the prompt to be re-asserted,
// then Ctrl-Z, then a read to the final OK/ERROR. The payload is written
// verbatim; multi-line bodies are allowed. Result contract as in Send.
func (e *Engine) SendPayload(payload string, timeout time.Duration) (at.Result, error) {
	release, err := e.acquire()
	if err != nil {
		return at.Result{}, err
	}
	defer release()

	if err := e.writeAll(payload + at.CRLF); err != nil {
		return at.Result{}, fmt.Errorf("write payload: %w", err)
	}
	// Most modems repeat the prompt after each body line. The result is
	// discarded either way: a timeout here just means this modem stays
	// quiet until Ctrl-Z.
	if _, err := e.awaitTerminal(e.promptWindow); err != nil {
		return at.Result{}, err
	}
	if err := e.writeAll(at.CtrlZ); err != nil {
		return at.Result{}, fmt.Errorf("write Ctrl-Z: %w", err)
	}
	return e.awaitTerminal(timeout)
}

// WaitFor blocks until a response line containing marker arrives
// (StatusOK, with the matching line in Final) or the timeout elapses
// (StatusTimeout). Terminal markers observed while waiting do not end
// the wait; lines keep accumulating as tokens. This is how notification
// text outside any command exchange is caught, such as "SMS Ready"
// after a SIM unlock.
func (e *Engine) WaitFor(marker string, timeout time.Duration) (at.Result, error) {
	release, err := e.acquire()
	if err != nil {
		return at.Result{}, err
	}
	defer release()

	var (
		res      at.Result
		buf      []byte
		chunk    = make([]byte, readChunkSize)
		deadline = time.Now().Add(timeout)
	)
	for {
		n, err := e.transport.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				tokens, status, final, rest := at.Tokenize(buf)
				buf = rest
				res.Tokens = append(res.Tokens, tokens...)
				for _, tok := range tokens {
					if strings.Contains(tok, marker) {
						res.Status = at.StatusOK
						res.Final = tok
						return res, nil
					}
				}
				if final != "" && strings.Contains(final, marker) {
					res.Status = at.StatusOK
					res.Final = final
					return res, nil
				}
				if !status.Terminal() {
					break
				}
			}
			if len(buf) > maxPendingBytes {
				return at.Result{}, fmt.Errorf("read response: %w", ErrLineTooLong)
			}
			continue
		}
		if err != nil {
			return at.Result{}, fmt.Errorf("read response: %w", err)
		}
		if time.Now().After(deadline) {
			res.Status = at.StatusTimeout
			return res, nil
		}
		time.Sleep(pollInterval)
	}
}

// Synchronize probes the link with bare "AT" commands until the modem
// answers OK, confirming both directions of the link agree on framing.
// Run it once after opening, and again after anything that can reset
// the modem's UART. Exhausting maxAttempts fails with ErrSync; transport
// faults abort immediately. A non-positive maxAttempts means
// DefaultSyncAttempts.
func (e *Engine) Synchronize(maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultSyncAttempts
	}
	e.synced.Store(false)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res, err := e.Send(at.CmdAt, e.probeTimeout)
		if err != nil {
			return err
		}
		if res.Status == at.StatusOK {
			e.synced.Store(true)
			return nil
		}
		if attempt < maxAttempts {
			time.Sleep(e.retryDelay)
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrSync, maxAttempts)
}

// Synced reports whether baud synchronization has succeeded on this
// link since it was opened (or since the last Desync).
func (e *Engine) Synced() bool {
	return e.synced.Load()
}

// Desync clears the synchronization flag. Call it after commanding
// anything that restarts the modem, so the next user knows to probe
// the link again.
func (e *Engine) Desync() {
	e.synced.Store(false)
}

// Busy reports whether an exchange is currently in flight.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// Close releases the underlying transport. It is idempotent and safe
// to call from any state, including while an exchange is mid-poll on
// another goroutine: that exchange then fails with the transport's
// read or write error.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.synced.Store(false)
	return e.transport.Close()
}

// acquire claims the single exchange slot, failing fast when the engine
// is closed or another exchange is running.
func (e *Engine) acquire() (release func(), err error) {
	if e.closed.Load() {
		return nil, ErrAlreadyClosed
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return func() { e.busy.Store(false) }, nil
}

func (e *Engine) writeAll(s string) error {
	n, err := e.transport.Write([]byte(s))
	if err == nil && n < len(s) {
		err = io.ErrShortWrite
	}
	return err
}

// awaitTerminal is the receive half of an exchange: poll the transport,
// accumulate bytes, tokenize, and stop at the first terminal marker.
// The receive buffer starts empty; anything the modem sent after the
// previous exchange's terminal marker is discarded, so one command's
// stragglers cannot leak into the next reply.
func (e *Engine) awaitTerminal(timeout time.Duration) (at.Result, error) {
	var (
		res      at.Result
		buf      []byte
		chunk    = make([]byte, readChunkSize)
		deadline = time.Now().Add(timeout)
	)
	for {
		n, err := e.transport.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			var tokens []string
			tokens, res.Status, res.Final, buf = at.Tokenize(buf)
			res.Tokens = append(res.Tokens, tokens...)
			if res.Status.Terminal() {
				return res, nil
			}
			if len(buf) > maxPendingBytes {
				return at.Result{}, fmt.Errorf("read response: %w", ErrLineTooLong)
			}
			// Bytes are flowing; go straight back for more.
			continue
		}
		if err != nil {
			return at.Result{}, fmt.Errorf("read response: %w", err)
		}
		if time.Now().After(deadline) {
			res.Status = at.StatusTimeout
			return res, nil
		}
		time.Sleep(pollInterval)
	}
}
