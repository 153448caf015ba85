package modem

import (
	"io"
	"sync"
	"time"
)

// TestTransport is a test helper that simulates a serial link with the
// bounded-read behavior the engine's poll loop depends on: a Read with
// no pending data returns (0, nil) once a short window expires, exactly
// like a serial port with a read timeout. Data queued with SendData is
// delivered one chunk per Read, which is how chunk-split arrival is
// scripted in tests.
//
// Exported for use in tests.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	writes   [][]byte
	wrote    chan struct{}
	onWrite  func(p []byte)
	window   time.Duration
	closed   bool
	closes   int
}

// NewTestTransport creates a new test transport with a 5ms read window.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 16),
		wrote:    make(chan struct{}, 16),
		window:   5 * time.Millisecond,
	}
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	t.writes = append(t.writes, append([]byte(nil), p...))
	hook := t.onWrite
	t.mu.Unlock()

	select {
	case t.wrote <- struct{}{}:
	default:
	}
	if hook != nil {
		hook(p)
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	select {
	case data, ok := <-t.readChan:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	case <-time.After(t.window):
		return 0, nil
	}
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.closes++
	close(t.readChan)
	return nil
}

// SendData queues data to be returned by the next Read.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// OnWrite installs a hook invoked with every written chunk. The hook
// runs outside the transport's lock, so it may call SendData to script
// a reply.
func (t *TestTransport) OnWrite(fn func(p []byte)) {
	t.mu.Lock()
	t.onWrite = fn
	t.mu.Unlock()
}

// Wrote signals once per Write call; tests use it to know an exchange
// is past its write and inside the poll loop.
func (t *TestTransport) Wrote() <-chan struct{} {
	return t.wrote
}

// Writes returns a copy of everything written so far.
func (t *TestTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// Closes reports how many times the underlying link was actually
// released. A correct engine never pushes it past one.
func (t *TestTransport) Closes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closes
}
