package modem

import (
	"errors"
	"slices"
	"testing"
	"time"

	"i4.energy/across/gsmgw/at"
)

// newTestEngine returns an engine over a TestTransport with probe and
// prompt windows shrunk so synchronization tests stay fast.
func newTestEngine() (*Engine, *TestTransport) {
	tt := NewTestTransport()
	e := NewEngine(tt)
	e.probeTimeout = 50 * time.Millisecond
	e.retryDelay = 5 * time.Millisecond
	e.promptWindow = 50 * time.Millisecond
	return e, tt
}

func TestEngineSend(t *testing.T) {
	t.Run("Echo, blanks and terminal marker are dropped", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("AT+CPIN?\r\r\n+CPIN: READY\r\n\r\nOK\r\n")

		res, err := e.Send("AT+CPIN?", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("status: expected OK, got %v", res.Status)
		}
		if want := []string{"+CPIN: READY"}; !slices.Equal(res.Tokens, want) {
			t.Errorf("tokens: expected %q, got %q", want, res.Tokens)
		}
		if res.Final != at.OK {
			t.Errorf("final: expected %q, got %q", at.OK, res.Final)
		}
	})

	t.Run("Bare ERROR reply", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("\r\nERROR\r\n")

		res, err := e.Send("AT+CMGS=\"oops", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusError {
			t.Errorf("status: expected ERROR, got %v", res.Status)
		}
		if len(res.Tokens) != 0 {
			t.Errorf("tokens: expected none, got %q", res.Tokens)
		}
	})

	t.Run("Commands are written with CRLF", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("\r\nOK\r\n")
		if _, err := e.Send("AT+CSQ", time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		writes := tt.Writes()
		if len(writes) != 1 || string(writes[0]) != "AT+CSQ\r\n" {
			t.Errorf("unexpected wire bytes: %q", writes)
		}
	})

	t.Run("Tokens without echo are kept intact", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		// Echo disabled: first line is already response content.
		tt.SendData("\r\n+CSQ: 15,99\r\n\r\nOK\r\n")

		res, err := e.Send("AT+CSQ", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := []string{"+CSQ: 15,99"}; !slices.Equal(res.Tokens, want) {
			t.Errorf("tokens: expected %q, got %q", want, res.Tokens)
		}
	})

	t.Run("URC before the marker is an ordinary token", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("\r\n+CMTI: \"SM\",3\r\n+CSQ: 20,99\r\n\r\nOK\r\n")

		res, err := e.Send("AT+CSQ", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []string{"+CMTI: \"SM\",3", "+CSQ: 20,99"}
		if !slices.Equal(res.Tokens, want) {
			t.Errorf("tokens: expected %q, got %q", want, res.Tokens)
		}
	})

	t.Run("Send after Close fails", func(t *testing.T) {
		e, _ := newTestEngine()
		if err := e.Close(); err != nil {
			t.Fatalf("unexpected close error: %v", err)
		}
		if _, err := e.Send("AT", time.Second); !errors.Is(err, ErrAlreadyClosed) {
			t.Errorf("expected ErrAlreadyClosed, got: %v", err)
		}
	})
}

// TestEngineSendChunkSplit verifies chunk-split invariance: however the
// reply bytes are divided across reads, the result is identical to the
// whole reply arriving at once.
func TestEngineSendChunkSplit(t *testing.T) {
	const response = "AT+CPIN?\r\r\n+CPIN: READY\r\n\r\nOK\r\n"
	wantTokens := []string{"+CPIN: READY"}

	for cut := 0; cut <= len(response); cut++ {
		e, tt := newTestEngine()
		tt.SendData(response[:cut])
		tt.SendData(response[cut:])

		res, err := e.Send("AT+CPIN?", time.Second)
		if err != nil {
			t.Fatalf("cut %d: unexpected error: %v", cut, err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("cut %d: status %v, want OK", cut, res.Status)
		}
		if !slices.Equal(res.Tokens, wantTokens) {
			t.Errorf("cut %d: tokens %q, want %q", cut, res.Tokens, wantTokens)
		}
		e.Close()
	}
}

func TestEngineSendTimeout(t *testing.T) {
	e, _ := newTestEngine()
	defer e.Close()

	const timeout = 80 * time.Millisecond
	start := time.Now()
	res, err := e.Send("AT", timeout)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != at.StatusTimeout {
		t.Errorf("status: expected TIMEOUT, got %v", res.Status)
	}
	if len(res.Tokens) != 0 {
		t.Errorf("tokens: expected none, got %q", res.Tokens)
	}
	if elapsed < timeout {
		t.Errorf("returned %v before the %v timeout", elapsed, timeout)
	}
	// One read window plus one poll interval plus scheduling slack.
	if elapsed > timeout+200*time.Millisecond {
		t.Errorf("returned %v after the %v timeout, too late", elapsed, timeout)
	}
}

func TestEngineSendBusy(t *testing.T) {
	e, tt := newTestEngine()
	defer e.Close()

	results := make(chan error, 1)
	go func() {
		_, err := e.Send("AT+COPS?", 2*time.Second)
		results <- err
	}()

	<-tt.Wrote() // first exchange is now polling for its reply

	if _, err := e.Send("AT", time.Second); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy for overlapping send, got: %v", err)
	}

	tt.SendData("\r\nOK\r\n")
	if err := <-results; err != nil {
		t.Errorf("first exchange failed: %v", err)
	}
}

func TestEngineSynchronize(t *testing.T) {
	t.Run("Succeeds once the modem answers", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		probes := 0
		tt.OnWrite(func(p []byte) {
			probes++
			if probes == 3 {
				tt.SendData("\r\nOK\r\n")
			}
		})

		if err := e.Synchronize(3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if probes != 3 {
			t.Errorf("expected 3 probes, got %d", probes)
		}
		if !e.Synced() {
			t.Error("engine should report synced after success")
		}
	})

	t.Run("ErrSync after exhausting the attempt budget", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		probes := 0
		tt.OnWrite(func(p []byte) { probes++ })

		err := e.Synchronize(3)
		if !errors.Is(err, ErrSync) {
			t.Fatalf("expected ErrSync, got: %v", err)
		}
		if probes != 3 {
			t.Errorf("expected 3 probes, got %d", probes)
		}
		if e.Synced() {
			t.Error("engine must not report synced after failure")
		}
	})

	t.Run("Desync clears the flag", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.OnWrite(func(p []byte) { tt.SendData("\r\nOK\r\n") })
		if err := e.Synchronize(1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		e.Desync()
		if e.Synced() {
			t.Error("expected sync flag cleared")
		}
	})
}

func TestEngineSendPayload(t *testing.T) {
	t.Run("Prompt, body, Ctrl-Z, confirmation", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.OnWrite(func(p []byte) {
			switch string(p) {
			case "hello there\r\n":
				tt.SendData("\r\n> ")
			case at.CtrlZ:
				tt.SendData("\r\n+CMGS: 44\r\n\r\nOK\r\n")
			}
		})

		res, err := e.SendPayload("hello there", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("status: expected OK, got %v", res.Status)
		}
		if want := []string{"+CMGS: 44"}; !slices.Equal(res.Tokens, want) {
			t.Errorf("tokens: expected %q, got %q", want, res.Tokens)
		}

		writes := tt.Writes()
		if len(writes) != 2 {
			t.Fatalf("expected 2 writes, got %q", writes)
		}
		if string(writes[0]) != "hello there\r\n" {
			t.Errorf("body write: got %q", writes[0])
		}
		if string(writes[1]) != at.CtrlZ {
			t.Errorf("terminator write: got %q", writes[1])
		}
	})

	t.Run("Modem that never re-asserts the prompt", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.OnWrite(func(p []byte) {
			if string(p) == at.CtrlZ {
				tt.SendData("\r\nOK\r\n")
			}
		})

		res, err := e.SendPayload("quiet modem", time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("status: expected OK, got %v", res.Status)
		}
	})
}

func TestEngineWaitFor(t *testing.T) {
	t.Run("Marker arriving mid-stream", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("\r\n+CPIN: READY\r\n")
		tt.SendData("SMS Ready\r\n")

		res, err := e.WaitFor(at.SmsReady, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("status: expected OK, got %v", res.Status)
		}
		if res.Final != at.SmsReady {
			t.Errorf("final: expected %q, got %q", at.SmsReady, res.Final)
		}
		if want := []string{"+CPIN: READY"}; !slices.Equal(res.Tokens, want) {
			t.Errorf("tokens: expected %q, got %q", want, res.Tokens)
		}
	})

	t.Run("Terminal markers do not end the wait", func(t *testing.T) {
		e, tt := newTestEngine()
		defer e.Close()

		tt.SendData("\r\nOK\r\nSMS Ready\r\n")

		res, err := e.WaitFor(at.SmsReady, time.Second)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusOK {
			t.Errorf("status: expected OK, got %v", res.Status)
		}
	})

	t.Run("Times out cleanly", func(t *testing.T) {
		e, _ := newTestEngine()
		defer e.Close()

		res, err := e.WaitFor(at.SmsReady, 50*time.Millisecond)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Status != at.StatusTimeout {
			t.Errorf("status: expected TIMEOUT, got %v", res.Status)
		}
	})
}

func TestEngineClose(t *testing.T) {
	t.Run("Idempotent from idle", func(t *testing.T) {
		e, tt := newTestEngine()
		if err := e.Close(); err != nil {
			t.Fatalf("first close: %v", err)
		}
		if err := e.Close(); err != nil {
			t.Fatalf("second close: %v", err)
		}
		if tt.Closes() != 1 {
			t.Errorf("transport released %d times, want exactly once", tt.Closes())
		}
	})

	t.Run("Idempotent after a completed exchange", func(t *testing.T) {
		e, tt := newTestEngine()
		tt.SendData("\r\nOK\r\n")
		if _, err := e.Send("AT", time.Second); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		e.Close()
		e.Close()
		if tt.Closes() != 1 {
			t.Errorf("transport released %d times, want exactly once", tt.Closes())
		}
	})

	t.Run("Abandons an in-flight exchange", func(t *testing.T) {
		e, tt := newTestEngine()

		results := make(chan error, 1)
		go func() {
			_, err := e.Send("AT+COPS?", 5*time.Second)
			results <- err
		}()

		<-tt.Wrote() // exchange is polling now

		if err := e.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
		if err := <-results; err == nil {
			t.Error("expected the abandoned exchange to fail")
		}
		if tt.Closes() != 1 {
			t.Errorf("transport released %d times, want exactly once", tt.Closes())
		}
	})
}
