package modem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/gsmgw/at"
)

// simReadyWindow bounds the wait for the "SMS Ready" notification after
// a SIM PIN has been accepted. Modems that never announce readiness are
// re-queried once the window closes.
const simReadyWindow = 10 * time.Second

// Modem drives a GSM modem through an AT command engine. It layers
// messaging policy on top of the raw exchanges: the initialization
// sequence, SIM unlock, SMS operations, send pacing and device queries.
//
// A Modem serves one caller at a time, mirroring the half-duplex wire
// below it. Overlapping operations fail fast with ErrBusy rather than
// interleaving commands.
type Modem struct {
	engine Commander
	cfg    Config

	// lastSend is when the previous SendSMS completed, used to pace
	// outgoing messages by cfg.MinSendInterval.
	lastSend time.Time
}

// Info describes the modem hardware as reported by the identification
// commands.
type Info struct {
	Manufacturer string
	Model        string
	Serial       string
}

// New dials the modem via cfg.Dialer and brings it to a usable state:
// baud synchronization, echo mode, verbose errors, SIM unlock, SMS text
// mode and character set. The context governs the dial and is consulted
// between initialization exchanges; the sequence as a whole is bounded
// by cfg.InitTimeout.
//
// On any initialization failure the transport is closed and the error
// returned, wrapped with the failing step.
func New(ctx context.Context, cfg Config) (*Modem, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	transport, err := cfg.Dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Modem{
		engine: NewEngine(transport),
		cfg:    cfg,
	}

	if err := m.init(ctx); err != nil {
		m.engine.Close()
		return nil, fmt.Errorf("initialize modem: %w", err)
	}

	return m, nil
}

// init runs the bring-up sequence against a freshly dialed transport.
func (m *Modem) init(ctx context.Context) error {
	deadline := time.Now().Add(m.cfg.InitTimeout)

	if err := m.engine.Synchronize(m.cfg.SyncAttempts); err != nil {
		return fmt.Errorf("modem not responding: %w", err)
	}

	echo := at.CmdEchoOff
	if m.cfg.EchoOn {
		echo = at.CmdEchoOn
	}
	if err := m.initStep(ctx, deadline, echo, "set echo mode"); err != nil {
		return err
	}

	if err := m.initStep(ctx, deadline, at.CmdVerboseErrors, "enable verbose errors"); err != nil {
		return err
	}

	if err := m.unlockSIM(ctx, deadline); err != nil {
		return err
	}

	if err := m.initStep(ctx, deadline, at.CmdSetTextMode, "set SMS text mode"); err != nil {
		return err
	}

	// Not every modem supports every TE character set. A refusal here
	// leaves the current set active, which is still workable.
	timeout, err := m.stepTimeout(ctx, deadline)
	if err != nil {
		return err
	}
	charset := fmt.Sprintf(`AT+CSCS="%s"`, m.cfg.Charset)
	if _, err := m.exec(charset, at.StatusOK, timeout); err != nil {
		m.cfg.Logger.Warn("character set not accepted, keeping modem default",
			"charset", m.cfg.Charset, "error", err)
	}

	return nil
}

// initStep runs one OK-expected command within the init deadline.
func (m *Modem) initStep(ctx context.Context, deadline time.Time, cmd, what string) error {
	timeout, err := m.stepTimeout(ctx, deadline)
	if err != nil {
		return err
	}
	if _, err := m.exec(cmd, at.StatusOK, timeout); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// unlockSIM queries the SIM state and enters the configured PIN when the
// card asks for one.
func (m *Modem) unlockSIM(ctx context.Context, deadline time.Time) error {
	timeout, err := m.stepTimeout(ctx, deadline)
	if err != nil {
		return err
	}
	res, err := m.exec(at.CmdSimStatus, at.StatusOK, timeout)
	if err != nil {
		return fmt.Errorf("query SIM status: %w", err)
	}

	state := strings.Join(res.Tokens, "\n")
	switch {
	case strings.Contains(state, at.SimReady):
		return nil

	case strings.Contains(state, at.SimPuk):
		return ErrSIMPukRequired

	case strings.Contains(state, at.SimPin):
		if m.cfg.SimPIN == "" {
			return ErrSIMPinRequired
		}
		timeout, err := m.stepTimeout(ctx, deadline)
		if err != nil {
			return err
		}
		enter := fmt.Sprintf(`AT+CPIN="%s"`, m.cfg.SimPIN)
		if _, err := m.exec(enter, at.StatusOK, timeout); err != nil {
			return fmt.Errorf("enter SIM PIN: %w", err)
		}
		return m.awaitUnlock(ctx, deadline)

	default:
		return fmt.Errorf("unsupported SIM state: %q", state)
	}
}

// awaitUnlock waits for the modem to announce SMS readiness after a PIN
// was accepted. Modems that never emit the notification are re-queried
// once the window closes.
func (m *Modem) awaitUnlock(ctx context.Context, deadline time.Time) error {
	timeout, err := m.stepTimeout(ctx, deadline)
	if err != nil {
		return err
	}
	res, err := m.engine.WaitFor(at.SmsReady, min(simReadyWindow, timeout))
	if err != nil {
		return fmt.Errorf("wait for SIM unlock: %w", err)
	}
	if res.Status == at.StatusOK {
		return nil
	}

	timeout, err = m.stepTimeout(ctx, deadline)
	if err != nil {
		return err
	}
	check, err := m.exec(at.CmdSimStatus, at.StatusOK, timeout)
	if err != nil {
		return fmt.Errorf("re-query SIM status: %w", err)
	}
	if !strings.Contains(strings.Join(check.Tokens, "\n"), at.SimReady) {
		return fmt.Errorf("SIM not ready after PIN entry: %q", check.Tokens)
	}
	return nil
}

// stepTimeout returns the timeout for the next init exchange, capped by
// the overall init deadline, and surfaces context cancellation between
// exchanges.
func (m *Modem) stepTimeout(ctx context.Context, deadline time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	remaining := time.Until(deadline)
	if remaining <= 0 {
		return 0, context.DeadlineExceeded
	}
	return min(m.cfg.ATTimeout, remaining), nil
}

// exec runs one command exchange and requires the given terminal status.
// Any other outcome, including a timeout, is reported as a CommandError
// carrying the tokens received so far.
func (m *Modem) exec(cmd string, want at.Status, timeout time.Duration) (at.Result, error) {
	res, err := m.engine.Send(cmd, timeout)
	if err != nil {
		return res, err
	}
	if res.Status != want {
		return res, &CommandError{
			Command: cmd,
			Status:  res.Status,
			Final:   res.Final,
			Tokens:  res.Tokens,
		}
	}
	return res, nil
}

// SignalQuality reports received signal strength and bit error rate as
// raw AT+CSQ values. RSSI 99 means unknown; otherwise dBm is
// -113 + 2*rssi.
func (m *Modem) SignalQuality() (rssi, ber int, err error) {
	res, err := m.exec(at.CmdSignalQuality, at.StatusOK, m.cfg.ATTimeout)
	if err != nil {
		return 0, 0, err
	}
	for _, token := range res.Tokens {
		if !strings.HasPrefix(token, at.UrcSignalStrength) {
			continue
		}
		if _, err := fmt.Sscanf(token, "+CSQ: %d,%d", &rssi, &ber); err == nil {
			return rssi, ber, nil
		}
	}
	return 0, 0, fmt.Errorf("no signal report in response %q", res.Tokens)
}

// DeviceInfo queries manufacturer, model and serial number.
func (m *Modem) DeviceInfo() (Info, error) {
	var info Info
	queries := []struct {
		cmd string
		dst *string
	}{
		{at.CmdManufacturer, &info.Manufacturer},
		{at.CmdModel, &info.Model},
		{at.CmdSerialNumber, &info.Serial},
	}
	for _, q := range queries {
		res, err := m.exec(q.cmd, at.StatusOK, m.cfg.ATTimeout)
		if err != nil {
			return Info{}, err
		}
		if len(res.Tokens) > 0 {
			*q.dst = res.Tokens[0]
		}
	}
	return info, nil
}

// Reboot restarts the modem with a full functionality reset. The link
// loses synchronization; the caller is expected to dial a fresh Modem
// once the device re-enumerates.
func (m *Modem) Reboot() error {
	if _, err := m.exec(at.CmdReboot, at.StatusOK, m.cfg.ATTimeout); err != nil {
		return err
	}
	m.engine.Desync()
	return nil
}

// Busy reports whether a command exchange is currently in flight.
func (m *Modem) Busy() bool {
	return m.engine.Busy()
}

// Close releases the transport. It is idempotent; operations attempted
// after Close fail with ErrAlreadyClosed.
func (m *Modem) Close() error {
	return m.engine.Close()
}
