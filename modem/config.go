package modem

import (
	"log/slog"
	"time"
)

// Config carries everything needed to bring a modem up.
//
// Only Dialer is mandatory. Every other field has a working default
// applied by setDefaults, so a zero-value Config with a Dialer is valid.
type Config struct {
	// Dialer opens the byte stream to the modem.
	Dialer Dialer

	// SimPIN unlocks the SIM during initialization when the card asks
	// for one. Leaving it empty on a locked card fails initialization
	// with ErrSIMPinRequired.
	SimPIN string

	// MinSendInterval paces outgoing messages. SendSMS sleeps as needed
	// so that two sends are never closer together than this.
	MinSendInterval time.Duration

	// MaxRetries is advisory for callers that re-drive failed sends.
	// The modem itself attempts each command once.
	MaxRetries int

	// EchoOn leaves command echo enabled (ATE1). Echo lines are
	// recognized and dropped either way; disabling echo just reduces
	// traffic on slow links.
	EchoOn bool

	// ATTimeout bounds ordinary command round trips.
	ATTimeout time.Duration

	// InitTimeout bounds the whole initialization sequence, including
	// baud synchronization and SIM unlock.
	InitTimeout time.Duration

	// SyncAttempts is how many AT probes Synchronize may issue before
	// giving up during initialization.
	SyncAttempts int

	// PollInterval is the cadence AwaitMessage re-checks the inbox at.
	PollInterval time.Duration

	// Charset selects the TE character set (AT+CSCS). Modems that do
	// not support the selected set keep their current one.
	Charset string

	// Logger receives initialization and command diagnostics.
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.MinSendInterval == 0 {
		c.MinSendInterval = time.Minute / 30
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 5 * time.Second
	}
	if c.InitTimeout == 0 {
		c.InitTimeout = 30 * time.Second
	}
	if c.SyncAttempts == 0 {
		c.SyncAttempts = DefaultSyncAttempts
	}
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.Charset == "" {
		c.Charset = "GSM"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ConfigBuilder assembles a Config fluently. Build validates the result
// and fills in defaults, so the returned Config is ready for New.
type ConfigBuilder struct {
	cfg Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.cfg.Dialer = d
	return b
}

func (b *ConfigBuilder) WithSimPIN(pin string) *ConfigBuilder {
	b.cfg.SimPIN = pin
	return b
}

func (b *ConfigBuilder) WithMinSendInterval(d time.Duration) *ConfigBuilder {
	b.cfg.MinSendInterval = d
	return b
}

func (b *ConfigBuilder) WithMaxRetries(n int) *ConfigBuilder {
	b.cfg.MaxRetries = n
	return b
}

func (b *ConfigBuilder) WithEchoOn(on bool) *ConfigBuilder {
	b.cfg.EchoOn = on
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.cfg.InitTimeout = d
	return b
}

func (b *ConfigBuilder) WithSyncAttempts(n int) *ConfigBuilder {
	b.cfg.SyncAttempts = n
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.cfg.PollInterval = d
	return b
}

func (b *ConfigBuilder) WithCharset(charset string) *ConfigBuilder {
	b.cfg.Charset = charset
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.cfg.Logger = l
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.cfg.validate(); err != nil {
		return Config{}, err
	}
	cfg := b.cfg
	cfg.setDefaults()
	return cfg, nil
}
