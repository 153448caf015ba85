package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"i4.energy/across/gsmgw/modem"
)

// ErrQueueFull is returned by Enqueue when the outbox cannot take
// another message.
var ErrQueueFull = errors.New("outbox queue is full")

// SmsReq is the send request shape shared by the HTTP and MQTT intakes.
type SmsReq struct {
	To      string `json:"to"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

// ReceivedSMS is the shape broadcast for messages arriving on the SIM.
type ReceivedSMS struct {
	From string `json:"from"`
	Time string `json:"time"`
	Text string `json:"text"`
}

// messenger is the subset of *modem.Modem the gateway needs. Tests
// substitute an in-memory implementation.
type messenger interface {
	SendSMS(recipient, message string) error
	ListSMS(group string) ([]modem.SMS, error)
	DeleteSMS(index int) error
}

// Job is one queued outgoing message.
type Job struct {
	ID       string
	To       string
	Message  string
	Attempts int
}

type modemCall struct {
	fn   func(messenger) error
	done chan error
}

// Gateway owns the modem. Run is the only goroutine that touches it:
// queued sends, inbox polls and ad-hoc calls are all serialized there,
// since the command engine rejects concurrent exchanges.
type Gateway struct {
	logger  *slog.Logger
	modem   messenger
	limit   *Rate
	hub     *Hub
	publish func(ReceivedSMS)

	maxRetries int
	inboxPoll  time.Duration
	retryDelay func() time.Duration

	jobs  chan Job
	calls chan modemCall
}

func NewGateway(logger *slog.Logger, m messenger, hub *Hub, config *Config) *Gateway {
	poll := time.Duration(config.InboxPollSeconds) * time.Second
	if poll <= 0 {
		poll = 15 * time.Second
	}
	return &Gateway{
		logger:     logger,
		modem:      m,
		limit:      NewRate(config.RatePerMin),
		hub:        hub,
		maxRetries: config.MaxRetries,
		inboxPoll:  poll,
		retryDelay: func() time.Duration {
			return time.Duration(800+rand.Intn(600)) * time.Millisecond
		},
		jobs:  make(chan Job, 64),
		calls: make(chan modemCall),
	}
}

// SetPublisher installs the hook invoked for each received message.
// Must be called before Run starts.
func (g *Gateway) SetPublisher(fn func(ReceivedSMS)) {
	g.publish = fn
}

// Enqueue queues a message for delivery and returns its id.
func (g *Gateway) Enqueue(req SmsReq) (string, error) {
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	select {
	case g.jobs <- Job{ID: id, To: req.To, Message: req.Message}:
		return id, nil
	default:
		return "", ErrQueueFull
	}
}

// Call runs fn against the modem on the owner goroutine and waits for
// the result.
func (g *Gateway) Call(ctx context.Context, fn func(messenger) error) error {
	call := modemCall{fn: fn, done: make(chan error, 1)}
	select {
	case g.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-call.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drives the gateway until ctx is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.inboxPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-g.jobs:
			g.deliver(ctx, job)
		case call := <-g.calls:
			call.done <- call.fn(g.modem)
		case <-ticker.C:
			g.checkInbox()
		}
	}
}

// deliver sends one job, waiting out the rate cap and retrying
// failures with a jittered backoff.
func (g *Gateway) deliver(ctx context.Context, job Job) {
	for !g.limit.Allow() {
		g.logger.Warn("rate limited, delaying send", "id", job.ID)
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}

	for {
		err := g.modem.SendSMS(job.To, job.Message)
		if err == nil {
			g.logger.Info("message sent", "id", job.ID, "to", job.To, "attempts", job.Attempts+1)
			return
		}

		job.Attempts++
		if job.Attempts >= g.maxRetries {
			g.logger.Error("message dropped, retries exhausted", "id", job.ID, "to", job.To, "error", err)
			return
		}

		backoff := g.retryDelay()
		g.logger.Warn("send failed, retrying", "id", job.ID, "attempt", job.Attempts, "backoff", backoff, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

// checkInbox drains unread messages: each one is broadcast to the
// websocket clients, handed to the publisher, then removed from the
// SIM so it is seen once.
func (g *Gateway) checkInbox() {
	list, err := g.modem.ListSMS(modem.GroupUnread)
	if err != nil {
		g.logger.Error("inbox poll failed", "error", err)
		return
	}

	for _, sms := range list {
		recv := ReceivedSMS{From: sms.Sender, Time: sms.Time, Text: sms.Text}
		g.logger.Info("message received", "from", recv.From, "index", sms.Index)

		payload, _ := json.Marshal(recv)
		if g.hub != nil {
			g.hub.Broadcast(payload)
		}
		if g.publish != nil {
			g.publish(recv)
		}

		if err := g.modem.DeleteSMS(sms.Index); err != nil {
			g.logger.Warn("could not delete received message", "index", sms.Index, "error", err)
		}
	}
}

// DrainOnce gives every still-queued job a single send attempt. It is
// called during shutdown after Run has returned, so the modem is no
// longer contended.
func (g *Gateway) DrainOnce(limit time.Duration) {
	deadline := time.Now().Add(limit)
	for {
		select {
		case job := <-g.jobs:
			if time.Now().After(deadline) {
				g.logger.Warn("shutdown window closed, dropping message", "id", job.ID)
				continue
			}
			if err := g.modem.SendSMS(job.To, job.Message); err != nil {
				g.logger.Error("shutdown send failed", "id", job.ID, "to", job.To, "error", err)
			} else {
				g.logger.Info("message sent during shutdown", "id", job.ID, "to", job.To)
			}
		default:
			return
		}
	}
}
