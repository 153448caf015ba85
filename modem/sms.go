package modem

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/gsmgw/at"
)

// Storage group filters accepted by ListSMS, as defined for AT+CMGL in
// text mode.
const (
	GroupUnread = "REC UNREAD"
	GroupRead   = "REC READ"
	GroupUnsent = "STO UNSENT"
	GroupSent   = "STO SENT"
	GroupAll    = "ALL"
)

// smsSendWindow bounds the network round trip after the message body has
// been terminated with Ctrl-Z. Message submission regularly takes longer
// than an ordinary command, so it gets its own budget.
const smsSendWindow = 25 * time.Second

// SMS represents a text message stored on the modem.
type SMS struct {
	Index  int
	Status string // "REC UNREAD", "REC READ", "STO UNSENT", "STO SENT"
	Sender string
	Time   string
	Text   string
}

// ParseGroup maps a short group name, as used by flags and query
// parameters, to the AT+CMGL storage filter. The empty name selects
// unread messages.
func ParseGroup(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "unread":
		return GroupUnread, nil
	case "read":
		return GroupRead, nil
	case "unsent", "drafts":
		return GroupUnsent, nil
	case "sent":
		return GroupSent, nil
	case "all":
		return GroupAll, nil
	}
	return "", fmt.Errorf("unknown message group %q", name)
}

// SendSMS sends a text message to the specified recipient.
//
// The message is sent in text mode (not PDU mode). The recipient should be
// in international format (e.g., "+1234567890"). Multi-line bodies are
// allowed; the terminating Ctrl-Z is appended by the engine.
//
// Sends are paced by cfg.MinSendInterval: SendSMS sleeps as needed so two
// messages never leave closer together than that. The method blocks until
// the message is accepted by the network or an error occurs. Delivery to
// the final recipient happens asynchronously.
func (m *Modem) SendSMS(recipient, message string) error {
	if !m.lastSend.IsZero() {
		if wait := m.cfg.MinSendInterval - time.Since(m.lastSend); wait > 0 {
			time.Sleep(wait)
		}
	}

	cmd := fmt.Sprintf(`AT+CMGS="%s"`, recipient)
	if _, err := m.exec(cmd, at.StatusPrompt, m.cfg.ATTimeout); err != nil {
		return fmt.Errorf("request send prompt: %w", err)
	}

	res, err := m.engine.SendPayload(message, smsSendWindow)
	if err != nil {
		return fmt.Errorf("send message body: %w", err)
	}
	if res.Status != at.StatusOK {
		return &CommandError{
			Command: cmd,
			Status:  res.Status,
			Final:   res.Final,
			Tokens:  res.Tokens,
		}
	}

	m.lastSend = time.Now()
	return nil
}

// ListSMS returns the stored messages matching the given group filter.
//
// Note that listing unread messages marks them as read on the modem, so
// a second call with GroupUnread will not return them again.
func (m *Modem) ListSMS(group string) ([]SMS, error) {
	cmd := fmt.Sprintf(`AT+CMGL="%s"`, group)
	res, err := m.exec(cmd, at.StatusOK, m.cfg.ATTimeout)
	if err != nil {
		return nil, err
	}
	return parseMessageList(res.Tokens)
}

// ReadSMS returns the single message stored at the given index.
func (m *Modem) ReadSMS(index int) (SMS, error) {
	cmd := fmt.Sprintf("AT+CMGR=%d", index)
	res, err := m.exec(cmd, at.StatusOK, m.cfg.ATTimeout)
	if err != nil {
		return SMS{}, err
	}

	sms := SMS{Index: index}
	seenHeader := false
	for _, token := range res.Tokens {
		if !seenHeader {
			if !strings.HasPrefix(token, "+CMGR:") {
				continue
			}
			fields, err := splitHeader(strings.TrimPrefix(token, "+CMGR:"))
			if err != nil || len(fields) < 2 {
				return SMS{}, fmt.Errorf("malformed message header %q", token)
			}
			sms.Status = fields[0]
			sms.Sender = fields[1]
			if len(fields) >= 4 {
				sms.Time = trimZone(fields[3])
			}
			seenHeader = true
			continue
		}
		if at.Classify(token) == at.TypeURC {
			continue
		}
		if sms.Text == "" {
			sms.Text = token
		} else {
			sms.Text += "\n" + token
		}
	}
	if !seenHeader {
		return SMS{}, fmt.Errorf("no message at index %d", index)
	}
	return sms, nil
}

// DeleteSMS removes the message at the given index from modem storage.
// Indices are the modem-native ones reported by ListSMS.
func (m *Modem) DeleteSMS(index int) error {
	cmd := fmt.Sprintf("AT+CMGD=%d", index)
	if _, err := m.exec(cmd, at.StatusOK, m.cfg.ATTimeout); err != nil {
		return err
	}
	return nil
}

// DeleteRead removes all read and sent messages, keeping unread ones.
func (m *Modem) DeleteRead() error {
	if _, err := m.exec(at.CmdDeleteRead, at.StatusOK, m.cfg.ATTimeout); err != nil {
		return err
	}
	return nil
}

// AwaitMessage polls for unread messages until at least one arrives or
// the window closes, in which case it returns an empty list and no
// error. The inbox is re-checked every cfg.PollInterval; the context is
// consulted only between exchanges, never mid-command.
func (m *Modem) AwaitMessage(ctx context.Context, timeout time.Duration) ([]SMS, error) {
	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		list, err := m.ListSMS(GroupUnread)
		if err != nil {
			return nil, err
		}
		if len(list) > 0 {
			return list, nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.cfg.PollInterval):
		}
	}
}

// parseMessageList assembles SMS entries from AT+CMGL response tokens.
// Each entry is a +CMGL header followed by one or more body lines; body
// lines accumulate until the next header. Unsolicited notifications
// interleaved in the listing are skipped.
func parseMessageList(tokens []string) ([]SMS, error) {
	var list []SMS
	cur := -1
	for _, token := range tokens {
		if strings.HasPrefix(token, "+CMGL:") {
			sms, err := parseListHeader(token)
			if err != nil {
				return nil, err
			}
			list = append(list, sms)
			cur = len(list) - 1
			continue
		}
		if cur < 0 {
			// Noise before the first header.
			continue
		}
		if at.Classify(token) == at.TypeURC {
			continue
		}
		if list[cur].Text == "" {
			list[cur].Text = token
		} else {
			list[cur].Text += "\n" + token
		}
	}
	return list, nil
}

// parseListHeader parses one +CMGL header line:
//
//	+CMGL: 3,"REC UNREAD","+31612345678","","25/08/21,10:11:12+08"
func parseListHeader(line string) (SMS, error) {
	fields, err := splitHeader(strings.TrimPrefix(line, "+CMGL:"))
	if err != nil || len(fields) < 3 {
		return SMS{}, fmt.Errorf("malformed message header %q", line)
	}
	index, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return SMS{}, fmt.Errorf("malformed message index in %q", line)
	}
	sms := SMS{
		Index:  index,
		Status: fields[1],
		Sender: fields[2],
	}
	if len(fields) >= 5 {
		sms.Time = trimZone(fields[4])
	}
	return sms, nil
}

// splitHeader splits a header field list on commas while respecting
// quoted fields, so timestamps like "25/08/21,10:11:12+08" survive as
// one field.
func splitHeader(s string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	return r.Read()
}

// trimZone drops the "+08"/"-05" zone suffix modems append to the
// timestamp, keeping the "yy/MM/dd,hh:mm:ss" part.
func trimZone(ts string) string {
	comma := strings.IndexByte(ts, ',')
	if i := strings.LastIndexAny(ts, "+-"); i > comma {
		return ts[:i]
	}
	return ts
}
