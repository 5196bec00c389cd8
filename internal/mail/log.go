package mail

import (
	"context"
	"log/slog"
	"sync"
)

// LogMailer writes messages to the logger instead of sending them. It is
// used in development when no SMTP relay is configured.
type LogMailer struct {
	logger *slog.Logger
	from   string
}

// NewLogMailer creates a LogMailer.
func NewLogMailer(logger *slog.Logger, from string) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger, from: from}
}

// Send logs msg.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	if msg.From == "" {
		msg.From = m.from
	}
	m.logger.Info("mail",
		"id", msg.ID,
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}

// Outbox records messages in memory. Setting Err makes every Send fail.
type Outbox struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

// Send records msg, or returns o.Err.
func (o *Outbox) Send(_ context.Context, msg Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.sent = append(o.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (o *Outbox) Sent() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.sent...)
}

// Last returns the most recent message.
func (o *Outbox) Last() (Message, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sent) == 0 {
		return Message{}, false
	}
	return o.sent[len(o.sent)-1], true
}

var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = (*LogMailer)(nil)
	_ Mailer = (*Outbox)(nil)
)
