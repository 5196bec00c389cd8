// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig configures an SMTP relay.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends messages through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	addr string
	from string
	auth smtp.Auth
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer for cfg.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", cfg.From, err)
	}

	m := &SMTPMailer{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		from: cfg.From,
		send: smtp.SendMail,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

// Send delivers msg. The context is checked before dialing only.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.From == "" {
		msg.From = m.from
	}

	sender, err := mail.ParseAddress(msg.From)
	if err != nil {
		return fmt.Errorf("parsing sender: %w", err)
	}
	rcpt, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("parsing recipient: %w", err)
	}

	if err := m.send(m.addr, m.auth, sender.Address, []string{rcpt.Address}, render(msg)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", rcpt.Address, err)
	}
	return nil
}

// render formats msg as an RFC 5322 plain-text message.
func render(msg Message) []byte {
	date := msg.Date
	if date.IsZero() {
		date = time.Now()
	}
	domain := "natours.local"
	if at := strings.LastIndexByte(msg.From, '@'); at >= 0 {
		domain = strings.Trim(msg.From[at+1:], "> ")
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", msg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", date.Format(time.RFC1123Z))
	if msg.ID != "" {
		fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", msg.ID, domain)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Text, "\n", "\r\n"))
	return b.Bytes()
}
