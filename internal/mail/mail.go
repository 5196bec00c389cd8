// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package mail sends transactional email: the welcome message after signup
// and the password-reset link.
package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a plain-text email.
type Message struct {
	ID      string
	From    string
	To      string
	Subject string
	Text    string
	Date    time.Time
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Recipient identifies the person a message is addressed to.
type Recipient struct {
	Name  string
	Email string
}

// FirstName returns the first word of the recipient name.
func (r Recipient) FirstName() string {
	if f := strings.Fields(r.Name); len(f) > 0 {
		return f[0]
	}
	return r.Name
}

func newMessage(to Recipient, subject, text string) Message {
	return Message{
		ID:      uuid.NewString(),
		To:      to.Email,
		Subject: subject,
		Text:    text,
		Date:    time.Now().UTC(),
	}
}

// Welcome builds the message sent after signup. url points to the account page.
func Welcome(to Recipient, url string) Message {
	text := fmt.Sprintf("Hi %s,\n\nWelcome to Natours, we're glad to have you!\n\n"+
		"Upload a profile photo and start exploring tours: %s\n", to.FirstName(), url)
	return newMessage(to, "Welcome to the Natours Family!", text)
}

// PasswordReset builds the message carrying a password-reset link.
func PasswordReset(to Recipient, resetURL string, ttl time.Duration) Message {
	text := fmt.Sprintf("Hi %s,\n\nForgot your password? Submit a PATCH request with your new "+
		"password and passwordConfirm to: %s\n\nIf you didn't forget your password, please ignore this email!\n",
		to.FirstName(), resetURL)
	subject := fmt.Sprintf("Your password reset token (valid for %d min)", int(ttl.Minutes()))
	return newMessage(to, subject, text)
}
