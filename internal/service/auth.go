// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/mail"
	"github.com/olegiv/natours-go/internal/model"
)

// Client-facing authentication messages.
const (
	MsgNotLoggedIn       = "You are not logged in! Please log in to get access."
	MsgInvalidToken      = "Invalid token. Please log in again!"
	MsgUserGone          = "The user belonging to this token does no longer exist."
	MsgPasswordChanged   = "User recently changed password! Please log in again."
	MsgMissingLogin      = "Please provide email and password!"
	MsgIncorrectLogin    = "Incorrect email or password"
	MsgNoUserWithEmail   = "There is no user with that email address."
	MsgResetMailFailed   = "There was an error sending reset password email. Try again later."
	MsgResetInvalid      = "Token is invalid or has expired"
	MsgWrongCurrentPass  = "Your current password is wrong"
	MsgForbidden         = "You do not have permission to perform this action."
	MsgResetTokenEmailed = "Token was sent to email!"
)

// signupFields are the only body fields accepted at signup.
var signupFields = []string{"name", model.FieldEmail, model.FieldPassword, model.FieldPasswordConfirm}

// Session is an authenticated principal together with a fresh session token.
type Session struct {
	User  docstore.Document
	Token string
}

// AuthOptions holds the collaborators of an AuthService.
type AuthOptions struct {
	Sessions *auth.SessionCodec
	Resets   *auth.ResetTokens
	Hasher   *auth.Hasher
	Mailer   mail.Mailer
	Events   *EventService
	// Now defaults to time.Now.
	Now func() time.Time
}

// AuthService implements signup, login, token authentication and the
// password lifecycle over the users collection.
type AuthService struct {
	users    docstore.Collection
	resource *model.Resource
	sessions *auth.SessionCodec
	resets   *auth.ResetTokens
	hasher   *auth.Hasher
	mailer   mail.Mailer
	events   *EventService
	now      func() time.Time
}

// NewAuthService creates an AuthService.
func NewAuthService(users docstore.Collection, resource *model.Resource, opts AuthOptions) *AuthService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Hasher == nil {
		opts.Hasher = auth.NewHasher(auth.DefaultCost)
	}
	return &AuthService{
		users:    users,
		resource: resource,
		sessions: opts.Sessions,
		resets:   opts.Resets,
		hasher:   opts.Hasher,
		mailer:   opts.Mailer,
		events:   opts.Events,
		now:      opts.Now,
	}
}

// Signup creates a user from the signup fields of body and logs them in.
// The welcome mail is best-effort.
func (s *AuthService) Signup(ctx context.Context, body map[string]any, accountURL string) (*Session, error) {
	doc := docstore.Document{}
	for _, f := range signupFields {
		if v, ok := body[f]; ok {
			doc[f] = v
		}
	}
	if err := s.resource.Create(doc); err != nil {
		return nil, err
	}

	user, err := s.users.Insert(ctx, doc)
	if err != nil {
		return nil, err
	}

	if s.mailer != nil {
		msg := mail.Welcome(recipient(user), accountURL)
		if err := s.mailer.Send(ctx, msg); err != nil {
			slog.Warn("sending welcome email failed", "user_id", user.ID(), "error", err)
		}
	}

	return s.session(user)
}

// Login verifies credentials and issues a session token. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation(MsgMissingLogin)
	}

	user, err := s.users.FindOne(ctx, s.resource.Scoped(docstore.Filter{model.FieldEmail: email}), docstore.Projection{})
	if err != nil && !docstore.IsNotFound(err) {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil || !s.hasher.Verify(password, user.String(model.FieldPassword)) {
		_ = s.events.LogAuthEvent(ctx, model.EventLevelWarning, "Failed login attempt", "", ip, map[string]any{"email": email})
		return nil, apperr.Unauthenticated(MsgIncorrectLogin)
	}

	_ = s.events.LogAuthEvent(ctx, model.EventLevelInfo, "User logged in", user.ID(), ip, nil)
	return s.session(user)
}

// Authenticate resolves the principal of a session token. The returned
// document is the stored user, including hidden fields.
func (s *AuthService) Authenticate(ctx context.Context, token string) (docstore.Document, error) {
	if token == "" {
		return nil, apperr.Unauthenticated(MsgNotLoggedIn)
	}

	claims, ok := s.sessions.Verify(token)
	if !ok {
		return nil, apperr.Unauthenticated(MsgInvalidToken)
	}

	user, err := s.findActive(ctx, claims.Subject)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.Unauthenticated(MsgUserGone)
		}
		return nil, fmt.Errorf("resolving principal: %w", err)
	}

	if auth.ChangedAfter(model.PasswordChangedAt(user), claims.IssuedAt) {
		return nil, apperr.Unauthenticated(MsgPasswordChanged)
	}
	return user, nil
}

// ForgotPassword issues a reset token for the user with email and mails
// resetURL(token). If the mail cannot be sent the pending reset is cleared.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, resetURL func(token string) string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.FindOne(ctx, s.resource.Scoped(docstore.Filter{model.FieldEmail: email}), docstore.Projection{})
	if err != nil {
		if docstore.IsNotFound(err) {
			return apperr.NotFound(MsgNoUserWithEmail)
		}
		return fmt.Errorf("looking up user: %w", err)
	}

	plain, digest, err := s.resets.Issue()
	if err != nil {
		return err
	}
	_, err = s.users.FindByIDAndUpdate(ctx, user.ID(), docstore.Document{
		model.FieldPasswordResetToken:   digest,
		model.FieldPasswordResetExpires: s.now().Add(s.resets.TTL()).UTC(),
	})
	if err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	msg := mail.PasswordReset(recipient(user), resetURL(plain), s.resets.TTL())
	if err := s.send(ctx, msg); err != nil {
		if _, rbErr := s.users.FindByIDAndUpdate(ctx, user.ID(), clearReset()); rbErr != nil {
			slog.Error("rolling back reset token failed", "user_id", user.ID(), "error", rbErr)
		}
		return apperr.Upstream(MsgResetMailFailed, err)
	}

	_ = s.events.LogAuthEvent(ctx, model.EventLevelInfo, "Password reset requested", user.ID(), "", nil)
	return nil
}

// ResetPassword redeems a reset token, sets the new password and logs the
// user in. A token can be redeemed once.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, passwordConfirm string) (*Session, error) {
	user, err := s.users.FindOne(ctx, s.resource.Scoped(docstore.Filter{
		model.FieldPasswordResetToken:   s.resets.Digest(token),
		model.FieldPasswordResetExpires: map[string]any{"$gt": s.now().UTC()},
	}), docstore.Projection{})
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.Validation(MsgResetInvalid)
		}
		return nil, fmt.Errorf("looking up reset token: %w", err)
	}

	updated, err := s.setPassword(ctx, user, password, passwordConfirm)
	if err != nil {
		return nil, err
	}
	_ = s.events.LogAuthEvent(ctx, model.EventLevelInfo, "Password reset completed", user.ID(), "", nil)
	return s.session(updated)
}

// UpdatePassword changes the password of an authenticated user after
// re-checking the current one.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, password, passwordConfirm string) (*Session, error) {
	user, err := s.findActive(ctx, userID)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, apperr.Unauthenticated(MsgUserGone)
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if !s.hasher.Verify(current, user.String(model.FieldPassword)) {
		return nil, apperr.Unauthenticated(MsgWrongCurrentPass)
	}

	updated, err := s.setPassword(ctx, user, password, passwordConfirm)
	if err != nil {
		return nil, err
	}
	_ = s.events.LogAuthEvent(ctx, model.EventLevelInfo, "Password changed", user.ID(), "", nil)
	return s.session(updated)
}

// setPassword validates and hashes a new password and clears any pending reset.
func (s *AuthService) setPassword(ctx context.Context, user docstore.Document, password, passwordConfirm string) (docstore.Document, error) {
	changes := docstore.Document{
		model.FieldPassword:        password,
		model.FieldPasswordConfirm: passwordConfirm,
	}
	if err := s.resource.Update(changes, user); err != nil {
		return nil, err
	}
	for k, v := range clearReset() {
		changes[k] = v
	}

	updated, err := s.users.FindByIDAndUpdate(ctx, user.ID(), changes)
	if err != nil {
		return nil, fmt.Errorf("saving password: %w", err)
	}
	return updated, nil
}

func (s *AuthService) findActive(ctx context.Context, id string) (docstore.Document, error) {
	if id == "" {
		return nil, docstore.ErrNotFound
	}
	return s.users.FindOne(ctx, s.resource.Scoped(docstore.Filter{docstore.FieldID: id}), docstore.Projection{})
}

func (s *AuthService) session(user docstore.Document) (*Session, error) {
	token, err := s.sessions.Issue(user.ID())
	if err != nil {
		return nil, err
	}
	return &Session{User: s.resource.Present(user), Token: token}, nil
}

func (s *AuthService) send(ctx context.Context, msg mail.Message) error {
	if s.mailer == nil {
		return errors.New("no mailer configured")
	}
	return s.mailer.Send(ctx, msg)
}

func clearReset() docstore.Document {
	return docstore.Document{
		model.FieldPasswordResetToken:   nil,
		model.FieldPasswordResetExpires: nil,
	}
}

func recipient(user docstore.Document) mail.Recipient {
	return mail.Recipient{Name: user.String("name"), Email: user.String(model.FieldEmail)}
}
