// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/olegiv/natours-go/internal/auth"
	"github.com/olegiv/natours-go/internal/docstore"
)

// User fields referenced outside the resource definition.
const (
	FieldEmail                = "email"
	FieldPassword             = "password"
	FieldPasswordConfirm      = "passwordConfirm"
	FieldPasswordChangedAt    = "passwordChangedAt"
	FieldPasswordResetToken   = "passwordResetToken"
	FieldPasswordResetExpires = "passwordResetExpires"
	FieldActive               = "active"
	FieldRole                 = "role"
)

// DefaultPhoto is assigned to users created without one.
const DefaultPhoto = "default.jpg"

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

// PasswordChangeSkew backdates passwordChangedAt so a token issued right
// after the change is not rejected.
const PasswordChangeSkew = time.Second

// UserOptions configures the users resource.
type UserOptions struct {
	Hasher *auth.Hasher
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewUsers returns the users resource. Passwords are hashed by its Prepare
// stage whenever they are written.
func NewUsers(opts UserOptions) *Resource {
	if opts.Hasher == nil {
		opts.Hasher = auth.NewHasher(auth.DefaultCost)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Resource{
		Definition: docstore.Definition{
			Name: Users,
			Schema: docstore.Schema{
				"name":                    docstore.KindString,
				FieldEmail:                docstore.KindString,
				"photo":                   docstore.KindString,
				FieldRole:                 docstore.KindString,
				FieldPassword:             docstore.KindString,
				FieldPasswordChangedAt:    docstore.KindDate,
				FieldPasswordResetToken:   docstore.KindString,
				FieldPasswordResetExpires: docstore.KindDate,
				FieldActive:               docstore.KindBool,
			},
			Indexes: []docstore.Index{
				{Fields: []docstore.SortField{{Field: FieldEmail}}, Unique: true},
			},
		},
		Writable: []string{"name", FieldEmail, "photo", FieldRole},
		Hidden: []string{
			FieldPassword, FieldPasswordConfirm, FieldActive,
			FieldPasswordResetToken, FieldPasswordResetExpires,
		},
		Scope:     docstore.Filter{FieldActive: map[string]any{"$ne": false}},
		Normalize: normalizeUser,
		Validate:  validateUser,
		Prepare: func(changes, prev docstore.Document) error {
			return prepareUser(opts, changes, prev)
		},
	}
}

func normalizeUser(doc docstore.Document, creating bool) {
	if email, ok := doc[FieldEmail].(string); ok {
		doc[FieldEmail] = strings.ToLower(strings.TrimSpace(email))
	}
	if !creating {
		return
	}
	setDefault(doc, "photo", DefaultPhoto)
	setDefault(doc, FieldRole, auth.RoleUser)
	setDefault(doc, FieldActive, true)
}

func validateUser(doc, changes docstore.Document) error {
	var v Violations

	if !present(doc, "name") {
		v.Add("name", "Please tell us your name!")
	}
	if !present(doc, FieldEmail) {
		v.Add(FieldEmail, "Please provide your email address")
	} else if !validEmail(doc.String(FieldEmail)) {
		v.Add(FieldEmail, "Please provide a valid email")
	}
	if role, ok := doc[FieldRole].(string); ok && !auth.IsValidRole(role) {
		v.Add(FieldRole, fmt.Sprintf("Role is either: %s", strings.Join(auth.Roles, ", ")))
	}

	if _, writing := changes[FieldPassword]; writing {
		password := changes.String(FieldPassword)
		switch {
		case password == "":
			v.Add(FieldPassword, "Please provide a password")
		case len(password) < MinPasswordLength:
			v.Add(FieldPassword, fmt.Sprintf("The password must have more or equal than %d characters", MinPasswordLength))
		case len(password) > MaxPasswordBytes:
			v.Add(FieldPassword, fmt.Sprintf("The password must not be longer than %d bytes", MaxPasswordBytes))
		}
		confirm, hasConfirm := changes[FieldPasswordConfirm].(string)
		switch {
		case !hasConfirm || confirm == "":
			v.Add(FieldPasswordConfirm, "Please confirm your password")
		case confirm != password:
			v.Add(FieldPasswordConfirm, "Passwords are not the same")
		}
	}

	return v.Err()
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndexByte(s, '@')+1:], ".")
}

func prepareUser(opts UserOptions, changes, prev docstore.Document) error {
	delete(changes, FieldPasswordConfirm)

	password, ok := changes[FieldPassword].(string)
	if !ok {
		return nil
	}
	digest, err := opts.Hasher.Hash(password)
	if err != nil {
		return err
	}
	changes[FieldPassword] = digest
	if prev != nil {
		changes[FieldPasswordChangedAt] = opts.Now().Add(-PasswordChangeSkew).UTC()
	}
	return nil
}

// PasswordChangedAt returns the last password change time of a user, or nil.
func PasswordChangedAt(user docstore.Document) *time.Time {
	t, ok := user.Time(FieldPasswordChangedAt)
	if !ok {
		return nil
	}
	return &t
}
