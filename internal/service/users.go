// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"fmt"

	"github.com/olegiv/natours-go/internal/apperr"
	"github.com/olegiv/natours-go/internal/cache"
	"github.com/olegiv/natours-go/internal/docstore"
	"github.com/olegiv/natours-go/internal/model"
)

// MsgNotForPasswords rejects password fields on profile updates.
const MsgNotForPasswords = "This route is not for password updates. Please use /updateMyPassword."

// profileFields are the fields a user may change on their own profile.
var profileFields = []string{"name", model.FieldEmail}

// UserService implements the self-service profile operations.
type UserService struct {
	users    docstore.Collection
	resource *model.Resource
	cache    *cache.Responses
}

// NewUserService creates a UserService. responses may be nil.
func NewUserService(users docstore.Collection, resource *model.Resource, responses *cache.Responses) *UserService {
	return &UserService{users: users, resource: resource, cache: responses}
}

// UpdateMe applies name and email changes from body to the user's profile.
func (s *UserService) UpdateMe(ctx context.Context, userID string, body map[string]any) (docstore.Document, error) {
	if _, ok := body[model.FieldPassword]; ok {
		return nil, apperr.Validation(MsgNotForPasswords)
	}
	if _, ok := body[model.FieldPasswordConfirm]; ok {
		return nil, apperr.Validation(MsgNotForPasswords)
	}

	changes := docstore.Document{}
	for _, f := range profileFields {
		if v, ok := body[f]; ok {
			changes[f] = v
		}
	}

	prev, err := s.users.FindByID(ctx, userID, docstore.Projection{})
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if len(changes) == 0 {
		return s.resource.Present(prev), nil
	}
	if err := s.resource.Update(changes, prev); err != nil {
		return nil, err
	}

	updated, err := s.users.FindByIDAndUpdate(ctx, userID, changes)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, model.Users, userID)
	return s.resource.Present(updated), nil
}

// DeleteMe deactivates the user. The document is kept.
func (s *UserService) DeleteMe(ctx context.Context, userID string) error {
	if _, err := s.users.FindByIDAndUpdate(ctx, userID, docstore.Document{model.FieldActive: false}); err != nil {
		return fmt.Errorf("deactivating user: %w", err)
	}
	s.cache.Invalidate(ctx, model.Users, userID)
	return nil
}
