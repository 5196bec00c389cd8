// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

// User roles.
const (
	RoleUser      = "user"
	RoleGuide     = "guide"
	RoleLeadGuide = "lead-guide"
	RoleAdmin     = "admin"
)

// Roles lists every valid role.
var Roles = []string{RoleUser, RoleGuide, RoleLeadGuide, RoleAdmin}

// IsValidRole reports whether role is one of Roles.
func IsValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAuthorized reports whether role is a member of allowed.
// Roles are not hierarchical: admin is authorized only where it is listed.
func IsAuthorized(role string, allowed ...string) bool {
	for _, a := range allowed {
		if a == role {
			return true
		}
	}
	return false
}
