// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package version

import "testing"

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want string
	}{
		{"version only", Info{Version: "v1.2.3"}, "v1.2.3"},
		{"with commit", Info{Version: "v1.2.3", GitCommit: "abc1234"}, "v1.2.3 (abc1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetDefaults(t *testing.T) {
	// Before ldflags injection the version is "dev".
	if got := Get().Version; got != "dev" {
		t.Errorf("Version = %q, want %q", got, "dev")
	}
	if Short() != "dev" {
		t.Errorf("Short() = %q, want %q", Short(), "dev")
	}
}
