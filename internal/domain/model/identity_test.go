/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"testing"
	"time"
)

func TestIdentityExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "never expires", expiresAt: nil, want: false},
		{name: "in the past", expiresAt: &past, want: true},
		{name: "exactly now", expiresAt: &now, want: true},
		{name: "in the future", expiresAt: &future, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i := Identity{ExpiresAt: tt.expiresAt}
			if got := i.Expired(now); got != tt.want {
				t.Fatalf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSelectorKindString(t *testing.T) {
	if got := PublicKeySelector("k").Kind.String(); got != "public_key" {
		t.Fatalf("unexpected kind name %q", got)
	}
	if got := AddressSelector("10.0.0.1").Kind.String(); got != "address" {
		t.Fatalf("unexpected kind name %q", got)
	}
}
