/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import (
	"time"

	"github.com/google/uuid"
)

// Identity is an enrolled key pair, the unit of trust for admission.
type Identity struct {
	ID         uuid.UUID
	PublicKey  string
	PrivateKey string
	CreatedAt  time.Time
	ExpiresAt  *time.Time // nil if never expires
}

// Expired reports whether the identity is past its expiry at now.
func (i *Identity) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && !i.ExpiresAt.After(now)
}

// Candidate carries the caller supplied fields of a registration.
type Candidate struct {
	PublicKey  string
	PrivateKey string
	ExpiresAt  *time.Time
}
