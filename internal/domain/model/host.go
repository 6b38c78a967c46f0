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

// Host is a network address admitted on behalf of an identity.
type Host struct {
	IPAddress  string
	IdentityID uuid.UUID
	CreatedAt  time.Time
}
