/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain/model"
)

// IdentityStore defines the persistence contract shared by the enrollment
// RPC server, the HTTP control API and the gatekeeper.
// Implementations must be safe for concurrent use.
type IdentityStore interface {
	// Register assigns a fresh id and creation time and persists the identity.
	// A public key that is already enrolled yields domain.ErrConflict.
	Register(ctx context.Context, c model.Candidate) (*model.Identity, error)
	// Revoke removes the identity and every host admitted on its behalf.
	// It returns domain.ErrNotFound if no identity has the id.
	Revoke(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]model.Identity, error)
	// IsAuthorized reports whether a non-expired identity matches the selector.
	IsAuthorized(ctx context.Context, sel model.Selector) (bool, error)
	// EnrollHost binds ipAddress to the non-expired identity owning publicKey.
	EnrollHost(ctx context.Context, publicKey, ipAddress string) (*model.Host, error)
	ListHosts(ctx context.Context) ([]model.Host, error)
	Ping(ctx context.Context) error
}
