/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
)

func TestStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	i, err := s.Register(ctx, model.Candidate{PublicKey: "pub-A", PrivateKey: "priv-A"})
	require.NoError(t, err)

	_, err = s.Register(ctx, model.Candidate{PublicKey: "pub-A"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	ok, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub-A"))
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = s.EnrollHost(ctx, "pub-A", "192.0.2.1")
	require.NoError(t, err)
	ok, err = s.IsAuthorized(ctx, model.AddressSelector("192.0.2.1"))
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, *i, list[0])

	require.NoError(t, s.Revoke(ctx, i.ID))
	assert.ErrorIs(t, s.Revoke(ctx, i.ID), domain.ErrNotFound)

	ok, err = s.IsAuthorized(ctx, model.AddressSelector("192.0.2.1"))
	require.NoError(t, err)
	assert.False(t, ok)

	// the key can be enrolled again after revocation
	_, err = s.Register(ctx, model.Candidate{PublicKey: "pub-A"})
	assert.NoError(t, err)
}

func TestStore_Expired(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	past := time.Now().Add(-time.Second * 2)
	_, err := s.Register(ctx, model.Candidate{PublicKey: "pub-old", ExpiresAt: &past})
	require.NoError(t, err)

	ok, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub-old"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.EnrollHost(ctx, "pub-old", "192.0.2.2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_SetFailure(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("disk on fire")

	s.SetFailure(boom)
	_, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub"))
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Ping(ctx), domain.ErrBackend)

	s.SetFailure(nil)
	assert.NoError(t, s.Ping(ctx))
}
