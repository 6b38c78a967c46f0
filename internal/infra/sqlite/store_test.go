/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RegisterThenList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	exp := time.Now().Add(time.Hour)
	got, err := s.Register(ctx, model.Candidate{PublicKey: "pub-A", PrivateKey: "priv-A", ExpiresAt: &exp})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.False(t, got.CreatedAt.IsZero())
	require.NotNil(t, got.ExpiresAt)
	assert.Equal(t, exp.Unix(), got.ExpiresAt.Unix())

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, got.ID, list[0].ID)
	assert.Equal(t, "pub-A", list[0].PublicKey)
	assert.Equal(t, "priv-A", list[0].PrivateKey)
	assert.True(t, got.CreatedAt.Equal(list[0].CreatedAt))
	require.NotNil(t, list[0].ExpiresAt)
	assert.True(t, got.ExpiresAt.Equal(*list[0].ExpiresAt))
}

func TestStore_RegisterAssignsUniqueIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seen := map[uuid.UUID]bool{}
	for n := 0; n < 10; n++ {
		i, err := s.Register(ctx, model.Candidate{PublicKey: fmt.Sprintf("pub-%d", n)})
		require.NoError(t, err)
		assert.False(t, seen[i.ID], "duplicate id %s", i.ID)
		seen[i.ID] = true
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 10)
}

func TestStore_RegisterRejectsDuplicatePublicKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Register(ctx, model.Candidate{PublicKey: "pub-dup"})
	require.NoError(t, err)

	_, err = s.Register(ctx, model.Candidate{PublicKey: "pub-dup"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_RegisterRequiresPublicKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Register(context.Background(), model.Candidate{PrivateKey: "priv"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_Scenario_RegisterThenAuthorize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	i, err := s.Register(ctx, model.Candidate{PublicKey: "pub-A"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, i.ID)

	ok, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub-A"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAuthorized(ctx, model.PublicKeySelector("pub-B"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_RevokeThenAuthorize(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	i, err := s.Register(ctx, model.Candidate{PublicKey: "pub-R"})
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, i.ID))

	ok, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub-R"))
	require.NoError(t, err)
	assert.False(t, ok)

	// a second revoke is NotFound and changes nothing
	err = s.Revoke(ctx, i.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_ExpiredIdentityIsNotAuthorized(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	past := time.Now().Add(-time.Minute)
	_, err := s.Register(ctx, model.Candidate{PublicKey: "pub-old", ExpiresAt: &past})
	require.NoError(t, err)

	ok, err := s.IsAuthorized(ctx, model.PublicKeySelector("pub-old"))
	require.NoError(t, err)
	assert.False(t, ok)

	// still listed, it is enrolled
	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_EnrollHostAndAuthorizeAddress(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	i, err := s.Register(ctx, model.Candidate{PublicKey: "pub-H"})
	require.NoError(t, err)

	_, err = s.EnrollHost(ctx, "pub-unknown", "10.0.0.5")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h, err := s.EnrollHost(ctx, "pub-H", "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, i.ID, h.IdentityID)
	assert.Equal(t, "10.0.0.5", h.IPAddress)

	ok, err := s.IsAuthorized(ctx, model.AddressSelector("10.0.0.5"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsAuthorized(ctx, model.AddressSelector("10.0.0.6"))
	require.NoError(t, err)
	assert.False(t, ok)

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	assert.Equal(t, "10.0.0.5", hosts[0].IPAddress)

	// revoking the identity drops its hosts
	require.NoError(t, s.Revoke(ctx, i.ID))
	ok, err = s.IsAuthorized(ctx, model.AddressSelector("10.0.0.5"))
	require.NoError(t, err)
	assert.False(t, ok)

	hosts, err = s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestStore_ListIsStable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for n := 0; n < 5; n++ {
		_, err := s.Register(ctx, model.Candidate{PublicKey: fmt.Sprintf("pub-%d", n)})
		require.NoError(t, err)
	}

	first, err := s.List(ctx)
	require.NoError(t, err)
	second, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStore_UnknownSelectorKind(t *testing.T) {
	s := newTestStore(t)

	_, err := s.IsAuthorized(context.Background(), model.Selector{Value: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_BackendErrorAfterClose(t *testing.T) {
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.List(context.Background())
	assert.ErrorIs(t, err, domain.ErrBackend)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrBackend)
}

func TestStore_ConcurrentRegisterAndList(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), "shade.db"))
	require.NoError(t, err)
	defer s.Close()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for n := 0; n < writers; n++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			if _, err := s.Register(ctx, model.Candidate{PublicKey: fmt.Sprintf("pub-%d", n), PrivateKey: "priv"}); err != nil {
				errs <- err
			}
		}(n)
		go func() {
			defer wg.Done()
			list, err := s.List(ctx)
			if err != nil {
				errs <- err
				return
			}
			for _, i := range list {
				// never a partially written record
				if i.ID == uuid.Nil || i.PublicKey == "" || i.PrivateKey != "priv" || i.CreatedAt.IsZero() {
					errs <- fmt.Errorf("partial identity: %+v", i)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, writers)
}
