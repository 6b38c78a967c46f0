/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package memory provides an in-process service.IdentityStore.
// Records live only as long as the process; it backs tests and throwaway
// gateways that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/domain/service"
)

var _ service.IdentityStore = (*Store)(nil)

type Store struct {
	mu         sync.RWMutex
	identities map[uuid.UUID]model.Identity
	byKey      map[string]uuid.UUID
	hosts      map[string]model.Host
	fail       error
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		identities: make(map[uuid.UUID]model.Identity),
		byKey:      make(map[string]uuid.UUID),
		hosts:      make(map[string]model.Host),
	}
}

// SetFailure makes every following operation fail with a backend error
// wrapping err. A nil err restores normal operation.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

func (s *Store) failure() error {
	if s.fail != nil {
		return fmt.Errorf("%w: %w", domain.ErrBackend, s.fail)
	}
	return nil
}

func (s *Store) Register(_ context.Context, c model.Candidate) (*model.Identity, error) {
	if c.PublicKey == "" {
		return nil, fmt.Errorf("%w: public key is required", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}
	if _, ok := s.byKey[c.PublicKey]; ok {
		return nil, fmt.Errorf("%w: public key is already enrolled", domain.ErrConflict)
	}

	i := model.Identity{
		ID:         uuid.New(),
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		CreatedAt:  time.Now().UTC(),
	}
	if c.ExpiresAt != nil {
		t := time.Unix(c.ExpiresAt.Unix(), 0).UTC()
		i.ExpiresAt = &t
	}
	s.identities[i.ID] = i
	s.byKey[i.PublicKey] = i.ID

	return cloneIdentity(i), nil
}

func (s *Store) Revoke(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return err
	}

	i, ok := s.identities[id]
	if !ok {
		return fmt.Errorf("identity %s: %w", id, domain.ErrNotFound)
	}
	delete(s.identities, id)
	delete(s.byKey, i.PublicKey)
	for ip, h := range s.hosts {
		if h.IdentityID == id {
			delete(s.hosts, ip)
		}
	}
	return nil
}

func (s *Store) List(_ context.Context) ([]model.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}

	out := make([]model.Identity, 0, len(s.identities))
	for _, i := range s.identities {
		out = append(out, *cloneIdentity(i))
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID.String() < out[b].ID.String()
	})
	return out, nil
}

func (s *Store) IsAuthorized(_ context.Context, sel model.Selector) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return false, err
	}

	now := time.Now()
	switch sel.Kind {
	case model.SelectorPublicKey:
		return s.activeByKey(sel.Value, now) != nil, nil
	case model.SelectorAddress:
		h, ok := s.hosts[sel.Value]
		if !ok {
			return false, nil
		}
		i, ok := s.identities[h.IdentityID]
		return ok && !i.Expired(now), nil
	default:
		return false, fmt.Errorf("%w: unknown selector kind %v", domain.ErrInvalidArgument, sel.Kind)
	}
}

func (s *Store) activeByKey(publicKey string, now time.Time) *model.Identity {
	id, ok := s.byKey[publicKey]
	if !ok {
		return nil
	}
	i := s.identities[id]
	if i.Expired(now) {
		return nil
	}
	return &i
}

func (s *Store) EnrollHost(_ context.Context, publicKey, ipAddress string) (*model.Host, error) {
	if ipAddress == "" {
		return nil, fmt.Errorf("%w: ip address is required", domain.ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failure(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	i := s.activeByKey(publicKey, now)
	if i == nil {
		return nil, fmt.Errorf("public key: %w", domain.ErrNotFound)
	}
	h := model.Host{IPAddress: ipAddress, IdentityID: i.ID, CreatedAt: now}
	s.hosts[ipAddress] = h
	return &h, nil
}

func (s *Store) ListHosts(_ context.Context) ([]model.Host, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.failure(); err != nil {
		return nil, err
	}

	out := make([]model.Host, 0, len(s.hosts))
	for _, h := range s.hosts {
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].IPAddress < out[b].IPAddress
	})
	return out, nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.failure()
}

func cloneIdentity(i model.Identity) *model.Identity {
	if i.ExpiresAt != nil {
		t := *i.ExpiresAt
		i.ExpiresAt = &t
	}
	return &i
}
