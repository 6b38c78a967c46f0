/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/domain/service"
)

var _ service.IdentityStore = (*Store)(nil)

// Store is the SQLite backed service.IdentityStore.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore wraps an initialized database, see InitDB.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Open initializes the database at dbPath and returns a Store over it.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	db, err := InitDB(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	return NewStore(db), nil
}

func (s *Store) Close() error {
	return CloseDB(s.db)
}

func (s *Store) Register(ctx context.Context, c model.Candidate) (*model.Identity, error) {
	if c.PublicKey == "" {
		return nil, fmt.Errorf("%w: public key is required", domain.ErrInvalidArgument)
	}

	i := &model.Identity{
		ID:         uuid.New(),
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		CreatedAt:  s.now(),
	}
	if c.ExpiresAt != nil {
		// persisted at second precision
		t := time.Unix(c.ExpiresAt.Unix(), 0).UTC()
		i.ExpiresAt = &t
	}

	if err := NewIdentityRepository(s.db).Create(ctx, i); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: public key is already enrolled", domain.ErrConflict)
		}
		return nil, backendError("register identity", err)
	}
	return i, nil
}

func (s *Store) Revoke(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return backendError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := NewHostRepository(tx).DeleteByIdentityID(ctx, id); err != nil {
		return backendError("delete hosts", err)
	}
	if err := NewIdentityRepository(tx).DeleteByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("identity %s: %w", id, domain.ErrNotFound)
		}
		return backendError("delete identity", err)
	}

	if err := tx.Commit(); err != nil {
		return backendError("commit transaction", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]model.Identity, error) {
	identities, err := NewIdentityRepository(s.db).GetAll(ctx)
	if err != nil {
		return nil, backendError("list identities", err)
	}
	return identities, nil
}

func (s *Store) IsAuthorized(ctx context.Context, sel model.Selector) (bool, error) {
	var (
		ok  bool
		err error
	)
	switch sel.Kind {
	case model.SelectorPublicKey:
		ok, err = NewIdentityRepository(s.db).ExistsActiveByPublicKey(ctx, sel.Value, s.now())
	case model.SelectorAddress:
		ok, err = NewHostRepository(s.db).ExistsActiveByAddress(ctx, sel.Value, s.now())
	default:
		return false, fmt.Errorf("%w: unknown selector kind %v", domain.ErrInvalidArgument, sel.Kind)
	}
	if err != nil {
		return false, backendError("check "+sel.Kind.String(), err)
	}
	return ok, nil
}

func (s *Store) EnrollHost(ctx context.Context, publicKey, ipAddress string) (*model.Host, error) {
	if ipAddress == "" {
		return nil, fmt.Errorf("%w: ip address is required", domain.ErrInvalidArgument)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backendError("begin transaction", err)
	}
	defer tx.Rollback()

	now := s.now()
	identity, err := NewIdentityRepository(tx).FindActiveByPublicKey(ctx, publicKey, now)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("public key: %w", domain.ErrNotFound)
		}
		return nil, backendError("find identity", err)
	}

	h := &model.Host{
		IPAddress:  ipAddress,
		IdentityID: identity.ID,
		CreatedAt:  now,
	}
	if err := NewHostRepository(tx).Upsert(ctx, h); err != nil {
		return nil, backendError("store host", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, backendError("commit transaction", err)
	}
	return h, nil
}

func (s *Store) ListHosts(ctx context.Context) ([]model.Host, error) {
	hosts, err := NewHostRepository(s.db).GetAll(ctx)
	if err != nil {
		return nil, backendError("list hosts", err)
	}
	return hosts, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return backendError("ping database", err)
	}
	return nil
}

func backendError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %w", domain.ErrBackend, op, err)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
