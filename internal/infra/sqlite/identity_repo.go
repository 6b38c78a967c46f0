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
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type IdentityRepository struct {
	db dbtx
}

// NewIdentityRepository creates a new instance of IdentityRepository.
func NewIdentityRepository(db dbtx) *IdentityRepository {
	return &IdentityRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var i model.Identity
	var expiresAtUnix sql.NullInt64
	if err := row.Scan(&i.ID, &i.PublicKey, &i.PrivateKey, &i.CreatedAt, &expiresAtUnix); err != nil {
		return nil, err
	}

	// Convert Unix timestamp to *time.Time
	if expiresAtUnix.Valid {
		t := time.Unix(expiresAtUnix.Int64, 0).UTC()
		i.ExpiresAt = &t
	}
	return &i, nil
}

func (r *IdentityRepository) GetAll(ctx context.Context) ([]model.Identity, error) {
	const query = `
		SELECT id, public_key, private_key, created_at, expires_at
		FROM identities
		ORDER BY created_at, id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	identities := []model.Identity{}
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, *i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return identities, nil
}

func (r *IdentityRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	const query = `
		SELECT id, public_key, private_key, created_at, expires_at
		FROM identities
		WHERE id = ?
		LIMIT 1
	`
	i, err := scanIdentity(r.db.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return i, nil
}

// FindActiveByPublicKey finds the identity owning publicKey that has not
// expired at now.
func (r *IdentityRepository) FindActiveByPublicKey(ctx context.Context, publicKey string, now time.Time) (*model.Identity, error) {
	const query = `
		SELECT id, public_key, private_key, created_at, expires_at
		FROM identities
		WHERE public_key = ? AND (expires_at IS NULL OR expires_at > ?)
		LIMIT 1
	`
	i, err := scanIdentity(r.db.QueryRowContext(ctx, query, publicKey, now.Unix()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *IdentityRepository) ExistsActiveByPublicKey(ctx context.Context, publicKey string, now time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM identities
			WHERE public_key = ? AND (expires_at IS NULL OR expires_at > ?)
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, publicKey, now.Unix()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *IdentityRepository) Create(ctx context.Context, i *model.Identity) error {
	const query = `
		INSERT INTO identities (id, public_key, private_key, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`
	var expiresAt sql.NullInt64
	if i.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: i.ExpiresAt.Unix(), Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query, i.ID.String(), i.PublicKey, i.PrivateKey, i.CreatedAt, expiresAt)
	return err
}

// DeleteByID permanently removes an identity.
func (r *IdentityRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM identities WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query, id.String())
	if err != nil {
		return err
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrNotFound
	}

	return nil
}
