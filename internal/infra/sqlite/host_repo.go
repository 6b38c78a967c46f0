/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain/model"
)

type HostRepository struct {
	db dbtx
}

// NewHostRepository creates a new instance of HostRepository.
func NewHostRepository(db dbtx) *HostRepository {
	return &HostRepository{db: db}
}

func (r *HostRepository) GetAll(ctx context.Context) ([]model.Host, error) {
	const query = `
		SELECT ip_address, identity_id, created_at
		FROM hosts
		ORDER BY created_at, ip_address
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hosts := []model.Host{}
	for rows.Next() {
		var h model.Host
		if err := rows.Scan(&h.IPAddress, &h.IdentityID, &h.CreatedAt); err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return hosts, nil
}

// Upsert stores the host, rebinding the address if it is already known.
func (r *HostRepository) Upsert(ctx context.Context, h *model.Host) error {
	const query = `
		INSERT INTO hosts (ip_address, identity_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(ip_address) DO UPDATE SET
			identity_id = excluded.identity_id,
			created_at = excluded.created_at
	`
	_, err := r.db.ExecContext(ctx, query, h.IPAddress, h.IdentityID.String(), h.CreatedAt)
	return err
}

func (r *HostRepository) DeleteByIdentityID(ctx context.Context, identityID uuid.UUID) error {
	const query = `DELETE FROM hosts WHERE identity_id = ?`
	_, err := r.db.ExecContext(ctx, query, identityID.String())
	return err
}

// ExistsActiveByAddress reports whether ipAddress is bound to an identity
// that has not expired at now.
func (r *HostRepository) ExistsActiveByAddress(ctx context.Context, ipAddress string, now time.Time) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM hosts h
			JOIN identities i ON i.id = h.identity_id
			WHERE h.ip_address = ? AND (i.expires_at IS NULL OR i.expires_at > ?)
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ipAddress, now.Unix()).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
