/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain/model"
)

func TestHostRepository_UpsertAndExists(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	identities := NewIdentityRepository(db)
	hosts := NewHostRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	first := &model.Identity{ID: uuid.New(), PublicKey: "pk-first", CreatedAt: now}
	second := &model.Identity{ID: uuid.New(), PublicKey: "pk-second", CreatedAt: now}
	for _, i := range []*model.Identity{first, second} {
		if err := identities.Create(ctx, i); err != nil {
			t.Fatalf("Create identity error: %v", err)
		}
	}

	if err := hosts.Upsert(ctx, &model.Host{IPAddress: "10.0.0.7", IdentityID: first.ID, CreatedAt: now}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	// the same address again rebinds it
	if err := hosts.Upsert(ctx, &model.Host{IPAddress: "10.0.0.7", IdentityID: second.ID, CreatedAt: now}); err != nil {
		t.Fatalf("Upsert rebind error: %v", err)
	}

	all, err := hosts.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll error: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 host, got %d", len(all))
	}
	if all[0].IdentityID != second.ID {
		t.Fatalf("IdentityID mismatch: got %v want %v", all[0].IdentityID, second.ID)
	}

	exists, err := hosts.ExistsActiveByAddress(ctx, "10.0.0.7", now)
	if err != nil {
		t.Fatalf("ExistsActiveByAddress error: %v", err)
	}
	if !exists {
		t.Fatalf("expected address to be active")
	}

	exists, err = hosts.ExistsActiveByAddress(ctx, "10.0.0.8", now)
	if err != nil {
		t.Fatalf("ExistsActiveByAddress error: %v", err)
	}
	if exists {
		t.Fatalf("unknown address must not be active")
	}

	if err := hosts.DeleteByIdentityID(ctx, second.ID); err != nil {
		t.Fatalf("DeleteByIdentityID error: %v", err)
	}
	all, err = hosts.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll error: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no hosts, got %d", len(all))
	}
}
