/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
)

func TestIdentityRepository_CreateFind_OK(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewIdentityRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	exp := now.Add(1 * time.Hour)
	i := &model.Identity{
		ID:         uuid.New(),
		PublicKey:  "pk-1",
		PrivateKey: "sk-1",
		CreatedAt:  now,
		ExpiresAt:  &exp,
	}

	if err := repo.Create(ctx, i); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := repo.FindByID(ctx, i.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.ID != i.ID {
		t.Fatalf("ID mismatch: got %v want %v", got.ID, i.ID)
	}
	if got.PublicKey != i.PublicKey || got.PrivateKey != i.PrivateKey {
		t.Fatalf("key mismatch: got %q/%q want %q/%q", got.PublicKey, got.PrivateKey, i.PublicKey, i.PrivateKey)
	}
	if !got.CreatedAt.Equal(i.CreatedAt) {
		t.Fatalf("CreatedAt mismatch: got %v want %v", got.CreatedAt, i.CreatedAt)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(exp) {
		t.Fatalf("ExpiresAt mismatch: got %v want %v", got.ExpiresAt, exp)
	}

	found, err := repo.FindActiveByPublicKey(ctx, "pk-1", now)
	if err != nil {
		t.Fatalf("FindActiveByPublicKey error: %v", err)
	}
	if found.ID != i.ID {
		t.Fatalf("ID mismatch: got %v want %v", found.ID, i.ID)
	}
}

func TestIdentityRepository_NeverExpires(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewIdentityRepository(db)

	i := &model.Identity{
		ID:        uuid.New(),
		PublicKey: "pk-forever",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, i); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := repo.FindByID(ctx, i.ID)
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.ExpiresAt != nil {
		t.Fatalf("expected nil ExpiresAt, got %v", got.ExpiresAt)
	}

	exists, err := repo.ExistsActiveByPublicKey(ctx, "pk-forever", time.Now().Add(100*365*24*time.Hour))
	if err != nil {
		t.Fatalf("ExistsActiveByPublicKey error: %v", err)
	}
	if !exists {
		t.Fatalf("identity without expiry must stay active")
	}
}

func TestIdentityRepository_NotFound_And_Expired(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewIdentityRepository(db)

	// Not found
	_, err = repo.FindByID(ctx, uuid.New())
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}

	// Expired
	now := time.Now().UTC().Truncate(time.Second)
	exp := now.Add(-1 * time.Hour)
	expired := &model.Identity{
		ID:        uuid.New(),
		PublicKey: "pk-exp",
		CreatedAt: now.Add(-2 * time.Hour),
		ExpiresAt: &exp,
	}
	if err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("Create expired identity error: %v", err)
	}

	_, err = repo.FindActiveByPublicKey(ctx, expired.PublicKey, now)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired identity, got: %v", err)
	}
	exists, err := repo.ExistsActiveByPublicKey(ctx, expired.PublicKey, now)
	if err != nil {
		t.Fatalf("ExistsActiveByPublicKey error: %v", err)
	}
	if exists {
		t.Fatalf("expired identity must not be active")
	}
}

func TestIdentityRepository_DeleteByID(t *testing.T) {
	ctx := context.Background()

	db, err := InitDB(ctx, ":memory:")
	if err != nil {
		t.Fatalf("InitDB error: %v", err)
	}
	defer CloseDB(db)

	repo := NewIdentityRepository(db)

	i := &model.Identity{
		ID:        uuid.New(),
		PublicKey: "pk-delete",
		CreatedAt: time.Now().UTC(),
	}
	if err := repo.Create(ctx, i); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if err := repo.DeleteByID(ctx, i.ID); err != nil {
		t.Fatalf("DeleteByID error: %v", err)
	}

	_, err = repo.FindByID(ctx, i.ID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}

	// Try to delete it again
	err = repo.DeleteByID(ctx, i.ID)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}
