/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/config"
	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/infra/sqlite"
	"github.com/kentakayama/shade/internal/logging"
	"github.com/kentakayama/shade/internal/rpc"
)

// GlobalOptions holds the global configuration flags
type GlobalOptions struct {
	ConfigPath string
}

var globalOpts = &GlobalOptions{}

// loadConfig reads and validates the config file named by --config.
// console selects the human readable logger used by one-shot commands.
func loadConfig(console bool) (config.Config, *zap.Logger, error) {
	cfg, found, err := config.Load(globalOpts.ConfigPath)
	if err != nil {
		return config.Config{}, nil, err
	}

	var logger *zap.Logger
	if console {
		logger, err = logging.NewConsole(cfg.LogLevel)
	} else {
		logger, err = logging.New(cfg.LogLevel)
	}
	if err != nil {
		return config.Config{}, nil, err
	}
	if !found {
		logger.Warn("config file not found, using defaults", zap.String("path", globalOpts.ConfigPath))
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, fmt.Errorf("invalid config %s: %w", globalOpts.ConfigPath, err)
	}
	return cfg, logger, nil
}

// identityAdmin is the administrative surface shared by both storage modes.
type identityAdmin interface {
	Register(ctx context.Context, c model.Candidate) (*model.Identity, error)
	Revoke(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Identity, error)
	Close() error
}

// openAdmin opens the database directly in file mode and talks to the
// enrollment socket in socket mode.
func openAdmin(ctx context.Context, cfg config.Config) (identityAdmin, error) {
	switch cfg.Storage.Mode {
	case config.StorageModeFile:
		store, err := sqlite.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return &fileAdmin{store: store}, nil
	case config.StorageModeSocket:
		return &socketAdmin{Client: rpc.NewClient(cfg.Storage.SocketPath, cfg.Storage.MaxFrameSize)}, nil
	default:
		return nil, fmt.Errorf("unsupported storage mode %q", cfg.Storage.Mode)
	}
}

type fileAdmin struct {
	store *sqlite.Store
}

func (a *fileAdmin) Register(ctx context.Context, c model.Candidate) (*model.Identity, error) {
	return a.store.Register(ctx, c)
}

func (a *fileAdmin) Revoke(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid identity id %q", domain.ErrInvalidArgument, id)
	}
	return a.store.Revoke(ctx, parsed)
}

func (a *fileAdmin) List(ctx context.Context) ([]model.Identity, error) {
	return a.store.List(ctx)
}

func (a *fileAdmin) Close() error {
	return a.store.Close()
}

type socketAdmin struct {
	*rpc.Client
}

func (a *socketAdmin) Close() error {
	return nil
}
