/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/config"
	"github.com/kentakayama/shade/internal/gatekeeper"
	"github.com/kentakayama/shade/internal/infra/sqlite"
	"github.com/kentakayama/shade/internal/rpc"
	"github.com/kentakayama/shade/internal/server"
)

const shutdownTimeout = 10 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the shade server",
	Long: `Run the HTTP control API together with the enrollment socket (socket
mode) and the gatekeeper (when proxy.enabled is set) until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := sqlite.Open(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("failed to close identity store", zap.Error(err))
			}
		}()

		services := []service{httpService(server.New(cfg.Server, store, logger))}
		if cfg.Storage.Mode == config.StorageModeSocket {
			services = append(services, service{name: "rpc", run: rpc.NewServer(cfg.Storage, store, logger).ListenAndServe})
		}
		if cfg.Proxy.Enabled {
			services = append(services, service{name: "gatekeeper", run: gatekeeper.New(cfg.Proxy, store, logger).ListenAndServe})
		}

		logger.Info("starting shade server",
			zap.String("storage_mode", string(cfg.Storage.Mode)),
			zap.Bool("proxy", cfg.Proxy.Enabled))
		err = runServices(ctx, logger, services...)
		logger.Info("shade server stopped")
		return err
	},
}

type service struct {
	name string
	run  func(ctx context.Context) error
}

func httpService(s *server.Server) service {
	return service{
		name: "http",
		run: func(ctx context.Context) error {
			stopped := make(chan struct{})
			defer close(stopped)
			go func() {
				select {
				case <-ctx.Done():
				case <-stopped:
					return
				}
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				_ = s.Shutdown(sctx)
			}()
			return s.ListenAndServe()
		},
	}
}

// runServices runs every service until ctx is canceled or one of them
// stops; the first failure is returned once all have returned.
func runServices(ctx context.Context, logger *zap.Logger, services ...service) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(services))
	for _, s := range services {
		s := s
		go func() {
			err := s.run(ctx)
			if err != nil {
				err = fmt.Errorf("%s: %w", s.name, err)
			}
			errCh <- err
		}()
	}

	var first error
	for range services {
		if err := <-errCh; err != nil && first == nil {
			logger.Error("service failed", zap.Error(err))
			first = err
		}
		cancel()
	}
	return first
}
