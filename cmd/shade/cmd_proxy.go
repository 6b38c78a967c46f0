/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/gatekeeper"
	"github.com/kentakayama/shade/internal/infra/sqlite"
)

var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Run the gatekeeper only",
	Long: `Run only the gatekeeper: accept TCP connections on proxy.listen_addr and
forward those from enrolled hosts to proxy.upstream_addr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(false)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		if cfg.Proxy.UpstreamAddr == "" {
			return errMissingUpstream
		}

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

		return runServices(ctx, logger, service{
			name: "gatekeeper",
			run:  gatekeeper.New(cfg.Proxy, store, logger).ListenAndServe,
		})
	},
}
