/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"github.com/spf13/cobra"
)

var (
	version = "unknown"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "shade.yaml"

var rootCmd = &cobra.Command{
	Use:   "shade",
	Short: "Identity-gated TCP gatekeeper",
	Long: `shade admits TCP connections only from hosts enrolled on behalf of a
registered identity, and forwards admitted sessions to an upstream service.

Identities are managed locally (storage.mode: file) or through the
enrollment socket of a running server (storage.mode: socket).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&globalOpts.ConfigPath, "config", "c", defaultConfigPath, "Path to config file")

	rootCmd.AddCommand(genKeysCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(proxyCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
