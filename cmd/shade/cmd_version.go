/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display the version, commit hash, and build date of shade.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if versionJSON {
			return json.NewEncoder(out).Encode(struct {
				Version        string `json:"version"`
				Commit         string `json:"commit"`
				BuiltAt        string `json:"builtAt"`
				GoBuildVersion string `json:"goBuildVersion"`
			}{version, commit, date, runtime.Version()})
		}
		_, _ = fmt.Fprintf(out, "version: %s\n", version)
		_, _ = fmt.Fprintf(out, "commit: %s\n", commit)
		_, _ = fmt.Fprintf(out, "built at: %s\n", date)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output version information as JSON")
}
