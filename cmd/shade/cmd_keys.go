/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kentakayama/shade/internal/keys"
)

var genKeysJSON bool

var genKeysCmd = &cobra.Command{
	Use:   "gen-keys",
	Short: "Generate an X25519 key pair",
	Long:  `Generate a fresh X25519 key pair. Both halves are printed base64 encoded.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := keys.Generate()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if genKeysJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				PrivateKey string `json:"private_key"`
				PublicKey  string `json:"public_key"`
			}{kp.PrivateKey, kp.PublicKey})
		}
		_, _ = fmt.Fprintf(out, "Private key: %s\n", kp.PrivateKey)
		_, _ = fmt.Fprintf(out, "Public key:  %s\n", kp.PublicKey)
		return nil
	},
}

func init() {
	genKeysCmd.Flags().BoolVar(&genKeysJSON, "json", false, "Output the key pair as JSON")
}
