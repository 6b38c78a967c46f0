/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/keys"
)

var registerOpts struct {
	PublicKey  string
	PrivateKey string
	Generate   bool
	ExpiresAt  string
}

var revokeOpts struct {
	ID string
}

var listOpts struct {
	JSON bool
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an identity",
	Long: `Register an identity with the store.

Either pass --generate to create a fresh X25519 key pair, or supply the key
material with --public-key and optionally --private-key. When only
--private-key is given the public key is derived from it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cand, err := buildCandidate()
		if err != nil {
			return err
		}

		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		admin, err := openAdmin(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = admin.Close() }()

		identity, err := admin.Register(cmd.Context(), cand)
		if err != nil {
			return fmt.Errorf("failed to register identity: %w", err)
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "Registered identity %s\n", identity.ID)
		_, _ = fmt.Fprintf(out, "Public key:  %s\n", identity.PublicKey)
		if registerOpts.Generate {
			_, _ = fmt.Fprintf(out, "Private key: %s\n", identity.PrivateKey)
		}
		if identity.ExpiresAt != nil {
			_, _ = fmt.Fprintf(out, "Expires at:  %s\n", identity.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an identity",
	Long:  `Revoke an identity by id. Hosts enrolled on its behalf lose access too.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		admin, err := openAdmin(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = admin.Close() }()

		if err := admin.Revoke(cmd.Context(), revokeOpts.ID); err != nil {
			return fmt.Errorf("failed to revoke identity: %w", err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Revoked identity %s\n", revokeOpts.ID)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered identities",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(true)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		admin, err := openAdmin(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = admin.Close() }()

		identities, err := admin.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list identities: %w", err)
		}
		if listOpts.JSON {
			return printIdentitiesJSON(cmd.OutOrStdout(), identities)
		}
		return printIdentities(cmd.OutOrStdout(), identities, time.Now())
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerOpts.PublicKey, "public-key", "", "Public key of the identity")
	registerCmd.Flags().StringVar(&registerOpts.PrivateKey, "private-key", "", "Private key of the identity (X25519, base64)")
	registerCmd.Flags().BoolVar(&registerOpts.Generate, "generate", false, "Generate a fresh X25519 key pair")
	registerCmd.Flags().StringVar(&registerOpts.ExpiresAt, "expires-at", "", "Expiry time in RFC 3339 format")
	registerCmd.MarkFlagsMutuallyExclusive("generate", "public-key")
	registerCmd.MarkFlagsMutuallyExclusive("generate", "private-key")

	revokeCmd.Flags().StringVar(&revokeOpts.ID, "id", "", "Identity id to revoke")
	_ = revokeCmd.MarkFlagRequired("id")

	listCmd.Flags().BoolVar(&listOpts.JSON, "json", false, "Output identities as JSON")
}

func buildCandidate() (model.Candidate, error) {
	var cand model.Candidate

	switch {
	case registerOpts.Generate:
		kp, err := keys.Generate()
		if err != nil {
			return cand, err
		}
		cand.PublicKey, cand.PrivateKey = kp.PublicKey, kp.PrivateKey
	case registerOpts.PrivateKey != "" && registerOpts.PublicKey == "":
		pub, err := keys.PublicFromPrivate(registerOpts.PrivateKey)
		if err != nil {
			return cand, err
		}
		cand.PublicKey, cand.PrivateKey = pub, registerOpts.PrivateKey
	case registerOpts.PrivateKey != "":
		ok, err := keys.Matches(registerOpts.PrivateKey, registerOpts.PublicKey)
		if err != nil {
			return cand, err
		}
		if !ok {
			return cand, errors.New("private key does not match public key")
		}
		cand.PublicKey, cand.PrivateKey = registerOpts.PublicKey, registerOpts.PrivateKey
	case registerOpts.PublicKey != "":
		cand.PublicKey = registerOpts.PublicKey
	default:
		return cand, errors.New("either --generate or --public-key is required")
	}

	expiresAt, err := parseExpiresAt(registerOpts.ExpiresAt)
	if err != nil {
		return cand, err
	}
	cand.ExpiresAt = expiresAt
	return cand, nil
}

func parseExpiresAt(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid --expires-at %q: %w", s, err)
	}
	return &t, nil
}

type identityView struct {
	ID         string     `json:"id"`
	PublicKey  string     `json:"public_key"`
	PrivateKey string     `json:"private_key,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func printIdentitiesJSON(w io.Writer, identities []model.Identity) error {
	views := make([]identityView, 0, len(identities))
	for _, i := range identities {
		views = append(views, identityView{
			ID:         i.ID.String(),
			PublicKey:  i.PublicKey,
			PrivateKey: i.PrivateKey,
			CreatedAt:  i.CreatedAt,
			ExpiresAt:  i.ExpiresAt,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(views)
}

func printIdentities(w io.Writer, identities []model.Identity, now time.Time) error {
	if len(identities) == 0 {
		_, err := fmt.Fprintln(w, "No identities registered.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPUBLIC KEY\tCREATED\tEXPIRES")
	for _, i := range identities {
		expires := "never"
		if i.ExpiresAt != nil {
			expires = i.ExpiresAt.Format(time.RFC3339)
			if i.Expired(now) {
				expires += " (expired)"
			}
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", i.ID, i.PublicKey, i.CreatedAt.Format(time.RFC3339), expires)
	}
	return tw.Flush()
}
