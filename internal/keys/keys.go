/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package keys generates the X25519 key pairs enrolled as identities.
// Keys are exchanged as standard base64 of the raw 32-byte values.
package keys

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// KeyPair is a base64 encoded X25519 key pair.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generate creates a fresh key pair from crypto/rand.
func Generate() (*KeyPair, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (*KeyPair, error) {
	priv := make([]byte, curve25519.ScalarSize)
	if _, err := io.ReadFull(r, priv); err != nil {
		return nil, fmt.Errorf("keys: read random scalar: %w", err)
	}
	privB64 := base64.StdEncoding.EncodeToString(priv)
	pub, err := PublicFromPrivate(privB64)
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: privB64, PublicKey: pub}, nil
}

// PublicFromPrivate derives the base64 public key of a base64 private key.
func PublicFromPrivate(privB64 string) (string, error) {
	priv, err := base64.StdEncoding.DecodeString(strings.TrimSpace(privB64))
	if err != nil {
		return "", fmt.Errorf("keys: decode private key: %w", err)
	}
	if len(priv) != curve25519.ScalarSize {
		return "", fmt.Errorf("keys: private key must be %d bytes, got %d", curve25519.ScalarSize, len(priv))
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", fmt.Errorf("keys: derive public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(pub), nil
}

// Matches reports whether pubB64 is the public half of privB64.
func Matches(privB64, pubB64 string) (bool, error) {
	derived, err := PublicFromPrivate(privB64)
	if err != nil {
		return false, err
	}
	return derived == strings.TrimSpace(pubB64), nil
}
