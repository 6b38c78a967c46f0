/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package model

import "fmt"

type SelectorKind int

const (
	SelectorPublicKey SelectorKind = iota + 1
	SelectorAddress
)

func (k SelectorKind) String() string {
	switch k {
	case SelectorPublicKey:
		return "public_key"
	case SelectorAddress:
		return "address"
	default:
		return fmt.Sprintf("SelectorKind(%d)", int(k))
	}
}

// Selector is the value an admission check is made against.
type Selector struct {
	Kind  SelectorKind
	Value string
}

func PublicKeySelector(publicKey string) Selector {
	return Selector{Kind: SelectorPublicKey, Value: publicKey}
}

func AddressSelector(ip string) Selector {
	return Selector{Kind: SelectorAddress, Value: ip}
}

func (s Selector) String() string {
	return s.Kind.String() + "=" + s.Value
}
