/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package rpc

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kentakayama/shade/internal/domain/model"
)

type RequestKind uint8

const (
	RequestRegister RequestKind = iota + 1
	RequestRevoke
	RequestList
)

func (k RequestKind) String() string {
	switch k {
	case RequestRegister:
		return "Register"
	case RequestRevoke:
		return "Revoke"
	case RequestList:
		return "List"
	default:
		return fmt.Sprintf("RequestKind(%d)", uint8(k))
	}
}

type ResponseKind uint8

const (
	ResponseRegistered ResponseKind = iota + 1
	ResponseRevoked
	ResponseIdentityList
	ResponseError
)

func (k ResponseKind) String() string {
	switch k {
	case ResponseRegistered:
		return "Registered"
	case ResponseRevoked:
		return "Revoked"
	case ResponseIdentityList:
		return "IdentityList"
	case ResponseError:
		return "Error"
	default:
		return fmt.Sprintf("ResponseKind(%d)", uint8(k))
	}
}

// Candidate is the wire form of model.Candidate.
type Candidate struct {
	PublicKey  string     `cbor:"1,keyasint"`
	PrivateKey string     `cbor:"2,keyasint"`
	ExpiresAt  *time.Time `cbor:"3,keyasint,omitempty"`
}

// Identity is the wire form of model.Identity.
type Identity struct {
	ID         string     `cbor:"1,keyasint"`
	PublicKey  string     `cbor:"2,keyasint"`
	PrivateKey string     `cbor:"3,keyasint"`
	CreatedAt  time.Time  `cbor:"4,keyasint"`
	ExpiresAt  *time.Time `cbor:"5,keyasint,omitempty"`
}

// Request is a tagged union; Kind selects which of the other fields is set.
type Request struct {
	Kind      RequestKind `cbor:"1,keyasint"`
	Candidate *Candidate  `cbor:"2,keyasint,omitempty"`
	ID        string      `cbor:"3,keyasint,omitempty"`
}

// Response is a tagged union; Kind selects which of the other fields is set.
type Response struct {
	Kind       ResponseKind `cbor:"1,keyasint"`
	Identity   *Identity    `cbor:"2,keyasint,omitempty"`
	Identities []Identity   `cbor:"3,keyasint"`
	Message    string       `cbor:"4,keyasint,omitempty"`
}

func NewRegisterRequest(c model.Candidate) *Request {
	return &Request{Kind: RequestRegister, Candidate: candidateToWire(c)}
}

func NewRevokeRequest(id string) *Request {
	return &Request{Kind: RequestRevoke, ID: id}
}

func NewListRequest() *Request {
	return &Request{Kind: RequestList}
}

func NewRegisteredResponse(i *model.Identity) *Response {
	w := identityToWire(*i)
	return &Response{Kind: ResponseRegistered, Identity: &w}
}

func NewRevokedResponse() *Response {
	return &Response{Kind: ResponseRevoked}
}

func NewIdentityListResponse(identities []model.Identity) *Response {
	out := make([]Identity, 0, len(identities))
	for _, i := range identities {
		out = append(out, identityToWire(i))
	}
	return &Response{Kind: ResponseIdentityList, Identities: out}
}

func NewErrorResponse(msg string) *Response {
	return &Response{Kind: ResponseError, Message: msg}
}

func (r *Request) validate() error {
	switch r.Kind {
	case RequestRegister:
		if r.Candidate == nil {
			return fmt.Errorf("%w: Register without candidate", ErrDecode)
		}
	case RequestRevoke, RequestList:
	default:
		return fmt.Errorf("%w: unknown request kind %d", ErrDecode, uint8(r.Kind))
	}
	return nil
}

func (r *Response) validate() error {
	switch r.Kind {
	case ResponseRegistered:
		if r.Identity == nil {
			return fmt.Errorf("%w: Registered without identity", ErrDecode)
		}
	case ResponseRevoked, ResponseIdentityList, ResponseError:
	default:
		return fmt.Errorf("%w: unknown response kind %d", ErrDecode, uint8(r.Kind))
	}
	return nil
}

func candidateToWire(c model.Candidate) *Candidate {
	return &Candidate{
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		ExpiresAt:  c.ExpiresAt,
	}
}

func (c *Candidate) model() model.Candidate {
	return model.Candidate{
		PublicKey:  c.PublicKey,
		PrivateKey: c.PrivateKey,
		ExpiresAt:  utc(c.ExpiresAt),
	}
}

func identityToWire(i model.Identity) Identity {
	return Identity{
		ID:         i.ID.String(),
		PublicKey:  i.PublicKey,
		PrivateKey: i.PrivateKey,
		CreatedAt:  i.CreatedAt,
		ExpiresAt:  i.ExpiresAt,
	}
}

func (i *Identity) model() (model.Identity, error) {
	id, err := uuid.Parse(i.ID)
	if err != nil {
		return model.Identity{}, fmt.Errorf("%w: identity id %q: %w", ErrDecode, i.ID, err)
	}
	return model.Identity{
		ID:         id,
		PublicKey:  i.PublicKey,
		PrivateKey: i.PrivateKey,
		CreatedAt:  i.CreatedAt.UTC(),
		ExpiresAt:  utc(i.ExpiresAt),
	}, nil
}

// utc normalizes decoded timestamps so that equal instants compare equal
// whatever zone the peer encoded them in.
func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
