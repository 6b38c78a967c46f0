/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// DefaultMaxFrameSize bounds the payload of one frame.
const DefaultMaxFrameSize = 8 << 20

const frameHeaderSize = 4

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	ErrDecode        = errors.New("malformed message")
)

var (
	encMode = mustEncMode(cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	})
	decMode = mustDecMode(cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	})
)

func mustEncMode(opts cbor.EncOptions) cbor.EncMode {
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode(opts cbor.DecOptions) cbor.DecMode {
	dm, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// WriteFrame writes payload behind a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, payload []byte, maxFrameSize uint32) error {
	if uint64(len(payload)) > uint64(maxFrameSize) {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxFrameSize)
	}
	buf := make([]byte, frameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[frameHeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one frame and returns its payload. It returns io.EOF if
// the stream ends cleanly before a frame starts, and io.ErrUnexpectedEOF if
// it ends inside one. An oversized length prefix is rejected before any of
// the payload is read.
func ReadFrame(r io.Reader, maxFrameSize uint32) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, maxFrameSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

func MarshalRequest(req *Request) ([]byte, error) {
	return encMode.Marshal(req)
}

func UnmarshalRequest(data []byte) (*Request, error) {
	var req Request
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

func MarshalResponse(resp *Response) ([]byte, error) {
	return encMode.Marshal(resp)
}

func UnmarshalResponse(data []byte) (*Response, error) {
	var resp Response
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := resp.validate(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Conn exchanges framed messages over a byte stream. Client and server use
// the same type; each side only calls the half of the methods it needs.
type Conn struct {
	rw           io.ReadWriter
	maxFrameSize uint32
}

// NewConn wraps rw. A zero maxFrameSize selects DefaultMaxFrameSize.
func NewConn(rw io.ReadWriter, maxFrameSize uint32) *Conn {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Conn{rw: rw, maxFrameSize: maxFrameSize}
}

func (c *Conn) WriteRequest(req *Request) error {
	payload, err := MarshalRequest(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return WriteFrame(c.rw, payload, c.maxFrameSize)
}

func (c *Conn) ReadRequest() (*Request, error) {
	payload, err := ReadFrame(c.rw, c.maxFrameSize)
	if err != nil {
		return nil, err
	}
	return UnmarshalRequest(payload)
}

func (c *Conn) WriteResponse(resp *Response) error {
	payload, err := MarshalResponse(resp)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return WriteFrame(c.rw, payload, c.maxFrameSize)
}

func (c *Conn) ReadResponse() (*Response, error) {
	payload, err := ReadFrame(c.rw, c.maxFrameSize)
	if err != nil {
		return nil, err
	}
	return UnmarshalResponse(payload)
}
