/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kentakayama/shade/internal/domain/model"
)

// ErrUnexpectedResponse is returned when the server answers with a response
// kind that does not belong to the request.
var ErrUnexpectedResponse = errors.New("unexpected response from server")

// RemoteError is an Error response returned by the server. Transport and
// decode failures are never reported as RemoteError.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "server error: " + e.Message
}

// Client talks to an enrollment server over its unix socket.
type Client struct {
	socketPath   string
	maxFrameSize uint32
	dialer       net.Dialer
}

// NewClient constructs a Client. A zero maxFrameSize selects DefaultMaxFrameSize.
func NewClient(socketPath string, maxFrameSize uint32) *Client {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Client{socketPath: socketPath, maxFrameSize: maxFrameSize}
}

// Dial opens a Session that can carry several calls over one connection.
func (c *Client) Dial(ctx context.Context) (*Session, error) {
	conn, err := c.dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.socketPath, err)
	}
	return &Session{conn: conn, codec: NewConn(conn, c.maxFrameSize)}, nil
}

func (c *Client) Register(ctx context.Context, cand model.Candidate) (*model.Identity, error) {
	s, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Register(ctx, cand)
}

func (c *Client) Revoke(ctx context.Context, id string) error {
	s, err := c.Dial(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Revoke(ctx, id)
}

func (c *Client) List(ctx context.Context) ([]model.Identity, error) {
	s, err := c.Dial(ctx)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.List(ctx)
}

// Session is one open connection to the server. Calls on a Session are
// serialized so that requests and responses strictly alternate. After a
// transport failure the session is closed and every later call fails.
type Session struct {
	mu     sync.Mutex
	conn   net.Conn
	codec  *Conn
	broken error
}

func (s *Session) Close() error {
	return s.conn.Close()
}

// Do sends req and waits for its response. An Error response is returned
// together with a *RemoteError.
func (s *Session) Do(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return nil, fmt.Errorf("session unusable: %w", s.broken)
	}

	if dl, ok := ctx.Deadline(); ok {
		if err := s.conn.SetDeadline(dl); err != nil {
			return nil, err
		}
	}
	// unblock pending I/O when ctx is canceled
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer func() {
		if !stop() {
			<-fired
		}
		s.conn.SetDeadline(time.Time{})
	}()

	if err := s.codec.WriteRequest(req); err != nil {
		return nil, s.fail(fmt.Errorf("failed to send %v request: %w", req.Kind, ctxErr(ctx, err)))
	}
	resp, err := s.codec.ReadResponse()
	if err != nil {
		return nil, s.fail(fmt.Errorf("failed to read %v response: %w", req.Kind, ctxErr(ctx, err)))
	}
	if resp.Kind == ResponseError {
		return resp, &RemoteError{Message: resp.Message}
	}
	return resp, nil
}

// fail marks the session broken; the stream may hold a partial frame.
func (s *Session) fail(err error) error {
	s.broken = err
	s.conn.Close()
	return err
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.Join(ctx.Err(), err)
	}
	return err
}

func (s *Session) Register(ctx context.Context, cand model.Candidate) (*model.Identity, error) {
	resp, err := s.Do(ctx, NewRegisterRequest(cand))
	if err != nil {
		return nil, err
	}
	if resp.Kind != ResponseRegistered {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, resp.Kind)
	}
	i, err := resp.Identity.model()
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (s *Session) Revoke(ctx context.Context, id string) error {
	resp, err := s.Do(ctx, NewRevokeRequest(id))
	if err != nil {
		return err
	}
	if resp.Kind != ResponseRevoked {
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, resp.Kind)
	}
	return nil
}

func (s *Session) List(ctx context.Context) ([]model.Identity, error) {
	resp, err := s.Do(ctx, NewListRequest())
	if err != nil {
		return nil, err
	}
	if resp.Kind != ResponseIdentityList {
		return nil, fmt.Errorf("%w: %v", ErrUnexpectedResponse, resp.Kind)
	}
	out := make([]model.Identity, 0, len(resp.Identities))
	for _, w := range resp.Identities {
		i, err := w.model()
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}
