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
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/config"
	"github.com/kentakayama/shade/internal/domain/service"
	"github.com/kentakayama/shade/internal/netutil"
)

const errResponseTooLarge = "response exceeds maximum frame size"

// Server serves the enrollment protocol on a unix socket.
type Server struct {
	cfg    config.StorageConfig
	store  service.IdentityStore
	logger *zap.Logger
}

// NewServer constructs a Server over store. The store is shared, not owned.
func NewServer(cfg config.StorageConfig, store service.IdentityStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}
	return &Server{
		cfg:    cfg,
		store:  store,
		logger: logger.Named("rpc"),
	}
}

// ListenAndServe binds the configured socket path and serves until ctx is
// canceled. The socket file is removed on return.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := Listen(s.cfg.SocketPath)
	if err != nil {
		return err
	}
	s.logger.Info("enrollment socket listening", zap.String("path", s.cfg.SocketPath))
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return netutil.Serve(ctx, ln, s.logger, s.handleConn)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	c := NewConn(conn, s.cfg.MaxFrameSize)

	for {
		if s.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				s.logger.Warn("failed to set read deadline", zap.Error(err))
				return
			}
		}

		req, err := c.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.logger.Debug("client disconnected")
			} else {
				s.logger.Warn("closing connection", zap.Error(err))
			}
			return
		}

		resp := s.dispatch(ctx, req)
		err = c.WriteResponse(resp)
		if errors.Is(err, ErrFrameTooLarge) {
			// nothing was written, the stream is still in sync
			s.logger.Warn("response too large", zap.Stringer("request", req.Kind), zap.Error(err))
			err = c.WriteResponse(NewErrorResponse(errResponseTooLarge))
		}
		if err != nil {
			s.logger.Warn("failed to send response", zap.Stringer("request", req.Kind), zap.Error(err))
			return
		}
	}
}

// dispatch never fails; store errors become Error responses.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Kind {
	case RequestRegister:
		i, err := s.store.Register(ctx, req.Candidate.model())
		if err != nil {
			return s.errorResponse(req, err)
		}
		s.logger.Info("identity registered", zap.Stringer("id", i.ID))
		return NewRegisteredResponse(i)

	case RequestRevoke:
		id, err := uuid.Parse(req.ID)
		if err != nil {
			return s.errorResponse(req, fmt.Errorf("invalid identity id %q: %w", req.ID, err))
		}
		if err := s.store.Revoke(ctx, id); err != nil {
			return s.errorResponse(req, err)
		}
		s.logger.Info("identity revoked", zap.Stringer("id", id))
		return NewRevokedResponse()

	case RequestList:
		identities, err := s.store.List(ctx)
		if err != nil {
			return s.errorResponse(req, err)
		}
		return NewIdentityListResponse(identities)

	default:
		// unreachable, Request.validate rejects unknown kinds
		return NewErrorResponse(fmt.Sprintf("unsupported request %v", req.Kind))
	}
}

func (s *Server) errorResponse(req *Request, err error) *Response {
	s.logger.Info("request failed", zap.Stringer("request", req.Kind), zap.Error(err))
	return NewErrorResponse(err.Error())
}

var listenSeq atomic.Uint64

// Listen binds a unix socket at path, replacing whatever is there in one
// rename: the socket is bound under a temporary name first, so clients
// never observe a missing endpoint.
func Listen(path string) (net.Listener, error) {
	tmp := fmt.Sprintf("%s.%d.%d.tmp", path, os.Getpid(), listenSeq.Add(1))
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale socket %s: %w", tmp, err)
	}

	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: tmp, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", path, err)
	}
	ln.SetUnlinkOnClose(false)

	if err := os.Chmod(tmp, 0o600); err != nil {
		ln.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to chmod socket: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		ln.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("failed to bind socket %s: %w", path, err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to stat socket %s: %w", path, err)
	}
	return &unixListener{UnixListener: ln, path: path, file: fi}, nil
}

type unixListener struct {
	*net.UnixListener
	path string
	file os.FileInfo
}

// Close unlinks the socket path only while it still names this listener's
// socket; a newer server may have renamed its own endpoint over it.
func (l *unixListener) Close() error {
	err := l.UnixListener.Close()
	if errors.Is(err, net.ErrClosed) {
		// already closed and unlinked
		return err
	}
	fi, statErr := os.Stat(l.path)
	if statErr != nil || !os.SameFile(fi, l.file) {
		return err
	}
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}
