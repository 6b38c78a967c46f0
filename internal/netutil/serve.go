/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package netutil

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxAcceptDelay = time.Second

// HandlerFunc serves one accepted connection. It owns conn and must close it.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// Serve accepts connections on ln and runs handle for each one in its own
// goroutine until ctx is canceled or ln is closed. Transient accept errors
// are logged and retried with backoff. On return, ln is closed, every
// connection still open has been closed, and all handlers have finished.
func Serve(ctx context.Context, ln net.Listener, logger *zap.Logger, handle HandlerFunc) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		mu    sync.Mutex
		conns = make(map[net.Conn]struct{})
		wg    sync.WaitGroup
	)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	defer func() {
		ln.Close()
		mu.Lock()
		for c := range conns {
			c.Close()
		}
		mu.Unlock()
		wg.Wait()
	}()

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else {
				delay = min(delay*2, maxAcceptDelay)
			}
			logger.Warn("accept failed", zap.Error(err), zap.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
			}
			continue
		}
		delay = 0

		mu.Lock()
		conns[conn] = struct{}{}
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				mu.Lock()
				delete(conns, conn)
				mu.Unlock()
			}()
			handle(ctx, conn)
		}()
	}
}
