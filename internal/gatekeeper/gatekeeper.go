/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package gatekeeper

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/config"
	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/domain/service"
	"github.com/kentakayama/shade/internal/netutil"
)

// Gatekeeper admits TCP peers whose address is enrolled and forwards their
// stream to a fixed upstream. Rejected peers only see a closed connection.
type Gatekeeper struct {
	cfg    config.ProxyConfig
	store  service.IdentityStore
	dialer net.Dialer
	logger *zap.Logger
}

// New constructs a Gatekeeper over store. The store is shared, not owned.
func New(cfg config.ProxyConfig, store service.IdentityStore, logger *zap.Logger) *Gatekeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		cfg:    cfg,
		store:  store,
		logger: logger.Named("gatekeeper"),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// canceled.
func (g *Gatekeeper) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", g.cfg.ListenAddr, err)
	}
	g.logger.Info("gatekeeper listening",
		zap.String("addr", ln.Addr().String()),
		zap.String("upstream", g.cfg.UpstreamAddr))
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled or ln is closed.
// Live forwarding sessions are torn down on return.
func (g *Gatekeeper) Serve(ctx context.Context, ln net.Listener) error {
	return netutil.Serve(ctx, ln, g.logger, g.handleConn)
}

func (g *Gatekeeper) handleConn(ctx context.Context, inbound net.Conn) {
	defer inbound.Close()

	peer := peerIP(inbound.RemoteAddr())
	log := g.logger.With(zap.String("peer", peer))

	if !g.admit(ctx, peer, log) {
		return
	}

	dialCtx := ctx
	if g.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, g.cfg.DialTimeout)
		defer cancel()
	}
	outbound, err := g.dialer.DialContext(dialCtx, "tcp", g.cfg.UpstreamAddr)
	if err != nil {
		log.Warn("failed to connect upstream", zap.String("upstream", g.cfg.UpstreamAddr), zap.Error(err))
		return
	}
	defer outbound.Close()

	start := time.Now()
	up, down := splice(inbound, outbound)
	log.Info("session closed",
		zap.Int64("bytes_up", up),
		zap.Int64("bytes_down", down),
		zap.Duration("duration", time.Since(start)))
}

// admit fails closed: a store error rejects the peer.
func (g *Gatekeeper) admit(ctx context.Context, peer string, log *zap.Logger) bool {
	if g.cfg.AdmissionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.AdmissionTimeout)
		defer cancel()
	}

	ok, err := g.store.IsAuthorized(ctx, model.AddressSelector(peer))
	if err != nil {
		log.Error("admission check failed, rejecting", zap.Error(err))
		return false
	}
	if !ok {
		log.Info("rejected connection")
		return false
	}
	log.Info("allowed connection")
	return true
}

func peerIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
