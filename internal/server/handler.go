/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kentakayama/shade/internal/domain"
	"github.com/kentakayama/shade/internal/domain/model"
	"github.com/kentakayama/shade/internal/domain/service"
)

const (
	maxRequestBodyBytes = 1 << 20

	contentTypeJSON = "application/json"
	contentTypeText = "text/plain; charset=utf-8"
)

type handler struct {
	store             service.IdentityStore
	trustProxyHeaders bool
	logger            *zap.Logger
}

type responseSpec struct {
	status      int
	body        []byte
	contentType string
}

type registerRequest struct {
	PublicKey string `json:"public_key"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type validateResponse struct {
	Authorized bool `json:"authorized"`
}

func newHandler(store service.IdentityStore, trustProxyHeaders bool, logger *zap.Logger) *handler {
	return &handler{
		store:             store,
		trustProxyHeaders: trustProxyHeaders,
		logger:            logger,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.writeResponse(w, textResponse(http.StatusOK, "SHADE server alive"))
	case "/healthcheck":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.healthcheck(w, r)
	case "/ip":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.clientIPEndpoint(w, r)
	case "/register":
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		h.register(w, r)
	case "/validate":
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		h.validate(w, r)
	default:
		http.NotFound(w, r)
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method || (method == http.MethodGet && r.Method == http.MethodHead) {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	return false
}

func (h *handler) healthcheck(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("identity store unavailable", zap.Error(err))
		h.writeResponse(w, h.jsonResponse(http.StatusServiceUnavailable, statusResponse{Status: "SHADE storage unavailable"}))
		return
	}
	h.writeResponse(w, h.jsonResponse(http.StatusOK, statusResponse{Status: "SHADE server running"}))
}

func (h *handler) clientIPEndpoint(w http.ResponseWriter, r *http.Request) {
	ip, err := h.clientIP(r)
	if err != nil {
		h.logger.Warn("failed to determine client ip", zap.Error(err))
		http.Error(w, "Could not determine IP", http.StatusInternalServerError)
		return
	}
	h.writeResponse(w, textResponse(http.StatusOK, ip))
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		h.logger.Warn("failed reading request body", zap.Error(err))
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > maxRequestBodyBytes {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req registerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.logger.Debug("malformed register request", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ip, err := h.clientIP(r)
	if err != nil {
		h.logger.Warn("failed to determine client ip", zap.Error(err))
		http.Error(w, "Could not determine IP", http.StatusInternalServerError)
		return
	}

	if req.PublicKey == "" {
		http.Error(w, "Invalid public_key", http.StatusBadRequest)
		return
	}
	ok, err := h.store.IsAuthorized(r.Context(), model.PublicKeySelector(req.PublicKey))
	if err != nil {
		h.logger.Error("failed to validate public key", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if !ok {
		h.logger.Info("register rejected", zap.String("ip", ip))
		http.Error(w, "Invalid public_key", http.StatusBadRequest)
		return
	}

	host, err := h.store.EnrollHost(r.Context(), req.PublicKey, ip)
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
		// expired or revoked between the check and the write
		http.Error(w, "Invalid public_key", http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("failed to enroll host", zap.String("ip", ip), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.logger.Info("host enrolled", zap.String("ip", host.IPAddress), zap.Stringer("identity", host.IdentityID))
	h.writeResponse(w, h.jsonResponse(http.StatusOK, messageResponse{
		Message: fmt.Sprintf("IP %s registered successfully", host.IPAddress),
	}))
}

func (h *handler) validate(w http.ResponseWriter, r *http.Request) {
	publicKey := r.URL.Query().Get("public_key")
	if publicKey == "" {
		http.Error(w, "Invalid public_key", http.StatusBadRequest)
		return
	}
	ok, err := h.store.IsAuthorized(r.Context(), model.PublicKeySelector(publicKey))
	if err != nil {
		h.logger.Error("failed to validate public key", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h.writeResponse(w, h.jsonResponse(http.StatusOK, validateResponse{Authorized: ok}))
}

// clientIP resolves the caller address. Forwarding headers are consulted
// only when the listener sits behind a trusted reverse proxy.
func (h *handler) clientIP(r *http.Request) (string, error) {
	if h.trustProxyHeaders {
		if ip := forwardedFor(r.Header); ip != "" {
			return ip, nil
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("invalid remote address %q: %w", r.RemoteAddr, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("invalid remote address %q", r.RemoteAddr)
	}
	return ip.String(), nil
}

func forwardedFor(header http.Header) string {
	if xff := header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := parseIP(first); ip != "" {
			return ip
		}
	}
	if fwd := header.Get("Forwarded"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		for _, pair := range strings.Split(first, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if !ok || !strings.EqualFold(k, "for") {
				continue
			}
			if ip := parseIP(v); ip != "" {
				return ip
			}
		}
	}
	return ""
}

// parseIP accepts bare addresses, quoted values and "[v6]:port" forms.
func parseIP(s string) string {
	s = strings.Trim(strings.TrimSpace(s), "\"")
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if ip := net.ParseIP(s); ip != nil {
		return ip.String()
	}
	return ""
}

func textResponse(status int, body string) responseSpec {
	return responseSpec{
		status:      status,
		body:        []byte(body),
		contentType: contentTypeText,
	}
}

func (h *handler) jsonResponse(status int, v any) responseSpec {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
		return responseSpec{status: http.StatusInternalServerError}
	}
	return responseSpec{
		status:      status,
		body:        body,
		contentType: contentTypeJSON,
	}
}

func (h *handler) writeResponse(w http.ResponseWriter, spec responseSpec) {
	w.Header().Set("Server", "shade")

	if len(spec.body) > 0 {
		for k, v := range defaultHeaders {
			w.Header().Set(k, v)
		}
		w.Header().Set("Content-Type", spec.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(spec.body)))
		w.WriteHeader(spec.status)
		if _, err := w.Write(spec.body); err != nil {
			h.logger.Warn("failed writing response body", zap.Error(err))
		}
		return
	}

	w.WriteHeader(spec.status)
}

var defaultHeaders = map[string]string{
	"Cache-Control":           "no-store",
	"X-Content-Type-Options":  "nosniff",
	"Content-Security-Policy": "default-src 'none'",
	"Referrer-Policy":         "no-referrer",
}
