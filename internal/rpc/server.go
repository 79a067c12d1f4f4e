// Package rpc exposes the daemon's control surface as JSON-RPC 2.0
// over the session's Unix domain socket. Clients (portctl, porttui)
// talk to a running daemon exclusively through this interface.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const maxBodyBytes int64 = 1 << 20

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
	codeRateLimited    = -32029
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type respError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *respError      `json:"error,omitempty"`
}

// Server serves the control API on a Unix domain socket.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	socketPath string
	handlers   *Handlers
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewServer creates a control server bound to socketPath. A stale
// socket file from a crashed daemon is removed; a live daemon is
// excluded earlier by the session lock.
func NewServer(socketPath string, h *Handlers, logger *zap.Logger) (*Server, error) {
	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	s := &Server{
		listener:   listener,
		socketPath: socketPath,
		handlers:   h,
		limiter:    rate.NewLimiter(rate.Limit(50), 100),
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleRPC)
	s.httpServer = &http.Server{Handler: mux}
	return s, nil
}

// Start serves requests. Blocks until Stop.
func (s *Server) Start() error {
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the server down and removes the socket file.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control server stopping")
	_ = s.httpServer.Shutdown(ctx)
	_ = os.Remove(s.socketPath)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		writeResponse(w, response{JSONRPC: "2.0",
			Error: &respError{Code: codeRateLimited, Message: "rate limit exceeded"}})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeResponse(w, response{JSONRPC: "2.0",
			Error: &respError{Code: codeParseError, Message: "parse error"}})
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeResponse(w, response{JSONRPC: "2.0", ID: req.ID,
			Error: &respError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeResponse(w, response{JSONRPC: "2.0", ID: req.ID,
			Error: &respError{Code: codeInvalidRequest, Message: "invalid request"}})
		return
	}

	started := time.Now()
	result, rpcErr := s.handlers.dispatch(r.Context(), req.Method, req.Params)
	if rpcErr != nil {
		s.logger.Warn("rpc failed",
			zap.String("method", req.Method),
			zap.Int("code", rpcErr.Code),
			zap.Duration("latency", time.Since(started)))
	} else {
		s.logger.Debug("rpc ok",
			zap.String("method", req.Method),
			zap.Duration("latency", time.Since(started)))
	}

	writeResponse(w, response{JSONRPC: "2.0", ID: req.ID, Result: result, Error: rpcErr})
}

func writeResponse(w http.ResponseWriter, resp response) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
