// Package mcpsim serves a simulated IDA Pro endpoint for MCP clients. Tool
// calls answer with canned analysis reports; nothing is disassembled.
package mcpsim

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
)

const (
	// ServerName and ServerVersion are reported by initialize.
	ServerName    = "IDA Pro MCP Server"
	ServerVersion = "2.0.0"
	// ProtocolVersion is negotiated when a client does not name one.
	ProtocolVersion = "2024-11-05"

	maxBodyBytes = 1 << 20

	codeParseError = -32700
)

// Server is the simulated IDA Pro MCP server.
type Server struct {
	mcp *server.MCPServer
	log *slog.Logger
	now func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log == nil {
			panic("mcpsim: nil logger")
		}
		s.log = log
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now == nil {
			panic("mcpsim: nil clock")
		}
		s.now = now
	}
}

// New returns a Server with all tools registered.
func New(opts ...Option) *Server {
	s := &Server{
		log: slog.Default().With("component", "mcpsim"),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer(ServerName, ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, t := range tools {
		s.mcp.AddTool(t.tool, s.report(t.name))
	}
	return s
}

// Handler returns the HTTP handler: MCP on /mcp, the legacy RPC stub on
// /jsonrpc and a status document on /.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(allowAnyOrigin)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "IDA Pro RPC Server", "version": "1.0"})
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "healthy",
			"version":   ServerVersion,
			"timestamp": s.now().Format(time.RFC3339),
		})
	})
	r.Post("/mcp", s.handleMCP)
	r.Post("/jsonrpc", s.handleRPC)
	return r
}

func allowAnyOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, rpcError(nil, codeParseError, "read body: "+err.Error()))
		return
	}
	resp := s.mcp.HandleMessage(r.Context(), pinProtocol(body))
	if resp == nil {
		// Notifications get no reply.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// pinProtocol fills in ProtocolVersion on initialize requests that do not
// carry one, so they are not answered with the library's latest version.
func pinProtocol(body []byte) []byte {
	var req map[string]any
	if err := json.Unmarshal(body, &req); err != nil || req["method"] != "initialize" {
		return body
	}
	params, _ := req["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	if v, _ := params["protocolVersion"].(string); v != "" {
		return body
	}
	params["protocolVersion"] = ProtocolVersion
	req["params"] = params
	out, err := json.Marshal(req)
	if err != nil {
		return body
	}
	return out
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage `json:"id"`
		Method string          `json:"method"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusOK, rpcError(nil, codeParseError, "Parse error"))
		return
	}
	s.log.Debug("rpc call", "method", req.Method)
	writeJSON(w, http.StatusOK, map[string]any{
		"jsonrpc": "2.0",
		"id":      rawID(req.ID),
		"result":  map[string]any{"success": true, "message": "IDA Pro RPC模擬響應"},
	})
}

func rpcError(id json.RawMessage, code int, msg string) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      rawID(id),
		"error":   map[string]any{"code": code, "message": msg},
	}
}

func rawID(id json.RawMessage) any {
	if len(id) == 0 {
		return nil
	}
	return id
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Debug("write response", "error", err)
	}
}
