// Package server exposes the poimap tools as an MCP server over stdio or
// HTTP+SSE.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/NERVsystems/poimap/pkg/tools"
	"github.com/NERVsystems/poimap/pkg/version"
)

// ServerName is the name reported in the MCP initialize handshake.
const ServerName = "poimap"

// Server wraps the MCP server with the poimap tools registered.
type Server struct {
	srv    *mcpserver.MCPServer
	logger *slog.Logger
}

// NewServer builds an MCP server exposing every tool in registry.
func NewServer(registry *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "mcp")

	srv := mcpserver.NewMCPServer(
		ServerName,
		version.BuildVersion,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	registry.RegisterTools(srv)
	logger.Debug("registered tools", "tools", registry.GetToolNames())

	return &Server{srv: srv, logger: logger}
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.srv
}

// ServeStdio answers MCP requests read from in until ctx is cancelled or
// in reaches EOF. Neither counts as an error.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := mcpserver.NewStdioServer(s.srv)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.Info("serving MCP on stdio", "version", version.BuildVersion)
	err := stdio.Listen(ctx, in, out)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		s.logger.Info("stdio transport stopped")
		return nil
	}
	return err
}
