package mcpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/mark3labs/monet/internal/logger"
	"github.com/mark3labs/monet/internal/orchestrator"
	"github.com/mark3labs/monet/internal/render"
)

// Config holds the defaults for drawings started through the server.
type Config struct {
	OutputDir     string // Parent directory for artifacts; empty disables them
	Width         int
	Height        int
	Background    string
	MaxIterations int
	Engine        orchestrator.EngineConfig
}

// Server exposes the drawing engine as MCP tools so that an external agent
// can play the artist. Each tool call feeds one turn of text into the same
// engine the CLI drives, so validation, namespacing, phase rules and
// artifacts are identical.
type Server struct {
	cfg      Config
	renderer render.Renderer

	drawMu  sync.Mutex // Serializes tool calls touching the drawing
	drawing *drawing

	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
	stdServer  *http.Server // Standard HTTP server that uses the listener
	port       int
	mu         sync.Mutex
}

// New creates a new MCP server instance.
// The server is not started until Start() or ServeStdio() is called.
func New(cfg Config, r render.Renderer) *Server {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.Background == "" {
		cfg.Background = "white"
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 25
	}
	return &Server{cfg: cfg, renderer: r}
}

func (s *Server) newMCPServer() (*server.MCPServer, error) {
	s.mcpServer = server.NewMCPServer(
		"monet",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	return s.mcpServer, nil
}

// Start starts the MCP HTTP server on addr, or on a random local port when
// addr is empty. Returns the port number or an error if startup fails.
func (s *Server) Start(ctx context.Context, addr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer != nil {
		return 0, fmt.Errorf("server already started")
	}

	mcpServer, err := s.newMCPServer()
	if err != nil {
		return 0, err
	}

	if addr == "" {
		addr = "127.0.0.1:0"
	}
	// Pass the listener to Serve to avoid a TOCTOU race on the port
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.port = listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mcpHandler := server.NewStreamableHTTPServer(
		mcpServer,
		server.WithStateLess(true),
	)
	mux.Handle("/mcp", mcpHandler)

	s.stdServer = &http.Server{
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}
	s.httpServer = mcpHandler

	logger.Debug("Starting MCP server on port %d", s.port)

	// Capture stdServer reference for goroutine to avoid race with Stop()
	stdServer := s.stdServer
	go func() {
		if err := stdServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Error("MCP server error: %v", err)
		}
	}()

	logger.Debug("MCP server ready on port %d", s.port)
	return s.port, nil
}

// ServeStdio serves the tools over stdin/stdout until the client goes away.
func (s *Server) ServeStdio() error {
	s.mu.Lock()
	mcpServer, err := s.newMCPServer()
	s.mu.Unlock()
	if err != nil {
		return err
	}
	logger.Debug("Serving MCP over stdio")
	return server.ServeStdio(mcpServer)
}

// Stop stops the MCP HTTP server and cleans up resources.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdServer == nil {
		return nil // Already stopped
	}

	logger.Debug("Stopping MCP server")
	if err := s.stdServer.Shutdown(context.Background()); err != nil {
		logger.Warn("Error stopping MCP server: %v", err)
		return fmt.Errorf("failed to stop server: %w", err)
	}

	s.httpServer = nil
	s.stdServer = nil
	s.mcpServer = nil
	logger.Debug("MCP server stopped")
	return nil
}

// URL returns the HTTP URL for the MCP server endpoint.
func (s *Server) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("http://localhost:%d/mcp", s.port)
}
