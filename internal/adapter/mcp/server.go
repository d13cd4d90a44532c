// Package mcp exposes the broker over the Model Context Protocol so that
// MCP-capable agents can send, query, and route messages with the same
// semantics as the HTTP and A2A surfaces.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/Relay/internal/domain/agentcard"
	"github.com/Strob0t/Relay/internal/domain/message"
	"github.com/Strob0t/Relay/internal/service"
)

// MessageAPI is the message lifecycle surface the tools call into.
type MessageAPI interface {
	Create(ctx context.Context, draft message.Draft) (*message.Message, error)
	Get(ctx context.Context, id string) (*message.Message, error)
	Query(ctx context.Context, filter message.Filter, limit int) ([]message.Message, error)
	Inbox(ctx context.Context, agentID string, limit int) ([]message.Message, error)
	UpdateStatus(ctx context.Context, id string, to message.Status) (*message.Message, error)
}

// RegistryAPI is the agent card surface the tools call into.
type RegistryAPI interface {
	Get(ctx context.Context, agentID string) (*agentcard.Card, error)
	List(ctx context.Context, filter agentcard.Filter) ([]agentcard.Card, error)
}

// DiscoveryAPI routes capability-addressed requests.
type DiscoveryAPI interface {
	RouteRequest(ctx context.Context, req service.RouteRequest) (*message.Message, string, error)
}

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string
}

// ServerDeps holds the broker services the tools and resources read from.
// Nil deps are tolerated; the affected tools return error results.
type ServerDeps struct {
	Messages  MessageAPI
	Registry  RegistryAPI
	Discovery DiscoveryAPI
}

// Server wraps an mcp-go server with broker tools and resources, served
// over streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates an MCP server and registers all tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(
			cfg.Name,
			cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer exposes the underlying mcp-go server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start binds the listener and serves MCP over streamable HTTP in the
// background. The bind happens synchronously so address errors surface here.
func (s *Server) Start() error {
	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer)

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}

	s.httpSrv = &http.Server{
		Handler:           AuthMiddleware(s.cfg.APIKey, streamable),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()

	slog.Info("mcp server started", "addr", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// toolResultJSON wraps a JSON payload as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
