package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	"github.com/fyrsmithlabs/contextcore/internal/logging"
)

// Server is an MCP server backed by a devlog.Service.
type Server struct {
	mcp     *mcp.Server
	svc     devlog.Service
	metrics *toolMetrics
	logger  *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "contextcore")
	Name string

	// Version is the server version (default: "0.1.0")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "contextcore",
		Version: "0.1.0",
		Logger:  logging.NewNop(),
	}
}

// NewServer creates a new MCP server and registers its tools.
func NewServer(cfg *Config, svc devlog.Service) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if svc == nil {
		return nil, fmt.Errorf("devlog service is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	metrics, err := newToolMetrics()
	if err != nil {
		logger.Warn(context.Background(), "some MCP metrics are disabled", zap.Error(err))
	}

	s := &Server{
		mcp:     mcpServer,
		svc:     svc,
		metrics: metrics,
		logger:  logger.Named("mcp"),
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. It is used with in-memory
// transports and custom listeners.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}

// instrument wraps a tool handler with context enrichment, metrics and
// error logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		ctx = logging.WithTransport(ctx, "mcp")
		done := s.metrics.begin(ctx, name)
		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			kind := devlog.Kind(err)
			s.logger.Warn(ctx, "tool call failed",
				zap.String("tool", name),
				zap.String("kind", kind),
				zap.Error(err),
			)
			var zero Out
			return nil, zero, err
		}
		return res, out, nil
	}
}
