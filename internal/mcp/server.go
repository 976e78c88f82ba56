package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/dshills/songmatch/internal/catalog"
	"github.com/dshills/songmatch/internal/history"
	"github.com/dshills/songmatch/internal/ingest"
	"github.com/dshills/songmatch/internal/pipeline"
	"github.com/dshills/songmatch/internal/searcher"
)

const (
	// ServerName is the MCP server name
	ServerName = "songmatch"
)

// ServerVersion is reported during the MCP handshake. It is overridden at
// build time through cmd/songmatch.
var ServerVersion = "dev"

// Recommender answers song requests
type Recommender interface {
	Recommend(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
}

// StatsSource reports catalog contents
type StatsSource interface {
	Stats(ctx context.Context) (*catalog.Stats, error)
}

// HealthChecker reports semantic search readiness
type HealthChecker interface {
	Health(ctx context.Context) searcher.HealthReport
}

// Ingester loads catalog files
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*ingest.Statistics, error)
	Running() bool
}

// Deps are the components the tools call into. Health and Ingester are
// optional; without an Ingester the ingest_catalog tool is not registered.
type Deps struct {
	Recommender Recommender
	History     history.Tracker
	Stats       StatsSource
	Health      HealthChecker
	Ingester    Ingester
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp    *server.MCPServer
	deps   Deps
	logger zerolog.Logger
}

// NewServer creates a new MCP server instance and registers its tools
func NewServer(deps Deps, logger zerolog.Logger) (*Server, error) {
	if deps.Recommender == nil {
		return nil, errors.New("recommender is required")
	}
	if deps.History == nil {
		return nil, errors.New("history tracker is required")
	}
	if deps.Stats == nil {
		return nil, errors.New("stats source is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:    mcpServer,
		deps:   deps,
		logger: logger.With().Str("component", "mcp").Logger(),
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().Str("version", ServerVersion).Msg("serving MCP on stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(recommendSongTool(), s.handleRecommendSong)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	if s.deps.Ingester != nil {
		s.mcp.AddTool(ingestCatalogTool(), s.handleIngestCatalog)
	}
	return nil
}
