package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/songmatch/internal/ingest"
	"github.com/dshills/songmatch/internal/pipeline"
	"github.com/dshills/songmatch/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeCatalogNotFound  = -32001 // Catalog file missing or unreadable
	ErrorCodeIngestInProgress = -32002 // Another ingest is already running
	ErrorCodeInvalidCatalog   = -32003 // Catalog file failed validation
	ErrorCodeRequestCancelled = -32004 // Caller cancelled or timed out
)

// maxLimit mirrors the schema maximum for limit
const maxLimit = 100

// handleRecommendSong handles the recommend_song tool invocation
func (s *Server) handleRecommendSong(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	message, ok := args["message"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "message parameter is required", map[string]interface{}{
			"param":  "message",
			"reason": "missing or not a string",
		})
	}

	limit := getIntDefault(args, "limit", 0)
	if limit < 0 || limit > maxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 0 and 100 (0 = default)", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filters, err := parseFilters(args)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid filters", map[string]interface{}{
			"param":  "filters",
			"reason": err.Error(),
		})
	}

	req := pipeline.Request{
		Message:            message,
		K:                  limit,
		Context:            filters,
		RoomAllowsExplicit: getBoolDefault(args, "allow_explicit", false),
	}

	session := strings.TrimSpace(getStringDefault(args, "session_id", ""))
	if session != "" {
		recent, err := s.deps.History.Recent(ctx, session)
		if err != nil {
			// A missing history only weakens the repetition penalty
			s.logger.Warn().Err(err).Str("session", session).Msg("failed to read session history")
		}
		req.RecentSongIDs = recent
	}

	resp, err := s.deps.Recommender.Recommend(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, newMCPError(ErrorCodeRequestCancelled, "request cancelled", map[string]interface{}{
				"error": err.Error(),
			})
		}
		return nil, newMCPError(ErrorCodeInternalError, "recommendation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// The top song is the one the room will hear
	if session != "" && len(resp.Candidates) > 0 {
		if err := s.deps.History.Record(ctx, session, resp.Candidates[0].SongID); err != nil {
			s.logger.Warn().Err(err).Str("session", session).Msg("failed to record session history")
		}
	}

	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// parseFilters builds the semantic search context from the optional filters
// object. It returns nil when no filter is set.
func parseFilters(args map[string]interface{}) (*searcher.Context, error) {
	raw, ok := args["filters"]
	if !ok || raw == nil {
		return nil, nil
	}
	filters, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errors.New("filters must be an object")
	}

	sc := &searcher.Context{
		MinPopularity: getIntDefault(filters, "min_popularity", 0),
		YearFrom:      getIntDefault(filters, "year_from", 0),
		YearTo:        getIntDefault(filters, "year_to", 0),
	}
	if sc.MinPopularity < 0 || sc.MinPopularity > 100 {
		return nil, fmt.Errorf("min_popularity %d is outside 0-100", sc.MinPopularity)
	}
	if sc.YearFrom != 0 && sc.YearTo != 0 && sc.YearFrom > sc.YearTo {
		return nil, fmt.Errorf("year_from %d is after year_to %d", sc.YearFrom, sc.YearTo)
	}

	if list, ok := filters["exclude"].([]interface{}); ok {
		for _, v := range list {
			id, ok := asInt(v)
			if !ok {
				return nil, fmt.Errorf("exclude entry %v is not an integer", v)
			}
			sc.ExcludeSongIDs = append(sc.ExcludeSongIDs, int64(id))
		}
	}
	if list, ok := filters["preferred_tags"].([]interface{}); ok {
		for _, v := range list {
			tag, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("preferred_tags entry %v is not a string", v)
			}
			if tag = strings.TrimSpace(tag); tag != "" {
				sc.PreferredTags = append(sc.PreferredTags, tag)
			}
		}
	}
	return sc, nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.deps.Stats.Stats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get catalog statistics", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"catalog": map[string]interface{}{
			"total_songs":    stats.TotalSongs,
			"eligible_songs": stats.EligibleSongs,
			"phrases":        stats.Phrases,
			"about_vectors":  stats.AboutVectors,
			"emotion_vecs":   stats.EmotionVecs,
			"moment_vecs":    stats.MomentVecs,
			"vector_width":   stats.VectorWidth,
			"schema_version": stats.SchemaVersion,
		},
		"version": ServerVersion,
	}

	if s.deps.Health != nil {
		response["search"] = s.deps.Health.Health(ctx)
	}
	if s.deps.Ingester != nil {
		response["ingest_running"] = s.deps.Ingester.Running()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestCatalog handles the ingest_catalog tool invocation
func (s *Server) handleIngestCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validateCatalogPath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrPathNotReadable) {
			code = ErrorCodeCatalogNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.deps.Ingester.IngestFile(ctx, path)
	switch {
	case errors.Is(err, ingest.ErrInProgress):
		return nil, newMCPError(ErrorCodeIngestInProgress, "an ingest is already running", nil)
	case errors.Is(err, ingest.ErrInvalidCatalog):
		return nil, newMCPError(ErrorCodeInvalidCatalog, "catalog file is invalid", map[string]interface{}{
			"error": err.Error(),
		})
	case err != nil:
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"ingested":          true,
		"songs_indexed":     stats.SongsIndexed,
		"songs_failed":      stats.SongsFailed,
		"placeholders":      stats.Placeholders,
		"aboutness_indexed": stats.AboutnessIndexed,
		"batches":           stats.Batches,
		"duration_ms":       stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validateCatalogPath checks that path is an absolute, readable YAML file
func validateCatalogPath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return ErrNotYAML
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if info.IsDir() {
		return ErrIsDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := asInt(args[key]); ok {
		return val
	}
	return defaultValue
}

// asInt accepts the float64 JSON decoding produces as well as plain ints
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
	ErrNotYAML         = errors.New("catalog must be a .yaml or .yml file")
)
