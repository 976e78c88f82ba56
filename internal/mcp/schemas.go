package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// recommendSongTool returns the tool definition for recommend_song
func recommendSongTool() mcp.Tool {
	return mcp.Tool{
		Name:        "recommend_song",
		Description: "Recommend songs for a chat message using keyword, semantic, mood and entity signals",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"message": map[string]interface{}{
					"type":        "string",
					"description": "The chat message to find songs for. An empty message returns popular songs.",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of songs to return (0-100). Omit or 0 for the configured default.",
					"minimum":     0,
					"maximum":     100,
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Listening session; recently recommended songs in it are penalized",
				},
				"allow_explicit": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, songs marked explicit may be returned",
					"default":     false,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional constraints on semantic candidates",
					"properties": map[string]interface{}{
						"exclude": map[string]interface{}{
							"type":        "array",
							"description": "Song ids that must not be returned by semantic search",
							"items": map[string]interface{}{
								"type": "integer",
							},
						},
						"preferred_tags": map[string]interface{}{
							"type":        "array",
							"description": "Tags that slightly boost semantic similarity",
							"items": map[string]interface{}{
								"type": "string",
							},
						},
						"min_popularity": map[string]interface{}{
							"type":    "integer",
							"minimum": 0,
							"maximum": 100,
						},
						"year_from": map[string]interface{}{
							"type": "integer",
						},
						"year_to": map[string]interface{}{
							"type": "integer",
						},
					},
				},
			},
			Required: []string{"message"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report catalog statistics and search health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// ingestCatalogTool returns the tool definition for ingest_catalog
func ingestCatalogTool() mcp.Tool {
	return mcp.Tool{
		Name:        "ingest_catalog",
		Description: "Embed and load a YAML song catalog file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to a .yaml or .yml catalog file",
				},
			},
			Required: []string{"path"},
		},
	}
}
