// Package mcp implements the Model Context Protocol (MCP) server for songmatch.
//
// The MCP server exposes three tools to chat assistants and bots:
//   - recommend_song: Rank catalog songs for a chat message
//   - get_status: Report catalog statistics and search health
//   - ingest_catalog: Embed and load a YAML catalog file
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started by the songmatch binary and reads MCP messages from
// stdin. Logs go to stderr; stdout carries only protocol traffic.
//
// # Tool: recommend_song
//
//	Request:
//	{
//	  "name": "recommend_song",
//	  "arguments": {
//	    "message": "something upbeat for the drive home",
//	    "limit": 5,
//	    "session_id": "room-42",
//	    "allow_explicit": false,
//	    "filters": {
//	      "exclude": [17],
//	      "preferred_tags": ["summer"],
//	      "min_popularity": 40
//	    }
//	  }
//	}
//
//	Response:
//	{
//	  "request_id": "4b0c...",
//	  "candidates": [
//	    {
//	      "song_id": 1,
//	      "title": "Happy",
//	      "artist": "Pharrell Williams",
//	      "scores": {"semantic": 0.41, "keyword": 0.62, "final": 0.73},
//	      "reasons": ["matched phrase \"upbeat\"", "mood: joy"],
//	      "matched_phrase": "upbeat",
//	      "match_type": "exact"
//	    }
//	  ],
//	  "mood": {"dominant": "joy", "confidence": 0.8},
//	  "degraded": false,
//	  "fallback": false
//	}
//
// When session_id is set, songs recently recommended in that session are
// penalized and the top result is recorded as played. A degraded response
// lists the failed signals in degraded_reasons; it is still a success.
//
// # Tool: get_status
//
//	Response:
//	{
//	  "catalog": {"total_songs": 1200, "eligible_songs": 1180, "vector_width": 384},
//	  "search": {"healthy": true, "strategy": "meta_only"},
//	  "ingest_running": false
//	}
//
// # Tool: ingest_catalog
//
//	Request:
//	{
//	  "name": "ingest_catalog",
//	  "arguments": {"path": "/srv/songmatch/catalog.yaml"}
//	}
//
// A batch that fails to embed or write is rolled back and listed under
// errors; the other batches are kept.
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (catalog corruption, dimension mismatch)
//   - -32001: Catalog file not found
//   - -32002: Ingest in progress
//   - -32003: Catalog file invalid
//   - -32004: Request cancelled
package mcp
