package snapwatch

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/snaptrail/kit"
)

// RegisterMCP registers snapwatch tools on an MCP server.
func (w *Watcher) RegisterMCP(srv *mcp.Server) {
	ep := w.endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "snapwatch_observe",
		Description: "Start capturing user input on a page. Sampled events get a screenshot and an MHTML snapshot.",
		InputSchema: inputSchema(map[string]any{
			"page_id":       map[string]any{"type": "string", "description": "Page identifier (generated if empty)"},
			"url":           map[string]any{"type": "string", "description": "URL to open"},
			"stealth_level": map[string]any{"type": "string", "description": "plain, headless or headful"},
			"region": map[string]any{"type": "object", "description": "Screenshot clip in CSS pixels", "properties": map[string]any{
				"x": map[string]any{"type": "number"}, "y": map[string]any{"type": "number"},
				"width": map[string]any{"type": "number"}, "height": map[string]any{"type": "number"},
			}},
		}, []string{"url"}),
	}, ep.observe, decodeInto[observeReq](func(r *observeReq) string { return r.PageID }))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "snapwatch_unobserve",
		Description: "Stop capturing a page and drop its buffered records.",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string"},
		}, []string{"page_id"}),
	}, ep.unobserve, decodeInto[pageReq](func(r *pageReq) string { return r.PageID }))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "snapwatch_status",
		Description: "Scheduler counters for one page, or for the whole daemon when page_id is empty.",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string"},
		}, nil),
	}, ep.status, decodeInto[pageReq](func(r *pageReq) string { return r.PageID }))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "snapwatch_record",
		Description: "Correlation record for a snapshot ID: capture flags, readiness, input and URL.",
		InputSchema: inputSchema(map[string]any{
			"page_id":     map[string]any{"type": "string"},
			"snapshot_id": map[string]any{"type": "integer"},
		}, []string{"page_id", "snapshot_id"}),
	}, ep.record, decodeInto[recordReq](func(r *recordReq) string { return r.PageID }))

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "snapwatch_events",
		Description: "List indexed events newest first, filtered by page and state (classified, ready, expired).",
		InputSchema: inputSchema(map[string]any{
			"page_id": map[string]any{"type": "string"},
			"state":   map[string]any{"type": "string", "enum": []string{"classified", "ready", "expired"}},
			"limit":   map[string]any{"type": "integer"},
		}, nil),
	}, ep.events, decodeInto[EventQuery](func(q *EventQuery) string { return q.PageID }))
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// decodeInto unmarshals tool arguments into a T and tags the context with
// the page ID it names.
func decodeInto[T any](pageID func(*T) string) func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r T
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		id := pageID(&r)
		return &kit.MCPDecodeResult{
			Request: &r,
			EnrichCtx: func(ctx context.Context) context.Context {
				if id == "" {
					return ctx
				}
				return kit.WithPageID(ctx, id)
			},
		}, nil
	}
}
