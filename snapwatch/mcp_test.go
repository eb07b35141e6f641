package snapwatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testMCPImpl = &mcp.Implementation{Name: "snapwatch-test", Version: "0.1.0"}

func mcpSession(t *testing.T, w *Watcher) *mcp.ClientSession {
	t.Helper()
	srv := mcp.NewServer(testMCPImpl, nil)
	w.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testMCPImpl, nil)
	session, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func mcpCall(t *testing.T, session *mcp.ClientSession, name string, args any) (string, bool) {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent", name)
	}
	return tc.Text, result.IsError
}

func TestMCP_Status(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	s := addPage(t, w, "p1", "https://example.com/")
	click(s, 1)
	session := mcpSession(t, w)

	text, isErr := mcpCall(t, session, "snapwatch_status", map[string]any{})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var st Status
	if err := json.Unmarshal([]byte(text), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(st.Pages) != 1 || st.Pages[0].ID != "p1" || st.Pages[0].Scheduler.Issued != 1 {
		t.Errorf("status = %+v", st)
	}

	text, isErr = mcpCall(t, session, "snapwatch_status", map[string]any{"page_id": "p1"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var ps PageStatus
	if err := json.Unmarshal([]byte(text), &ps); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ps.Scheduler.NextSnapshotID != 2 {
		t.Errorf("next snapshot id = %d", ps.Scheduler.NextSnapshotID)
	}

	if text, isErr = mcpCall(t, session, "snapwatch_status", map[string]any{"page_id": "nope"}); !isErr {
		t.Errorf("unknown page should be a tool error, got %s", text)
	}
}

func TestMCP_Record(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	s := addPage(t, w, "p1", "https://example.com/")
	eid := click(s, 1)
	session := mcpSession(t, w)

	text, isErr := mcpCall(t, session, "snapwatch_record", map[string]any{"page_id": "p1", "snapshot_id": 1})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var v RecordView
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v.Record.EventID != eid || v.State != "ready" {
		t.Errorf("record = %+v", v)
	}

	if _, isErr := mcpCall(t, session, "snapwatch_record", map[string]any{"page_id": "p1", "snapshot_id": 0}); !isErr {
		t.Error("snapshot_id 0 should be a tool error")
	}
}

func TestMCP_Events(t *testing.T) {
	w, _ := newTestWatcher(t, true)
	s := addPage(t, w, "p1", "https://example.com/")
	click(s, 1)
	click(s, 2)
	if err := w.FlushIndex(context.Background()); err != nil {
		t.Fatal(err)
	}
	session := mcpSession(t, w)

	text, isErr := mcpCall(t, session, "snapwatch_events", map[string]any{"page_id": "p1", "state": "ready"})
	if isErr {
		t.Fatalf("tool error: %s", text)
	}
	var resp struct {
		Events []IndexedEvent `json:"events"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Events) != 2 {
		t.Errorf("events = %+v", resp)
	}
}

func TestMCP_ObserveRequiresURL(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	session := mcpSession(t, w)

	if text, isErr := mcpCall(t, session, "snapwatch_observe", map[string]any{"page_id": "p1"}); !isErr {
		t.Errorf("missing url should be a tool error, got %s", text)
	}
}

func TestMCP_Unobserve(t *testing.T) {
	w, _ := newTestWatcher(t, false)
	addPage(t, w, "p1", "https://example.com/")
	session := mcpSession(t, w)

	if text, isErr := mcpCall(t, session, "snapwatch_unobserve", map[string]any{"page_id": "p1"}); isErr {
		t.Fatalf("tool error: %s", text)
	}
	if len(w.Pages()) != 0 {
		t.Error("page still registered")
	}
	if _, isErr := mcpCall(t, session, "snapwatch_unobserve", map[string]any{"page_id": "p1"}); !isErr {
		t.Error("second unobserve should fail")
	}
}
