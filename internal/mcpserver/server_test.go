package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/influx/internal/corpus"
	"github.com/starford/influx/internal/hub"
	"github.com/starford/influx/internal/influx"
	"github.com/starford/influx/internal/models"
	"github.com/starford/influx/internal/noteservice"
	"github.com/starford/influx/internal/settings"
	"github.com/starford/influx/internal/storage"
	"github.com/starford/influx/internal/testutil"
)

func testServer(t *testing.T) (*Server, storage.Provider) {
	t.Helper()

	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)

	prefs, err := settings.Open(filepath.Join(t.TempDir(), "settings.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	sched := hub.NewScheduler(hub.NewRegistry(), prefs, testutil.Logger())
	engine := influx.NewEngine(corpus.New(store, db), prefs, influx.WithLogger(testutil.Logger()))
	notes := noteservice.NewService(store, db, sched)

	return New(store, notes, engine, sched), store
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are called
	// directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "read_note":
		result, err = srv.readNote(ctx, req)
	case "create_note":
		result, err = srv.createNote(ctx, req)
	case "list_notes":
		result, err = srv.listNotes(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "get_influx":
		result, err = srv.getInflux(ctx, req)
	case "toggle_sort_order":
		result, err = srv.toggleSortOrder(ctx, req)
	case "get_note_contract":
		result, err = srv.getNoteContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello",
	})
	text := resultText(r)
	if text != "created: test.md" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{
		"path": "test.md",
	})
	text = resultText(r)
	if text != "# Test\nHello" {
		t.Errorf("read result = %q", text)
	}
}

func TestCreateNoteDuplicate(t *testing.T) {
	srv, _ := testServer(t)
	args := map[string]interface{}{"path": "dup.md", "content": "x"}
	_ = callTool(t, srv, "create_note", args)

	r := callTool(t, srv, "create_note", args)
	if !r.IsError {
		t.Error("expected error for duplicate note")
	}
}

func TestListNotes(t *testing.T) {
	srv, store := testServer(t)
	_ = store.Write("a.md", []byte("a"))
	_ = store.Write("sub/b.md", []byte("b"))

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	text := resultText(r)
	if !strings.Contains(text, "a.md") || !strings.Contains(text, "sub/b.md") {
		t.Errorf("list = %q", text)
	}

	r = callTool(t, srv, "list_notes", map[string]interface{}{"folder": "sub"})
	if text := resultText(r); text != "sub/b.md" {
		t.Errorf("list sub = %q, want sub/b.md", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestGetBacklinks(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "b.md",
		"content": "# B",
	})
	_ = callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "a.md",
		"content": "links to [[b]]",
	})

	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "b.md"})
	var bl models.BacklinkSet
	if err := json.Unmarshal([]byte(resultText(r)), &bl); err != nil {
		t.Fatalf("decode: %v (%q)", err, resultText(r))
	}
	if len(bl.Sources) != 1 || bl.Sources[0] != "a.md" {
		t.Errorf("sources = %v, want [a.md]", bl.Sources)
	}
	if refs := bl.Refs["a.md"]; len(refs) != 1 || refs[0].Line != 1 {
		t.Errorf("refs = %+v", refs)
	}
}

func TestGetBacklinks_None(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_backlinks", map[string]interface{}{"path": "lonely.md"})
	if text := resultText(r); text != "no backlinks found" {
		t.Errorf("backlinks = %q", text)
	}
}

func TestGetInflux(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "b.md", "content": "# B"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.md", "content": "see [[b]]"})

	r := callTool(t, srv, "get_influx", map[string]interface{}{"path": "b.md"})
	if r.IsError {
		t.Fatalf("get_influx error: %s", resultText(r))
	}
	var snap influx.Snapshot
	if err := json.Unmarshal([]byte(resultText(r)), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Summaries) != 1 || snap.Summaries[0].Document.Path != "a.md" {
		t.Errorf("summaries = %+v", snap.Summaries)
	}

	r = callTool(t, srv, "get_influx", map[string]interface{}{"path": "ghost.md"})
	if !r.IsError {
		t.Error("expected error for missing focal note")
	}
}

func TestToggleSortOrder(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "toggle_sort_order", map[string]interface{}{})
	if text := resultText(r); text != string(settings.OldestFirst) {
		t.Errorf("toggle = %q, want OLDEST_FIRST", text)
	}
	r = callTool(t, srv, "toggle_sort_order", map[string]interface{}{})
	if text := resultText(r); text != string(settings.NewestFirst) {
		t.Errorf("toggle = %q, want NEWEST_FIRST", text)
	}
}

func TestGetNoteContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_note_contract", map[string]interface{}{})
	if !strings.Contains(resultText(r), "[[wikilinks]]") {
		t.Error("contract does not describe wikilinks")
	}
}
