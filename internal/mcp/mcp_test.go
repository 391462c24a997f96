package mcp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mpetralia/anima/internal/tools"
)

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}

func TestToolName(t *testing.T) {
	tests := []struct {
		server, tool, want string
	}{
		{"weather", "get_forecast", "mcp_weather_get_forecast"},
		{"My-Server", "Do Thing!", "mcp_my_server_do_thing"},
		{"a__b", "c", "mcp_a_b_c"},
	}
	for _, tt := range tests {
		if got := ToolName(tt.server, tt.tool); got != tt.want {
			t.Errorf("ToolName(%q, %q) = %q, want %q", tt.server, tt.tool, got, tt.want)
		}
	}
}

func TestLoadServersFile(t *testing.T) {
	t.Setenv("TEST_BEARER", "sekrit")

	cfg := `{
		"mcpServers": {
			"local": {"command": "uvx", "args": ["some-server", "${TEST_BEARER}"]},
			"remote": {"type": "STREAMABLE_HTTP", "url": "https://tools.example.com/mcp", "bearerToken": "${TEST_BEARER}"},
			"broken": {}
		}
	}`
	path := filepath.Join(t.TempDir(), "mcp_servers.json")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	servers, err := LoadServersFile(path, nil)
	if err != nil {
		t.Fatalf("LoadServersFile: %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("got %d servers, want 2 (broken entry skipped)", len(servers))
	}

	byName := map[string]ServerConfig{}
	for _, s := range servers {
		byName[s.Name] = s
	}

	local := byName["local"]
	if local.Command != "uvx" || len(local.Args) != 2 {
		t.Errorf("local = %+v", local)
	}
	if local.Args[1] != "sekrit" {
		t.Errorf("env ref not expanded: %q", local.Args[1])
	}

	remote := byName["remote"]
	if remote.BearerToken != "sekrit" {
		t.Errorf("bearer token not expanded: %q", remote.BearerToken)
	}
}

func TestLoadServersFileMissing(t *testing.T) {
	servers, err := LoadServersFile(filepath.Join(t.TempDir(), "none.json"), nil)
	if err != nil || servers != nil {
		t.Errorf("missing file: servers=%v err=%v", servers, err)
	}
}

func TestExpandEnvRefsLeavesBareDollar(t *testing.T) {
	t.Setenv("NAME", "value")
	if got := expandEnvRefs("${NAME} and $NAME"); got != "value and $NAME" {
		t.Errorf("expandEnvRefs = %q", got)
	}
}

// fakeServer speaks just enough JSON-RPC over HTTP for the client.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			// Notification or garbage; accept.
			w.WriteHeader(http.StatusAccepted)
			return
		}

		var result any
		switch req.Method {
		case "initialize":
			result = map[string]any{
				"protocolVersion": protocolVersion,
				"serverInfo":      map[string]any{"name": "fake", "version": "0.1"},
			}
		case "tools/list":
			result = map[string]any{
				"tools": []map[string]any{
					{
						"name":        "lookup",
						"description": "looks things up",
						"inputSchema": map[string]any{"type": "object"},
					},
				},
			}
		case "tools/call":
			result = map[string]any{
				"content": []map[string]any{{"type": "text", "text": "it worked"}},
			}
		default:
			w.WriteHeader(http.StatusAccepted)
			return
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestClientAgainstHTTPServer(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	transport := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	client := NewClient("fake", transport, nil)
	ctx := context.Background()

	if err := client.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	defs, err := client.ListTools(ctx)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	if len(defs) != 1 || defs[0].Name != "lookup" {
		t.Fatalf("defs = %+v", defs)
	}

	out, err := client.CallTool(ctx, "lookup", map[string]any{"q": "x"})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if out != "it worked" {
		t.Errorf("out = %q", out)
	}
}

func TestBridgeToolsRegisters(t *testing.T) {
	srv := fakeServer(t)
	defer srv.Close()

	client := NewClient("fake", NewHTTPTransport(HTTPConfig{URL: srv.URL}), nil)
	registry := tools.NewRegistry()

	n, err := BridgeTools(context.Background(), client, registry, nil)
	if err != nil {
		t.Fatalf("BridgeTools: %v", err)
	}
	if n != 1 {
		t.Errorf("bridged %d tools, want 1", n)
	}

	bridged := registry.Get("mcp_fake_lookup")
	if bridged == nil {
		t.Fatal("bridged tool not registered")
	}

	out, err := bridged.Handler(context.Background(), map[string]any{"q": "x"})
	if err != nil {
		t.Fatalf("bridged handler: %v", err)
	}
	if out != "it worked" {
		t.Errorf("out = %q", out)
	}
}

func TestReadSSEData(t *testing.T) {
	stream := "event: message\ndata: {\"jsonrpc\":\"2.0\",\"id\":7,\"result\":{\"ok\":true}}\n\n"
	out, err := readSSEData(stringsReader(stream), 7)
	if err != nil {
		t.Fatalf("readSSEData: %v", err)
	}

	var resp Response
	if err := json.Unmarshal(out, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != 7 {
		t.Errorf("id = %d", resp.ID)
	}

	if _, err := readSSEData(stringsReader("data: {\"id\": 1}\n\n"), 7); err == nil {
		t.Error("expected error when the stream lacks the response id")
	}
}
