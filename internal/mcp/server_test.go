package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/mark3labs/mcp-go/mcp"
)

type handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func newTestServer(t *testing.T, capacity int) (*Server, *asset.SyntheticSource) {
	t.Helper()
	src := asset.NewSyntheticSource(1, nil, 6)
	srv := New(Config{Source: src, Capacity: capacity})
	t.Cleanup(func() { srv.Close() })
	return srv, src
}

func frames(t *testing.T, src asset.Source, bundle string) []string {
	t.Helper()
	names, err := src.List(context.Background(), bundle)
	if err != nil {
		t.Fatalf("List(%s) failed: %v", bundle, err)
	}
	return names
}

func callTool(t *testing.T, h handler, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	request := mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
	result, err := h(context.Background(), request)
	if err != nil {
		t.Fatalf("%s returned protocol error: %v", name, err)
	}
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("%s returned empty result", name)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return text.Text
}

func decode(t *testing.T, result *mcp.CallToolResult, v any) {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if err := json.Unmarshal([]byte(resultText(t, result)), v); err != nil {
		t.Fatalf("invalid JSON result: %v", err)
	}
}

type loadResult struct {
	Hit     bool        `json:"hit"`
	Texture TextureView `json:"texture"`
}

func load(t *testing.T, srv *Server, bundle, path string) loadResult {
	t.Helper()
	var r loadResult
	decode(t, callTool(t, srv.handleLoad, "load", map[string]any{"bundle": bundle, "path": path}), &r)
	return r
}

func keys(t *testing.T, srv *Server) []string {
	t.Helper()
	var views []TextureView
	decode(t, callTool(t, srv.handleKeys, "keys", nil), &views)
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Asset
	}
	return out
}

func TestNewServer(t *testing.T) {
	srv := New(Config{})
	if srv == nil {
		t.Fatal("New() returned nil")
	}
	if srv.mcpServer == nil {
		t.Error("mcpServer is nil")
	}
	if srv.cache.Cap() != DefaultCapacity {
		t.Errorf("capacity = %d, want %d", srv.cache.Cap(), DefaultCapacity)
	}
	if srv.cfg.Source == nil {
		t.Error("a nil source should default to synthetic bundles")
	}
}

func TestLoadAndGet(t *testing.T) {
	srv, src := newTestServer(t, 3)
	icon := frames(t, src, "icon")[0]

	first := load(t, srv, "icon", icon)
	if first.Hit {
		t.Error("first load should miss")
	}
	if !first.Texture.Cached || first.Texture.Refs != 1 {
		t.Errorf("texture = %+v, want cached with one reference", first.Texture)
	}
	if first.Texture.Bundle != "icon" || first.Texture.Path != icon {
		t.Errorf("texture names %s/%s, want icon/%s", first.Texture.Bundle, first.Texture.Path, icon)
	}
	if first.Texture.Key != asset.Key("icon", icon) {
		t.Errorf("key = %s, want %s", first.Texture.Key, asset.Key("icon", icon))
	}

	second := load(t, srv, "icon", icon)
	if !second.Hit {
		t.Error("second load should hit")
	}
	if srv.assets.Stats().Loads != 1 {
		t.Errorf("Loads = %d, want 1", srv.assets.Stats().Loads)
	}

	var got struct {
		Found   bool        `json:"found"`
		Texture TextureView `json:"texture"`
	}
	decode(t, callTool(t, srv.handleGet, "get", map[string]any{"key": first.Texture.Key}), &got)
	if !got.Found || got.Texture.Asset != "icon/"+icon {
		t.Errorf("get by key = %+v", got)
	}

	got.Found = false
	decode(t, callTool(t, srv.handleGet, "get", map[string]any{"bundle": "icon", "path": icon}), &got)
	if !got.Found {
		t.Error("get by bundle and path should find the texture")
	}

	var miss struct {
		Found bool `json:"found"`
	}
	decode(t, callTool(t, srv.handleGet, "get", map[string]any{"key": "nope"}), &miss)
	if miss.Found {
		t.Error("unknown key should not be found")
	}

	result := callTool(t, srv.handleGet, "get", map[string]any{"bundle": "icon"})
	if !result.IsError {
		t.Error("get without key or path should fail")
	}
}

func TestLoadErrors(t *testing.T) {
	srv, _ := newTestServer(t, 3)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "missing path", args: map[string]any{"bundle": "icon"}, want: "required"},
		{name: "unknown bundle", args: map[string]any{"bundle": "nope", "path": "a.png"}, want: "bundle not found"},
		{name: "unknown frame", args: map[string]any{"bundle": "icon", "path": "missing.png"}, want: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, srv.handleLoad, "load", tt.args)
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(t, result); !strings.Contains(text, tt.want) {
				t.Errorf("error = %q, want to contain %q", text, tt.want)
			}
		})
	}
	if n := srv.cache.Len(); n != 0 {
		t.Errorf("cache Len() = %d after failed loads", n)
	}
}

func TestPinPreventsEviction(t *testing.T) {
	srv, src := newTestServer(t, 2)
	f := frames(t, src, "wall")
	a, b, c, d := f[0], f[1], f[2], f[3]

	load(t, srv, "wall", a)
	var pinned TextureView
	decode(t, callTool(t, srv.handlePin, "pin", map[string]any{"bundle": "wall", "path": a}), &pinned)
	if pinned.Refs != 2 || pinned.Pins != 1 {
		t.Errorf("pinned = %+v, want refs 2 and one pin", pinned)
	}

	load(t, srv, "wall", b)
	load(t, srv, "wall", c)

	got := keys(t, srv)
	want := []string{"wall/" + c, "wall/" + a}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if _, ok := srv.assets.Lookup(asset.Key("wall", b)); ok {
		t.Error("evicted texture should be freed")
	}

	var unpinned TextureView
	decode(t, callTool(t, srv.handleUnpin, "unpin", map[string]any{"key": pinned.Key}), &unpinned)
	if unpinned.Refs != 1 || unpinned.Pins != 0 {
		t.Errorf("unpinned = %+v, want refs 1 and no pins", unpinned)
	}

	load(t, srv, "wall", d)
	got = keys(t, srv)
	want = []string{"wall/" + d, "wall/" + c}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("keys = %v, want %v", got, want)
	}
	if _, ok := srv.assets.Lookup(pinned.Key); ok {
		t.Error("unpinned texture should be evicted and freed")
	}
}

func TestLoadRejectedWhenAllPinned(t *testing.T) {
	srv, src := newTestServer(t, 1)
	f := frames(t, src, "role")

	load(t, srv, "role", f[0])
	callTool(t, srv.handlePin, "pin", map[string]any{"bundle": "role", "path": f[0]})

	result := callTool(t, srv.handleLoad, "load", map[string]any{"bundle": "role", "path": f[1]})
	if !result.IsError {
		t.Fatal("load into a fully pinned cache should fail")
	}
	if text := resultText(t, result); !strings.Contains(text, cache.ErrCapacityExceeded.Error()) {
		t.Errorf("error = %q", text)
	}
	if _, ok := srv.assets.Lookup(asset.Key("role", f[1])); ok {
		t.Error("rejected texture should not stay resident")
	}

	var st SessionStats
	decode(t, callTool(t, srv.handleStats, "stats", nil), &st)
	if st.Cache.Rejected != 1 || st.Pinned != 1 || st.Assets.Resident != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestPinErrors(t *testing.T) {
	srv, src := newTestServer(t, 2)
	f := frames(t, src, "icon")

	if r := callTool(t, srv.handlePin, "pin", map[string]any{"bundle": "icon", "path": f[0]}); !r.IsError {
		t.Error("pinning an uncached texture should fail")
	}

	load(t, srv, "icon", f[0])
	if r := callTool(t, srv.handleUnpin, "unpin", map[string]any{"bundle": "icon", "path": f[0]}); !r.IsError {
		t.Error("unpinning a texture that was never pinned should fail")
	}
}

func TestCloseReleasesPins(t *testing.T) {
	src := asset.NewSyntheticSource(4, nil, 4)
	srv := New(Config{Source: src, Capacity: 4})

	for _, name := range frames(t, src, "icon") {
		load(t, srv, "icon", name)
		callTool(t, srv.handlePin, "pin", map[string]any{"bundle": "icon", "path": name})
		callTool(t, srv.handlePin, "pin", map[string]any{"bundle": "icon", "path": name})
	}

	if leaked := srv.Close(); len(leaked) != 0 {
		t.Errorf("leaked textures after Close: %v", leaked)
	}
	if srv.cache.Len() != 0 {
		t.Errorf("cache Len() = %d after Close", srv.cache.Len())
	}
}

func TestBundles(t *testing.T) {
	srv, _ := newTestServer(t, 2)

	var all []bundleInfo
	decode(t, callTool(t, srv.handleBundles, "bundles", nil), &all)
	if len(all) != len(asset.DefaultBundles) {
		t.Fatalf("bundles = %+v", all)
	}
	for _, b := range all {
		if b.Frames != 6 {
			t.Errorf("bundle %s frames = %d, want 6", b.Name, b.Frames)
		}
	}

	var one struct {
		Data     []string       `json:"data"`
		Metadata map[string]any `json:"metadata"`
	}
	decode(t, callTool(t, srv.handleBundles, "bundles", map[string]any{"bundle": "wall"}), &one)
	if len(one.Data) != 6 || one.Metadata["truncated"] != false {
		t.Errorf("wall frames = %+v", one)
	}

	if r := callTool(t, srv.handleBundles, "bundles", map[string]any{"bundle": "nope"}); !r.IsError {
		t.Error("unknown bundle should fail")
	}
}

func TestBundlesTruncatesLongFrameLists(t *testing.T) {
	src := asset.NewSyntheticSource(1, []string{"icon"}, MaxListedFrames+200)
	srv := New(Config{Source: src, Capacity: 2})
	t.Cleanup(func() { srv.Close() })

	var got struct {
		Data     []string       `json:"data"`
		Metadata map[string]any `json:"metadata"`
	}
	decode(t, callTool(t, srv.handleBundles, "bundles", map[string]any{"bundle": "icon"}), &got)

	if len(got.Data) != MaxListedFrames {
		t.Errorf("listed %d frames, want %d", len(got.Data), MaxListedFrames)
	}
	if got.Metadata["truncated"] != true {
		t.Errorf("truncated = %v, want true", got.Metadata["truncated"])
	}
	if got.Metadata["returned"] != float64(MaxListedFrames) || got.Metadata["limit"] != float64(MaxListedFrames) {
		t.Errorf("metadata = %+v", got.Metadata)
	}
	all := frames(t, src, "icon")
	if got.Data[0] != all[0] || got.Data[MaxListedFrames-1] != all[MaxListedFrames-1] {
		t.Error("truncated list should keep the first frames in order")
	}
}

func TestBench(t *testing.T) {
	srv, _ := newTestServer(t, 50)

	var report struct {
		RunID  string           `json:"run_id"`
		Cycles []map[string]any `json:"cycles"`
		Cache  cache.Stats      `json:"cache"`
		Leaked []string         `json:"leaked"`
	}
	decode(t, callTool(t, srv.handleBench, "bench", map[string]any{
		"cycles":   3,
		"capacity": 10,
		"policy":   "strict",
		"sprites":  5,
		"seed":     7,
	}), &report)

	if report.RunID == "" {
		t.Error("run_id should be set")
	}
	if len(report.Cycles) != 3 {
		t.Errorf("cycles = %d, want 3", len(report.Cycles))
	}
	if report.Cache.Capacity != 10 || report.Cache.Policy != "strict" {
		t.Errorf("cache = %+v", report.Cache)
	}
	if len(report.Leaked) != 0 {
		t.Errorf("leaked = %v", report.Leaked)
	}
	if srv.cache.Len() != 0 || srv.cache.Stats().Puts != 0 {
		t.Error("bench should not touch the session cache")
	}

	decode(t, callTool(t, srv.handleBench, "bench", map[string]any{
		"cycles":    1,
		"synthetic": true,
		"frames":    3,
	}), &report)
	if len(report.Cycles) != 1 {
		t.Errorf("synthetic cycles = %d, want 1", len(report.Cycles))
	}
}

func TestBenchErrors(t *testing.T) {
	srv, _ := newTestServer(t, 5)

	tests := []struct {
		name string
		args map[string]any
	}{
		{name: "bad policy", args: map[string]any{"policy": "fifo"}},
		{name: "bad overflow", args: map[string]any{"overflow": "drop"}},
		{name: "zero capacity", args: map[string]any{"capacity": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if r := callTool(t, srv.handleBench, "bench", tt.args); !r.IsError {
				t.Errorf("bench(%v) should fail", tt.args)
			}
		})
	}
}

func TestJsonResult(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		shouldErr bool
	}{
		{
			name:  "simple string slice",
			input: []string{"a", "b", "c"},
		},
		{
			name:  "map",
			input: map[string]string{"key": "value"},
		},
		{
			name:  "nil",
			input: nil,
		},
		{
			name:      "unsupported value",
			input:     make(chan int),
			shouldErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := jsonResult(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result == nil {
				t.Fatal("result is nil")
			}
			if result.IsError != tt.shouldErr {
				t.Errorf("IsError = %v, want %v", result.IsError, tt.shouldErr)
			}
		})
	}
}
