package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/fuabioo/atlascache/internal/scene"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the cache capacity used when Config leaves it unset.
const DefaultCapacity = 100

// Config configures the cache session served over MCP.
type Config struct {
	// Source provides the assets. Nil serves the default synthetic bundles.
	Source   asset.Source
	Capacity int
	Policy   cache.Policy
	Overflow cache.Overflow
	Logger   logrus.FieldLogger
	Version  string
}

// Server wraps the MCP server around one live cache session. Tool calls
// are serialized.
type Server struct {
	mcpServer *server.MCPServer
	cfg       Config
	log       logrus.FieldLogger

	mu     sync.Mutex
	assets *asset.Manager
	cache  *cache.LRU
	pins   map[string][]*asset.Texture
}

// TextureView is the JSON form of a texture in tool results.
type TextureView struct {
	Key    string `json:"key"`
	Asset  string `json:"asset"`
	Bundle string `json:"bundle"`
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Bytes  int64  `json:"bytes"`
	Refs   int    `json:"refs"`
	Pins   int    `json:"pins"`
	Cached bool   `json:"cached"`
}

// SessionStats is the result of the stats tool.
type SessionStats struct {
	Cache  cache.Stats `json:"cache"`
	Assets asset.Stats `json:"assets"`
	Pinned int         `json:"pinned"`
}

type bundleInfo struct {
	Name   string `json:"name"`
	Frames int    `json:"frames"`
}

// New creates a new MCP server with all tools registered
func New(cfg Config) *Server {
	if cfg.Source == nil {
		cfg.Source = asset.NewSyntheticSource(0, nil, DefaultBenchFrames)
	}
	if cfg.Capacity < 1 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	cfg.Logger = log

	s := server.NewMCPServer(
		"atlascache",
		cfg.Version,
		server.WithToolCapabilities(true),
	)

	m := asset.NewManager(cfg.Source, log)
	srv := &Server{
		mcpServer: s,
		cfg:       cfg,
		log:       log,
		assets:    m,
		cache: cache.New(cfg.Capacity, m,
			cache.WithPolicy(cfg.Policy),
			cache.WithOverflow(cfg.Overflow),
			cache.WithLogger(log),
		),
		pins: make(map[string][]*asset.Texture),
	}
	srv.registerTools()

	return srv
}

// Run starts the MCP server on stdio. The session is torn down when the
// client disconnects.
func (s *Server) Run() error {
	defer s.Close()
	return server.ServeStdio(s.mcpServer)
}

// Close drops every pin and empties the cache. It returns the textures still
// resident afterwards, which should be none.
func (s *Server) Close() []*asset.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, pinned := range s.pins {
		for _, t := range pinned {
			t.DecRef()
			s.assets.Release(t)
		}
		delete(s.pins, key)
	}
	s.cache.Close()

	leaked := s.assets.Resident()
	if len(leaked) > 0 {
		s.log.WithField("leaked", len(leaked)).Warn("session closed with resident textures")
	}
	return leaked
}

func (s *Server) registerTools() {
	// bundles tool - List bundles or the frames of one bundle
	s.mcpServer.AddTool(mcp.NewTool("bundles",
		mcp.WithDescription("List asset bundles with their frame counts, or the frames of one bundle"),
		mcp.WithString("bundle", mcp.Description("Bundle whose frames to list (default: list all bundles)")),
	), s.handleBundles)

	// load tool - Load a frame through the cache
	s.mcpServer.AddTool(mcp.NewTool("load",
		mcp.WithDescription("Load a bundle frame through the cache. A cached frame is reused; otherwise it is decoded and put into the cache"),
		mcp.WithString("bundle", mcp.Required(), mcp.Description("Bundle name")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Frame path inside the bundle")),
	), s.handleLoad)

	// get tool - Look up a cached texture
	s.mcpServer.AddTool(mcp.NewTool("get",
		mcp.WithDescription("Look up a cached texture by key (or bundle and path). Marks it most recently used"),
		mcp.WithString("key", mcp.Description("Cache key")),
		mcp.WithString("bundle", mcp.Description("Bundle name, used with path instead of key")),
		mcp.WithString("path", mcp.Description("Frame path, used with bundle instead of key")),
	), s.handleGet)

	// pin tool - Hold a reference on a cached texture
	s.mcpServer.AddTool(mcp.NewTool("pin",
		mcp.WithDescription("Hold a reference on a cached texture, as a sprite on screen does. Pinned textures are never evicted"),
		mcp.WithString("key", mcp.Description("Cache key")),
		mcp.WithString("bundle", mcp.Description("Bundle name, used with path instead of key")),
		mcp.WithString("path", mcp.Description("Frame path, used with bundle instead of key")),
	), s.handlePin)

	// unpin tool - Drop a reference taken by pin
	s.mcpServer.AddTool(mcp.NewTool("unpin",
		mcp.WithDescription("Drop one reference taken by pin"),
		mcp.WithString("key", mcp.Description("Cache key")),
		mcp.WithString("bundle", mcp.Description("Bundle name, used with path instead of key")),
		mcp.WithString("path", mcp.Description("Frame path, used with bundle instead of key")),
	), s.handleUnpin)

	// keys tool - List cached textures
	s.mcpServer.AddTool(mcp.NewTool("keys",
		mcp.WithDescription("List cached textures from most to least recently used"),
	), s.handleKeys)

	// stats tool - Cache and asset counters
	s.mcpServer.AddTool(mcp.NewTool("stats",
		mcp.WithDescription("Get cache and asset counters for this session"),
	), s.handleStats)

	// bench tool - Run a bounded benchmark
	s.mcpServer.AddTool(mcp.NewTool("bench",
		mcp.WithDescription("Run a refresh benchmark on a fresh cache (max 1000 cycles). Does not touch the session cache"),
		mcp.WithNumber("cycles", mcp.Description("Refresh cycles (default: 10, max: 1000)")),
		mcp.WithNumber("capacity", mcp.Description("Cache capacity (default: the session capacity)")),
		mcp.WithString("policy", mcp.Description("Eviction policy: scan or strict (default: the session policy)")),
		mcp.WithString("overflow", mcp.Description("Overflow mode: reject or grow (default: the session mode)")),
		mcp.WithNumber("seed", mcp.Description("Random seed (default: 0, random)")),
		mcp.WithNumber("sprites", mcp.Description("Sprites per bundle layer (default: 30)")),
		mcp.WithBoolean("synthetic", mcp.Description("Use generated bundles instead of the session assets (default: false)")),
		mcp.WithNumber("frames", mcp.Description("Frames per generated bundle (default: 20, max: 5000)")),
	), s.handleBench)
}

// Tool handlers

func (s *Server) handleBundles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bundle := request.GetString("bundle", "")
	src := s.cfg.Source

	if bundle != "" {
		frames, err := src.List(ctx, bundle)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		total := len(frames)
		truncated := total > MaxListedFrames
		if truncated {
			frames = frames[:MaxListedFrames]
		}
		return jsonResultWithMetadata(frames, len(frames), truncated, MaxListedFrames)
	}

	names, err := src.Bundles(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]bundleInfo, 0, len(names))
	for _, name := range names {
		frames, err := src.List(ctx, name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out = append(out, bundleInfo{Name: name, Frames: len(frames)})
	}
	return jsonResult(out)
}

func (s *Server) handleLoad(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bundle := request.GetString("bundle", "")
	path := request.GetString("path", "")
	if bundle == "" || path == "" {
		return mcp.NewToolResultError("bundle and path are required"), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := asset.Key(bundle, path)
	if a, ok := s.cache.Get(key); ok {
		return jsonResult(map[string]any{
			"hit":     true,
			"texture": s.view(a.(*asset.Texture)),
		})
	}

	t, err := s.assets.Load(ctx, bundle, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.cache.Put(key, t); err != nil {
		s.assets.Release(t)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"hit":     false,
		"texture": s.view(t),
	})
}

func (s *Server) handleGet(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requestKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.cache.Get(key)
	if !ok {
		return jsonResult(map[string]any{"key": key, "found": false})
	}
	return jsonResult(map[string]any{
		"key":     key,
		"found":   true,
		"texture": s.view(a.(*asset.Texture)),
	})
}

func (s *Server) handlePin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requestKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.cache.Get(key)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("not cached: %s (load it first)", key)), nil
	}
	t := a.(*asset.Texture)
	t.AddRef()
	s.pins[key] = append(s.pins[key], t)

	return jsonResult(s.view(t))
}

func (s *Server) handleUnpin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := requestKey(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pinned := s.pins[key]
	if len(pinned) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("not pinned: %s", key)), nil
	}
	t := pinned[len(pinned)-1]
	if len(pinned) == 1 {
		delete(s.pins, key)
	} else {
		s.pins[key] = pinned[:len(pinned)-1]
	}
	t.DecRef()
	s.assets.Release(t)

	return jsonResult(s.view(t))
}

func (s *Server) handleKeys(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.cache.Keys()
	out := make([]TextureView, 0, len(keys))
	for _, key := range keys {
		t, ok := s.assets.Lookup(key)
		if !ok {
			s.log.WithField("key", key).Warn("cached key has no resident texture")
			continue
		}
		out = append(out, s.view(t))
	}
	return jsonResult(out)
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionStats{
		Cache:  s.cache.Stats(),
		Assets: s.assets.Stats(),
	}
	for _, pinned := range s.pins {
		st.Pinned += len(pinned)
	}
	return jsonResult(st)
}

func (s *Server) handleBench(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cycles := request.GetInt("cycles", DefaultBenchCycles)
	if cycles <= 0 {
		cycles = DefaultBenchCycles
	}
	cycles = min(cycles, MaxBenchCycles)

	capacity := request.GetInt("capacity", s.cfg.Capacity)
	if capacity < 1 {
		return mcp.NewToolResultError(fmt.Sprintf("invalid capacity: %d (must be >= 1)", capacity)), nil
	}

	policy := s.cfg.Policy
	if v := request.GetString("policy", ""); v != "" {
		p, err := cache.ParsePolicy(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		policy = p
	}
	overflow := s.cfg.Overflow
	if v := request.GetString("overflow", ""); v != "" {
		o, err := cache.ParseOverflow(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		overflow = o
	}

	seed := uint64(max(request.GetInt("seed", 0), 0))
	sprites := request.GetInt("sprites", scene.DefaultSprites)

	src := s.cfg.Source
	if request.GetBool("synthetic", false) {
		frames := request.GetInt("frames", DefaultBenchFrames)
		if frames <= 0 {
			frames = DefaultBenchFrames
		}
		src = asset.NewSyntheticSource(seed, nil, min(frames, MaxBenchFrames))
	}
	bundles, err := src.Bundles(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := scene.RunBench(ctx, src, scene.BenchConfig{
		Layout:   scene.LayoutForBundles(bundles, sprites),
		Capacity: capacity,
		Policy:   policy,
		Overflow: overflow,
		Cycles:   cycles,
		Seed:     seed,
		Logger:   s.log,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

// Helper functions

// requestKey returns the key argument, or the key of the bundle and path
// arguments.
func requestKey(request mcp.CallToolRequest) (string, error) {
	if key := request.GetString("key", ""); key != "" {
		return key, nil
	}
	bundle := request.GetString("bundle", "")
	path := request.GetString("path", "")
	if bundle == "" || path == "" {
		return "", fmt.Errorf("either key or bundle and path are required")
	}
	return asset.Key(bundle, path), nil
}

func (s *Server) view(t *asset.Texture) TextureView {
	info := t.Info()
	return TextureView{
		Key:    t.ID(),
		Asset:  t.Name(),
		Bundle: t.Bundle(),
		Path:   t.Path(),
		Width:  info.Width,
		Height: info.Height,
		Format: info.Format,
		Bytes:  info.Bytes,
		Refs:   t.RefCount(),
		Pins:   len(s.pins[t.ID()]),
		Cached: s.cache.Contains(t.ID()),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding error: %v", err)), nil
	}

	// Check output size limit
	if len(data) > MaxOutputBytes {
		return mcp.NewToolResultError(fmt.Sprintf("Output too large (%d bytes, max %d bytes). Try fewer cycles.", len(data), MaxOutputBytes)), nil
	}

	return mcp.NewToolResultText(string(data)), nil
}

func jsonResultWithMetadata(data any, returned int, truncated bool, limit int) (*mcp.CallToolResult, error) {
	result := map[string]any{
		"data": data,
		"metadata": map[string]any{
			"returned":  returned,
			"truncated": truncated,
			"limit":     limit,
		},
	}
	return jsonResult(result)
}
