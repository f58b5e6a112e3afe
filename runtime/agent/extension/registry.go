package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mcpruntime "goa.design/goa-ai/features/mcp/runtime"
	"goa.design/goa-ai/runtime/agent/telemetry"
	"goa.design/goa-ai/runtime/agent/toolregistry"
	"goa.design/goa-ai/runtime/mcp"
)

type (
	// Client is the minimal MCP client surface the registry needs: call a
	// tool and list the tools an extension exposes. Stdio/HTTP transports
	// satisfy this via features/mcp/runtime's StdioCaller/HTTPCaller; a
	// platform extension satisfies it with an in-process implementation.
	Client interface {
		mcp.Caller
		mcpruntime.ToolLister
		Close() error
	}

	// PlatformFactory constructs an in-process Client for a platform
	// extension, given the extension's own Config.
	PlatformFactory func(ctx context.Context, cfg Config) (Client, error)

	// ToolsChanged is sent on a registry's Subscribe channel whenever the
	// flat tool cache is invalidated.
	ToolsChanged struct {
		Version uint64
	}

	liveExtension struct {
		cfg     Config
		key     string
		client  Client
		enabled bool
		tools   []toolregistry.Tool
	}

	// Registry owns the set of live extensions for one agent, the flat
	// cache of their prefixed tools, and broadcasts tool-list-changed
	// events. Mirrors block/goose's ExtensionManager + ToolRegistry split,
	// collapsed into one type since this module does not separate the two
	// across an async boundary.
	Registry struct {
		mu          sync.Mutex
		extensions  map[string]*liveExtension
		cache       *toolregistry.Cache
		subscribers map[chan ToolsChanged]struct{}
		platforms   map[string]PlatformFactory
		logger      telemetry.Logger
		tracer      telemetry.Tracer
	}

	// closerClient adapts an mcpruntime caller (which has no Close beyond
	// its own concrete type) into extension.Client.
	closerClient struct {
		mcp.Caller
		mcpruntime.ToolLister
		close func() error
	}
)

func (c closerClient) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// ErrUnprefixedCollision indicates two unprefixed extensions expose a tool
// with the same local name.
var ErrUnprefixedCollision = errors.New("extension: unprefixed tool name collision")

// NewRegistry constructs an empty Registry. platforms maps a
// Config.PlatformFactory key to the constructor used for KindPlatform
// extensions.
func NewRegistry(platforms map[string]PlatformFactory, logger telemetry.Logger, tracer telemetry.Tracer) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	return &Registry{
		extensions:  make(map[string]*liveExtension),
		cache:       toolregistry.NewCache(),
		subscribers: make(map[chan ToolsChanged]struct{}),
		platforms:   platforms,
		logger:      logger,
		tracer:      tracer,
	}
}

// Add connects to the extension described by cfg, performs the MCP
// initialize handshake, fetches its tool list, and merges the tools into
// the flat cache under the extension's key. On any failure, no registry
// state is mutated.
func (r *Registry) Add(ctx context.Context, cfg Config) (string, error) {
	key := cfg.Key()
	if key == "" {
		return "", fmt.Errorf("extension: name is required")
	}
	if cfg.Unprefixed && cfg.Kind != KindPlatform {
		return "", fmt.Errorf("extension %q: only platform extensions may be unprefixed", key)
	}

	client, err := r.connect(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("extension %q: %w", key, err)
	}

	tools, err := r.fetchTools(ctx, client, cfg)
	if err != nil {
		_ = client.Close()
		return "", fmt.Errorf("extension %q: fetch tools: %w", key, err)
	}

	r.mu.Lock()
	if cfg.Unprefixed {
		for _, t := range tools {
			for otherKey, other := range r.extensions {
				if otherKey == key || !other.cfg.Unprefixed {
					continue
				}
				for _, ot := range other.tools {
					if ot.Name == t.Name {
						r.mu.Unlock()
						_ = client.Close()
						return "", fmt.Errorf("extension %q: %w: tool %q already exposed by %q",
							key, ErrUnprefixedCollision, t.Name, otherKey)
					}
				}
			}
		}
	}
	if existing, ok := r.extensions[key]; ok {
		r.mu.Unlock()
		_ = client.Close()
		_ = existing
		return "", fmt.Errorf("extension %q: already registered", key)
	}
	r.extensions[key] = &liveExtension{cfg: cfg, key: key, client: client, enabled: true, tools: tools}
	r.invalidateLocked()
	r.mu.Unlock()

	r.logger.Info(ctx, "extension added", "key", key, "tool_count", len(tools))
	return key, nil
}

// Remove disconnects and drops the extension identified by key.
func (r *Registry) Remove(ctx context.Context, key string) error {
	r.mu.Lock()
	ext, ok := r.extensions[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("extension %q: not found", key)
	}
	delete(r.extensions, key)
	r.invalidateLocked()
	r.mu.Unlock()

	r.logger.Info(ctx, "extension removed", "key", key)
	return ext.client.Close()
}

// Enable/Disable toggle whether an extension's tools appear in Tools().
func (r *Registry) Enable(key string) error  { return r.setEnabled(key, true) }
func (r *Registry) Disable(key string) error { return r.setEnabled(key, false) }

func (r *Registry) setEnabled(key string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ext, ok := r.extensions[key]
	if !ok {
		return fmt.Errorf("extension %q: not found", key)
	}
	ext.enabled = enabled
	r.invalidateLocked()
	return nil
}

// Probe re-fetches an extension's tool list (used after an upstream
// tools-list-changed notification) and invalidates the cache.
func (r *Registry) Probe(ctx context.Context, key string) error {
	r.mu.Lock()
	ext, ok := r.extensions[key]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("extension %q: not found", key)
	}
	client := ext.client
	cfg := ext.cfg
	r.mu.Unlock()

	tools, err := r.fetchTools(ctx, client, cfg)
	if err != nil {
		return fmt.Errorf("extension %q: probe: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	ext, ok = r.extensions[key]
	if !ok {
		return fmt.Errorf("extension %q: not found", key)
	}
	ext.tools = tools
	r.invalidateLocked()
	return nil
}

// Client returns the live MCP client for key, used by the dispatcher.
func (r *Registry) Client(key string) (Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ext, ok := r.extensions[key]
	if !ok {
		return nil, false
	}
	return ext.client, true
}

// Tools returns the current flat, prefixed tool list across all enabled
// extensions, reading through the cache (refilling it on a miss).
func (r *Registry) Tools() []toolregistry.Tool {
	if tools, ok := r.cache.Get(); ok {
		return tools
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var flat []toolregistry.Tool
	for _, ext := range r.extensions {
		if !ext.enabled {
			continue
		}
		flat = append(flat, ext.tools...)
	}
	r.cache.Set(flat)
	out, _ := r.cache.Get()
	return out
}

// CacheVersion returns the current tool-cache version (invariant 4: strictly
// monotonic across add/remove/invalidate).
func (r *Registry) CacheVersion() uint64 { return r.cache.Version() }

// Subscribe returns a channel that receives a ToolsChanged event whenever
// the cache is invalidated. The caller must drain or discard the channel;
// sends are non-blocking and drop on a full buffer.
func (r *Registry) Subscribe() <-chan ToolsChanged {
	ch := make(chan ToolsChanged, 4)
	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel previously returned by Subscribe.
func (r *Registry) Unsubscribe(ch <-chan ToolsChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c := range r.subscribers {
		if c == ch {
			delete(r.subscribers, c)
			close(c)
			return
		}
	}
}

// invalidateLocked invalidates the cache and notifies subscribers. Caller
// must hold r.mu.
func (r *Registry) invalidateLocked() {
	r.cache.Invalidate()
	version := r.cache.Version()
	for ch := range r.subscribers {
		select {
		case ch <- ToolsChanged{Version: version}:
		default:
		}
	}
}

func (r *Registry) connect(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Kind {
	case KindStdio:
		connectCtx := ctx
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			connectCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		caller, err := mcpruntime.NewStdioCaller(connectCtx, mcpruntime.StdioOptions{
			Command:     cfg.Command,
			Args:        cfg.Args,
			Env:         cfg.Envs,
			InitTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return closerClient{Caller: caller, ToolLister: caller, close: caller.Close}, nil

	case KindSSE, KindStreamableHTTP:
		caller, err := mcpruntime.NewHTTPCaller(ctx, mcpruntime.HTTPOptions{
			Endpoint:    cfg.URL,
			InitTimeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return closerClient{Caller: caller, ToolLister: caller, close: func() error { return nil }}, nil

	case KindPlatform:
		factory, ok := r.platforms[cfg.PlatformFactory]
		if !ok {
			return nil, fmt.Errorf("no platform factory registered for %q", cfg.PlatformFactory)
		}
		return factory(ctx, cfg)

	case KindBuiltin:
		return newBuiltinClient(cfg.AvailableTools), nil

	default:
		return nil, fmt.Errorf("unknown extension kind %q", cfg.Kind)
	}
}

func (r *Registry) fetchTools(ctx context.Context, client Client, cfg Config) ([]toolregistry.Tool, error) {
	key := cfg.Key()
	var out []toolregistry.Tool
	cursor := ""
	for {
		infos, next, err := client.ListTools(ctx, cursor)
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			name := info.Name
			full := toolregistry.PrefixedName(key, name)
			if cfg.Unprefixed {
				full = name
			}
			out = append(out, toolregistry.Tool{
				Name:        full,
				LocalName:   name,
				Owner:       key,
				Description: info.Description,
				Schema:      info.InputSchema,
			})
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return out, nil
}
