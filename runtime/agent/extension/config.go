// Package extension implements the extension registry: MCP client lifecycle
// (stdio/SSE/streamable-HTTP/platform/builtin), tool discovery, and the
// prefixed tool-naming scheme consumed by the tool registry and dispatcher.
package extension

import (
	"strings"
	"time"
)

// Kind discriminates an extension configuration variant.
type Kind string

const (
	// KindStdio launches a child process speaking MCP over stdio.
	KindStdio Kind = "stdio"
	// KindSSE connects to a remote MCP server over HTTP+SSE.
	KindSSE Kind = "sse"
	// KindStreamableHTTP connects to a remote MCP server over streamable HTTP.
	KindStreamableHTTP Kind = "streamable_http"
	// KindPlatform instantiates an in-process extension with direct access
	// to the owning agent's session/provider context.
	KindPlatform Kind = "platform"
	// KindBuiltin wraps a fixed, statically known tool list with no live
	// transport.
	KindBuiltin Kind = "builtin"
)

type (
	// Config describes one extension to add to a registry. Exactly the
	// fields relevant to Kind are meaningful.
	Config struct {
		// Name is the human-provided extension name; Key() normalizes it.
		Name string
		Kind Kind

		// Stdio fields.
		Command string
		Args    []string
		Envs    []string

		// SSE / StreamableHTTP fields.
		URL string

		// Timeout bounds transport setup (process spawn / HTTP initialize).
		Timeout time.Duration

		// Platform fields.
		PlatformFactory string // key into the PlatformFactory table
		// Unprefixed, when true, exposes this extension's tools without the
		// "<key>__" namespace prefix. Only platform extensions may set this;
		// the registry rejects unprefixed-name collisions across extensions.
		Unprefixed bool

		// Builtin fields.
		DisplayName    string
		AvailableTools []string
	}
)

// Key returns the stable, normalized key for an extension name: whitespace
// stripped, lowercased.
func Key(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// Key returns the stable key for this config's Name.
func (c Config) Key() string { return Key(c.Name) }
