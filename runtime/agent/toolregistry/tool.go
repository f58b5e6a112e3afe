// Package toolregistry implements the pure tool-filtering functions and the
// cache used by the extension registry and the reply loop to decide which
// tools a given turn may call.
//
// Filtering semantics (group vocabulary, substring-matched abstract groups,
// owner-key equality fallback) are grounded on block/goose's
// tool_filter.rs / tool_registry.rs (see SPEC_FULL.md §5, §8).
package toolregistry

// Annotations are optional hints about a tool's side effects, mirroring the
// MCP tool-annotation fields.
type Annotations struct {
	ReadOnly    *bool
	Destructive *bool
	Idempotent  *bool
	OpenWorld   *bool
}

// Tool is a single callable tool, tagged with the extension key that owns it.
type Tool struct {
	// Name is the fully qualified tool name as presented to the model:
	// "<extension-key>__<tool-name>", except for tools owned by an
	// unprefixed extension, which are presented bare.
	Name string

	// LocalName is the tool's name without any extension prefix, as
	// understood by the owning extension's MCP server.
	LocalName string

	// Owner is the normalized extension key that owns this tool.
	Owner string

	Description string
	// Schema is the JSON schema for the tool's arguments, as a decoded map
	// (matching the wire representation MCP servers return).
	Schema map[string]any

	Annotations Annotations
}

// PrefixedName returns "<owner>__<local>", the name used when owner is not
// an unprefixed extension.
func PrefixedName(owner, local string) string {
	return owner + "__" + local
}
