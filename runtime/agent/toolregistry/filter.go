package toolregistry

import "strings"

// NormalizeKey normalizes an extension name into its stable key: whitespace
// stripped, lowercased. Duplicated here (rather than imported from the
// extension package) to keep toolregistry dependency-free of extension, so
// the extension registry can depend on toolregistry without a cycle.
func NormalizeKey(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// orchestratorExtensions is the fixed meta-extension set matched by the
// "orchestrator" group, grounded on block/goose's
// extension::is_orchestrator_extension.
var orchestratorExtensions = map[string]bool{
	"summon":           true,
	"extensionmanager": true,
	"chatrecall":       true,
	"tom":              true,
}

// FilterByGroups keeps tools matching any of groups. An empty groups list is
// the identity (all tools pass). Group vocabulary:
//
//   - "mcp"          — wildcard, matches every tool
//   - "none"         — matches nothing
//   - "orchestrator" — matches the fixed meta-extension set
//   - "command"      — owner "developer", name contains shell/command/terminal
//   - "edit"         — owner "developer", name contains editor/write/create
//   - "read"         — owner "developer", name contains read/list/search/view/cat
//   - "fetch"        — owner or name contains fetch/http
//   - "browser"      — owner computercontroller/chrome-like, or name contains screen/browser/screenshot
//   - anything else  — owner key equality with the group name
func FilterByGroups(tools []Tool, groups []string) []Tool {
	if len(groups) == 0 {
		return tools
	}
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if matchesAnyGroup(t, groups) {
			out = append(out, t)
		}
	}
	return out
}

func matchesAnyGroup(t Tool, groups []string) bool {
	for _, g := range groups {
		if matchesGroup(t, g) {
			return true
		}
	}
	return false
}

func matchesGroup(t Tool, group string) bool {
	name := t.Name
	owner := t.Owner

	switch group {
	case "mcp":
		return true
	case "none":
		return false
	case "orchestrator":
		return orchestratorExtensions[owner]
	case "command":
		return owner == "developer" && (strings.Contains(name, "shell") ||
			strings.Contains(name, "command") || strings.Contains(name, "terminal"))
	case "edit":
		return owner == "developer" && (strings.Contains(name, "editor") ||
			strings.Contains(name, "write") || strings.Contains(name, "create"))
	case "read":
		return owner == "developer" && (strings.Contains(name, "read") ||
			strings.Contains(name, "list") || strings.Contains(name, "search") ||
			strings.Contains(name, "view") || strings.Contains(name, "cat"))
	case "fetch":
		return strings.Contains(owner, "fetch") || strings.Contains(name, "fetch") || strings.Contains(name, "http")
	case "browser":
		return owner == "computercontroller" || strings.Contains(owner, "chrome") ||
			strings.Contains(name, "screen") || strings.Contains(name, "browser") || strings.Contains(name, "screenshot")
	default:
		return owner == group
	}
}

// FilterByExtensions keeps tools whose owner key is in allowed (extension
// names, normalized before comparison).
func FilterByExtensions(tools []Tool, allowed []string) []Tool {
	allowedKeys := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedKeys[NormalizeKey(a)] = true
	}
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if allowedKeys[t.Owner] {
			out = append(out, t)
		}
	}
	return out
}

// ExcludeExtensions drops tools whose owner key is in excluded.
func ExcludeExtensions(tools []Tool, excluded []string) []Tool {
	excludedKeys := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		excludedKeys[NormalizeKey(e)] = true
	}
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if !excludedKeys[t.Owner] {
			out = append(out, t)
		}
	}
	return out
}

// ResolveOwner returns the normalized owner key for toolName: the namespace
// prefix ("owner__tool") when present, otherwise a metadata lookup in tools.
func ResolveOwner(toolName string, tools []Tool) (string, bool) {
	if prefix, _, ok := strings.Cut(toolName, "__"); ok {
		return NormalizeKey(prefix), true
	}
	for _, t := range tools {
		if t.Name == toolName {
			return NormalizeKey(t.Owner), true
		}
	}
	return "", false
}
