package policy

// ToolGroups defines named groups of tools for easier policy configuration.
// Group names use the "group:" prefix to distinguish them from tool names.
// Groups are keyed by the kind of capability a tool exposes rather than by
// any specific tool implementation, since the tool registry is caller-supplied.
var ToolGroups = map[string][]string{
	// Tools that mutate the workspace (filesystem writes, shell execution).
	"group:write": {"write", "edit", "exec", "apply_patch"},

	// Tools that only observe state without side effects.
	"group:readonly": {"read", "websearch", "webfetch", "status"},

	// Tools that reach outside the local workspace (network, subprocess).
	"group:network": {"websearch", "webfetch", "exec"},

	// All tools considered safe to run without approval.
	"group:safe": {"read", "status", "websearch", "webfetch"},
}

// ToolProfiles defines pre-configured tool sets for common use cases.
var ToolProfiles = map[string]*Policy{
	// Full read/write capability; still subject to explicit deny rules.
	"coding": {
		Profile: ProfileCoding,
		Allow:   []string{"group:fs", "group:runtime", "group:web", "group:memory"},
	},

	// Observation only, no modifications.
	"readonly": {
		Allow: []string{"group:readonly"},
	},

	// Everything allowed except explicit denies.
	"full": {
		Profile: ProfileFull,
	},

	// Just status-class tools.
	"minimal": {
		Profile: ProfileMinimal,
		Allow:   []string{"status"},
	},
}

// ExpandGroups expands group references in a tool list to their constituent tools.
// It handles:
//   - Group references from ToolGroups (e.g., "group:write" -> ["write", "edit", "exec", "apply_patch"])
//   - Direct tool names (passed through unchanged)
//   - Deduplication of results
//
// Example:
//
//	ExpandGroups([]string{"group:write", "websearch"})
//	// Returns: ["write", "edit", "exec", "apply_patch", "websearch"]
func ExpandGroups(items []string) []string {
	var result []string
	seen := make(map[string]bool)

	for _, item := range items {
		// Check if it's a group reference
		if tools, ok := ToolGroups[item]; ok {
			for _, tool := range tools {
				if !seen[tool] {
					seen[tool] = true
					result = append(result, tool)
				}
			}
			continue
		}

		// Regular tool name
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}

// GetProfilePolicy returns the policy for a named profile.
// Returns nil if the profile doesn't exist.
func GetProfilePolicy(name string) *Policy {
	return ToolProfiles[name]
}

// ListGroups returns all available group names.
func ListGroups() []string {
	groups := make([]string, 0, len(ToolGroups))
	for name := range ToolGroups {
		groups = append(groups, name)
	}
	return groups
}

// ListProfiles returns all available profile names.
func ListProfiles() []string {
	profiles := make([]string, 0, len(ToolProfiles))
	for name := range ToolProfiles {
		profiles = append(profiles, name)
	}
	return profiles
}

// IsGroup returns true if the name is a valid group reference.
func IsGroup(name string) bool {
	_, ok := ToolGroups[name]
	return ok
}

// GetGroupTools returns the tools in a group, or nil if the group doesn't exist.
func GetGroupTools(name string) []string {
	tools, ok := ToolGroups[name]
	if !ok {
		return nil
	}
	result := make([]string, len(tools))
	copy(result, tools)
	return result
}

// init ensures ToolGroups is synchronized with DefaultGroups
func init() {
	for name, tools := range ToolGroups {
		DefaultGroups[name] = tools
	}
}
