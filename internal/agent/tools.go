package agent

import (
	"strconv"
	"strings"

	"gitlab.com/gitlab-org/ai-gateway/internal/auth"
)

// Tool is a capability the agent can request; execution happens in the
// caller, never in the gateway. The unit primitive is a value copy, not a
// reference.
type Tool struct {
	Name          string
	Description   string
	Example       string
	UnitPrimitive auth.UnitPrimitive
	// MinRequiredGitLabVersion excludes the tool for older instances.
	// Empty means available everywhere.
	MinRequiredGitLabVersion string
}

// ToolRegistry holds the full tool set and answers capability-filtered
// queries.
type ToolRegistry struct {
	tools []Tool
}

func NewToolRegistry(tools ...Tool) *ToolRegistry {
	return &ToolRegistry{tools: tools}
}

// All returns every registered tool (debug users bypass filtering).
func (r *ToolRegistry) All() []Tool {
	return r.tools
}

// ForCapabilities returns the tools whose primitive is in the granted set.
func (r *ToolRegistry) ForCapabilities(primitives []auth.UnitPrimitive) []Tool {
	granted := make(map[auth.UnitPrimitive]struct{}, len(primitives))
	for _, p := range primitives {
		granted[p] = struct{}{}
	}
	var out []Tool
	for _, t := range r.tools {
		if _, ok := granted[t.UnitPrimitive]; ok {
			out = append(out, t)
		}
	}
	return out
}

// DefaultToolRegistry is the production tool set.
func DefaultToolRegistry() *ToolRegistry {
	return NewToolRegistry(
		Tool{
			Name:          "issue_reader",
			Description:   "Fetches the content of the issue the user is asking about.",
			UnitPrimitive: auth.UnitPrimitiveDuoChat,
		},
		Tool{
			Name:          "epic_reader",
			Description:   "Fetches the content of an epic.",
			UnitPrimitive: auth.UnitPrimitiveDuoChat,
		},
		Tool{
			Name:          "gitlab_documentation",
			Description:   "Searches the GitLab documentation.",
			UnitPrimitive: auth.UnitPrimitiveDocumentationSearch,
		},
		Tool{
			Name:                     "ci_job_failure_analyzer",
			Description:              "Inspects the trace of a failed CI job.",
			UnitPrimitive:            auth.UnitPrimitiveAnalyzeCIJobFailure,
			MinRequiredGitLabVersion: "17.2.0",
		},
	)
}

// versionAtLeast reports whether got >= want, comparing dotted numeric
// versions component by component. Unparseable inputs compare as zero.
func versionAtLeast(got, want string) bool {
	gp := strings.Split(got, ".")
	wp := strings.Split(want, ".")
	for i := 0; i < len(gp) || i < len(wp); i++ {
		g, w := 0, 0
		if i < len(gp) {
			g, _ = strconv.Atoi(strings.TrimSpace(gp[i]))
		}
		if i < len(wp) {
			w, _ = strconv.Atoi(strings.TrimSpace(wp[i]))
		}
		if g != w {
			return g > w
		}
	}
	return true
}
