package diff

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Without returns a copy of the report minus every node whose path matches one of the
// patterns. Patterns use report path syntax with glob wildcards: "updated_at",
// "address.*", "**.price", "items[*].sku". Branches left without children are dropped.
func (r *Report) Without(patterns ...string) *Report {
	if len(patterns) == 0 {
		return r
	}
	globs := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			globs = append(globs, globPath(p))
		}
	}
	return &Report{Current: r.Current, Other: r.Other, Nodes: prune(r.Nodes, globs)}
}

func prune(nodes []*Node, globs []string) []*Node {
	out := make([]*Node, 0, len(nodes))
	for _, n := range nodes {
		if ignored(n.Path, globs) {
			continue
		}
		if n.IsLeaf() {
			out = append(out, n)
			continue
		}
		children := prune(n.Children, globs)
		if len(children) == 0 {
			continue
		}
		copied := *n
		copied.Children = children
		out = append(out, &copied)
	}
	return out
}

func ignored(path string, globs []string) bool {
	candidate := globPath(path)
	for _, g := range globs {
		if matched, err := doublestar.Match(g, candidate); err == nil && matched {
			return true
		}
	}
	return false
}

// globPath maps "items[0].sku" to "items/0/sku" so path segments line up with glob segments.
func globPath(path string) string {
	replacer := strings.NewReplacer(".", "/", "[", "/", "]", "")
	return strings.TrimPrefix(replacer.Replace(path), "/")
}
