package diff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Unified renders the report as a line-based unified diff. Each side is flattened to
// canonical "path: value" lines, so nested changes show up as single-line edits.
func (r *Report) Unified() string {
	currentLabel, otherLabel := r.Current.Label, r.Other.Label
	if currentLabel == "" {
		currentLabel = "current"
	}
	if otherLabel == "" {
		otherLabel = "other"
	}
	return buildUnifiedDiff(currentLabel, otherLabel, r.canonicalLines(true), r.canonicalLines(false))
}

func (r *Report) canonicalLines(current bool) []string {
	side := r.Other
	if current {
		side = r.Current
	}
	lines := []string{
		fmt.Sprintf("EntityType: %s", side.EntityType),
		fmt.Sprintf("EntityKey: %s", side.EntityKey),
		"Fields:",
	}
	count := 0
	for _, leaf := range r.Leaves() {
		value, present := leaf.Other, leaf.OtherPresent
		if current {
			value, present = leaf.Current, leaf.CurrentPresent
		}
		if !present {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", leaf.Path, canonicalValue(value)))
		count++
	}
	if count == 0 {
		lines = append(lines, "  (empty)")
	}
	return lines
}

func canonicalValue(value any) string {
	display := displayValue(value)
	if value == nil {
		return "null"
	}
	encoded, err := json.Marshal(display)
	if err != nil {
		return fmt.Sprintf("%v", display)
	}
	return string(encoded)
}

type diffOp struct {
	prefix string
	line   string
}

func buildUnifiedDiff(baseLabel, targetLabel string, baseLines, targetLines []string) string {
	ops := diffLines(baseLines, targetLines)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("--- %s\n", baseLabel))
	builder.WriteString(fmt.Sprintf("+++ %s\n", targetLabel))
	builder.WriteString(fmt.Sprintf("@@ -1,%d +1,%d @@\n", len(baseLines), len(targetLines)))
	for _, operation := range ops {
		builder.WriteString(operation.prefix)
		builder.WriteString(operation.line)
		builder.WriteString("\n")
	}
	return builder.String()
}

// diffLines aligns two line slices on their longest common subsequence.
func diffLines(base, target []string) []diffOp {
	m := len(base)
	n := len(target)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if base[i] == target[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	ops := make([]diffOp, 0, m+n)
	i, j := 0, 0
	for i < m && j < n {
		if base[i] == target[j] {
			ops = append(ops, diffOp{prefix: " ", line: base[i]})
			i++
			j++
			continue
		}
		if dp[i+1][j] >= dp[i][j+1] {
			ops = append(ops, diffOp{prefix: "-", line: base[i]})
			i++
		} else {
			ops = append(ops, diffOp{prefix: "+", line: target[j]})
			j++
		}
	}
	for ; i < m; i++ {
		ops = append(ops, diffOp{prefix: "-", line: base[i]})
	}
	for ; j < n; j++ {
		ops = append(ops, diffOp{prefix: "+", line: target[j]})
	}
	return ops
}
