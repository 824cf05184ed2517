package diff

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/rpattn/entitykit/internal/domain"
)

// DefaultTruncateAfter is the string length, in characters, above which cells collapse.
const DefaultTruncateAfter = 200

// Cell is one rendered value. Collapsed cells show a shortened Text; Full always holds the
// complete rendering.
type Cell struct {
	Text      string `json:"text" yaml:"text"`
	Full      string `json:"full" yaml:"full"`
	Collapsed bool   `json:"collapsed" yaml:"collapsed"`
	Block     bool   `json:"block" yaml:"block"`
}

// Row is a rendered leaf.
type Row struct {
	Path    string `json:"path" yaml:"path"`
	Current Cell   `json:"current" yaml:"current"`
	Other   Cell   `json:"other" yaml:"other"`
	Changed bool   `json:"changed" yaml:"changed"`
}

// Renderer formats leaf values for display. Rendering never changes what Compare considers
// equal.
type Renderer struct {
	TruncateAfter int
}

// NewRenderer returns a renderer with the default truncation threshold.
func NewRenderer() Renderer {
	return Renderer{TruncateAfter: DefaultTruncateAfter}
}

// Rows renders every leaf of the report.
func (r Renderer) Rows(report *Report) []Row {
	leaves := report.Leaves()
	rows := make([]Row, len(leaves))
	for i, leaf := range leaves {
		rows[i] = Row{
			Path:    leaf.Path,
			Current: r.Render(leaf.Current),
			Other:   r.Render(leaf.Other),
			Changed: leaf.Changed,
		}
	}
	return rows
}

// Render formats one value: a reference marker as "<type>#<key>", maps and lists as a YAML
// block, long strings collapsed, everything else in its plain textual form.
func (r Renderer) Render(value any) Cell {
	if ref, ok := domain.ParseMarker(value); ok {
		text := ref.String()
		return Cell{Text: text, Full: text}
	}
	switch typed := value.(type) {
	case map[string]any, []any:
		block := yamlBlock(typed)
		return Cell{Text: block, Full: block, Block: true}
	case string:
		return r.text(typed)
	}
	text := Plain(value)
	return Cell{Text: text, Full: text}
}

func (r Renderer) text(s string) Cell {
	limit := r.TruncateAfter
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return Cell{Text: s, Full: s}
	}
	runes := []rune(s)
	return Cell{Text: string(runes[:limit]) + "…", Full: s, Collapsed: true}
}

// Plain renders a scalar. Nulls are empty; whole floats print without a fraction.
func Plain(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	case domain.Referenceable:
		return typed.Reference().String()
	default:
		return fmt.Sprint(typed)
	}
}

func yamlBlock(value any) string {
	encoded, err := yaml.Marshal(displayValue(value))
	if err != nil {
		return fmt.Sprint(value)
	}
	return strings.TrimRight(string(encoded), "\n")
}

// displayValue replaces nested markers with their "<type>#<key>" form before encoding.
func displayValue(value any) any {
	if ref, ok := domain.ParseMarker(value); ok {
		return ref.String()
	}
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = displayValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = displayValue(v)
		}
		return out
	}
	return value
}
