// Package diff compares two version snapshots structurally and renders the result.
package diff

import (
	"reflect"
	"sort"
	"strconv"

	"github.com/rpattn/entitykit/internal/domain"
)

// Side describes one of the two compared snapshots.
type Side struct {
	Label      string `json:"label" yaml:"label"`
	EntityType string `json:"entity_type" yaml:"entity_type"`
	EntityKey  string `json:"entity_key" yaml:"entity_key"`
	Sequence   int64  `json:"sequence" yaml:"sequence"`
}

// Node is one entry of the report tree. Branches have Children; leaves carry the two values.
// A value missing on one side is nil with the matching Present flag false.
type Node struct {
	Name           string
	Path           string
	Current        any
	Other          any
	CurrentPresent bool
	OtherPresent   bool
	Children       []*Node
}

// IsLeaf reports whether the node carries values rather than children.
func (n *Node) IsLeaf() bool { return n.Children == nil }

// Changed reports whether a leaf's two values differ, or whether any leaf below a branch does.
func (n *Node) Changed() bool {
	if n.IsLeaf() {
		return !leafEqual(n.Current, n.Other)
	}
	for _, child := range n.Children {
		if child.Changed() {
			return true
		}
	}
	return false
}

// Report mirrors the field-path structure of two snapshots. It is exhaustive: unchanged
// leaves are included.
type Report struct {
	Current Side
	Other   Side
	Nodes   []*Node
}

// Leaf is the flattened form of a leaf node.
type Leaf struct {
	Path           string
	Current        any
	Other          any
	CurrentPresent bool
	OtherPresent   bool
	Changed        bool
}

// Compare walks both snapshots' field maps over the union of their paths. Snapshots read
// through the version store already carry decoded Fields. Use CompareSnapshots when a
// payload may still need decoding.
func Compare(current, other domain.VersionSnapshot) *Report {
	report := CompareFields(current.Fields, other.Fields)
	report.Current = sideOf(current)
	report.Other = sideOf(other)
	return report
}

// CompareSnapshots decodes any snapshot without Fields and compares the pair. An undecodable
// payload is reported as a *domain.CorruptSnapshotError.
func CompareSnapshots(current, other domain.VersionSnapshot) (*Report, error) {
	var err error
	if current, err = withFields(current); err != nil {
		return nil, err
	}
	if other, err = withFields(other); err != nil {
		return nil, err
	}
	return Compare(current, other), nil
}

// CompareFields compares two raw field maps.
func CompareFields(current, other map[string]any) *Report {
	return &Report{Nodes: compareMaps("", current, other, true, true)}
}

func withFields(s domain.VersionSnapshot) (domain.VersionSnapshot, error) {
	if s.Fields != nil {
		return s, nil
	}
	fields, err := s.DecodeFields()
	if err != nil {
		return domain.VersionSnapshot{}, &domain.CorruptSnapshotError{VersionID: s.ID.String(), Err: err}
	}
	s.Fields = fields
	return s, nil
}

func sideOf(s domain.VersionSnapshot) Side {
	return Side{Label: s.Label(), EntityType: s.EntityType, EntityKey: s.EntityKey, Sequence: s.Sequence}
}

func compareMaps(prefix string, current, other map[string]any, currentPresent, otherPresent bool) []*Node {
	keys := make(map[string]struct{}, len(current)+len(other))
	for k := range current {
		keys[k] = struct{}{}
	}
	for k := range other {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		cv, cok := current[name]
		ov, ook := other[name]
		nodes = append(nodes, walk(name, path, cv, ov, currentPresent && cok, otherPresent && ook))
	}
	return nodes
}

func compareLists(prefix string, current, other []any, currentPresent, otherPresent bool) []*Node {
	size := max(len(current), len(other))
	nodes := make([]*Node, 0, size)
	for i := 0; i < size; i++ {
		name := "[" + strconv.Itoa(i) + "]"
		var cv, ov any
		cok, ook := i < len(current), i < len(other)
		if cok {
			cv = current[i]
		}
		if ook {
			ov = other[i]
		}
		nodes = append(nodes, walk(name, prefix+name, cv, ov, currentPresent && cok, otherPresent && ook))
	}
	return nodes
}

// walk recurses when either side is a nested map or list. A container facing a non-null
// scalar, two containers of different kinds, and reference markers stay leaves, as does a
// container pair with no children at all.
func walk(name, path string, current, other any, currentPresent, otherPresent bool) *Node {
	leaf := &Node{
		Name:           name,
		Path:           path,
		Current:        current,
		Other:          other,
		CurrentPresent: currentPresent,
		OtherPresent:   otherPresent,
	}

	cKind, oKind := containerKind(current), containerKind(other)
	switch {
	case cKind == notContainer && oKind == notContainer:
		return leaf
	case cKind != notContainer && oKind != notContainer && cKind != oKind:
		return leaf
	case cKind == notContainer && current != nil, oKind == notContainer && other != nil:
		return leaf
	}

	var children []*Node
	if cKind == mapContainer || oKind == mapContainer {
		cm, _ := current.(map[string]any)
		om, _ := other.(map[string]any)
		children = compareMaps(path, cm, om, currentPresent && cm != nil, otherPresent && om != nil)
	} else {
		cl, _ := current.([]any)
		ol, _ := other.([]any)
		children = compareLists(path, cl, ol, currentPresent && cl != nil, otherPresent && ol != nil)
	}
	if len(children) == 0 {
		return leaf
	}
	return &Node{Name: name, Path: path, CurrentPresent: currentPresent, OtherPresent: otherPresent, Children: children}
}

type kind int

const (
	notContainer kind = iota
	mapContainer
	listContainer
)

func containerKind(value any) kind {
	switch typed := value.(type) {
	case map[string]any:
		if _, isMarker := domain.ParseMarker(typed); isMarker {
			return notContainer
		}
		return mapContainer
	case []any:
		return listContainer
	}
	return notContainer
}

func leafEqual(a, b any) bool {
	_, aMap := a.(map[string]any)
	_, bMap := b.(map[string]any)
	_, aList := a.([]any)
	_, bList := b.([]any)
	if aMap || bMap || aList || bList {
		if ra, ok := domain.ParseMarker(a); ok {
			rb, ok := domain.ParseMarker(b)
			return ok && ra.Type == rb.Type && domain.KeysEqual(ra.Key, rb.Key)
		}
		return reflect.DeepEqual(a, b)
	}
	return domain.ValuesEqual(a, b)
}

// Leaves flattens the report depth-first in path order.
func (r *Report) Leaves() []Leaf {
	var out []Leaf
	var visit func(nodes []*Node)
	visit = func(nodes []*Node) {
		for _, n := range nodes {
			if !n.IsLeaf() {
				visit(n.Children)
				continue
			}
			out = append(out, Leaf{
				Path:           n.Path,
				Current:        n.Current,
				Other:          n.Other,
				CurrentPresent: n.CurrentPresent,
				OtherPresent:   n.OtherPresent,
				Changed:        n.Changed(),
			})
		}
	}
	visit(r.Nodes)
	return out
}

// Changed returns only the leaves whose values differ.
func (r *Report) Changed() []Leaf {
	var out []Leaf
	for _, leaf := range r.Leaves() {
		if leaf.Changed {
			out = append(out, leaf)
		}
	}
	return out
}

// HasChanges reports whether any leaf differs.
func (r *Report) HasChanges() bool {
	for _, n := range r.Nodes {
		if n.Changed() {
			return true
		}
	}
	return false
}

// Paths lists every leaf path.
func (r *Report) Paths() []string {
	leaves := r.Leaves()
	out := make([]string, len(leaves))
	for i, leaf := range leaves {
		out[i] = leaf.Path
	}
	return out
}

// Find returns the node at path, or nil.
func (r *Report) Find(path string) *Node {
	var search func(nodes []*Node) *Node
	search = func(nodes []*Node) *Node {
		for _, n := range nodes {
			if n.Path == path {
				return n
			}
			if found := search(n.Children); found != nil {
				return found
			}
		}
		return nil
	}
	return search(r.Nodes)
}

// Swap returns the report with current and other exchanged at every node.
func (r *Report) Swap() *Report {
	var swap func(nodes []*Node) []*Node
	swap = func(nodes []*Node) []*Node {
		if nodes == nil {
			return nil
		}
		out := make([]*Node, len(nodes))
		for i, n := range nodes {
			out[i] = &Node{
				Name:           n.Name,
				Path:           n.Path,
				Current:        n.Other,
				Other:          n.Current,
				CurrentPresent: n.OtherPresent,
				OtherPresent:   n.CurrentPresent,
				Children:       swap(n.Children),
			}
		}
		return out
	}
	return &Report{Current: r.Other, Other: r.Current, Nodes: swap(r.Nodes)}
}

// OnlyChanged returns a copy of the report keeping changed leaves and the branches above them.
func (r *Report) OnlyChanged() *Report {
	var keep func(nodes []*Node) []*Node
	keep = func(nodes []*Node) []*Node {
		out := make([]*Node, 0, len(nodes))
		for _, n := range nodes {
			if !n.Changed() {
				continue
			}
			if n.IsLeaf() {
				out = append(out, n)
				continue
			}
			copied := *n
			copied.Children = keep(n.Children)
			out = append(out, &copied)
		}
		return out
	}
	return &Report{Current: r.Current, Other: r.Other, Nodes: keep(r.Nodes)}
}
