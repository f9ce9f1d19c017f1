// Package timeslice partitions a year into ordered, weighted time buckets.
//
// A Definition is a tree of named categories (e.g. month -> day -> hour)
// whose leaves carry a duration. Flatten turns it into a Set: the leaves in
// declaration order with weights normalized against the declared total.
// Indices are stable for the lifetime of a Set.
package timeslice

import (
	"fmt"
	"math"
	"strings"

	"energy-mca/internal/model"

	"gonum.org/v1/gonum/floats"
)

// DefaultTolerance bounds the accepted gap between the leaf weights and the
// declared total, relative to the total.
const DefaultTolerance = 1e-9

// Node is one category in the timeslice tree. A node without children is a
// leaf and must carry a Weight; interior nodes may declare a Weight as a
// subtotal which must then match their children.
type Node struct {
	Name     string  `yaml:"name" json:"name"`
	Weight   float64 `yaml:"weight,omitempty" json:"weight,omitempty"`
	Children []Node  `yaml:"children,omitempty" json:"children,omitempty"`
}

// Definition is the nested timeslice configuration.
type Definition struct {
	// Levels names each depth of the tree, outermost first. When empty the
	// levels are named level0, level1, ...
	Levels []string `yaml:"levels,omitempty" json:"levels,omitempty"`
	// Total is the declared sum of leaf weights (e.g. 8760 hours). Zero means
	// "whatever the leaves sum to".
	Total  float64  `yaml:"total,omitempty" json:"total,omitempty"`
	Slices []Node   `yaml:"slices" json:"slices"`
}

// Timeslice is one leaf of a flattened definition.
type Timeslice struct {
	Index int
	// Path holds the category name at each level, outermost first.
	Path []string
	// Weight is the fraction of the year covered by this timeslice.
	Weight float64
}

// Name joins the path with dots, e.g. "winter.weekday.night".
func (t Timeslice) Name() string { return strings.Join(t.Path, ".") }

// Set is an ordered, immutable sequence of timeslices.
type Set struct {
	levels []string
	slices []Timeslice
	index  map[string]int
}

// Flatten validates def and produces its leaf timeslices with normalized weights.
func Flatten(def Definition) (*Set, error) {
	return FlattenTolerance(def, DefaultTolerance)
}

// FlattenTolerance is Flatten with an explicit closure tolerance.
func FlattenTolerance(def Definition, tol float64) (*Set, error) {
	if len(def.Slices) == 0 {
		return nil, model.Configf("timeslices.slices", "no timeslices defined")
	}
	if tol < 0 {
		tol = DefaultTolerance
	}

	var leaves []Timeslice
	depth := -1
	var walk func(n Node, prefix []string, field string) (float64, error)
	walk = func(n Node, prefix []string, field string) (float64, error) {
		name := strings.TrimSpace(n.Name)
		if name == "" {
			return 0, model.Configf(field, "timeslice name is required")
		}
		if strings.Contains(name, ".") {
			return 0, model.Configf(field, "timeslice name %q must not contain '.'", name)
		}
		if math.IsNaN(n.Weight) || math.IsInf(n.Weight, 0) || n.Weight < 0 {
			return 0, model.Configf(field, "weight of %q must be a finite non-negative number", name)
		}
		path := append(append([]string(nil), prefix...), name)
		if len(n.Children) == 0 {
			if depth == -1 {
				depth = len(path)
			} else if depth != len(path) {
				return 0, model.Configf(field, "leaf %q is at depth %d, expected %d", strings.Join(path, "."), len(path), depth)
			}
			leaves = append(leaves, Timeslice{Index: len(leaves), Path: path, Weight: n.Weight})
			return n.Weight, nil
		}
		seen := make(map[string]bool, len(n.Children))
		sub := make([]float64, 0, len(n.Children))
		for i, c := range n.Children {
			if seen[c.Name] {
				return 0, model.Configf(field, "duplicate timeslice %q under %q", c.Name, strings.Join(path, "."))
			}
			seen[c.Name] = true
			w, err := walk(c, path, fmt.Sprintf("%s.children[%d]", field, i))
			if err != nil {
				return 0, err
			}
			sub = append(sub, w)
		}
		sum := floats.Sum(sub)
		if n.Weight > 0 && !closes(sum, n.Weight, tol) {
			return 0, model.Configf(field, "children of %q sum to %g, declared %g", strings.Join(path, "."), sum, n.Weight)
		}
		return sum, nil
	}

	seen := make(map[string]bool, len(def.Slices))
	roots := make([]float64, 0, len(def.Slices))
	for i, n := range def.Slices {
		if seen[n.Name] {
			return nil, model.Configf("timeslices.slices", "duplicate timeslice %q", n.Name)
		}
		seen[n.Name] = true
		w, err := walk(n, nil, fmt.Sprintf("timeslices.slices[%d]", i))
		if err != nil {
			return nil, err
		}
		roots = append(roots, w)
	}

	levels := def.Levels
	if len(levels) == 0 {
		levels = make([]string, depth)
		for i := range levels {
			levels[i] = fmt.Sprintf("level%d", i)
		}
	}
	if len(levels) != depth {
		return nil, model.Configf("timeslices.levels", "%d levels declared but leaves are at depth %d", len(levels), depth)
	}
	if err := uniqueLevels(levels); err != nil {
		return nil, err
	}

	sum := floats.Sum(roots)
	total := def.Total
	if total == 0 {
		total = sum
	}
	if total <= 0 {
		return nil, model.Configf("timeslices.total", "timeslice weights must sum to a positive total")
	}
	if !closes(sum, total, tol) {
		return nil, model.Configf("timeslices.total", "leaf weights sum to %g, declared total %g", sum, total)
	}
	for i := range leaves {
		leaves[i].Weight /= total
	}
	return newSet(append([]string(nil), levels...), leaves), nil
}

func closes(sum, declared, tol float64) bool {
	return math.Abs(sum-declared) <= tol*math.Max(1, math.Abs(declared))
}

func uniqueLevels(levels []string) error {
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		if l == "" {
			return model.Configf("timeslices.levels", "level names must not be empty")
		}
		if seen[l] {
			return model.Configf("timeslices.levels", "duplicate level %q", l)
		}
		seen[l] = true
	}
	return nil
}

func newSet(levels []string, slices []Timeslice) *Set {
	idx := make(map[string]int, len(slices))
	for i, ts := range slices {
		idx[ts.Name()] = i
	}
	return &Set{levels: levels, slices: slices, index: idx}
}

// Single returns a one-timeslice set covering the whole year.
func Single(name string) *Set {
	return newSet([]string{"level0"}, []Timeslice{{Index: 0, Path: []string{name}, Weight: 1}})
}

// Len is the number of timeslices.
func (s *Set) Len() int { return len(s.slices) }

// Levels returns the level names, outermost first.
func (s *Set) Levels() []string { return append([]string(nil), s.levels...) }

// At returns the timeslice at index i.
func (s *Set) At(i int) Timeslice {
	ts := s.slices[i]
	ts.Path = append([]string(nil), ts.Path...)
	return ts
}

// Weight returns the normalized weight of timeslice i.
func (s *Set) Weight(i int) float64 { return s.slices[i].Weight }

// Weights returns all normalized weights in index order.
func (s *Set) Weights() []float64 {
	out := make([]float64, len(s.slices))
	for i, ts := range s.slices {
		out[i] = ts.Weight
	}
	return out
}

// TotalWeight sums the normalized weights; it is 1 within tolerance.
func (s *Set) TotalWeight() float64 { return floats.Sum(s.Weights()) }

// Lookup finds a timeslice by its dotted name.
func (s *Set) Lookup(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns the dotted names in index order.
func (s *Set) Names() []string {
	out := make([]string, len(s.slices))
	for i, ts := range s.slices {
		out[i] = ts.Name()
	}
	return out
}

// Match returns the indices of timeslices whose path agrees with every
// level named in sel. Levels missing from sel are wildcards, so an empty
// selector matches everything.
func (s *Set) Match(sel map[string]string) ([]int, error) {
	pos := make(map[int]string, len(sel))
	for level, v := range sel {
		i := s.levelIndex(level)
		if i < 0 {
			return nil, model.Configf("timeslice", "unknown timeslice level %q (have %s)", level, strings.Join(s.levels, ", "))
		}
		pos[i] = v
	}
	var out []int
	for _, ts := range s.slices {
		ok := true
		for i, v := range pos {
			if ts.Path[i] != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ts.Index)
		}
	}
	return out, nil
}

// MatchPrefix returns the indices of timeslices whose path starts with prefix.
func (s *Set) MatchPrefix(prefix []string) []int {
	var out []int
	for _, ts := range s.slices {
		if len(prefix) > len(ts.Path) {
			continue
		}
		ok := true
		for i, p := range prefix {
			if ts.Path[i] != p {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ts.Index)
		}
	}
	return out
}

func (s *Set) levelIndex(level string) int {
	for i, l := range s.levels {
		if l == level {
			return i
		}
	}
	return -1
}
