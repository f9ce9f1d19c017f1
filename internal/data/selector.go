package data

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"energy-mca/internal/timeslice"

	"gopkg.in/yaml.v3"
)

// Selector addresses a group of timeslices. It is written either as a dotted
// path prefix ("winter.weekday") or as a level map ({month: winter}). An
// empty selector addresses every timeslice.
type Selector struct {
	Prefix []string
	Levels map[string]string
}

// IsZero reports whether s addresses every timeslice.
func (s Selector) IsZero() bool { return len(s.Prefix) == 0 && len(s.Levels) == 0 }

func (s Selector) String() string {
	if len(s.Levels) == 0 {
		return strings.Join(s.Prefix, ".")
	}
	keys := make([]string, 0, len(s.Levels))
	for k := range s.Levels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + s.Levels[k]
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Resolve returns the indices s addresses in set. A selector that matches
// nothing is an error.
func (s Selector) Resolve(set *timeslice.Set) ([]int, error) {
	var idx []int
	switch {
	case s.IsZero():
		idx = make([]int, set.Len())
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	case len(s.Levels) > 0:
		var err error
		if idx, err = set.Match(s.Levels); err != nil {
			return nil, err
		}
	default:
		idx = set.MatchPrefix(s.Prefix)
	}
	if len(idx) == 0 {
		return nil, fmt.Errorf("timeslice selector %s matches no timeslice", s)
	}
	return idx, nil
}

func parsePrefix(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ".")
}

func (s *Selector) UnmarshalYAML(node *yaml.Node) error {
	*s = Selector{}
	switch node.Kind {
	case yaml.ScalarNode:
		s.Prefix = parsePrefix(node.Value)
		return nil
	case yaml.MappingNode:
		return node.Decode(&s.Levels)
	default:
		return fmt.Errorf("line %d: timeslice selector must be a string or a mapping", node.Line)
	}
}

func (s *Selector) UnmarshalJSON(raw []byte) error {
	*s = Selector{}
	var path string
	if err := json.Unmarshal(raw, &path); err == nil {
		s.Prefix = parsePrefix(path)
		return nil
	}
	if err := json.Unmarshal(raw, &s.Levels); err != nil {
		return fmt.Errorf("timeslice selector must be a string or an object: %w", err)
	}
	return nil
}

func (s Selector) MarshalJSON() ([]byte, error) {
	if len(s.Levels) > 0 {
		return json.Marshal(s.Levels)
	}
	return json.Marshal(strings.Join(s.Prefix, "."))
}
