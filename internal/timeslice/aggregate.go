package timeslice

import (
	"strings"

	"energy-mca/internal/model"
)

// Mapping relates a fine set to a coarser one. To[i] is the coarse index
// that fine timeslice i folds into.
type Mapping struct {
	Fine   *Set
	Coarse *Set
	To     []int
}

// Collapse drops the named levels from s, merging timeslices whose remaining
// path is identical. Merged weights are summed and the coarse timeslices keep
// the order of their first fine member.
func Collapse(s *Set, drop ...string) (*Set, *Mapping, error) {
	dropped := make(map[int]bool, len(drop))
	for _, l := range drop {
		i := s.levelIndex(l)
		if i < 0 {
			return nil, nil, model.Configf("timeslices.levels", "cannot drop unknown level %q", l)
		}
		dropped[i] = true
	}
	if len(dropped) >= len(s.levels) {
		return nil, nil, model.Configf("timeslices.levels", "cannot drop every level")
	}

	levels := make([]string, 0, len(s.levels)-len(dropped))
	for i, l := range s.levels {
		if !dropped[i] {
			levels = append(levels, l)
		}
	}

	var coarse []Timeslice
	byName := map[string]int{}
	to := make([]int, len(s.slices))
	for _, ts := range s.slices {
		path := make([]string, 0, len(levels))
		for i, p := range ts.Path {
			if !dropped[i] {
				path = append(path, p)
			}
		}
		key := strings.Join(path, ".")
		ci, ok := byName[key]
		if !ok {
			ci = len(coarse)
			byName[key] = ci
			coarse = append(coarse, Timeslice{Index: ci, Path: path})
		}
		coarse[ci].Weight += ts.Weight
		to[ts.Index] = ci
	}
	cs := newSet(levels, coarse)
	return cs, &Mapping{Fine: s, Coarse: cs, To: to}, nil
}

// Project maps every timeslice of fine onto the declared coarse grid. The
// coarse levels must be a subsequence of the fine levels and every projected
// fine path must exist in coarse.
func Project(fine, coarse *Set) (*Mapping, error) {
	pos := make([]int, 0, len(coarse.levels))
	next := 0
	for _, cl := range coarse.levels {
		found := -1
		for i := next; i < len(fine.levels); i++ {
			if fine.levels[i] == cl {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, model.Configf("timeslices.levels", "level %q of the coarse grid is not a level of the fine grid (%s)", cl, strings.Join(fine.levels, ", "))
		}
		pos = append(pos, found)
		next = found + 1
	}

	to := make([]int, len(fine.slices))
	for _, ts := range fine.slices {
		path := make([]string, len(pos))
		for j, p := range pos {
			path[j] = ts.Path[p]
		}
		ci, ok := coarse.Lookup(strings.Join(path, "."))
		if !ok {
			return nil, model.Configf("timeslices", "timeslice %q has no counterpart %q in the coarse grid", ts.Name(), strings.Join(path, "."))
		}
		to[ts.Index] = ci
	}
	return &Mapping{Fine: fine, Coarse: coarse, To: to}, nil
}

// Rates folds a per-timeslice rate (utilization factor, price) onto the
// coarse grid as a weight-averaged value. Groups with zero total weight fall
// back to a plain mean.
func (m *Mapping) Rates(fine []float64) []float64 {
	n := m.Coarse.Len()
	sum := make([]float64, n)
	wsum := make([]float64, n)
	plain := make([]float64, n)
	count := make([]int, n)
	for i, v := range fine {
		c := m.To[i]
		w := m.Fine.Weight(i)
		sum[c] += v * w
		wsum[c] += w
		plain[c] += v
		count[c]++
	}
	out := make([]float64, n)
	for c := range out {
		switch {
		case wsum[c] > 0:
			out[c] = sum[c] / wsum[c]
		case count[c] > 0:
			out[c] = plain[c] / float64(count[c])
		}
	}
	return out
}

// Totals folds a per-timeslice quantity (energy, demand) onto the coarse
// grid by summation.
func (m *Mapping) Totals(fine []float64) []float64 {
	out := make([]float64, m.Coarse.Len())
	for i, v := range fine {
		out[m.To[i]] += v
	}
	return out
}
