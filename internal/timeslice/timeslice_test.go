package timeslice

import (
	"errors"
	"math"
	"testing"

	"energy-mca/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sixSlices mirrors a month/day/hour grid with a single month and day.
func sixSlices() Definition {
	return Definition{
		Levels: []string{"month", "day", "hour"},
		Total:  8760,
		Slices: []Node{{
			Name: "all-year",
			Children: []Node{{
				Name: "all-week",
				Children: []Node{
					{Name: "night", Weight: 1460},
					{Name: "morning", Weight: 1460},
					{Name: "afternoon", Weight: 1460},
					{Name: "early-peak", Weight: 1460},
					{Name: "late-peak", Weight: 1460},
					{Name: "evening", Weight: 1460},
				},
			}},
		}},
	}
}

func seasonal() Definition {
	return Definition{
		Levels: []string{"season", "hour"},
		Slices: []Node{
			{Name: "winter", Children: []Node{{Name: "day", Weight: 3}, {Name: "night", Weight: 1}}},
			{Name: "summer", Children: []Node{{Name: "day", Weight: 1}, {Name: "night", Weight: 3}}},
		},
	}
}

func TestFlatten_WeightClosure(t *testing.T) {
	for name, def := range map[string]Definition{"six": sixSlices(), "seasonal": seasonal()} {
		t.Run(name, func(t *testing.T) {
			s, err := Flatten(def)
			require.NoError(t, err)
			assert.InDelta(t, 1.0, s.TotalWeight(), 1e-9)
		})
	}
}

func TestFlatten_OrderAndNames(t *testing.T) {
	s, err := Flatten(sixSlices())
	require.NoError(t, err)
	require.Equal(t, 6, s.Len())
	assert.Equal(t, "all-year.all-week.night", s.At(0).Name())
	assert.Equal(t, "all-year.all-week.evening", s.At(5).Name())
	assert.InDelta(t, 1.0/6, s.Weight(3), 1e-12)
	i, ok := s.Lookup("all-year.all-week.late-peak")
	require.True(t, ok)
	assert.Equal(t, 4, i)
}

func TestFlatten_RejectsOpenWeights(t *testing.T) {
	def := sixSlices()
	def.Total = 8000

	_, err := Flatten(def)
	require.Error(t, err)
	var cfgErr *model.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "timeslices.total", cfgErr.Field)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestFlatten_RejectsBadTrees(t *testing.T) {
	cases := map[string]Definition{
		"empty": {},
		"ragged depth": {Slices: []Node{
			{Name: "a", Weight: 1},
			{Name: "b", Children: []Node{{Name: "c", Weight: 1}}},
		}},
		"negative": {Slices: []Node{{Name: "a", Weight: -1}}},
		"nan":      {Slices: []Node{{Name: "a", Weight: math.NaN()}}},
		"duplicate": {Slices: []Node{
			{Name: "a", Weight: 1},
			{Name: "a", Weight: 1},
		}},
		"subtotal mismatch": {Slices: []Node{
			{Name: "a", Weight: 5, Children: []Node{{Name: "x", Weight: 1}, {Name: "y", Weight: 1}}},
		}},
		"level count": {Levels: []string{"one"}, Slices: []Node{
			{Name: "a", Children: []Node{{Name: "x", Weight: 1}}},
		}},
		"dotted name": {Slices: []Node{{Name: "a.b", Weight: 1}}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Flatten(def)
			assert.ErrorIs(t, err, model.ErrConfiguration)
		})
	}
}

func TestSet_Match(t *testing.T) {
	s, err := Flatten(seasonal())
	require.NoError(t, err)

	got, err := s.Match(map[string]string{"hour": "night"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, got)

	got, err = s.Match(map[string]string{"season": "summer"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, got)

	got, err = s.Match(nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)

	_, err = s.Match(map[string]string{"month": "jan"})
	assert.ErrorIs(t, err, model.ErrConfiguration)

	assert.Equal(t, []int{0, 1}, s.MatchPrefix([]string{"winter"}))
}

func TestCollapse_DropLevel(t *testing.T) {
	s, err := Flatten(seasonal())
	require.NoError(t, err)

	coarse, m, err := Collapse(s, "season")
	require.NoError(t, err)
	require.Equal(t, 2, coarse.Len())
	assert.Equal(t, []string{"hour"}, coarse.Levels())
	assert.Equal(t, "day", coarse.At(0).Name())
	assert.Equal(t, []int{0, 1, 0, 1}, m.To)
	assert.InDelta(t, 0.5, coarse.Weight(0), 1e-12)
	assert.InDelta(t, 1.0, coarse.TotalWeight(), 1e-9)

	_, _, err = Collapse(s, "season", "hour")
	assert.ErrorIs(t, err, model.ErrConfiguration)
	_, _, err = Collapse(s, "bogus")
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestCollapse_MiddleLevelKeepsCount(t *testing.T) {
	s, err := Flatten(sixSlices())
	require.NoError(t, err)

	coarse, m, err := Collapse(s, "day")
	require.NoError(t, err)
	assert.Equal(t, 6, coarse.Len())
	assert.Equal(t, "all-year.night", coarse.At(0).Name())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, m.To)
}

func TestMapping_RatesAndTotals(t *testing.T) {
	s, err := Flatten(seasonal())
	require.NoError(t, err)
	_, m, err := Collapse(s, "season")
	require.NoError(t, err)

	// winter.day w=3/8, winter.night 1/8, summer.day 1/8, summer.night 3/8
	rates := m.Rates([]float64{1, 1, 0, 0})
	assert.InDelta(t, 0.75, rates[0], 1e-12)
	assert.InDelta(t, 0.25, rates[1], 1e-12)

	totals := m.Totals([]float64{3, 1, 1, 3})
	assert.Equal(t, []float64{4, 4}, totals)
}

func TestProject(t *testing.T) {
	fine, err := Flatten(seasonal())
	require.NoError(t, err)
	coarse, err := Flatten(Definition{
		Levels: []string{"hour"},
		Slices: []Node{{Name: "day", Weight: 1}, {Name: "night", Weight: 1}},
	})
	require.NoError(t, err)

	m, err := Project(fine, coarse)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0, 1}, m.To)

	other, err := Flatten(Definition{Levels: []string{"hour"}, Slices: []Node{{Name: "day", Weight: 1}}})
	require.NoError(t, err)
	_, err = Project(fine, other)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	wrongLevel, err := Flatten(Definition{Levels: []string{"month"}, Slices: []Node{{Name: "day", Weight: 1}}})
	require.NoError(t, err)
	_, err = Project(fine, wrongLevel)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
