// Package config loads model definitions (YAML) and layered solver settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"energy-mca/internal/data"
	"energy-mca/internal/model"
	"energy-mca/internal/timeslice"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk model definition shape (YAML).
type Config struct {
	Name       string           `yaml:"name"`
	Years      []int            `yaml:"years"`
	Timeslices TimesliceConfig  `yaml:"timeslices"`
	Sectors    []SectorConfig   `yaml:"sectors"`
	Existing   []ExistingConfig `yaml:"existing_capacity"`
	// Optional: load demand rows from a JSON projection. Inline rows are
	// applied after the file's rows.
	DemandFile string           `yaml:"demand_file"`
	Demand     []data.DemandRow `yaml:"demand"`
	Prices     []PriceConfig    `yaml:"prices"`

	dir string
}

// TimesliceConfig is the nested timeslice tree plus optional re-aggregation.
type TimesliceConfig struct {
	timeslice.Definition `yaml:",inline"`
	// Tolerance bounds the relative gap between leaf weights and Total.
	Tolerance float64 `yaml:"tolerance"`
	// DropLevels collapses the named levels after all rows are resolved.
	DropLevels []string `yaml:"drop_levels"`
	// Aggregate declares the grid to solve on. Its levels must be a
	// subsequence of the fine levels and its weights must equal the folded
	// fine weights. Exclusive with DropLevels.
	Aggregate *timeslice.Definition `yaml:"aggregate"`
}

type SectorConfig struct {
	Name string `yaml:"name"`
	// Optional: load technologies from a separate YAML technodata file.
	// Inline technologies with the same name override fields from the file.
	TechnodataFile string             `yaml:"technodata_file"`
	Technologies   []TechnologyConfig `yaml:"technologies"`
}

type TechnologyConfig struct {
	Name               string             `yaml:"name"`
	Output             string             `yaml:"output"`
	Inputs             map[string]float64 `yaml:"inputs"`
	CapacityToActivity float64            `yaml:"capacity_to_activity"`
	MaxCapacity        float64            `yaml:"max_capacity"`
	MaxBuildRate       float64            `yaml:"max_build_rate"`
	Lifetime           int                `yaml:"lifetime"`
	FixedCost          float64            `yaml:"fixed_cost"`
	VariableCost       float64            `yaml:"variable_cost"`
	Utilization        []UtilizationRow   `yaml:"utilization"`
}

// UtilizationRow sets the factor of every timeslice its selector addresses.
// Timeslices no row addresses run at factor 0.
type UtilizationRow struct {
	Timeslice data.Selector `yaml:"timeslice"`
	Factor    float64       `yaml:"factor"`
	MustRun   bool          `yaml:"must_run"`
}

type ExistingConfig struct {
	Sector     string  `yaml:"sector"`
	Technology string  `yaml:"technology"`
	Year       int     `yaml:"year"`
	Capacity   float64 `yaml:"capacity"`
}

// PriceConfig fixes an exogenous price or seeds an endogenous one.
type PriceConfig struct {
	Commodity string        `yaml:"commodity"`
	Timeslice data.Selector `yaml:"timeslice"`
	Price     float64       `yaml:"price"`
}

// Load reads a model file and validates it.
func Load(path string) (*Config, error) {
	c, err := LoadUnchecked(path)
	if err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges the model, but does not validate it.
// Useful for debugging/printing partial models.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.dir = filepath.Dir(path)
	if err := c.resolveFiles(); err != nil {
		return nil, err
	}
	return c, nil
}

// Parse decodes a model definition without touching the filesystem. File
// references are resolved relative to the working directory.
func Parse(raw []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ParseAndValidate is Parse followed by file resolution, defaults and Validate.
func ParseAndValidate(raw []byte) (*Config, error) {
	c, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := c.resolveFiles(); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// resolve prefers paths relative to the model file, falling back to the
// provided path (relative to cwd) if that doesn't exist.
func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	cand := filepath.Join(c.dir, p)
	if _, err := os.Stat(cand); err == nil {
		return cand
	}
	return p
}

func (c *Config) resolveFiles() error {
	for i := range c.Sectors {
		s := &c.Sectors[i]
		if s.TechnodataFile == "" {
			continue
		}
		loaded, err := loadTechnodataFile(c.resolve(s.TechnodataFile))
		if err != nil {
			return fmt.Errorf("sector %s: %w", s.Name, err)
		}
		s.Technologies = MergeTechnologies(loaded, s.Technologies)
		s.TechnodataFile = ""
	}
	if c.DemandFile != "" {
		f, err := data.LoadDemandJSON(c.resolve(c.DemandFile))
		if err != nil {
			return fmt.Errorf("demand: %w", err)
		}
		c.Demand = append(f.Data, c.Demand...)
		c.DemandFile = ""
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	for i := range c.Sectors {
		for j := range c.Sectors[i].Technologies {
			t := &c.Sectors[i].Technologies[j]
			// Capacity is expressed in annual output unless stated otherwise.
			if t.CapacityToActivity == 0 {
				t.CapacityToActivity = 1
			}
		}
	}
	if c.Timeslices.Tolerance == 0 {
		c.Timeslices.Tolerance = timeslice.DefaultTolerance
	}
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if len(c.Years) == 0 {
		return model.Configf("years", "at least one year is required")
	}
	if len(c.Sectors) == 0 {
		return model.Configf("sectors", "at least one sector is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Sectors {
		if s.Name == "" {
			return model.Configf("sectors", "sector name is required")
		}
		if seen[s.Name] {
			return model.Configf("sectors", "duplicate sector %q", s.Name)
		}
		seen[s.Name] = true
		if len(s.Technologies) == 0 {
			return model.Configf(fmt.Sprintf("sectors[%s]", s.Name), "no technologies")
		}
	}
	// Building the model checks everything else against the timeslice grid.
	if _, err := c.Build(); err != nil {
		return err
	}
	return nil
}

type technodataFileWrapper struct {
	Technologies []TechnologyConfig `yaml:"technologies"`
}

func loadTechnodataFile(path string) ([]TechnologyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var w technodataFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Technologies, nil
}

// MergeTechnologies overlays overrides onto base by technology name.
// Unknown names are appended in override order.
func MergeTechnologies(base, overrides []TechnologyConfig) []TechnologyConfig {
	out := append([]TechnologyConfig(nil), base...)
	pos := map[string]int{}
	for i, t := range out {
		pos[t.Name] = i
	}
	for _, o := range overrides {
		if i, ok := pos[o.Name]; ok {
			out[i] = MergeTechnology(out[i], o)
			continue
		}
		pos[o.Name] = len(out)
		out = append(out, o)
	}
	return out
}

// MergeTechnology overlays non-zero fields from override onto base.
// Inputs merge per commodity; a utilization table replaces the base one.
func MergeTechnology(base, override TechnologyConfig) TechnologyConfig {
	out := base
	if override.Output != "" {
		out.Output = override.Output
	}
	if len(override.Inputs) > 0 {
		inputs := make(map[string]float64, len(base.Inputs)+len(override.Inputs))
		for _, k := range sortedNames(base.Inputs) {
			inputs[k] = base.Inputs[k]
		}
		for _, k := range sortedNames(override.Inputs) {
			inputs[k] = override.Inputs[k]
		}
		out.Inputs = inputs
	}
	if override.CapacityToActivity != 0 {
		out.CapacityToActivity = override.CapacityToActivity
	}
	if override.MaxCapacity != 0 {
		out.MaxCapacity = override.MaxCapacity
	}
	if override.MaxBuildRate != 0 {
		out.MaxBuildRate = override.MaxBuildRate
	}
	if override.Lifetime != 0 {
		out.Lifetime = override.Lifetime
	}
	if override.FixedCost != 0 {
		out.FixedCost = override.FixedCost
	}
	if override.VariableCost != 0 {
		out.VariableCost = override.VariableCost
	}
	if len(override.Utilization) > 0 {
		out.Utilization = override.Utilization
	}
	return out
}

func sortedNames(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
