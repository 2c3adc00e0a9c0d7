// Package scenario loads gridsim scenario files and builds simulators from them.
package scenario

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Object types accepted in a scenario.
const (
	TypeTicker     = "ticker"
	TypeTimeSeries = "time_series"
	TypeLoad       = "load"
	TypeBus        = "bus"
	TypeController = "controller"
)

var validTypes = map[string]bool{
	TypeTicker:     true,
	TypeTimeSeries: true,
	TypeLoad:       true,
	TypeBus:        true,
	TypeController: true,
}

// validParams lists the params keys each object type accepts.
var validParams = map[string][]string{
	TypeTicker:     nil,
	TypeTimeSeries: nil,
	TypeLoad:       {"base_power", "noise", "tolerance"},
	TypeBus:        {"nominal_voltage", "droop", "tolerance"},
	TypeController: {"v_min", "gain", "max_curtailment", "tolerance"},
}

// Spec is the top-level scenario configuration.
// Loaded from YAML via LoadSpec(path).
type Spec struct {
	Version       string         `yaml:"version"`
	Start         *time.Duration `yaml:"start,omitempty"`
	End           *time.Duration `yaml:"end,omitempty"`
	MaxIterations int            `yaml:"max_iterations,omitempty"`
	Seed          int64          `yaml:"seed,omitempty"`
	Objects       []ObjectSpec   `yaml:"objects"`
}

// ObjectSpec declares one scheduled object.
type ObjectSpec struct {
	ID        string             `yaml:"id"`
	Type      string             `yaml:"type"`
	DependsOn []string           `yaml:"depends_on,omitempty"`
	Params    map[string]float64 `yaml:"params,omitempty"`
	Dt        time.Duration      `yaml:"dt,omitempty"`     // ticker only
	Points    []PointSpec        `yaml:"points,omitempty"` // time_series only
}

// PointSpec is one time_series breakpoint.
type PointSpec struct {
	At    time.Duration `yaml:"at"`
	Value float64       `yaml:"value"`
}

// LoadSpec reads and parses a scenario file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec parses scenario YAML. Unknown keys are rejected.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if spec.Version == "" {
		spec.Version = "1"
	}
	return &spec, nil
}

// Validate checks that all fields in the spec are valid.
func (s *Spec) Validate() error {
	if s.Version != "1" {
		return fmt.Errorf("unsupported version %q; valid: 1", s.Version)
	}
	if s.Start != nil && s.End != nil && *s.End < *s.Start {
		return fmt.Errorf("end %s precedes start %s", *s.End, *s.Start)
	}
	if s.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative, got %d", s.MaxIterations)
	}
	if len(s.Objects) == 0 {
		return fmt.Errorf("at least one object required")
	}

	ids := make(map[string]bool, len(s.Objects))
	for i, o := range s.Objects {
		if o.ID == "" {
			return fmt.Errorf("object[%d]: id required", i)
		}
		if ids[o.ID] {
			return fmt.Errorf("object[%d]: duplicate id %q", i, o.ID)
		}
		ids[o.ID] = true
	}
	for i := range s.Objects {
		if err := validateObject(&s.Objects[i], i, ids); err != nil {
			return err
		}
		// A ticker counts from its first update, which only a start time schedules.
		if s.Objects[i].Type == TypeTicker && s.Start == nil {
			return fmt.Errorf("object[%d] %q: ticker requires a scenario start", i, s.Objects[i].ID)
		}
	}
	return nil
}

func validateObject(o *ObjectSpec, idx int, ids map[string]bool) error {
	prefix := fmt.Sprintf("object[%d] %q", idx, o.ID)
	if !validTypes[o.Type] {
		return fmt.Errorf("%s: unknown type %q; valid: ticker, time_series, load, bus, controller", prefix, o.Type)
	}
	for _, dep := range o.DependsOn {
		if dep == o.ID {
			return fmt.Errorf("%s: depends on itself", prefix)
		}
		if !ids[dep] {
			return fmt.Errorf("%s: unknown dependency %q", prefix, dep)
		}
	}
	names := make([]string, 0, len(o.Params))
	for name := range o.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		v := o.Params[name]
		if !slices.Contains(validParams[o.Type], name) {
			return fmt.Errorf("%s: unknown param %q for type %s", prefix, name, o.Type)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: param %q must be finite", prefix, name)
		}
	}

	switch o.Type {
	case TypeTicker:
		if o.Dt <= 0 {
			return fmt.Errorf("%s: dt must be positive, got %s", prefix, o.Dt)
		}
	case TypeTimeSeries:
		if len(o.Points) == 0 {
			return fmt.Errorf("%s: at least one point required", prefix)
		}
	default:
		if o.Dt != 0 {
			return fmt.Errorf("%s: dt only applies to ticker", prefix)
		}
	}
	if o.Type != TypeTimeSeries && len(o.Points) > 0 {
		return fmt.Errorf("%s: points only apply to time_series", prefix)
	}
	if o.Type == TypeController {
		if _, ok := o.Params["gain"]; !ok {
			return fmt.Errorf("%s: param gain required", prefix)
		}
	}
	return nil
}
