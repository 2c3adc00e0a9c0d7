package scenario

import (
	"fmt"

	"github.com/sirupsen/logrus"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gridsim/gridsim/sim"
	"github.com/gridsim/gridsim/sim/components"
	"github.com/gridsim/gridsim/sim/trace"
)

// Options carries run settings that do not belong in a scenario file.
type Options struct {
	Trace   trace.TraceConfig
	Metrics *sim.Metrics
	Tracer  oteltrace.Tracer
}

// dependent is satisfied by every object embedding *sim.Component.
type dependent interface {
	DependsOn(other sim.Object) error
}

// Build validates spec, then creates a simulator with every object registered,
// every dependency wired, and ranks computed. The caller still calls Initialize.
func Build(spec *Spec, opts Options) (*sim.Simulator, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	cfg := sim.DefaultConfig()
	if spec.Start != nil {
		cfg.Start = sim.FromDuration(*spec.Start)
	}
	if spec.End != nil {
		cfg.End = sim.FromDuration(*spec.End)
	}
	if spec.MaxIterations > 0 {
		cfg.MaxIterations = spec.MaxIterations
	}
	cfg.Trace = opts.Trace
	cfg.Metrics = opts.Metrics
	cfg.Tracer = opts.Tracer
	s := sim.NewSimulator(cfg)

	rng := sim.NewPartitionedRNG(sim.NewSimulationKey(spec.Seed))
	for i := range spec.Objects {
		obj, err := newObject(&spec.Objects[i], rng)
		if err != nil {
			return nil, err
		}
		if err := s.RegisterObject(obj); err != nil {
			return nil, err
		}
	}

	for _, o := range spec.Objects {
		obj, _ := s.ObjectByID(o.ID)
		for _, depID := range o.DependsOn {
			dep, _ := s.ObjectByID(depID)
			if err := connect(obj, dep); err != nil {
				return nil, fmt.Errorf("wiring %s -> %s: %w", o.ID, depID, err)
			}
		}
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	logrus.Infof("built scenario: %d objects, %d ranks", s.Registry().Len(), s.Registry().NumRanks())
	return s, nil
}

func newObject(o *ObjectSpec, rng *sim.PartitionedRNG) (sim.Object, error) {
	p := o.Params
	switch o.Type {
	case TypeTicker:
		return components.NewTicker(o.ID, sim.FromDuration(o.Dt))
	case TypeTimeSeries:
		points := make([]components.Point, len(o.Points))
		for i, pt := range o.Points {
			points[i] = components.Point{At: sim.FromDuration(pt.At), Value: pt.Value}
		}
		return components.NewTimeSeries(o.ID, points)
	case TypeLoad:
		l, err := components.NewLoad(o.ID, components.LoadParams{
			BasePower: p["base_power"],
			Noise:     p["noise"],
			Tolerance: p["tolerance"],
		})
		if err != nil {
			return nil, err
		}
		if p["noise"] > 0 {
			l.SetRand(rng.ForObject(o.ID))
		}
		return l, nil
	case TypeBus:
		return components.NewBus(o.ID, components.BusParams{
			NominalVoltage: p["nominal_voltage"],
			Droop:          p["droop"],
			Tolerance:      p["tolerance"],
		})
	case TypeController:
		return components.NewController(o.ID, components.ControllerParams{
			VMin:           p["v_min"],
			Gain:           p["gain"],
			MaxCurtailment: p["max_curtailment"],
			Tolerance:      p["tolerance"],
		})
	}
	return nil, fmt.Errorf("object %q: unknown type %q", o.ID, o.Type)
}

// connect wires obj to read dep. Known pairings also subscribe obj to dep's
// change events; anything else is a plain ordering dependency.
func connect(obj, dep sim.Object) error {
	switch o := obj.(type) {
	case *components.Load:
		switch d := dep.(type) {
		case components.Signal:
			return o.AttachProfile(d)
		case *components.Controller:
			return o.AttachController(d)
		case *components.Ticker:
			if err := o.DependsOn(d); err != nil {
				return err
			}
			d.Ticked().AddAction(o.RequestUpdate, o.ID()+": resample")
			return nil
		}
	case *components.Bus:
		if d, ok := dep.(*components.Load); ok {
			return o.AttachLoad(d)
		}
	case *components.Controller:
		if d, ok := dep.(*components.Bus); ok {
			return o.AttachBus(d)
		}
	}
	d, ok := obj.(dependent)
	if !ok {
		return fmt.Errorf("%s cannot declare dependencies", obj.ID())
	}
	return d.DependsOn(dep)
}
