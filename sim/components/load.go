package components

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim"
)

// Signal is a scheduled object publishing a scalar value.
type Signal interface {
	sim.Object
	Value() float64
	ValueChanged() *sim.Event
}

// LoadParams configures a Load.
type LoadParams struct {
	BasePower float64 // kW at profile scale 1 and no curtailment
	Noise     float64 // relative jitter amplitude in [0, 1), drawn once per timestep
	Tolerance float64 // power change threshold in kW; DefaultTolerance when zero
}

// Load is a constant-power load scaled by an optional profile signal and an
// optional controller's curtailment:
//
//	P = BasePower · profile · (1 − curtailment) · (1 + jitter)
type Load struct {
	*sim.Component
	params     LoadParams
	profile    Signal
	controller *Controller
	rng        *rand.Rand

	jitter   float64
	power    float64
	hasPower bool
	changed  bool

	powerChanged *sim.Event
}

// NewLoad creates a load.
func NewLoad(id string, p LoadParams) (*Load, error) {
	if math.IsNaN(p.BasePower) || math.IsInf(p.BasePower, 0) {
		return nil, fmt.Errorf("load %s: base power must be finite", id)
	}
	if p.Noise < 0 || p.Noise >= 1 {
		return nil, fmt.Errorf("load %s: noise must be in [0, 1), got %g", id, p.Noise)
	}
	if p.Tolerance < 0 {
		return nil, fmt.Errorf("load %s: tolerance must be non-negative", id)
	}
	if p.Tolerance == 0 {
		p.Tolerance = DefaultTolerance
	}
	c := sim.NewComponent(id)
	return &Load{
		Component:    c,
		params:       p,
		powerChanged: sim.NewEvent(c.ID() + ": power changed"),
	}, nil
}

// AttachProfile scales the load by s and re-evaluates it whenever s changes.
func (l *Load) AttachProfile(s Signal) error {
	if err := l.DependsOn(s); err != nil {
		return err
	}
	l.profile = s
	s.ValueChanged().AddAction(l.RequestUpdate, l.ID()+": profile moved")
	return nil
}

// AttachController lets c curtail the load.
func (l *Load) AttachController(c *Controller) error {
	if err := l.DependsOn(c); err != nil {
		return err
	}
	l.controller = c
	c.SetpointChanged().AddAction(l.RequestUpdate, l.ID()+": setpoint moved")
	return nil
}

// SetRand sets the jitter stream. Without one the load is noiseless.
func (l *Load) SetRand(r *rand.Rand) { l.rng = r }

func (l *Load) InitializeState() {
	l.jitter = 0
	l.power = 0
	l.hasPower = false
	l.changed = false
}

func (l *Load) UpdateState(t sim.Time) error {
	if t != l.Time() {
		l.jitter = 0
		if l.rng != nil && l.params.Noise > 0 {
			l.jitter = l.params.Noise * (2*l.rng.Float64() - 1)
		}
	}

	scale := 1.0
	if l.profile != nil {
		scale = l.profile.Value()
	}
	curtail := 0.0
	if l.controller != nil {
		curtail = l.controller.Curtailment()
	}
	p := l.params.BasePower * scale * (1 - curtail) * (1 + l.jitter)

	l.changed = !l.hasPower || math.Abs(p-l.power) > l.params.Tolerance
	l.power = p
	l.hasPower = true
	if l.changed {
		logrus.Debugf("[t %s] %s power %.6g kW", t, l.ID(), p)
		l.powerChanged.Trigger()
	}
	return nil
}

// StateChanged reports whether the last update moved the power beyond tolerance.
func (l *Load) StateChanged() bool { return l.changed }

// Power returns the load's power in kW as of the last update.
func (l *Load) Power() float64 { return l.power }

// PowerChanged is triggered when an update moves the power beyond tolerance.
func (l *Load) PowerChanged() *sim.Event { return l.powerChanged }
