package components

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim"
)

// ControllerParams configures a Controller.
type ControllerParams struct {
	VMin           float64 // per-unit voltage to hold the bus at or above
	Gain           float64 // curtailment change per unit of voltage error
	MaxCurtailment float64 // upper bound on curtailment; 1.0 when zero
	Tolerance      float64 // DefaultTolerance when zero
}

// Controller curtails loads to keep a bus voltage at or above VMin. Each
// update applies one damped integral step:
//
//	c ← clamp(c + Gain · (VMin − V), 0, MaxCurtailment)
//
// Attached to a bus that its own loads feed, it closes a dependency cycle that
// the scheduler settles within each timestep.
type Controller struct {
	*sim.Component
	params ControllerParams
	bus    *Bus

	curtailment float64
	changed     bool
	saturated   bool

	setpointChanged *sim.Event
}

// NewController creates a controller.
func NewController(id string, p ControllerParams) (*Controller, error) {
	if p.MaxCurtailment == 0 {
		p.MaxCurtailment = 1.0
	}
	if p.Tolerance == 0 {
		p.Tolerance = DefaultTolerance
	}
	if p.MaxCurtailment < 0 || p.MaxCurtailment > 1 {
		return nil, fmt.Errorf("controller %s: max curtailment must be in [0, 1], got %g", id, p.MaxCurtailment)
	}
	if p.Gain <= 0 || math.IsInf(p.Gain, 0) || math.IsNaN(p.Gain) {
		return nil, fmt.Errorf("controller %s: gain must be positive and finite, got %g", id, p.Gain)
	}
	if math.IsNaN(p.VMin) || math.IsInf(p.VMin, 0) {
		return nil, fmt.Errorf("controller %s: v_min must be finite", id)
	}
	c := sim.NewComponent(id)
	return &Controller{
		Component:       c,
		params:          p,
		setpointChanged: sim.NewEvent(c.ID() + ": setpoint changed"),
	}, nil
}

// AttachBus makes the controller regulate b.
func (c *Controller) AttachBus(b *Bus) error {
	if err := c.DependsOn(b); err != nil {
		return err
	}
	c.bus = b
	b.VoltageChanged().AddAction(c.RequestUpdate, c.ID()+": voltage moved")
	return nil
}

func (c *Controller) InitializeState() {
	c.curtailment = 0
	c.changed = false
	c.saturated = false
}

func (c *Controller) UpdateState(t sim.Time) error {
	c.changed = false
	if c.bus == nil {
		return nil
	}
	next := c.curtailment + c.params.Gain*(c.params.VMin-c.bus.Voltage())
	next = math.Max(0, math.Min(next, c.params.MaxCurtailment))

	if math.Abs(next-c.curtailment) <= c.params.Tolerance {
		return nil
	}
	c.curtailment = next
	c.changed = true

	saturated := next == c.params.MaxCurtailment
	if saturated && !c.saturated {
		logrus.Warnf("[t %s] %s saturated at curtailment %.3g", t, c.ID(), next)
	}
	c.saturated = saturated
	c.setpointChanged.Trigger()
	return nil
}

// StateChanged reports whether the last update moved the curtailment beyond tolerance.
func (c *Controller) StateChanged() bool { return c.changed }

// Curtailment returns the fraction of load currently shed, in [0, MaxCurtailment].
func (c *Controller) Curtailment() float64 { return c.curtailment }

// SetpointChanged is triggered when an update moves the curtailment.
func (c *Controller) SetpointChanged() *sim.Event { return c.setpointChanged }
