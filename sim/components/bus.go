package components

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim"
)

// BusParams configures a Bus.
type BusParams struct {
	NominalVoltage float64 // per-unit voltage at zero load; 1.0 when zero
	Droop          float64 // per-unit voltage drop per kW
	Tolerance      float64 // DefaultTolerance when zero
}

// Bus aggregates attached loads and applies a linear droop:
//
//	V = NominalVoltage − Droop · ΣP
type Bus struct {
	*sim.Component
	params BusParams
	loads  []*Load

	power      float64
	voltage    float64
	hasVoltage bool
	changed    bool

	voltageChanged *sim.Event
}

// NewBus creates a bus.
func NewBus(id string, p BusParams) (*Bus, error) {
	if p.NominalVoltage == 0 {
		p.NominalVoltage = 1.0
	}
	if p.Tolerance == 0 {
		p.Tolerance = DefaultTolerance
	}
	checks := []struct {
		name  string
		value float64
	}{
		{"nominal voltage", p.NominalVoltage},
		{"droop", p.Droop},
		{"tolerance", p.Tolerance},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) || c.value < 0 {
			return nil, fmt.Errorf("bus %s: %s must be finite and non-negative, got %g", id, c.name, c.value)
		}
	}
	c := sim.NewComponent(id)
	return &Bus{
		Component:      c,
		params:         p,
		voltageChanged: sim.NewEvent(c.ID() + ": voltage changed"),
	}, nil
}

// AttachLoad connects l to the bus.
func (b *Bus) AttachLoad(l *Load) error {
	if err := b.DependsOn(l); err != nil {
		return err
	}
	b.loads = append(b.loads, l)
	l.PowerChanged().AddAction(b.RequestUpdate, b.ID()+": load moved")
	return nil
}

func (b *Bus) InitializeState() {
	b.power = 0
	b.voltage = b.params.NominalVoltage
	b.hasVoltage = false
	b.changed = false
}

func (b *Bus) UpdateState(t sim.Time) error {
	total := 0.0
	for _, l := range b.loads {
		total += l.Power()
	}
	v := b.params.NominalVoltage - b.params.Droop*total

	b.changed = !b.hasVoltage || math.Abs(v-b.voltage) > b.params.Tolerance
	b.power = total
	b.voltage = v
	b.hasVoltage = true
	if b.changed {
		logrus.Debugf("[t %s] %s %.6g kW, %.6g pu", t, b.ID(), total, v)
		b.voltageChanged.Trigger()
	}
	return nil
}

// StateChanged reports whether the last update moved the voltage beyond tolerance.
func (b *Bus) StateChanged() bool { return b.changed }

// Voltage returns the per-unit voltage as of the last update.
func (b *Bus) Voltage() float64 { return b.voltage }

// Power returns the total attached load in kW as of the last update.
func (b *Bus) Power() float64 { return b.power }

// Loads returns the attached loads in attachment order.
func (b *Bus) Loads() []*Load {
	out := make([]*Load, len(b.loads))
	copy(out, b.loads)
	return out
}

// VoltageChanged is triggered when an update moves the voltage beyond tolerance.
func (b *Bus) VoltageChanged() *sim.Event { return b.voltageChanged }
