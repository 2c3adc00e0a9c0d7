// Package components provides reusable scheduled objects for gridsim
// scenarios. They are illustrative models for exercising the scheduler, not
// power-flow physics.
//
// Event-driven components (Load, Bus, Controller) never expire on their own:
// they request contingent updates when an upstream value they subscribe to
// changes. Timed components (Ticker, TimeSeries) drive the clock.
package components

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim"
)

// DefaultTolerance is the change threshold below which a component reports
// its state as unchanged.
const DefaultTolerance = 1e-6

// Ticker updates every dt ticks. It needs a configured start time to begin.
type Ticker struct {
	*sim.Component
	dt     sim.Time
	ticks  int
	ticked *sim.Event
}

// NewTicker creates a ticker with period dt.
func NewTicker(id string, dt sim.Time) (*Ticker, error) {
	if dt <= 0 {
		return nil, fmt.Errorf("ticker %s: dt must be positive, got %s", id, dt)
	}
	c := sim.NewComponent(id)
	return &Ticker{
		Component: c,
		dt:        dt,
		ticked:    sim.NewEvent(c.ID() + ": ticked"),
	}, nil
}

func (tk *Ticker) ValidUntil() sim.Time {
	return tk.Time().Add(tk.dt)
}

func (tk *Ticker) InitializeState() {
	tk.ticks = 0
}

func (tk *Ticker) UpdateState(t sim.Time) error {
	tk.ticks++
	logrus.Debugf("[t %s] %s tick %d", t, tk.ID(), tk.ticks)
	tk.ticked.Trigger()
	return nil
}

// Dt returns the ticker period.
func (tk *Ticker) Dt() sim.Time { return tk.dt }

// Ticks returns the number of updates since initialization.
func (tk *Ticker) Ticks() int { return tk.ticks }

// Ticked is triggered on every update.
func (tk *Ticker) Ticked() *sim.Event { return tk.ticked }
