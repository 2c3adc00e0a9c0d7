package components

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridsim/gridsim/sim"
)

// Point is one breakpoint of a TimeSeries.
type Point struct {
	At    sim.Time
	Value float64
}

// TimeSeries is a piecewise-constant signal. Its value at t is the value of
// the last breakpoint at or before t, or the first breakpoint's value before
// the series begins. It stays valid until the next breakpoint.
type TimeSeries struct {
	*sim.Component
	points       []Point
	value        float64
	hasValue     bool
	valueChanged *sim.Event
}

// NewTimeSeries creates a series from points, which are sorted by time.
func NewTimeSeries(id string, points []Point) (*TimeSeries, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("time series %s: no points", id)
	}
	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].At < sorted[j].At })
	for i, p := range sorted {
		if !p.At.IsFinite() {
			return nil, fmt.Errorf("time series %s: point %d has non-finite time", id, i)
		}
		if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
			return nil, fmt.Errorf("time series %s: point %d has non-finite value", id, i)
		}
		if i > 0 && p.At == sorted[i-1].At {
			return nil, fmt.Errorf("time series %s: duplicate breakpoint at %s", id, p.At)
		}
	}
	c := sim.NewComponent(id)
	return &TimeSeries{
		Component:    c,
		points:       sorted,
		valueChanged: sim.NewEvent(c.ID() + ": value changed"),
	}, nil
}

func (ts *TimeSeries) ValidUntil() sim.Time {
	now := ts.Time()
	i := sort.Search(len(ts.points), func(i int) bool { return ts.points[i].At > now })
	if i == len(ts.points) {
		return sim.PosInf
	}
	return ts.points[i].At
}

func (ts *TimeSeries) InitializeState() {
	ts.value = 0
	ts.hasValue = false
}

func (ts *TimeSeries) UpdateState(t sim.Time) error {
	v := ts.At(t)
	if ts.hasValue && v == ts.value {
		return nil
	}
	logrus.Debugf("[t %s] %s = %g", t, ts.ID(), v)
	ts.value = v
	ts.hasValue = true
	ts.valueChanged.Trigger()
	return nil
}

// At evaluates the series at t without changing its state.
func (ts *TimeSeries) At(t sim.Time) float64 {
	i := sort.Search(len(ts.points), func(i int) bool { return ts.points[i].At > t })
	if i == 0 {
		return ts.points[0].Value
	}
	return ts.points[i-1].Value
}

// Value returns the value as of the last update.
func (ts *TimeSeries) Value() float64 { return ts.value }

// Points returns a copy of the breakpoints in time order.
func (ts *TimeSeries) Points() []Point {
	out := make([]Point, len(ts.points))
	copy(out, ts.points)
	return out
}

// ValueChanged is triggered when an update moves the value.
func (ts *TimeSeries) ValueChanged() *sim.Event { return ts.valueChanged }
