package sim

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Object is the contract every simulated entity implements. Implementations
// embed *Component, which supplies bookkeeping, lifecycle events, and defaults
// for ValidUntil, InitializeState, and UpdateState.
type Object interface {
	ID() string
	// ValidUntil is the latest time the current state stays correct without an update.
	ValidUntil() Time
	// InitializeState resets internal state. Time is NegInf when it is called.
	InitializeState()
	// UpdateState brings state up to t. Time() still reports the previous time.
	UpdateState(t Time) error

	component() *Component
}

// ChangeReporter is implemented by objects that can tell whether their last
// UpdateState altered their state. It decides when a dependency cycle has settled.
type ChangeReporter interface {
	StateChanged() bool
}

// Component is the base embedded by every Object.
type Component struct {
	id    string
	time  Time
	rank  int
	index int
	reg   *Registry
	deps  []int

	willUpdate  *Event
	didUpdate   *Event
	needsUpdate *Event
}

// NewComponent creates a component. An empty id is replaced by a random UUID.
func NewComponent(id string) *Component {
	if id == "" {
		id = uuid.NewString()
	}
	return &Component{
		id:          id,
		time:        NegInf,
		rank:        -1,
		index:       -1,
		willUpdate:  NewEvent(id + ": will update"),
		didUpdate:   NewEvent(id + ": did update"),
		needsUpdate: NewEvent(id + ": needs update"),
	}
}

func (c *Component) component() *Component { return c }

// ID returns the object's identifier, unique within its registry.
func (c *Component) ID() string { return c.id }

// Time returns the time the object is up to date with.
func (c *Component) Time() Time { return c.time }

// Rank returns the evaluation rank; -1 until the registry is validated.
// A lower rank updates earlier within a timestep.
func (c *Component) Rank() int { return c.rank }

// Index returns the registry index, -1 if unregistered.
func (c *Component) Index() int { return c.index }

// ValidUntil defaults to PosInf: the object never needs updating.
func (c *Component) ValidUntil() Time { return PosInf }

// InitializeState is a no-op by default.
func (c *Component) InitializeState() {}

// UpdateState is a no-op by default.
func (c *Component) UpdateState(Time) error { return nil }

// WillUpdate is triggered immediately before each update.
func (c *Component) WillUpdate() *Event { return c.willUpdate }

// DidUpdate is triggered immediately after each successful update.
func (c *Component) DidUpdate() *Event { return c.didUpdate }

// NeedsUpdate is triggered when the object asks for an update outside its
// valid-until schedule.
func (c *Component) NeedsUpdate() *Event { return c.needsUpdate }

// RequestUpdate flags the object for a contingent update.
func (c *Component) RequestUpdate() {
	c.needsUpdate.Trigger()
}

// DependsOn declares that c reads other's state, so other must update first.
// Both objects must be registered with the same simulator. The dependency is
// held as a registry index and does not keep other alive.
func (c *Component) DependsOn(other Object) error {
	o := other.component()
	if c.reg == nil || o.reg != c.reg {
		return fmt.Errorf("%s depends on %s: %w", c.id, o.id, ErrUnregistered)
	}
	if slices.Contains(c.deps, o.index) {
		return nil
	}
	c.deps = append(c.deps, o.index)
	c.reg.dirty = true
	logrus.Debugf("%s depends on %s", c.id, o.id)
	return nil
}

// Dependencies returns the objects c depends on, in declaration order.
func (c *Component) Dependencies() []Object {
	if c.reg == nil {
		return nil
	}
	out := make([]Object, 0, len(c.deps))
	for _, i := range c.deps {
		out = append(out, c.reg.objects[i])
	}
	return out
}

// initialize resets obj to NegInf and lets it reset its own state.
func initialize(obj Object) {
	c := obj.component()
	c.time = NegInf
	obj.InitializeState()
}

// update runs one lifecycle round: WillUpdate, UpdateState, DidUpdate.
func update(obj Object, t Time) error {
	c := obj.component()
	if t < c.time {
		return fmt.Errorf("%s: update to %s from %s: %w", c.id, t, c.time, ErrTimeReversal)
	}
	logrus.Debugf("[t %s] updating %s (rank %d)", t, c.id, c.rank)
	c.willUpdate.Trigger()
	if err := obj.UpdateState(t); err != nil {
		return fmt.Errorf("updating %s at %s: %w", c.id, t, err)
	}
	c.time = t
	c.didUpdate.Trigger()
	return nil
}
