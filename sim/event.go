package sim

import "github.com/sirupsen/logrus"

// Action is a callback registered on an Event, with a description used in logs.
type Action struct {
	fn          func()
	description string
}

// Description returns the action's description.
func (a Action) Description() string { return a.description }

// Perform runs the action.
func (a Action) Perform() { a.fn() }

// Event is an ordered multicast notification. Anyone may register an action;
// triggering runs every action in registration order. Actions are never
// removed individually.
type Event struct {
	description string
	actions     []Action
}

// NewEvent creates an event with the given description.
func NewEvent(description string) *Event {
	return &Event{description: description}
}

// Description returns the event's description.
func (e *Event) Description() string {
	return e.description
}

// AddAction appends fn to the event's action list.
func (e *Event) AddAction(fn func(), description string) {
	if description == "" {
		description = "N/A"
	}
	logrus.Debugf("Event %q: addAction %q", e.description, description)
	e.actions = append(e.actions, Action{fn: fn, description: description})
}

// Trigger performs all registered actions in order. Actions added while the
// event is being triggered run on the next trigger, not this one.
func (e *Event) Trigger() {
	actions := e.actions
	for _, a := range actions {
		a.Perform()
	}
}

// Actions returns a copy of the registered actions.
func (e *Event) Actions() []Action {
	out := make([]Action, len(e.actions))
	copy(out, e.actions)
	return out
}

// Len returns the number of registered actions.
func (e *Event) Len() int {
	return len(e.actions)
}

// Clear removes every action.
func (e *Event) Clear() {
	e.actions = nil
}
